package analysis

import (
	"fmt"
	"strings"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// EncodePosition renders engine state as an SGF backgammon position
// (FF[4] GM[6]) the gnubg sidecar can load. Points map to letters 'a'..'x'
// from the white player's numbering, 'y' is the bar; one letter is emitted
// per checker. White is the SGF White player and moves on PL[W].
func EncodePosition(state engine.State) string {
	var white, red []string

	for p := 1; p <= 24; p++ {
		pt := state.Points[p-1]
		if pt.Count == 0 {
			continue
		}
		letter := pointLetter(p)
		for i := 0; i < pt.Count; i++ {
			if pt.Color == engine.ColorWhite {
				white = append(white, letter)
			} else {
				red = append(red, letter)
			}
		}
	}
	for i := 0; i < state.BarWhite; i++ {
		white = append(white, "y")
	}
	for i := 0; i < state.BarRed; i++ {
		red = append(red, "y")
	}

	var b strings.Builder
	b.WriteString("(;FF[4]GM[6]CA[UTF-8]AP[doublecube.gg]")
	b.WriteString(fmt.Sprintf("PL[%s]", playerTag(state.CurrentPlayer)))
	if state.Dice.Rolled() {
		b.WriteString(fmt.Sprintf("DI[%d%d]", state.Dice.Die1, state.Dice.Die2))
	}
	if state.Cube.Value > 1 {
		b.WriteString(fmt.Sprintf("CV[%d]", state.Cube.Value))
		if state.Cube.Owner != engine.ColorNone {
			b.WriteString(fmt.Sprintf("CO[%s]", playerTag(state.Cube.Owner)))
		}
	}
	writeSetup(&b, "AW", white)
	writeSetup(&b, "AB", red)
	b.WriteString(")")
	return b.String()
}

func writeSetup(b *strings.Builder, prop string, letters []string) {
	if len(letters) == 0 {
		return
	}
	b.WriteString(prop)
	for _, l := range letters {
		b.WriteString("[" + l + "]")
	}
}

func pointLetter(p int) string {
	return string(rune('a' + p - 1))
}

func playerTag(c engine.Color) string {
	if c == engine.ColorWhite {
		return "W"
	}
	return "B"
}
