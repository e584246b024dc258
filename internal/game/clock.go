package game

import (
	"sync"
	"time"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/engine"
)

// sessionClock tracks per-color reserve time under a correspondence-style
// time control: each turn grants a base allowance, and time spent beyond it
// burns the mover's reserve.
type sessionClock struct {
	mu sync.Mutex

	turnAllowance time.Duration
	reserveWhite  time.Duration
	reserveRed    time.Duration

	active      engine.Color
	activeSince time.Time

	now func() time.Time
}

func newSessionClock(turnAllowance, reserve time.Duration) sessionClock {
	return sessionClock{
		turnAllowance: turnAllowance,
		reserveWhite:  reserve,
		reserveRed:    reserve,
		now:           time.Now,
	}
}

// start begins timing the given color's turn.
func (c *sessionClock) start(color engine.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = color
	c.activeSince = c.now()
}

// stop ends the active turn, deducting any overage from the mover's reserve.
// It returns the remaining reserve for the color that just moved.
func (c *sessionClock) stop() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == engine.ColorNone || c.activeSince.IsZero() {
		return 0
	}

	elapsed := c.now().Sub(c.activeSince)
	if overage := elapsed - c.turnAllowance; overage > 0 {
		switch c.active {
		case engine.ColorWhite:
			c.reserveWhite -= overage
			if c.reserveWhite < 0 {
				c.reserveWhite = 0
			}
		case engine.ColorRed:
			c.reserveRed -= overage
			if c.reserveRed < 0 {
				c.reserveRed = 0
			}
		}
	}

	remaining := c.reserveFor(c.active)
	c.active = engine.ColorNone
	c.activeSince = time.Time{}
	return remaining
}

// deadline is the instant the active mover forfeits on time, or zero when no
// clock is running or no time control is configured.
func (c *sessionClock) deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == engine.ColorNone || c.activeSince.IsZero() || c.turnAllowance <= 0 {
		return time.Time{}
	}
	return c.activeSince.Add(c.turnAllowance + c.reserveFor(c.active))
}

// reserves returns both reserves.
func (c *sessionClock) reserves() (white, red time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserveWhite, c.reserveRed
}

// setReserves restores persisted reserve balances.
func (c *sessionClock) setReserves(white, red time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserveWhite = white
	c.reserveRed = red
}

func (c *sessionClock) reserveFor(color engine.Color) time.Duration {
	if color == engine.ColorWhite {
		return c.reserveWhite
	}
	return c.reserveRed
}
