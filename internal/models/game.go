package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Game status values. A game row is upserted wholesale on every
// state-affecting action; status transitions are monotonic once terminal.
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbandoned  = "abandoned"
	StatusSuspended  = "suspended"
)

// Game is the durable snapshot of one match: a flattened projection of a
// live session plus its engine at a point in time. Each save fully replaces
// the previous row for the same ID.
type Game struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID string `gorm:"index" json:"match_id,omitempty"`

	WhitePlayerID   string `json:"white_player_id"`
	RedPlayerID     string `json:"red_player_id"`
	WhitePlayerName string `json:"white_player_name"`
	RedPlayerName   string `json:"red_player_name"`

	// Board occupancy: 24 ordered points, each {color, count}, stored as JSON.
	Points         datatypes.JSON `json:"points"`
	BarWhite       int            `json:"bar_white"`
	BarRed         int            `json:"bar_red"`
	OffWhite       int            `json:"off_white"`
	OffRed         int            `json:"off_red"`
	CurrentTurn    string         `json:"current_turn"`
	Die1           int            `json:"die1"`
	Die2           int            `json:"die2"`
	RemainingMoves datatypes.JSON `json:"remaining_moves"`
	CubeValue      int            `json:"cube_value"`
	CubeOwner      string         `json:"cube_owner"`
	PendingDouble  string         `json:"pending_double,omitempty"` // agent ID of an unanswered cube offer
	MoveHistory    datatypes.JSON `json:"move_history"`
	GameStarted    bool           `json:"game_started"`
	CrawfordGame   bool           `json:"crawford_game"`
	Winner         string         `json:"winner,omitempty"`
	Stakes         int            `json:"stakes,omitempty"`
	DeclinedStakes int            `json:"declined_stakes,omitempty"`

	Status string `gorm:"index;default:waiting" json:"status"`

	// Game-mode feature flags.
	ChatEnabled          bool `json:"chat_enabled"`
	DoubleEnabled        bool `json:"double_enabled"`
	ImportExportEnabled  bool `json:"import_export_enabled"`
	AnalysisBadgeEnabled bool `json:"analysis_badge_enabled"`

	// Turn-timer bookkeeping for correspondence-style time controls.
	WhiteReserveMS int64      `json:"white_reserve_ms"`
	RedReserveMS   int64      `json:"red_reserve_ms"`
	TurnDeadline   *time.Time `gorm:"index" json:"turn_deadline,omitempty"`

	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// Terminal reports whether the game has reached a final status.
func (g *Game) Terminal() bool {
	return g.Status == StatusCompleted || g.Status == StatusAbandoned
}
