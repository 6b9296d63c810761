package models

import "time"

// ScoreMap maps an external player ID to an integer amount (prediction,
// hands won, or round score). Stored as a JSON column.
type ScoreMap map[string]int

// Match is the aggregate for one game of berenjena: ordered players, the
// winning-points threshold, the chronological rounds and the arrival-order
// ledger of players who crossed the threshold.
type Match struct {
	ID            string   `gorm:"primaryKey;type:uuid" json:"id"`
	Players       []string `gorm:"serializer:json" json:"players"` // join order, append-only
	WinningPoints int      `gorm:"not null" json:"winning_points"`

	Rounds []Round `gorm:"foreignKey:MatchID" json:"rounds"`

	// Losers records the order in which players reached WinningPoints.
	// Despite the name it carries both ends of the final ranking: early
	// entries finished first, and only on a forced full elimination does
	// the tail entry mean last place.
	Losers []string `gorm:"serializer:json" json:"losers"`
	Winner string   `json:"winner,omitempty"` // empty while undecided

	IsActive    bool `gorm:"default:true;index" json:"is_active"`
	IsCancelled bool `gorm:"default:false" json:"is_cancelled"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// Round is one scored unit of play owned by exactly one Match.
// Predictions are fixed at creation; results and scores are written once,
// later, as a single update.
//
// A round with CardsPerPlayer == 0 and an ID prefixed "joining-" is a
// bookkeeping round seeding a mid-match joiner's starting score. It never
// carries predictions or results.
type Round struct {
	ID             string `gorm:"primaryKey" json:"id"`
	MatchID        string `gorm:"index;not null" json:"match_id"`
	SortOrder      int    `gorm:"not null" json:"sort_order"`
	CardsPerPlayer int    `json:"cards_per_player"`

	PlayerPredictions ScoreMap `gorm:"serializer:json" json:"player_predictions"`
	PlayerResults     ScoreMap `gorm:"serializer:json" json:"player_results"`
	PlayerScores      ScoreMap `gorm:"serializer:json" json:"player_scores"`

	Timestamps
}

// HasResults reports whether results (and therefore scores) have been
// recorded for this round.
func (r *Round) HasResults() bool {
	return len(r.PlayerResults) > 0
}
