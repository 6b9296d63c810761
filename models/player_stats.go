package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerStats holds denormalized lifetime statistics per player, derived
// from completed matches only — cancelled matches never count. Rebuilt by
// the stats service after each completion and periodically by the scheduler.
type PlayerStats struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"`

	MatchesPlayed int64 `json:"matches_played" gorm:"default:0"`
	MatchesWon    int64 `json:"matches_won" gorm:"default:0"`  // finished first
	MatchesLost   int64 `json:"matches_lost" gorm:"default:0"` // finished last

	// FinalRoundsPlayed counts completed matches where the player was one
	// of the last two standing.
	FinalRoundsPlayed int64 `json:"final_rounds_played" gorm:"default:0"`

	TotalPoints     int64   `json:"total_points" gorm:"default:0"`
	AveragePosition float64 `json:"average_position" gorm:"default:0"`

	LastComputedAt *time.Time `json:"last_computed_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
