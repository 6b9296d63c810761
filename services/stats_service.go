package services

import (
	"errors"
	"log"
	"time"

	"berenjapp/engine"
	"berenjapp/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// playerTally accumulates one player's lifetime numbers while matches are
// replayed.
type playerTally struct {
	played      int64
	won         int64
	lost        int64
	finalRounds int64
	points      int64
	positionSum int64
}

// RebuildAll replays every completed match and rewrites the player_stats
// table. Cancelled matches are skipped entirely — they never count for or
// against anyone.
func (s *StatsService) RebuildAll() error {
	var matches []models.Match
	err := s.DB.Preload("Rounds", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).Where("is_active = ? AND is_cancelled = ?", false, false).
		Find(&matches).Error
	if err != nil {
		return err
	}

	tallies := make(map[string]*playerTally)
	for i := range matches {
		accumulate(tallies, &matches[i])
	}

	now := time.Now()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		for playerID, t := range tallies {
			stats := models.PlayerStats{
				ID:                uuid.NewString(),
				ExternalUserID:    playerID,
				MatchesPlayed:     t.played,
				MatchesWon:        t.won,
				MatchesLost:       t.lost,
				FinalRoundsPlayed: t.finalRounds,
				TotalPoints:       t.points,
				LastComputedAt:    &now,
			}
			if t.played > 0 {
				stats.AveragePosition = float64(t.positionSum) / float64(t.played)
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "external_user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"matches_played", "matches_won", "matches_lost",
					"final_rounds_played", "total_points",
					"average_position", "last_computed_at", "updated_at",
				}),
			}).Create(&stats).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// accumulate adds one completed match into the tallies. Position is the
// 1-based index in the final standings; first position counts as a win, the
// last as a loss, and the bottom two positions are the endgame survivors.
func accumulate(tallies map[string]*playerTally, match *models.Match) {
	standings := engine.Standings(match)
	totals := engine.TotalScores(match)

	for position, playerID := range standings {
		t := tallies[playerID]
		if t == nil {
			t = &playerTally{}
			tallies[playerID] = t
		}
		t.played++
		t.points += int64(totals[playerID])
		t.positionSum += int64(position + 1)
		if position == 0 {
			t.won++
		}
		if position == len(standings)-1 {
			t.lost++
		}
		if position >= len(standings)-2 {
			t.finalRounds++
		}
	}
}

// GetPlayerStats returns one player's lifetime stats.
func (s *StatsService) GetPlayerStats(c *fiber.Ctx) error {
	playerID := c.Params("id")
	var stats models.PlayerStats
	if err := s.DB.Where("external_user_id = ?", playerID).First(&stats).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No completed matches yet — an empty row, not an error.
			return c.JSON(models.PlayerStats{ExternalUserID: playerID})
		}
		log.Printf("ERROR fetching stats for %s: %v", playerID, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(stats)
}

// GetLeaderboard lists every tracked player's stats with mirrored usernames,
// best record first.
func (s *StatsService) GetLeaderboard(c *fiber.Ctx) error {
	type Row struct {
		ExternalUserID    string  `json:"external_user_id"`
		Username          string  `json:"username,omitempty"`
		MatchesPlayed     int64   `json:"matches_played"`
		MatchesWon        int64   `json:"matches_won"`
		MatchesLost       int64   `json:"matches_lost"`
		FinalRoundsPlayed int64   `json:"final_rounds_played"`
		TotalPoints       int64   `json:"total_points"`
		AveragePosition   float64 `json:"average_position"`
	}
	var rows []Row
	err := s.DB.Raw(`
		SELECT ps.external_user_id, mp.username,
		       ps.matches_played, ps.matches_won, ps.matches_lost,
		       ps.final_rounds_played, ps.total_points, ps.average_position
		FROM player_stats ps
		LEFT JOIN match_players mp ON mp.external_user_id = ps.external_user_id
		ORDER BY ps.matches_won DESC, ps.average_position ASC
	`).Scan(&rows).Error
	if err != nil {
		log.Printf("ERROR fetching leaderboard: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch leaderboard"})
	}
	return c.JSON(rows)
}
