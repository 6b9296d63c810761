package engine

import (
	"time"

	"berenjapp/models"

	"github.com/google/uuid"
)

// NewMatch creates an active match with no rounds played. At least two
// distinct players and a positive winning threshold are required.
func NewMatch(playerIDs []string, winningPoints int) (*models.Match, error) {
	if len(playerIDs) < 2 {
		return nil, validationErrorf("a match needs at least 2 players, got %d", len(playerIDs))
	}
	if winningPoints < 1 {
		return nil, validationErrorf("winning_points must be positive, got %d", winningPoints)
	}
	seen := make(map[string]bool, len(playerIDs))
	for _, playerID := range playerIDs {
		if playerID == "" {
			return nil, validationErrorf("player IDs cannot be empty")
		}
		if seen[playerID] {
			return nil, validationErrorf("duplicate player %s", playerID)
		}
		seen[playerID] = true
	}

	return &models.Match{
		ID:            uuid.NewString(),
		Players:       append([]string(nil), playerIDs...),
		WinningPoints: winningPoints,
		Rounds:        []models.Round{},
		Losers:        []string{},
		IsActive:      true,
	}, nil
}

// AddPlayer joins a new player mid-match. The joiner starts from the lowest
// total among currently active players, seeded through a joining round, so
// totals stay a pure sum over round scores.
func AddPlayer(m *models.Match, playerID string) error {
	if !m.IsActive || m.IsCancelled {
		return ErrInactiveMatch
	}
	if playerID == "" {
		return validationErrorf("player ID cannot be empty")
	}
	if contains(m.Players, playerID) {
		return ErrDuplicatePlayer
	}

	totals := TotalScores(m)
	starting := 0
	for i, activeID := range ActivePlayers(m) {
		if i == 0 || totals[activeID] < starting {
			starting = totals[activeID]
		}
	}

	m.Players = append(m.Players, playerID)
	if starting != 0 {
		m.Rounds = append(m.Rounds, models.Round{
			ID:                joiningRoundPrefix + uuid.NewString(),
			MatchID:           m.ID,
			SortOrder:         len(m.Rounds),
			CardsPerPlayer:    0,
			PlayerPredictions: models.ScoreMap{},
			PlayerResults:     models.ScoreMap{},
			PlayerScores:      models.ScoreMap{playerID: starting},
		})
	}
	return nil
}

// FinishMatch force-completes an active match. When no player has yet won
// the race, Winner stays empty and the caller presents whatever standings
// exist.
func FinishMatch(m *models.Match) error {
	if !m.IsActive || m.IsCancelled {
		return ErrInactiveMatch
	}
	complete(m, time.Now())
	return nil
}

// CancelMatch voids an active match. Rounds and scores stay in place, but
// the match is excluded from win/loss statistics entirely.
func CancelMatch(m *models.Match) error {
	if !m.IsActive || m.IsCancelled {
		return ErrInactiveMatch
	}
	now := time.Now()
	m.IsActive = false
	m.IsCancelled = true
	m.CompletedAt = &now
	return nil
}

func complete(m *models.Match, at time.Time) {
	m.IsActive = false
	m.CompletedAt = &at
}
