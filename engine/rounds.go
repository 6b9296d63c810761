package engine

import (
	"strings"

	"berenjapp/models"

	"github.com/google/uuid"
)

// joiningRoundPrefix marks bookkeeping rounds that seed a mid-match
// joiner's starting score. They carry no predictions or results.
const joiningRoundPrefix = "joining-"

// IsJoiningRound reports whether the round is a join bookkeeping round
// rather than a played one.
func IsJoiningRound(round *models.Round) bool {
	return round.CardsPerPlayer == 0 && strings.HasPrefix(round.ID, joiningRoundPrefix)
}

// ActivePlayers returns the players not yet in Losers, in join order.
func ActivePlayers(m *models.Match) []string {
	var active []string
	for _, playerID := range m.Players {
		if !contains(m.Losers, playerID) {
			active = append(active, playerID)
		}
	}
	return active
}

// AddRound validates predictions and appends a new round awaiting results.
// The second return value flags the under-total condition (total predictions
// strictly below cards per player — the "fiuuum"), which is informational
// and never an error.
func AddRound(m *models.Match, cardsPerPlayer int, predictions models.ScoreMap) (*models.Round, bool, error) {
	if !m.IsActive || m.IsCancelled {
		return nil, false, ErrInactiveMatch
	}
	if cardsPerPlayer < 1 {
		return nil, false, validationErrorf("cards_per_player must be at least 1, got %d", cardsPerPlayer)
	}

	active := ActivePlayers(m)
	for _, playerID := range active {
		if _, ok := predictions[playerID]; !ok {
			return nil, false, validationErrorf("missing prediction for active player %s", playerID)
		}
	}
	if len(predictions) != len(active) {
		for playerID := range predictions {
			if !contains(active, playerID) {
				return nil, false, validationErrorf("prediction for %s, who is not an active player", playerID)
			}
		}
	}

	total := 0
	for playerID, prediction := range predictions {
		if prediction < 0 || prediction > cardsPerPlayer {
			return nil, false, validationErrorf("prediction for %s must be between 0 and %d, got %d", playerID, cardsPerPlayer, prediction)
		}
		total += prediction
	}
	// The game forbids total certainty: predictions may not add up to
	// exactly the number of hands in play.
	if total == cardsPerPlayer {
		return nil, false, validationErrorf("total predictions (%d) cannot equal cards per player (%d)", total, cardsPerPlayer)
	}

	round := models.Round{
		ID:                uuid.NewString(),
		MatchID:           m.ID,
		SortOrder:         len(m.Rounds),
		CardsPerPlayer:    cardsPerPlayer,
		PlayerPredictions: clone(predictions),
		PlayerResults:     models.ScoreMap{},
		PlayerScores:      models.ScoreMap{},
	}
	m.Rounds = append(m.Rounds, round)

	return &m.Rounds[len(m.Rounds)-1], total < cardsPerPlayer, nil
}

// RecordResults writes a round's results exactly once, derives its scores,
// and re-evaluates match progression. Fails without mutating on any
// violation.
func RecordResults(m *models.Match, roundID string, results models.ScoreMap) (*models.Round, error) {
	if !m.IsActive || m.IsCancelled {
		return nil, ErrInactiveMatch
	}

	var round *models.Round
	for i := range m.Rounds {
		if m.Rounds[i].ID == roundID {
			round = &m.Rounds[i]
			break
		}
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if IsJoiningRound(round) {
		return nil, validationErrorf("round %s is a joining round and takes no results", roundID)
	}
	if round.HasResults() {
		return nil, validationErrorf("round %s already has results", roundID)
	}

	for playerID := range results {
		if _, ok := round.PlayerPredictions[playerID]; !ok {
			return nil, invalidRoundDataf("result for %s, who made no prediction in round %s", playerID, roundID)
		}
	}

	total := 0
	for playerID, result := range results {
		if result < 0 || result > round.CardsPerPlayer {
			return nil, validationErrorf("result for %s must be between 0 and %d, got %d", playerID, round.CardsPerPlayer, result)
		}
		total += result
	}
	// Every hand in play is won by somebody, so results must account for
	// all of them.
	if total != round.CardsPerPlayer {
		return nil, validationErrorf("total results (%d) must equal cards per player (%d)", total, round.CardsPerPlayer)
	}

	staged := &models.Round{
		ID:                round.ID,
		PlayerPredictions: round.PlayerPredictions,
		PlayerResults:     clone(results),
	}
	scores, err := ScoreRound(staged)
	if err != nil {
		return nil, err
	}

	round.PlayerResults = clone(results)
	round.PlayerScores = scores

	evaluate(m)
	return round, nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func clone(m models.ScoreMap) models.ScoreMap {
	out := make(models.ScoreMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
