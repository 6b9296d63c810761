package engine

import "berenjapp/models"

// Scoring rule: an exact prediction is rewarded with a base amount plus a
// bonus per predicted hand; a miss costs a penalty per hand of error.
//
//	exact:  10 + 10*prediction
//	miss:  -10*|prediction - result|
const (
	exactBase     = 10
	pointsPerHand = 10
)

// Score returns the round score for a single player. Pure function: same
// inputs always give the same output.
func Score(prediction, result int) int {
	if prediction == result {
		return exactBase + pointsPerHand*prediction
	}
	miss := prediction - result
	if miss < 0 {
		miss = -miss
	}
	return -pointsPerHand * miss
}

// ScoreRound computes the score for every player that predicted in the
// round. Fails with InvalidRoundDataError when results do not cover every
// predicting player.
func ScoreRound(round *models.Round) (models.ScoreMap, error) {
	scores := make(models.ScoreMap, len(round.PlayerPredictions))
	for playerID, prediction := range round.PlayerPredictions {
		result, ok := round.PlayerResults[playerID]
		if !ok {
			return nil, invalidRoundDataf("round %s: missing result for player %s", round.ID, playerID)
		}
		scores[playerID] = Score(prediction, result)
	}
	return scores, nil
}
