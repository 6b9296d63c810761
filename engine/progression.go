package engine

import (
	"sort"
	"time"

	"berenjapp/models"
)

// TotalScores sums round scores per player across every round of the match,
// joining rounds included (they carry a joiner's starting score).
func TotalScores(m *models.Match) models.ScoreMap {
	totals := make(models.ScoreMap, len(m.Players))
	for _, playerID := range m.Players {
		totals[playerID] = 0
	}
	for i := range m.Rounds {
		for playerID, score := range m.Rounds[i].PlayerScores {
			totals[playerID] += score
		}
	}
	return totals
}

// evaluate recomputes standings after a round's scores were recorded:
// players at or above the winning threshold are appended to Losers in join
// order, and when a single active player remains it becomes the winner and
// the match completes. Never fails — it only derives state from
// already-validated rounds.
func evaluate(m *models.Match) {
	totals := TotalScores(m)

	for _, playerID := range m.Players {
		if contains(m.Losers, playerID) {
			continue
		}
		if totals[playerID] < m.WinningPoints {
			continue
		}
		// The last remaining player is never appended: it becomes the
		// winner below, so Losers can never swallow the whole match.
		if len(m.Losers) >= len(m.Players)-1 {
			break
		}
		m.Losers = append(m.Losers, playerID)
	}

	if m.IsActive && len(m.Losers) == len(m.Players)-1 {
		remaining := ActivePlayers(m)
		if len(remaining) == 1 {
			m.Winner = remaining[0]
			complete(m, time.Now())
		}
	}
}

// Standings returns the ranked player list for display: players who crossed
// the threshold in arrival order, then still-active players by descending
// total score (ties broken by join order).
func Standings(m *models.Match) []string {
	totals := TotalScores(m)

	ranked := make([]string, 0, len(m.Players))
	ranked = append(ranked, m.Losers...)

	active := ActivePlayers(m)
	sort.SliceStable(active, func(i, j int) bool {
		return totals[active[i]] > totals[active[j]]
	})
	return append(ranked, active...)
}
