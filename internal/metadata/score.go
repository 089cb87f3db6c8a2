package metadata

import (
	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

const (
	yearMatchBonus   = 0.1
	yearMismatchCost = 0.15
	yearTolerance    = 1
)

// ScoreSeries rates how well candidate matches a series query in [0,1].
// The best name or alias similarity dominates; a known year nudges the score.
func ScoreSeries(query string, year int, candidate domain.SeriesMatch) float64 {
	score := normalize.Similarity(query, candidate.Name)
	for _, alias := range candidate.Aliases {
		if s := normalize.Similarity(query, alias); s > score {
			score = s
		}
	}

	if year > 0 && candidate.StartYear > 0 {
		diff := year - candidate.StartYear
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			score += yearMatchBonus
		case diff > yearTolerance:
			score -= yearMismatchCost
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
