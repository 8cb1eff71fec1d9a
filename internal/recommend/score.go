package recommend

import (
	"strings"

	"github.com/kalambet/whatnow/internal/situation"
	"github.com/kalambet/whatnow/internal/storage"
)

// Scoring weights: breadth of context coverage, label confidence quality, and
// a small capped bonus for many simultaneous matches. Fixed so recommendation
// ranking stays reproducible.
const (
	coverageWeight   = 0.4
	confidenceWeight = 0.5
	bonusPerMatch    = 0.1
	bonusCap         = 0.3
)

// MatchResult is the outcome of scoring one task against a situation.
type MatchResult struct {
	Score          float64
	MatchingLabels []string
}

// Match computes how well a task's stored labels fit the situation. Pure and
// deterministic: no I/O, no clock.
//
// Every situation string is compared case-insensitively against every label
// name; each exact match contributes that label's confidence and appends the
// situation string to the match list. A string matching several labels
// contributes once per label — duplicates are meaningful and kept. No matches
// (or an empty situation) scores zero.
func Match(labels []storage.Label, sit situation.Situation) MatchResult {
	candidates := sit.Flatten()
	if len(candidates) == 0 {
		return MatchResult{}
	}

	var matches []string
	var confidenceSum float64

	for _, candidate := range candidates {
		for _, label := range labels {
			if strings.EqualFold(candidate, label.Name) {
				matches = append(matches, candidate)
				confidenceSum += label.Confidence
			}
		}
	}

	if len(matches) == 0 {
		return MatchResult{}
	}

	matched := float64(len(matches))
	matchPercentage := matched / float64(len(candidates))
	avgConfidence := confidenceSum / matched
	bonus := min(bonusCap, matched*bonusPerMatch)

	score := min(1.0, matchPercentage*coverageWeight+avgConfidence*confidenceWeight+bonus)
	return MatchResult{Score: score, MatchingLabels: matches}
}
