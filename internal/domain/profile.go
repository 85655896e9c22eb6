package domain

import (
	"fmt"
	"strings"
	"time"
)

// Profile aggregates everything the hub shows about a single player.
// TotalScore follows the best-run-per-game policy.
type Profile struct {
	Username     string        `json:"username"`
	Registered   bool          `json:"registered"`
	Joined       time.Time     `json:"joined"`
	TotalScore   int64         `json:"total_score"`
	TotalPlays   int64         `json:"total_plays"`
	Achievements []Achievement `json:"achievements"`
}

// UserSummary bundles a player's headline numbers under both total
// policies
type UserSummary struct {
	Username           string `json:"username"`
	BestScore          int64  `json:"best_score"`
	TotalScore         int64  `json:"total_score"`
	TotalByBests       int64  `json:"total_by_bests"`
	PlayCount          int64  `json:"play_count"`
	OverallRank        int64  `json:"overall_rank"`
	OverallRankByBests int64  `json:"overall_rank_by_bests"`
}

// Render formats the profile as the fixed-order text report shown by the
// arcade shell. Unregistered users render with "Joined: unknown".
func (p Profile) Render() string {
	joined := "unknown"
	if p.Registered {
		joined = p.Joined.UTC().Format(time.RFC3339)
	}

	lines := []string{
		"Username: " + p.Username,
		"Joined: " + joined,
		fmt.Sprintf("Total score: %d", p.TotalScore),
		fmt.Sprintf("Total plays: %d", p.TotalPlays),
		"",
		"Achievements:",
	}
	for _, a := range p.Achievements {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", a.Key, a.Reason, a.AwardedAt.UTC().Format(time.RFC3339)))
	}
	if len(p.Achievements) == 0 {
		lines = append(lines, "- None yet")
	}

	return strings.Join(lines, "\n")
}
