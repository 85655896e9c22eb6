package achievements

import (
	"fmt"
	"slices"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// Default grant thresholds, used when none are configured.
var (
	DefaultScoreThresholds = []int64{500, 1000}
	DefaultPlayThresholds  = []int64{5, 10, 25}
)

// Policy decides which badges a run earns. It is pure: it produces grant
// candidates, and storage decides whether a candidate is new. Thresholds
// are additive; a badge once granted is never revoked.
type Policy struct {
	scoreThresholds []int64
	playThresholds  []int64
}

// NewPolicy builds a policy from the configured threshold sets. Empty sets
// fall back to the defaults.
func NewPolicy(scoreThresholds, playThresholds []int64) Policy {
	p := Policy{
		scoreThresholds: slices.Clone(scoreThresholds),
		playThresholds:  slices.Clone(playThresholds),
	}
	slices.Sort(p.scoreThresholds)
	slices.Sort(p.playThresholds)
	return p
}

func (p Policy) scores() []int64 {
	if len(p.scoreThresholds) == 0 {
		return DefaultScoreThresholds
	}
	return p.scoreThresholds
}

func (p Policy) plays() []int64 {
	if len(p.playThresholds) == 0 {
		return DefaultPlayThresholds
	}
	return p.playThresholds
}

// ScoreGrants returns one candidate per score threshold the run reached.
func (p Policy) ScoreGrants(username, game string, score int64, now time.Time) []domain.Achievement {
	var grants []domain.Achievement
	for _, th := range p.scores() {
		if score >= th {
			grants = append(grants, domain.Achievement{
				Username:  username,
				Key:       ScoreKey(game, th),
				Reason:    ScoreReason(game, th),
				AwardedAt: now,
			})
		}
	}
	return grants
}

// PlayGrants returns one candidate per play-count threshold reached.
func (p Policy) PlayGrants(username, game string, plays int64, now time.Time) []domain.Achievement {
	var grants []domain.Achievement
	for _, th := range p.plays() {
		if plays >= th {
			grants = append(grants, domain.Achievement{
				Username:  username,
				Key:       PlayKey(game, th),
				Reason:    PlayReason(game, th),
				AwardedAt: now,
			})
		}
	}
	return grants
}

// ScoreKey returns the stable badge key for a score threshold.
func ScoreKey(game string, threshold int64) string {
	return fmt.Sprintf("%s_score_%d", game, threshold)
}

// PlayKey returns the stable badge key for a play-count threshold.
func PlayKey(game string, threshold int64) string {
	return fmt.Sprintf("%s_plays_%d", game, threshold)
}

// ScoreReason returns the grant description for a score threshold.
func ScoreReason(game string, threshold int64) string {
	return fmt.Sprintf("Score >= %d in %s", threshold, game)
}

// PlayReason returns the grant description for a play-count threshold.
func PlayReason(game string, threshold int64) string {
	return fmt.Sprintf("Played %d games of %s", threshold, game)
}
