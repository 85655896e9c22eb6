package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// evaluateAchievements runs the threshold checks for a freshly recorded
// run and grants whatever the player does not already hold. Returns the
// newly granted badges for broadcasting. Failures are logged and leave
// the grants to a later rescan.
func (s *HubService) evaluateAchievements(ctx context.Context, event domain.ScoreEvent) []domain.Achievement {
	candidates := s.policy.ScoreGrants(event.Username, event.Game, event.Score, event.CreatedAt)

	plays, err := s.store.GamePlayCount(ctx, event.Username, event.Game)
	if err != nil {
		s.logger.Warn("failed to count plays for achievement checks",
			"user", event.Username,
			"game", event.Game,
			"error", err)
	} else {
		candidates = append(candidates, s.policy.PlayGrants(event.Username, event.Game, plays, event.CreatedAt)...)
	}

	granted, err := s.store.GrantAchievements(ctx, candidates)
	if err != nil {
		s.logger.Warn("failed to grant achievements",
			"user", event.Username,
			"game", event.Game,
			"error", err)
		return nil
	}
	return granted
}

// RescanAchievements recomputes every player's best score and play count
// per game and re-runs the threshold checks, granting whatever is
// missing. Running it twice in a row grants nothing new. The returned
// count tallies every threshold match seen during the pass, including
// badges the players already held.
func (s *HubService) RescanAchievements(ctx context.Context) (int64, error) {
	aggregates, err := s.store.GameAggregates(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading aggregates for rescan: %w", err)
	}

	now := time.Now().UTC()
	var matched int64
	var candidates []domain.Achievement
	for _, agg := range aggregates {
		grants := s.policy.ScoreGrants(agg.Username, agg.Game, agg.Best, now)
		grants = append(grants, s.policy.PlayGrants(agg.Username, agg.Game, agg.Plays, now)...)
		matched += int64(len(grants))
		candidates = append(candidates, grants...)
	}

	if _, err := s.store.GrantAchievements(ctx, candidates); err != nil {
		return 0, fmt.Errorf("granting rescanned achievements: %w", err)
	}

	s.logger.Info("achievement rescan completed",
		"players_games", len(aggregates),
		"matched", matched)
	return matched, nil
}

// UserAchievements lists a player's badges, most recent first
func (s *HubService) UserAchievements(ctx context.Context, username string) ([]domain.Achievement, error) {
	return s.store.UserAchievements(ctx, username)
}
