package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// RecordScore validates a submission, registers the player if needed and
// appends the run to the score ledger. Achievement evaluation, the board
// cache and the broadcasts are best-effort: a failure there is logged
// and the submission still succeeds, because the periodic sync and the
// rescan endpoint can recover all of it from the ledger.
func (s *HubService) RecordScore(ctx context.Context, sub domain.ScoreSubmission) error {
	if err := validateSubmission(sub); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.store.EnsureUser(ctx, sub.Username, now); err != nil {
		return fmt.Errorf("registering player: %w", err)
	}

	event := domain.ScoreEvent{
		Game:      sub.Game,
		Username:  sub.Username,
		Score:     sub.Score,
		CreatedAt: now,
	}
	if err := s.store.InsertScoreEvent(ctx, event); err != nil {
		return fmt.Errorf("recording score: %w", err)
	}

	granted := s.evaluateAchievements(ctx, event)

	if s.cache != nil {
		if err := s.cache.RecordScore(ctx, event.Game, event.Username, event.Score); err != nil {
			// Don't fail the request if the cache write fails
			s.logger.Warn("failed to update cached boards",
				"game", event.Game,
				"user", event.Username,
				"error", err)
		}
	}

	s.broadcastScore(ctx, event, granted)
	return nil
}

// RecordScoreBatch records multiple runs, skipping the ones that fail
func (s *HubService) RecordScoreBatch(ctx context.Context, subs []domain.ScoreSubmission) error {
	for _, sub := range subs {
		if err := s.RecordScore(ctx, sub); err != nil {
			s.logger.Error("failed to record score in batch",
				"game", sub.Game,
				"user", sub.Username,
				"error", err)
			continue
		}
	}
	return nil
}

func (s *HubService) broadcastScore(ctx context.Context, event domain.ScoreEvent, granted []domain.Achievement) {
	if s.notifier == nil {
		return
	}

	s.notifier.BroadcastScore(event)
	if len(granted) > 0 {
		s.notifier.BroadcastAchievements(event.Username, granted)
	}

	if s.cache != nil {
		top, err := s.cache.TopGame(ctx, event.Game, s.config.DefaultLimit)
		if err == nil && len(top) > 0 {
			s.notifier.BroadcastLeaderboard(event.Game, top)
		}
	}
}

// Leaderboard returns the persistent per-game board, ordered by best
// score with ties broken by most recent play
func (s *HubService) Leaderboard(ctx context.Context, game string, limit int) ([]domain.LeaderboardEntry, error) {
	if err := validateGame(game); err != nil {
		return nil, err
	}
	return s.store.Leaderboard(ctx, game, s.clampLimit(limit))
}

// LiveLeaderboard serves the per-game board from the cache when it is
// warm, falling back to the ledger otherwise
func (s *HubService) LiveLeaderboard(ctx context.Context, game string, limit int) ([]domain.LeaderboardEntry, error) {
	if err := validateGame(game); err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	if s.cache != nil {
		entries, err := s.cache.TopGame(ctx, game, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			s.logger.Warn("live board unavailable, serving from store",
				"game", game,
				"error", err)
		}
	}

	return s.store.Leaderboard(ctx, game, limit)
}

// OverallLeaderboard returns the cross-game board under the given total
// policy
func (s *HubService) OverallLeaderboard(ctx context.Context, policy domain.TotalPolicy, limit int) ([]domain.OverallEntry, error) {
	limit = s.clampLimit(limit)
	if policy == domain.TotalPolicyBests {
		return s.store.OverallLeaderboardByBests(ctx, limit)
	}
	return s.store.OverallLeaderboard(ctx, limit)
}

// LiveOverall serves the cross-game board from the cache when it is
// warm, falling back to the ledger otherwise
func (s *HubService) LiveOverall(ctx context.Context, policy domain.TotalPolicy, limit int) ([]domain.OverallEntry, error) {
	limit = s.clampLimit(limit)

	if s.cache != nil {
		entries, err := s.cache.TopOverall(ctx, policy, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			s.logger.Warn("live overall board unavailable, serving from store",
				"policy", string(policy),
				"error", err)
		}
	}

	if policy == domain.TotalPolicyBests {
		return s.store.OverallLeaderboardByBests(ctx, limit)
	}
	return s.store.OverallLeaderboard(ctx, limit)
}

// UserTotal returns the lifetime sum of a player's scores across all
// games, 0 if they have none
func (s *HubService) UserTotal(ctx context.Context, username string) (int64, error) {
	return s.store.UserTotal(ctx, username)
}

// UserGameTotal returns the sum of a player's scores in one game
func (s *HubService) UserGameTotal(ctx context.Context, username, game string) (int64, error) {
	return s.store.UserGameTotal(ctx, username, game)
}

// UserOverallByBests returns the sum of a player's best score per game
func (s *HubService) UserOverallByBests(ctx context.Context, username string) (int64, error) {
	return s.store.UserOverallByBests(ctx, username)
}

// UserBestScore returns a player's single highest score across all games
func (s *HubService) UserBestScore(ctx context.Context, username string) (int64, error) {
	return s.store.UserBestScore(ctx, username)
}

// UserBestForGame returns a player's highest score in one game
func (s *HubService) UserBestForGame(ctx context.Context, username, game string) (int64, error) {
	return s.store.UserBestForGame(ctx, username, game)
}

// RankForGame returns a player's 1-based rank on a game board, 0 when
// they have never played the game
func (s *HubService) RankForGame(ctx context.Context, username, game string) (int64, error) {
	if err := validateGame(game); err != nil {
		return 0, err
	}
	return s.store.RankForGame(ctx, username, game)
}

// OverallRank returns a player's 1-based rank on the cross-game board
// under the given total policy, 0 when they have no recorded runs
func (s *HubService) OverallRank(ctx context.Context, username string, policy domain.TotalPolicy) (int64, error) {
	if policy == domain.TotalPolicyBests {
		return s.store.OverallRankByBests(ctx, username)
	}
	return s.store.OverallRank(ctx, username)
}

// Games lists every game that has at least one recorded run
func (s *HubService) Games(ctx context.Context) ([]string, error) {
	return s.store.Games(ctx)
}
