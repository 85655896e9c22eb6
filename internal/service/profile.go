package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// EnsureUser registers a player, leaving an existing registration
// untouched
func (s *HubService) EnsureUser(ctx context.Context, username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := s.store.EnsureUser(ctx, username, time.Now().UTC()); err != nil {
		return fmt.Errorf("registering player: %w", err)
	}
	return nil
}

// User looks up a registry row. The second return reports whether the
// player is registered.
func (s *HubService) User(ctx context.Context, username string) (domain.User, bool, error) {
	return s.store.GetUser(ctx, username)
}

// Profile composes the registry row, the best-run-per-game total, the
// play count and the badge list into one view. Unknown players still get
// a profile, with zero totals and no join date.
func (s *HubService) Profile(ctx context.Context, username string) (domain.Profile, error) {
	if err := validateUsername(username); err != nil {
		return domain.Profile{}, err
	}

	user, registered, err := s.store.GetUser(ctx, username)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("loading registry row: %w", err)
	}

	total, err := s.store.UserOverallByBests(ctx, username)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("computing profile total: %w", err)
	}

	plays, err := s.store.UserPlayCount(ctx, username)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("counting plays: %w", err)
	}

	achs, err := s.store.UserAchievements(ctx, username)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("loading achievements: %w", err)
	}

	profile := domain.Profile{
		Username:     username,
		Registered:   registered,
		TotalScore:   total,
		TotalPlays:   plays,
		Achievements: achs,
	}
	if registered {
		profile.Joined = user.CreatedAt
	}
	return profile, nil
}

// Summary returns a player's headline numbers under both total policies
func (s *HubService) Summary(ctx context.Context, username string) (domain.UserSummary, error) {
	if err := validateUsername(username); err != nil {
		return domain.UserSummary{}, err
	}

	summary := domain.UserSummary{Username: username}

	var err error
	if summary.BestScore, err = s.store.UserBestScore(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("loading best score: %w", err)
	}
	if summary.TotalScore, err = s.store.UserTotal(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("loading total score: %w", err)
	}
	if summary.TotalByBests, err = s.store.UserOverallByBests(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("loading total by bests: %w", err)
	}
	if summary.PlayCount, err = s.store.UserPlayCount(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("counting plays: %w", err)
	}
	if summary.OverallRank, err = s.store.OverallRank(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("loading overall rank: %w", err)
	}
	if summary.OverallRankByBests, err = s.store.OverallRankByBests(ctx, username); err != nil {
		return domain.UserSummary{}, fmt.Errorf("loading overall rank by bests: %w", err)
	}

	return summary, nil
}
