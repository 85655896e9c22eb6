package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/arcade-hub/internal/achievements"
	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
)

// UserStore persists registry rows
type UserStore interface {
	EnsureUser(ctx context.Context, username string, now time.Time) error
	GetUser(ctx context.Context, username string) (domain.User, bool, error)
}

// LedgerStore appends and counts score events
type LedgerStore interface {
	InsertScoreEvent(ctx context.Context, event domain.ScoreEvent) error
	UserPlayCount(ctx context.Context, username string) (int64, error)
	GamePlayCount(ctx context.Context, username, game string) (int64, error)
}

// BoardStore derives leaderboards, totals and ranks from the ledger
type BoardStore interface {
	Leaderboard(ctx context.Context, game string, limit int) ([]domain.LeaderboardEntry, error)
	OverallLeaderboard(ctx context.Context, limit int) ([]domain.OverallEntry, error)
	OverallLeaderboardByBests(ctx context.Context, limit int) ([]domain.OverallEntry, error)
	UserTotal(ctx context.Context, username string) (int64, error)
	UserGameTotal(ctx context.Context, username, game string) (int64, error)
	UserOverallByBests(ctx context.Context, username string) (int64, error)
	UserBestScore(ctx context.Context, username string) (int64, error)
	UserBestForGame(ctx context.Context, username, game string) (int64, error)
	RankForGame(ctx context.Context, username, game string) (int64, error)
	OverallRank(ctx context.Context, username string) (int64, error)
	OverallRankByBests(ctx context.Context, username string) (int64, error)
	Games(ctx context.Context) ([]string, error)
}

// AchievementStore grants and lists badges
type AchievementStore interface {
	GameAggregates(ctx context.Context) ([]domain.GameAggregate, error)
	GrantAchievements(ctx context.Context, candidates []domain.Achievement) ([]domain.Achievement, error)
	UserAchievements(ctx context.Context, username string) ([]domain.Achievement, error)
}

// FriendStore persists the friend graph
type FriendStore interface {
	InsertFriendEdge(ctx context.Context, edge domain.FriendEdge) error
	IncomingRequests(ctx context.Context, username string) ([]domain.FriendEdge, error)
	AcceptFriend(ctx context.Context, username, requester string, now time.Time) error
	Friends(ctx context.Context, username string) ([]domain.FriendEdge, error)
}

// Store is the complete persistence contract the hub operates on,
// satisfied by the PostgreSQL repository (and its in-memory twin in
// tests)
type Store interface {
	UserStore
	LedgerStore
	BoardStore
	AchievementStore
	FriendStore
}

// Cache is the best-effort board cache; failures degrade freshness, never
// correctness
type Cache interface {
	RecordScore(ctx context.Context, game, username string, score int64) error
	TopGame(ctx context.Context, game string, n int) ([]domain.LeaderboardEntry, error)
	TopOverall(ctx context.Context, policy domain.TotalPolicy, n int) ([]domain.OverallEntry, error)
}

// Notifier pushes live updates to connected shells
type Notifier interface {
	BroadcastScore(event domain.ScoreEvent)
	BroadcastLeaderboard(game string, entries []domain.LeaderboardEntry)
	BroadcastAchievements(username string, granted []domain.Achievement)
}

// HubService provides the arcade hub's business logic: registry, score
// ledger, leaderboards, achievements, friends and profiles
type HubService struct {
	store    Store
	cache    Cache
	notifier Notifier
	policy   achievements.Policy
	config   *config.LeaderboardConfig
	logger   *slog.Logger
}

// NewHubService creates a new hub service. cache may be nil to run
// without a board cache.
func NewHubService(
	store Store,
	cache Cache,
	policy achievements.Policy,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *HubService {
	return &HubService{
		store:  store,
		cache:  cache,
		policy: policy,
		config: cfg,
		logger: logger,
	}
}

// SetNotifier attaches the live-update sink. Without one, recording
// scores simply skips the broadcasts.
func (s *HubService) SetNotifier(n Notifier) {
	s.notifier = n
}

// clampLimit applies the configured default and ceiling to a requested
// board size
func (s *HubService) clampLimit(n int) int {
	if n <= 0 {
		n = s.config.DefaultLimit
	}
	if n > s.config.MaxLimit {
		n = s.config.MaxLimit
	}
	return n
}

func validateUsername(username string) error {
	if username == "" || len(username) > 64 {
		return domain.ErrInvalidUsername
	}
	return nil
}

func validateGame(game string) error {
	if game == "" || len(game) > 64 {
		return domain.ErrInvalidGame
	}
	return nil
}

func validateSubmission(sub domain.ScoreSubmission) error {
	if err := validateGame(sub.Game); err != nil {
		return err
	}
	if err := validateUsername(sub.Username); err != nil {
		return err
	}
	if sub.Score < 0 {
		return domain.ErrInvalidScore
	}
	return nil
}
