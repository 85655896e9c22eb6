package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Boards mirrors the authoritative leaderboards into Redis sorted sets:
// one per-game board holding each player's best run, plus the two overall
// boards (sum-of-events and sum-of-bests). The cache is best-effort:
// correctness reads always come from PostgreSQL, and the rebuild worker
// heals any drift.
type Boards struct {
	client *redis.Client
	logger *slog.Logger
}

// NewBoards creates a new Redis boards cache
func NewBoards(cfg *config.RedisConfig, logger *slog.Logger) (*Boards, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Boards{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *Boards) Close() error {
	return b.client.Close()
}

const (
	overallSumKey   = "arcade:overall:sum"
	overallBestsKey = "arcade:overall:bests"
)

// gameKey returns the Redis key for a game's board sorted set
func (b *Boards) gameKey(game string) string {
	return fmt.Sprintf("arcade:board:%s", game)
}

// overallKey returns the Redis key for an overall board
func (b *Boards) overallKey(policy domain.TotalPolicy) string {
	if policy == domain.TotalPolicyBests {
		return overallBestsKey
	}
	return overallSumKey
}

// RecordScore folds one freshly recorded run into the cached boards: the
// game board keeps the player's best via ZADD GT, the sum board always
// accumulates, and the bests board accumulates only the improvement over
// the previously cached best.
func (b *Boards) RecordScore(ctx context.Context, game, username string, score int64) error {
	key := b.gameKey(game)

	prev, err := b.client.ZScore(ctx, key, username).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("getting cached best: %w", err)
	}
	known := err != redis.Nil

	pipe := b.client.TxPipeline()
	pipe.ZAddGT(ctx, key, redis.Z{Score: float64(score), Member: username})
	pipe.ZIncrBy(ctx, overallSumKey, float64(score), username)
	switch {
	case !known:
		pipe.ZIncrBy(ctx, overallBestsKey, float64(score), username)
	case float64(score) > prev:
		pipe.ZIncrBy(ctx, overallBestsKey, float64(score)-prev, username)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating boards: %w", err)
	}
	return nil
}

// TopGame returns the cached per-game board, best first. Positions are
// dense display ranks and cached rows carry no timestamps; the
// authoritative board with tie-aware ranks and last-played times comes
// from the store.
func (b *Boards) TopGame(ctx context.Context, game string, n int) ([]domain.LeaderboardEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, b.gameKey(game), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		entries[i] = domain.LeaderboardEntry{
			Rank:      int64(i + 1),
			Username:  result.Member.(string),
			BestScore: int64(result.Score),
		}
	}
	return entries, nil
}

// TopOverall returns a cached overall board under the given policy
func (b *Boards) TopOverall(ctx context.Context, policy domain.TotalPolicy, n int) ([]domain.OverallEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, b.overallKey(policy), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting overall top n: %w", err)
	}

	entries := make([]domain.OverallEntry, len(results))
	for i, result := range results {
		entries[i] = domain.OverallEntry{
			Rank:     int64(i + 1),
			Username: result.Member.(string),
			Total:    int64(result.Score),
		}
	}
	return entries, nil
}

// RebuildGameBoard atomically replaces a game board with authoritative
// entries
func (b *Boards) RebuildGameBoard(ctx context.Context, game string, entries []domain.LeaderboardEntry) error {
	key := b.gameKey(game)

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, entry := range entries {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(entry.BestScore),
			Member: entry.Username,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding game board: %w", err)
	}
	return nil
}

// RebuildOverallBoards atomically replaces both overall boards with
// authoritative entries
func (b *Boards) RebuildOverallBoards(ctx context.Context, sum, bests []domain.OverallEntry) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, overallSumKey)
	for _, entry := range sum {
		pipe.ZAdd(ctx, overallSumKey, redis.Z{
			Score:  float64(entry.Total),
			Member: entry.Username,
		})
	}
	pipe.Del(ctx, overallBestsKey)
	for _, entry := range bests {
		pipe.ZAdd(ctx, overallBestsKey, redis.Z{
			Score:  float64(entry.Total),
			Member: entry.Username,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding overall boards: %w", err)
	}
	return nil
}
