package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
)

// Source is the authoritative side of a rebuild: the ledger-derived
// boards
type Source interface {
	Games(ctx context.Context) ([]string, error)
	Leaderboard(ctx context.Context, game string, limit int) ([]domain.LeaderboardEntry, error)
	OverallLeaderboard(ctx context.Context, limit int) ([]domain.OverallEntry, error)
	OverallLeaderboardByBests(ctx context.Context, limit int) ([]domain.OverallEntry, error)
}

// Boards is the cache side of a rebuild
type Boards interface {
	RebuildGameBoard(ctx context.Context, game string, entries []domain.LeaderboardEntry) error
	RebuildOverallBoards(ctx context.Context, sum, bests []domain.OverallEntry) error
}

// Broadcaster pushes refreshed boards to live subscribers
type Broadcaster interface {
	BroadcastLeaderboard(game string, entries []domain.LeaderboardEntry)
}

// Rebuilder periodically rebuilds the cached boards from the score
// ledger. The cache only ever loses freshness, so a skipped or failed
// cycle is harmless; the next one starts from the ledger again.
type Rebuilder struct {
	source      Source
	boards      Boards
	broadcaster Broadcaster
	config      *config.SyncConfig
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewRebuilder creates a new cache rebuild worker. broadcaster may be
// nil to rebuild silently.
func NewRebuilder(
	source Source,
	boards Boards,
	broadcaster Broadcaster,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *Rebuilder {
	return &Rebuilder{
		source:      source,
		boards:      boards,
		broadcaster: broadcaster,
		config:      cfg,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background rebuild process
func (w *Rebuilder) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("rebuild worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background rebuild process
func (w *Rebuilder) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("rebuild worker stopped")
	return nil
}

// run is the main worker loop
func (w *Rebuilder) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.rebuildAll(ctx)
		}
	}
}

// rebuildAll rebuilds every cached board from the ledger
func (w *Rebuilder) rebuildAll(ctx context.Context) {
	w.logger.Info("starting rebuild cycle")
	startTime := time.Now()

	games, err := w.source.Games(ctx)
	if err != nil {
		w.logger.Error("failed to list games for rebuild", "error", err)
		return
	}

	rebuiltCount := 0
	errorCount := 0

	for _, game := range games {
		if err := w.rebuildGame(ctx, game); err != nil {
			w.logger.Error("failed to rebuild game board",
				"game", game,
				"error", err,
			)
			errorCount++
		} else {
			rebuiltCount++
		}
	}

	if err := w.rebuildOverall(ctx); err != nil {
		w.logger.Error("failed to rebuild overall boards", "error", err)
		errorCount++
	}

	duration := time.Since(startTime)
	w.logger.Info("rebuild cycle completed",
		"duration", duration,
		"games", rebuiltCount,
		"errors", errorCount,
	)
}

// rebuildGame refreshes one game board and pushes it to subscribers
func (w *Rebuilder) rebuildGame(ctx context.Context, game string) error {
	// Unbounded read: the cache carries the full board
	entries, err := w.source.Leaderboard(ctx, game, 0)
	if err != nil {
		return err
	}

	if err := w.boards.RebuildGameBoard(ctx, game, entries); err != nil {
		return err
	}

	if w.broadcaster != nil && len(entries) > 0 {
		limit := w.config.BroadcastLimit
		if limit > len(entries) {
			limit = len(entries)
		}
		w.broadcaster.BroadcastLeaderboard(game, entries[:limit])
	}

	w.logger.Debug("rebuilt game board",
		"game", game,
		"player_count", len(entries),
	)
	return nil
}

// rebuildOverall refreshes both cross-game boards
func (w *Rebuilder) rebuildOverall(ctx context.Context) error {
	sum, err := w.source.OverallLeaderboard(ctx, 0)
	if err != nil {
		return err
	}

	bests, err := w.source.OverallLeaderboardByBests(ctx, 0)
	if err != nil {
		return err
	}

	return w.boards.RebuildOverallBoards(ctx, sum, bests)
}

// IsRunning returns whether the worker is currently running
func (w *Rebuilder) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single rebuild cycle, used to warm the cache at startup
// and for manual triggers
func (w *Rebuilder) RunOnce(ctx context.Context) {
	w.rebuildAll(ctx)
}
