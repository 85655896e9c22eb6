package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	caps   Capabilities
}

// Capabilities describes which late-added columns the connected schema
// carries. It is probed once when the repository opens (and again after
// migrations run) and cached; query paths branch on the cached descriptor
// instead of re-probing per call.
type Capabilities struct {
	FriendStatus      bool
	AchievementReason bool
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	r := &Repository{
		pool:   pool,
		logger: logger,
	}
	if err := r.probeCapabilities(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Capabilities returns the cached schema descriptor
func (r *Repository) Capabilities() Capabilities {
	return r.caps
}

// probeCapabilities checks which optional columns this installation has.
// Stores predating friends.status or achievements.reason take documented
// fallback queries rather than failing.
func (r *Repository) probeCapabilities(ctx context.Context) error {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM information_schema.columns
			        WHERE table_name = 'friends' AND column_name = 'status'),
			EXISTS (SELECT 1 FROM information_schema.columns
			        WHERE table_name = 'achievements' AND column_name = 'reason')
	`
	if err := r.pool.QueryRow(ctx, query).Scan(&r.caps.FriendStatus, &r.caps.AchievementReason); err != nil {
		return fmt.Errorf("probing schema capabilities: %w", err)
	}
	return nil
}

// RunMigrations executes database migrations. The schema evolves
// additively: optional columns arrive with defaults, existing columns are
// never removed or reinterpreted.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username VARCHAR(64) PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS score_events (
			id BIGSERIAL PRIMARY KEY,
			game VARCHAR(64) NOT NULL,
			username VARCHAR(64) NOT NULL,
			score BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(64) NOT NULL,
			key VARCHAR(128) NOT NULL,
			awarded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS friends (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(64) NOT NULL,
			friend VARCHAR(64) NOT NULL,
			added_at TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE friends ADD COLUMN IF NOT EXISTS status VARCHAR(16) NOT NULL DEFAULT 'accepted'`,
		`ALTER TABLE achievements ADD COLUMN IF NOT EXISTS reason TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_game_user ON score_events(game, username)`,
		`CREATE INDEX IF NOT EXISTS idx_score_events_user ON score_events(username, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(username, awarded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_friends_owner ON friends(username, added_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_friends_recipient ON friends(friend, added_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	// The late columns may have just appeared.
	if err := r.probeCapabilities(ctx); err != nil {
		return err
	}

	r.logger.Info("database migrations completed")
	return nil
}

// EnsureUser registers a username if it is not present yet. Registering
// an existing user is a no-op, never an error.
func (r *Repository) EnsureUser(ctx context.Context, username string, now time.Time) error {
	query := `INSERT INTO users (username, created_at) VALUES ($1, $2) ON CONFLICT (username) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, username, now); err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	return nil
}

// GetUser retrieves a user; the second return reports existence
func (r *Repository) GetUser(ctx context.Context, username string) (domain.User, bool, error) {
	query := `SELECT username, created_at FROM users WHERE username = $1`
	var user domain.User
	err := r.pool.QueryRow(ctx, query, username).Scan(&user.Username, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, fmt.Errorf("getting user: %w", err)
	}
	return user, true, nil
}
