package postgres

import (
	"context"
	"fmt"

	"github.com/arcade-hub/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InsertScoreEvent appends one event to the ledger. The ledger is
// append-only: no update or delete path exists, correcting a score means
// recording a new event.
func (r *Repository) InsertScoreEvent(ctx context.Context, event domain.ScoreEvent) error {
	query := `INSERT INTO score_events (game, username, score, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, event.Game, event.Username, event.Score, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting score event: %w", err)
	}
	return nil
}

// UserPlayCount returns how many events the user has across all games
func (r *Repository) UserPlayCount(ctx context.Context, username string) (int64, error) {
	query := `SELECT COUNT(*) FROM score_events WHERE username = $1`
	var count int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting plays: %w", err)
	}
	return count, nil
}

// GamePlayCount returns how many events the user has for one game
func (r *Repository) GamePlayCount(ctx context.Context, username, game string) (int64, error) {
	query := `SELECT COUNT(*) FROM score_events WHERE username = $1 AND game = $2`
	var count int64
	if err := r.pool.QueryRow(ctx, query, username, game).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting game plays: %w", err)
	}
	return count, nil
}

// Leaderboard returns the per-game board: each player's best score and
// most recent play for the game, best first. limit <= 0 returns the full
// board. Rank is the display position; tie-aware ranks come from
// RankForGame.
func (r *Repository) Leaderboard(ctx context.Context, game string, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT username, MAX(score) AS best, MAX(created_at) AS last_played
		FROM score_events
		WHERE game = $1
		GROUP BY username
		ORDER BY best DESC
	`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.pool.Query(ctx, query+` LIMIT $2`, game, limit)
	} else {
		rows, err = r.pool.Query(ctx, query, game)
	}
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.Username, &entry.BestScore, &entry.LastPlayed); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entry.Rank = int64(len(entries) + 1)
		entries = append(entries, entry)
	}
	return entries, nil
}

// OverallLeaderboard returns the cross-game board under the
// sum-of-all-events policy: every recorded score counts.
func (r *Repository) OverallLeaderboard(ctx context.Context, limit int) ([]domain.OverallEntry, error) {
	query := `
		SELECT username, SUM(score) AS total
		FROM score_events
		GROUP BY username
		ORDER BY total DESC
	`
	return r.queryOverall(ctx, query, limit)
}

// OverallLeaderboardByBests returns the cross-game board under the
// sum-of-bests policy: only each player's single best run per game
// contributes.
func (r *Repository) OverallLeaderboardByBests(ctx context.Context, limit int) ([]domain.OverallEntry, error) {
	query := `
		SELECT username, SUM(best) AS total
		FROM (
			SELECT username, MAX(score) AS best
			FROM score_events
			GROUP BY username, game
		) AS bests
		GROUP BY username
		ORDER BY total DESC
	`
	return r.queryOverall(ctx, query, limit)
}

func (r *Repository) queryOverall(ctx context.Context, query string, limit int) ([]domain.OverallEntry, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("getting overall leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.OverallEntry
	for rows.Next() {
		var entry domain.OverallEntry
		if err := rows.Scan(&entry.Username, &entry.Total); err != nil {
			return nil, fmt.Errorf("scanning overall entry: %w", err)
		}
		entry.Rank = int64(len(entries) + 1)
		entries = append(entries, entry)
	}
	return entries, nil
}

// UserTotal returns the sum of every score the user ever recorded.
// 0 is the no-data sentinel.
func (r *Repository) UserTotal(ctx context.Context, username string) (int64, error) {
	query := `SELECT COALESCE(SUM(score), 0) FROM score_events WHERE username = $1`
	var total int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&total); err != nil {
		return 0, fmt.Errorf("getting user total: %w", err)
	}
	return total, nil
}

// UserGameTotal returns the sum of the user's scores in one game
func (r *Repository) UserGameTotal(ctx context.Context, username, game string) (int64, error) {
	query := `SELECT COALESCE(SUM(score), 0) FROM score_events WHERE username = $1 AND game = $2`
	var total int64
	if err := r.pool.QueryRow(ctx, query, username, game).Scan(&total); err != nil {
		return 0, fmt.Errorf("getting user game total: %w", err)
	}
	return total, nil
}

// UserOverallByBests returns the user's cross-game total under the
// sum-of-bests policy
func (r *Repository) UserOverallByBests(ctx context.Context, username string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(best), 0)
		FROM (
			SELECT MAX(score) AS best
			FROM score_events
			WHERE username = $1
			GROUP BY game
		) AS bests
	`
	var total int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&total); err != nil {
		return 0, fmt.Errorf("getting user total by bests: %w", err)
	}
	return total, nil
}

// UserBestScore returns the user's single best run across all games,
// 0 if they have none
func (r *Repository) UserBestScore(ctx context.Context, username string) (int64, error) {
	query := `SELECT COALESCE(MAX(score), 0) FROM score_events WHERE username = $1`
	var best int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&best); err != nil {
		return 0, fmt.Errorf("getting user best score: %w", err)
	}
	return best, nil
}

// UserBestForGame returns the user's best run in one game, 0 if they have
// never played it
func (r *Repository) UserBestForGame(ctx context.Context, username, game string) (int64, error) {
	query := `SELECT COALESCE(MAX(score), 0) FROM score_events WHERE username = $1 AND game = $2`
	var best int64
	if err := r.pool.QueryRow(ctx, query, username, game).Scan(&best); err != nil {
		return 0, fmt.Errorf("getting user best for game: %w", err)
	}
	return best, nil
}

// RankForGame returns the 1-based rank of the user's best score among all
// players' bests for the game: 1 + the count of players with a strictly
// greater best, so ties share a rank. 0 means the user has no events for
// the game.
func (r *Repository) RankForGame(ctx context.Context, username, game string) (int64, error) {
	query := `
		WITH bests AS (
			SELECT username, MAX(score) AS best
			FROM score_events
			WHERE game = $1
			GROUP BY username
		),
		mine AS (
			SELECT best FROM bests WHERE username = $2
		)
		SELECT EXISTS (SELECT 1 FROM mine),
		       (SELECT COUNT(*) FROM bests, mine WHERE bests.best > mine.best)
	`
	var ranked bool
	var greater int64
	if err := r.pool.QueryRow(ctx, query, game, username).Scan(&ranked, &greater); err != nil {
		return 0, fmt.Errorf("computing game rank: %w", err)
	}
	if !ranked {
		return 0, nil
	}
	return greater + 1, nil
}

// OverallRank ranks the user's sum-of-events total against everyone
// else's. Same tie and no-rank semantics as RankForGame.
func (r *Repository) OverallRank(ctx context.Context, username string) (int64, error) {
	query := `
		WITH totals AS (
			SELECT username, SUM(score) AS total
			FROM score_events
			GROUP BY username
		),
		mine AS (
			SELECT total FROM totals WHERE username = $1
		)
		SELECT EXISTS (SELECT 1 FROM mine),
		       (SELECT COUNT(*) FROM totals, mine WHERE totals.total > mine.total)
	`
	var ranked bool
	var greater int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&ranked, &greater); err != nil {
		return 0, fmt.Errorf("computing overall rank: %w", err)
	}
	if !ranked {
		return 0, nil
	}
	return greater + 1, nil
}

// OverallRankByBests ranks the user's sum-of-bests total against everyone
// else's. Same tie and no-rank semantics as RankForGame.
func (r *Repository) OverallRankByBests(ctx context.Context, username string) (int64, error) {
	query := `
		WITH bests AS (
			SELECT username, MAX(score) AS best
			FROM score_events
			GROUP BY username, game
		),
		totals AS (
			SELECT username, SUM(best) AS total
			FROM bests
			GROUP BY username
		),
		mine AS (
			SELECT total FROM totals WHERE username = $1
		)
		SELECT EXISTS (SELECT 1 FROM mine),
		       (SELECT COUNT(*) FROM totals, mine WHERE totals.total > mine.total)
	`
	var ranked bool
	var greater int64
	if err := r.pool.QueryRow(ctx, query, username).Scan(&ranked, &greater); err != nil {
		return 0, fmt.Errorf("computing overall rank by bests: %w", err)
	}
	if !ranked {
		return 0, nil
	}
	return greater + 1, nil
}

// Games returns the distinct game names present in the ledger
func (r *Repository) Games(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT game FROM score_events ORDER BY game`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var games []string
	for rows.Next() {
		var game string
		if err := rows.Scan(&game); err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, game)
	}
	return games, nil
}

// GameAggregates returns (user, game, best, plays) for every pair present
// in the ledger, the input for a retroactive achievement rescan.
func (r *Repository) GameAggregates(ctx context.Context) ([]domain.GameAggregate, error) {
	query := `
		SELECT username, game, MAX(score) AS best, COUNT(*) AS plays
		FROM score_events
		GROUP BY username, game
		ORDER BY username, game
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregating ledger: %w", err)
	}
	defer rows.Close()

	var aggs []domain.GameAggregate
	for rows.Next() {
		var agg domain.GameAggregate
		if err := rows.Scan(&agg.Username, &agg.Game, &agg.Best, &agg.Plays); err != nil {
			return nil, fmt.Errorf("scanning aggregate: %w", err)
		}
		aggs = append(aggs, agg)
	}
	return aggs, nil
}
