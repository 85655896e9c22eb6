package postgres

import (
	"context"
	"fmt"

	"github.com/arcade-hub/internal/domain"
)

// GrantAchievements conditionally inserts the candidate badges inside one
// transaction. A candidate already held (same username and key) is
// skipped; the newly inserted subset is returned. The existence check is
// the idempotence mechanism; the table carries no unique constraint.
func (r *Repository) GrantAchievements(ctx context.Context, candidates []domain.Achievement) ([]domain.Achievement, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning grant transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var granted []domain.Achievement
	for _, cand := range candidates {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM achievements WHERE username = $1 AND key = $2)`,
			cand.Username, cand.Key,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking achievement: %w", err)
		}
		if exists {
			continue
		}

		if r.caps.AchievementReason {
			_, err = tx.Exec(ctx,
				`INSERT INTO achievements (username, key, reason, awarded_at) VALUES ($1, $2, $3, $4)`,
				cand.Username, cand.Key, cand.Reason, cand.AwardedAt,
			)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO achievements (username, key, awarded_at) VALUES ($1, $2, $3)`,
				cand.Username, cand.Key, cand.AwardedAt,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("granting achievement: %w", err)
		}
		granted = append(granted, cand)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing grants: %w", err)
	}
	return granted, nil
}

// UserAchievements returns the user's badges, most recent first. Stores
// predating the reason column yield empty reasons.
func (r *Repository) UserAchievements(ctx context.Context, username string) ([]domain.Achievement, error) {
	query := `
		SELECT username, key, reason, awarded_at
		FROM achievements
		WHERE username = $1
		ORDER BY awarded_at DESC, id DESC
	`
	if !r.caps.AchievementReason {
		query = `
			SELECT username, key, '' AS reason, awarded_at
			FROM achievements
			WHERE username = $1
			ORDER BY awarded_at DESC, id DESC
		`
	}

	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("getting achievements: %w", err)
	}
	defer rows.Close()

	var achievements []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.Username, &a.Key, &a.Reason, &a.AwardedAt); err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		achievements = append(achievements, a)
	}
	return achievements, nil
}
