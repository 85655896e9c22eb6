package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/arcade-hub/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InsertFriendEdge appends one edge row verbatim. Requests are stacked,
// never deduplicated: repeated requests for the same pair create repeated
// rows and readers tolerate the duplicates. On a pre-status schema the
// edge is written without a status and reads as an established
// friendship.
func (r *Repository) InsertFriendEdge(ctx context.Context, edge domain.FriendEdge) error {
	if r.caps.FriendStatus {
		query := `INSERT INTO friends (username, friend, status, added_at) VALUES ($1, $2, $3, $4)`
		if _, err := r.pool.Exec(ctx, query, edge.Username, edge.Friend, string(edge.Status), edge.AddedAt); err != nil {
			return fmt.Errorf("inserting friend edge: %w", err)
		}
		return nil
	}

	query := `INSERT INTO friends (username, friend, added_at) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, query, edge.Username, edge.Friend, edge.AddedAt); err != nil {
		return fmt.Errorf("inserting friend edge: %w", err)
	}
	return nil
}

// IncomingRequests returns the pending requests awaiting username's
// decision, most recent first. Each edge is requester-owned: the
// requester is the edge's Username field and username appears as Friend.
// Duplicates are listed as stored. Pre-status schemas have no request
// concept and return nothing.
func (r *Repository) IncomingRequests(ctx context.Context, username string) ([]domain.FriendEdge, error) {
	if !r.caps.FriendStatus {
		return nil, nil
	}

	query := `
		SELECT username, friend, status, added_at
		FROM friends
		WHERE friend = $1 AND status = 'pending'
		ORDER BY added_at DESC, id DESC
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("getting friend requests: %w", err)
	}
	defer rows.Close()

	return scanFriendEdges(rows)
}

// AcceptFriend transitions the pending edge from requester to username to
// accepted, refreshing its timestamp, then ensures the mirrored edge
// (username's own row naming requester) exists accepted: inserted when
// missing, promoted when still pending. Accepting twice is a no-op. On a
// pre-status schema acceptance has no meaning and does nothing.
func (r *Repository) AcceptFriend(ctx context.Context, username, requester string, now time.Time) error {
	if !r.caps.FriendStatus {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning accept transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE friends SET status = 'accepted', added_at = $1
		 WHERE username = $2 AND friend = $3 AND status = 'pending'`,
		now, requester, username,
	)
	if err != nil {
		return fmt.Errorf("accepting friend request: %w", err)
	}

	var mirrorID int64
	var mirrorStatus string
	err = tx.QueryRow(ctx,
		`SELECT id, status FROM friends WHERE username = $1 AND friend = $2 ORDER BY id LIMIT 1`,
		username, requester,
	).Scan(&mirrorID, &mirrorStatus)
	switch {
	case err == pgx.ErrNoRows:
		_, err = tx.Exec(ctx,
			`INSERT INTO friends (username, friend, status, added_at) VALUES ($1, $2, 'accepted', $3)`,
			username, requester, now,
		)
		if err != nil {
			return fmt.Errorf("mirroring friend edge: %w", err)
		}
	case err != nil:
		return fmt.Errorf("checking mirrored edge: %w", err)
	case mirrorStatus == string(domain.FriendStatusPending):
		_, err = tx.Exec(ctx,
			`UPDATE friends SET status = 'accepted', added_at = $1 WHERE id = $2`,
			now, mirrorID,
		)
		if err != nil {
			return fmt.Errorf("promoting mirrored edge: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing accept: %w", err)
	}
	return nil
}

// Friends returns username's accepted friends, most recent first. The
// read path deduplicates: when duplicate rows name the same friend only
// the latest survives, so races that double-write mirrored edges stay
// invisible to callers. Pre-status schemas fall back to listing every
// edge owned by username.
func (r *Repository) Friends(ctx context.Context, username string) ([]domain.FriendEdge, error) {
	query := `
		SELECT username, friend, status, added_at FROM (
			SELECT DISTINCT ON (friend) username, friend, status, added_at
			FROM friends
			WHERE username = $1 AND status = 'accepted'
			ORDER BY friend, added_at DESC, id DESC
		) AS latest
		ORDER BY added_at DESC
	`
	if !r.caps.FriendStatus {
		query = `
			SELECT username, friend, 'accepted' AS status, added_at FROM (
				SELECT DISTINCT ON (friend) username, friend, added_at
				FROM friends
				WHERE username = $1
				ORDER BY friend, added_at DESC, id DESC
			) AS latest
			ORDER BY added_at DESC
		`
	}

	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("getting friends: %w", err)
	}
	defer rows.Close()

	return scanFriendEdges(rows)
}

func scanFriendEdges(rows pgx.Rows) ([]domain.FriendEdge, error) {
	var edges []domain.FriendEdge
	for rows.Next() {
		var edge domain.FriendEdge
		if err := rows.Scan(&edge.Username, &edge.Friend, &edge.Status, &edge.AddedAt); err != nil {
			return nil, fmt.Errorf("scanning friend edge: %w", err)
		}
		edges = append(edges, edge)
	}
	return edges, nil
}
