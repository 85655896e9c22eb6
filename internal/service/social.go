package service

import (
	"context"
	"fmt"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// RequestFriend records that friend is asking username for friendship.
// The pending edge is owned by the requester and names the recipient, so
// it shows up in username's incoming list and becomes the requester's
// friend-list row once accepted. Repeated requests stack extra rows; the
// read paths tolerate them.
func (s *HubService) RequestFriend(ctx context.Context, username, friend string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validateUsername(friend); err != nil {
		return err
	}

	edge := domain.FriendEdge{
		Username: friend,
		Friend:   username,
		Status:   domain.FriendStatusPending,
		AddedAt:  time.Now().UTC(),
	}
	if err := s.store.InsertFriendEdge(ctx, edge); err != nil {
		return fmt.Errorf("requesting friendship: %w", err)
	}
	return nil
}

// IncomingRequests lists the players waiting on username's acceptance,
// most recent first. Each returned edge's Username field names the
// requester.
func (s *HubService) IncomingRequests(ctx context.Context, username string) ([]domain.FriendEdge, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	return s.store.IncomingRequests(ctx, username)
}

// AcceptRequest accepts requester's pending request to username and
// makes the friendship mutual. Accepting an already mutual friendship is
// a no-op.
func (s *HubService) AcceptRequest(ctx context.Context, username, requester string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validateUsername(requester); err != nil {
		return err
	}

	if err := s.store.AcceptFriend(ctx, username, requester, time.Now().UTC()); err != nil {
		return fmt.Errorf("accepting friendship: %w", err)
	}
	return nil
}

// Friends lists username's accepted friends, most recently added first,
// with duplicate edges collapsed
func (s *HubService) Friends(ctx context.Context, username string) ([]domain.FriendEdge, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	return s.store.Friends(ctx, username)
}
