package domain

import "time"

// User represents a registered arcade player
type User struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// FriendStatus represents the lifecycle state of a friend edge
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// FriendEdge represents one directed row of the friend graph, owned by
// Username: once accepted, Friend appears on Username's friend list. A
// pending request is a single requester-owned edge naming the recipient in
// Friend; acceptance flips it and mirrors the reverse edge, making the
// relation bidirectional.
type FriendEdge struct {
	Username string       `json:"username"`
	Friend   string       `json:"friend"`
	Status   FriendStatus `json:"status"`
	AddedAt  time.Time    `json:"added_at"`
}
