package domain

import "time"

// Achievement represents a badge granted to a user. Key is stable per
// (user, threshold) pair and is never granted twice; Reason is the
// human-readable grant description shown on the profile.
type Achievement struct {
	Username  string    `json:"username"`
	Key       string    `json:"key"`
	Reason    string    `json:"reason"`
	AwardedAt time.Time `json:"awarded_at"`
}
