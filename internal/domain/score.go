package domain

import "time"

// ScoreEvent represents one finished run appended to the score ledger.
// The ledger is append-only: events are never updated or deleted.
type ScoreEvent struct {
	Game      string    `json:"game"`
	Username  string    `json:"username"`
	Score     int64     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreSubmission represents a request to record a score
type ScoreSubmission struct {
	Game     string `json:"game"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// BatchScoreSubmission represents multiple score submissions
type BatchScoreSubmission struct {
	Scores []ScoreSubmission `json:"scores"`
}

// LeaderboardEntry represents a single row of a per-game board: the
// player's best score for that game and when they last played it.
// Rank is the display position; tie-aware ranks come from the rank
// operations.
type LeaderboardEntry struct {
	Rank       int64     `json:"rank"`
	Username   string    `json:"username"`
	BestScore  int64     `json:"best_score"`
	LastPlayed time.Time `json:"last_played"`
}

// OverallEntry represents a single row of a cross-game board
type OverallEntry struct {
	Rank     int64  `json:"rank"`
	Username string `json:"username"`
	Total    int64  `json:"total"`
}

// GameAggregate summarizes one user's ledger history in one game
type GameAggregate struct {
	Username string `json:"username"`
	Game     string `json:"game"`
	Best     int64  `json:"best"`
	Plays    int64  `json:"plays"`
}

// TotalPolicy selects how a cross-game total is computed
type TotalPolicy string

const (
	// TotalPolicySum adds up every run ever recorded.
	TotalPolicySum TotalPolicy = "sum"
	// TotalPolicyBests adds up only the single best run per game.
	TotalPolicyBests TotalPolicy = "bests"
)
