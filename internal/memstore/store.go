package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// Store is an in-memory twin of the PostgreSQL repository. It implements
// the same storage contract (aggregation policies, tie-sharing ranks,
// zero sentinels, stacked friend requests with a deduplicating read path)
// against plain slices and maps. It backs the unit tests; the server
// always runs on PostgreSQL.
type Store struct {
	mu           sync.Mutex
	users        map[string]domain.User
	events       []domain.ScoreEvent
	achievements []domain.Achievement
	friends      []friendRow
	nextEdgeID   int64
}

type friendRow struct {
	id   int64
	edge domain.FriendEdge
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{users: make(map[string]domain.User)}
}

// EnsureUser registers a username if it is not present yet
func (s *Store) EnsureUser(_ context.Context, username string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		s.users[username] = domain.User{Username: username, CreatedAt: now}
	}
	return nil
}

// GetUser retrieves a user; the second return reports existence
func (s *Store) GetUser(_ context.Context, username string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	return user, ok, nil
}

// InsertScoreEvent appends one event to the ledger
func (s *Store) InsertScoreEvent(_ context.Context, event domain.ScoreEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// UserPlayCount returns how many events the user has across all games
func (s *Store) UserPlayCount(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, ev := range s.events {
		if ev.Username == username {
			count++
		}
	}
	return count, nil
}

// GamePlayCount returns how many events the user has for one game
func (s *Store) GamePlayCount(_ context.Context, username, game string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, ev := range s.events {
		if ev.Username == username && ev.Game == game {
			count++
		}
	}
	return count, nil
}

// Leaderboard returns the per-game board, best score first
func (s *Store) Leaderboard(_ context.Context, game string, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bests := make(map[string]*domain.LeaderboardEntry)
	for _, ev := range s.events {
		if ev.Game != game {
			continue
		}
		entry, ok := bests[ev.Username]
		if !ok {
			entry = &domain.LeaderboardEntry{Username: ev.Username, BestScore: ev.Score, LastPlayed: ev.CreatedAt}
			bests[ev.Username] = entry
			continue
		}
		if ev.Score > entry.BestScore {
			entry.BestScore = ev.Score
		}
		if ev.CreatedAt.After(entry.LastPlayed) {
			entry.LastPlayed = ev.CreatedAt
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(bests))
	for _, entry := range bests {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestScore != entries[j].BestScore {
			return entries[i].BestScore > entries[j].BestScore
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// OverallLeaderboard returns the cross-game board under the
// sum-of-all-events policy
func (s *Store) OverallLeaderboard(_ context.Context, limit int) ([]domain.OverallEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortTotals(s.sumTotals(), limit), nil
}

// OverallLeaderboardByBests returns the cross-game board under the
// sum-of-bests policy
func (s *Store) OverallLeaderboardByBests(_ context.Context, limit int) ([]domain.OverallEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortTotals(s.bestTotals(), limit), nil
}

func (s *Store) sumTotals() map[string]int64 {
	totals := make(map[string]int64)
	for _, ev := range s.events {
		totals[ev.Username] += ev.Score
	}
	return totals
}

func (s *Store) bestTotals() map[string]int64 {
	type userGame struct{ username, game string }
	bests := make(map[userGame]int64)
	for _, ev := range s.events {
		key := userGame{ev.Username, ev.Game}
		if best, ok := bests[key]; !ok || ev.Score > best {
			bests[key] = ev.Score
		}
	}
	totals := make(map[string]int64)
	for key, best := range bests {
		totals[key.username] += best
	}
	return totals
}

func sortTotals(totals map[string]int64, limit int) []domain.OverallEntry {
	entries := make([]domain.OverallEntry, 0, len(totals))
	for username, total := range totals {
		entries = append(entries, domain.OverallEntry{Username: username, Total: total})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// UserTotal returns the sum of every score the user ever recorded
func (s *Store) UserTotal(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sumTotals()[username], nil
}

// UserGameTotal returns the sum of the user's scores in one game
func (s *Store) UserGameTotal(_ context.Context, username, game string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, ev := range s.events {
		if ev.Username == username && ev.Game == game {
			total += ev.Score
		}
	}
	return total, nil
}

// UserOverallByBests returns the user's cross-game sum-of-bests total
func (s *Store) UserOverallByBests(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bestTotals()[username], nil
}

// UserBestScore returns the user's single best run across all games,
// 0 if they have none
func (s *Store) UserBestScore(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best int64
	for _, ev := range s.events {
		if ev.Username == username && ev.Score > best {
			best = ev.Score
		}
	}
	return best, nil
}

// UserBestForGame returns the user's best run in one game, 0 if none
func (s *Store) UserBestForGame(_ context.Context, username, game string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best int64
	for _, ev := range s.events {
		if ev.Username == username && ev.Game == game && ev.Score > best {
			best = ev.Score
		}
	}
	return best, nil
}

// RankForGame ranks the user's best among all bests for the game. Ties
// share a rank; 0 means no events.
func (s *Store) RankForGame(_ context.Context, username, game string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bests := make(map[string]int64)
	for _, ev := range s.events {
		if ev.Game != game {
			continue
		}
		if best, ok := bests[ev.Username]; !ok || ev.Score > best {
			bests[ev.Username] = ev.Score
		}
	}
	mine, ok := bests[username]
	if !ok {
		return 0, nil
	}
	return rankAgainst(bests, mine), nil
}

// OverallRank ranks the user's sum-of-events total
func (s *Store) OverallRank(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := s.sumTotals()
	mine, ok := totals[username]
	if !ok {
		return 0, nil
	}
	return rankAgainst(totals, mine), nil
}

// OverallRankByBests ranks the user's sum-of-bests total
func (s *Store) OverallRankByBests(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := s.bestTotals()
	mine, ok := totals[username]
	if !ok {
		return 0, nil
	}
	return rankAgainst(totals, mine), nil
}

func rankAgainst(values map[string]int64, mine int64) int64 {
	var greater int64
	for _, v := range values {
		if v > mine {
			greater++
		}
	}
	return greater + 1
}

// Games returns the distinct game names present in the ledger
func (s *Store) Games(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var games []string
	for _, ev := range s.events {
		if !seen[ev.Game] {
			seen[ev.Game] = true
			games = append(games, ev.Game)
		}
	}
	sort.Strings(games)
	return games, nil
}

// GameAggregates returns (user, game, best, plays) for every pair in the
// ledger
func (s *Store) GameAggregates(_ context.Context) ([]domain.GameAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type userGame struct{ username, game string }
	aggs := make(map[userGame]*domain.GameAggregate)
	for _, ev := range s.events {
		key := userGame{ev.Username, ev.Game}
		agg, ok := aggs[key]
		if !ok {
			agg = &domain.GameAggregate{Username: ev.Username, Game: ev.Game}
			aggs[key] = agg
		}
		agg.Plays++
		if ev.Score > agg.Best {
			agg.Best = ev.Score
		}
	}

	out := make([]domain.GameAggregate, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].Game < out[j].Game
	})
	return out, nil
}

// GrantAchievements conditionally inserts candidates, skipping keys the
// user already holds, and returns the newly granted subset
func (s *Store) GrantAchievements(_ context.Context, candidates []domain.Achievement) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var granted []domain.Achievement
	for _, cand := range candidates {
		if s.hasAchievement(cand.Username, cand.Key) {
			continue
		}
		s.achievements = append(s.achievements, cand)
		granted = append(granted, cand)
	}
	return granted, nil
}

func (s *Store) hasAchievement(username, key string) bool {
	for _, a := range s.achievements {
		if a.Username == username && a.Key == key {
			return true
		}
	}
	return false
}

// UserAchievements returns the user's badges, most recent first
func (s *Store) UserAchievements(_ context.Context, username string) ([]domain.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type indexed struct {
		a   domain.Achievement
		idx int
	}
	var mine []indexed
	for i, a := range s.achievements {
		if a.Username == username {
			mine = append(mine, indexed{a, i})
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		if !mine[i].a.AwardedAt.Equal(mine[j].a.AwardedAt) {
			return mine[i].a.AwardedAt.After(mine[j].a.AwardedAt)
		}
		return mine[i].idx > mine[j].idx
	})

	out := make([]domain.Achievement, 0, len(mine))
	for _, m := range mine {
		out = append(out, m.a)
	}
	return out, nil
}

// InsertFriendEdge appends one edge row verbatim; duplicates stack
func (s *Store) InsertFriendEdge(_ context.Context, edge domain.FriendEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEdgeID++
	s.friends = append(s.friends, friendRow{id: s.nextEdgeID, edge: edge})
	return nil
}

// IncomingRequests returns pending requests naming username as the
// recipient, most recent first, duplicates included
func (s *Store) IncomingRequests(_ context.Context, username string) ([]domain.FriendEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []friendRow
	for _, row := range s.friends {
		if row.edge.Friend == username && row.edge.Status == domain.FriendStatusPending {
			rows = append(rows, row)
		}
	}
	sortRowsByRecency(rows)
	return rowEdges(rows), nil
}

// AcceptFriend flips every matching pending edge to accepted and ensures
// the accepted mirror edge exists, inserting or promoting it
func (s *Store) AcceptFriend(_ context.Context, username, requester string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.friends {
		edge := &s.friends[i].edge
		if edge.Username == requester && edge.Friend == username && edge.Status == domain.FriendStatusPending {
			edge.Status = domain.FriendStatusAccepted
			edge.AddedAt = now
		}
	}

	for i := range s.friends {
		edge := &s.friends[i].edge
		if edge.Username == username && edge.Friend == requester {
			if edge.Status == domain.FriendStatusPending {
				edge.Status = domain.FriendStatusAccepted
				edge.AddedAt = now
			}
			return nil
		}
	}

	s.nextEdgeID++
	s.friends = append(s.friends, friendRow{id: s.nextEdgeID, edge: domain.FriendEdge{
		Username: username,
		Friend:   requester,
		Status:   domain.FriendStatusAccepted,
		AddedAt:  now,
	}})
	return nil
}

// Friends returns username's accepted friends, most recent first,
// deduplicated on read
func (s *Store) Friends(_ context.Context, username string) ([]domain.FriendEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]friendRow)
	for _, row := range s.friends {
		if row.edge.Username != username || row.edge.Status != domain.FriendStatusAccepted {
			continue
		}
		prev, ok := latest[row.edge.Friend]
		if !ok || row.edge.AddedAt.After(prev.edge.AddedAt) ||
			(row.edge.AddedAt.Equal(prev.edge.AddedAt) && row.id > prev.id) {
			latest[row.edge.Friend] = row
		}
	}

	rows := make([]friendRow, 0, len(latest))
	for _, row := range latest {
		rows = append(rows, row)
	}
	sortRowsByRecency(rows)
	return rowEdges(rows), nil
}

func sortRowsByRecency(rows []friendRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].edge.AddedAt.Equal(rows[j].edge.AddedAt) {
			return rows[i].edge.AddedAt.After(rows[j].edge.AddedAt)
		}
		return rows[i].id > rows[j].id
	})
}

func rowEdges(rows []friendRow) []domain.FriendEdge {
	edges := make([]domain.FriendEdge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, row.edge)
	}
	return edges
}
