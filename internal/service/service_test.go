package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcade-hub/internal/achievements"
	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
	"github.com/arcade-hub/internal/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*HubService, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	cfg := &config.LeaderboardConfig{DefaultLimit: 20, MaxLimit: 500}
	svc := NewHubService(store, nil, achievements.NewPolicy(nil, nil), cfg, discardLogger())
	return svc, store
}

type fakeCache struct {
	entries     []domain.LeaderboardEntry
	overall     map[domain.TotalPolicy][]domain.OverallEntry
	recordErr   error
	topErr      error
	recordCalls int
}

func (c *fakeCache) RecordScore(_ context.Context, _, _ string, _ int64) error {
	c.recordCalls++
	return c.recordErr
}

func (c *fakeCache) TopGame(_ context.Context, _ string, n int) ([]domain.LeaderboardEntry, error) {
	if c.topErr != nil {
		return nil, c.topErr
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	return c.entries[:n], nil
}

func (c *fakeCache) TopOverall(_ context.Context, policy domain.TotalPolicy, n int) ([]domain.OverallEntry, error) {
	if c.topErr != nil {
		return nil, c.topErr
	}
	entries := c.overall[policy]
	if n > len(entries) {
		n = len(entries)
	}
	return entries[:n], nil
}

type fakeNotifier struct {
	scores       []domain.ScoreEvent
	boards       map[string][]domain.LeaderboardEntry
	achievements map[string][]domain.Achievement
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		boards:       make(map[string][]domain.LeaderboardEntry),
		achievements: make(map[string][]domain.Achievement),
	}
}

func (n *fakeNotifier) BroadcastScore(event domain.ScoreEvent) {
	n.scores = append(n.scores, event)
}

func (n *fakeNotifier) BroadcastLeaderboard(game string, entries []domain.LeaderboardEntry) {
	n.boards[game] = entries
}

func (n *fakeNotifier) BroadcastAchievements(username string, granted []domain.Achievement) {
	n.achievements[username] = append(n.achievements[username], granted...)
}

func record(t *testing.T, svc *HubService, game, username string, score int64) {
	t.Helper()
	err := svc.RecordScore(context.Background(), domain.ScoreSubmission{
		Game:     game,
		Username: username,
		Score:    score,
	})
	require.NoError(t, err)
}

func achievementKeys(achs []domain.Achievement) []string {
	keys := make([]string, 0, len(achs))
	for _, a := range achs {
		keys = append(keys, a.Key)
	}
	return keys
}

func TestRecordScoreRegistersPlayerAndGrantsBadges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record(t, svc, "snake", "ann", 550)

	_, registered, err := svc.User(ctx, "ann")
	require.NoError(t, err)
	require.True(t, registered)

	achs, err := svc.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"snake_score_500"}, achievementKeys(achs))

	for i := 0; i < 5; i++ {
		record(t, svc, "snake", "ann", 1200)
	}

	achs, err = svc.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{"snake_score_500", "snake_score_1000", "snake_plays_5"},
		achievementKeys(achs))

	best, err := svc.UserBestForGame(ctx, "ann", "snake")
	require.NoError(t, err)
	require.Equal(t, int64(1200), best)

	total, err := svc.UserTotal(ctx, "ann")
	require.NoError(t, err)
	require.Equal(t, int64(550+5*1200), total)

	byBests, err := svc.UserOverallByBests(ctx, "ann")
	require.NoError(t, err)
	require.Equal(t, int64(1200), byBests)

	rank, err := svc.RankForGame(ctx, "ann", "snake")
	require.NoError(t, err)
	require.Equal(t, int64(1), rank)
}

func TestRecordScoreValidation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		name string
		sub  domain.ScoreSubmission
		want error
	}{
		{"empty username", domain.ScoreSubmission{Game: "snake", Score: 1}, domain.ErrInvalidUsername},
		{"long username", domain.ScoreSubmission{Game: "snake", Username: string(long), Score: 1}, domain.ErrInvalidUsername},
		{"empty game", domain.ScoreSubmission{Username: "ann", Score: 1}, domain.ErrInvalidGame},
		{"long game", domain.ScoreSubmission{Game: string(long), Username: "ann", Score: 1}, domain.ErrInvalidGame},
		{"negative score", domain.ScoreSubmission{Game: "snake", Username: "ann", Score: -1}, domain.ErrInvalidScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.RecordScore(ctx, tc.sub)
			require.ErrorIs(t, err, tc.want)
			require.True(t, domain.IsValidationError(err))
		})
	}

	plays, err := store.UserPlayCount(ctx, "ann")
	require.NoError(t, err)
	require.Zero(t, plays)
}

func TestRecordScoreDoesNotDuplicateBadges(t *testing.T) {
	svc, _ := newTestService(t)

	record(t, svc, "snake", "ann", 600)
	record(t, svc, "snake", "ann", 600)

	achs, err := svc.UserAchievements(context.Background(), "ann")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"snake_score_500"}, achievementKeys(achs))
}

func TestRecordScoreBatchSkipsInvalidEntries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RecordScoreBatch(ctx, []domain.ScoreSubmission{
		{Game: "snake", Username: "ann", Score: 100},
		{Game: "", Username: "bob", Score: 200},
		{Game: "snake", Username: "bob", Score: 300},
	})
	require.NoError(t, err)

	entries, err := svc.Leaderboard(ctx, "snake", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	plays, err := svc.Summary(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(1), plays.PlayCount)
}

func TestRecordScoreSurvivesCacheFailure(t *testing.T) {
	store := memstore.New()
	cache := &fakeCache{recordErr: errors.New("connection refused")}
	cfg := &config.LeaderboardConfig{DefaultLimit: 20, MaxLimit: 500}
	svc := NewHubService(store, cache, achievements.NewPolicy(nil, nil), cfg, discardLogger())

	record(t, svc, "snake", "ann", 700)

	require.Equal(t, 1, cache.recordCalls)

	best, err := store.UserBestForGame(context.Background(), "ann", "snake")
	require.NoError(t, err)
	require.Equal(t, int64(700), best)
}

func TestRecordScoreBroadcasts(t *testing.T) {
	store := memstore.New()
	cache := &fakeCache{entries: []domain.LeaderboardEntry{{Rank: 1, Username: "ann", BestScore: 550}}}
	cfg := &config.LeaderboardConfig{DefaultLimit: 20, MaxLimit: 500}
	svc := NewHubService(store, cache, achievements.NewPolicy(nil, nil), cfg, discardLogger())

	notifier := newFakeNotifier()
	svc.SetNotifier(notifier)

	record(t, svc, "snake", "ann", 550)

	require.Len(t, notifier.scores, 1)
	require.Equal(t, "snake", notifier.scores[0].Game)
	require.Equal(t, int64(550), notifier.scores[0].Score)

	require.ElementsMatch(t, []string{"snake_score_500"}, achievementKeys(notifier.achievements["ann"]))
	require.Len(t, notifier.boards["snake"], 1)

	// below every threshold: no badge broadcast this time
	before := len(notifier.achievements["ann"])
	record(t, svc, "pacman", "ann", 10)
	require.Len(t, notifier.achievements["ann"], before)
	require.Len(t, notifier.scores, 2)
}

func TestLeaderboardClampsLimit(t *testing.T) {
	store := memstore.New()
	cfg := &config.LeaderboardConfig{DefaultLimit: 2, MaxLimit: 3}
	svc := NewHubService(store, nil, achievements.NewPolicy(nil, nil), cfg, discardLogger())

	for i, name := range []string{"ann", "bob", "carol", "dave", "eve"} {
		record(t, svc, "snake", name, int64(100*(i+1)))
	}

	ctx := context.Background()

	entries, err := svc.Leaderboard(ctx, "snake", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, err = svc.Leaderboard(ctx, "snake", 100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "eve", entries[0].Username)
}

func TestLiveLeaderboardPrefersCache(t *testing.T) {
	store := memstore.New()
	cfg := &config.LeaderboardConfig{DefaultLimit: 20, MaxLimit: 500}
	cached := []domain.LeaderboardEntry{{Rank: 1, Username: "cached", BestScore: 999}}

	t.Run("warm cache", func(t *testing.T) {
		svc := NewHubService(store, &fakeCache{entries: cached}, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		entries, err := svc.LiveLeaderboard(context.Background(), "snake", 10)
		require.NoError(t, err)
		require.Equal(t, cached, entries)
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		svc := NewHubService(store, &fakeCache{topErr: errors.New("timeout")}, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		record(t, svc, "snake", "ann", 100)
		entries, err := svc.LiveLeaderboard(context.Background(), "snake", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "ann", entries[0].Username)
	})

	t.Run("no cache", func(t *testing.T) {
		svc := NewHubService(store, nil, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		entries, err := svc.LiveLeaderboard(context.Background(), "snake", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestLiveOverallPrefersCache(t *testing.T) {
	store := memstore.New()
	cfg := &config.LeaderboardConfig{DefaultLimit: 20, MaxLimit: 500}
	cachedBests := []domain.OverallEntry{{Rank: 1, Username: "cached", Total: 4200}}

	t.Run("warm cache", func(t *testing.T) {
		cache := &fakeCache{overall: map[domain.TotalPolicy][]domain.OverallEntry{
			domain.TotalPolicyBests: cachedBests,
		}}
		svc := NewHubService(store, cache, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		entries, err := svc.LiveOverall(context.Background(), domain.TotalPolicyBests, 10)
		require.NoError(t, err)
		require.Equal(t, cachedBests, entries)
	})

	t.Run("cold policy falls back to store", func(t *testing.T) {
		cache := &fakeCache{overall: map[domain.TotalPolicy][]domain.OverallEntry{
			domain.TotalPolicyBests: cachedBests,
		}}
		svc := NewHubService(store, cache, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		record(t, svc, "snake", "ann", 150)
		entries, err := svc.LiveOverall(context.Background(), domain.TotalPolicySum, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.Equal(t, "ann", entries[0].Username)
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		svc := NewHubService(store, &fakeCache{topErr: errors.New("timeout")}, achievements.NewPolicy(nil, nil), cfg, discardLogger())
		entries, err := svc.LiveOverall(context.Background(), domain.TotalPolicySum, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}

func TestOverallLeaderboardFollowsPolicy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// ann grinds snake, bob posts one huge run
	record(t, svc, "snake", "ann", 300)
	record(t, svc, "snake", "ann", 300)
	record(t, svc, "snake", "ann", 300)
	record(t, svc, "pacman", "bob", 500)

	bySum, err := svc.OverallLeaderboard(ctx, domain.TotalPolicySum, 10)
	require.NoError(t, err)
	require.Equal(t, "ann", bySum[0].Username)
	require.Equal(t, int64(900), bySum[0].Total)

	byBests, err := svc.OverallLeaderboard(ctx, domain.TotalPolicyBests, 10)
	require.NoError(t, err)
	require.Equal(t, "bob", byBests[0].Username)
	require.Equal(t, int64(500), byBests[0].Total)

	rankSum, err := svc.OverallRank(ctx, "bob", domain.TotalPolicySum)
	require.NoError(t, err)
	require.Equal(t, int64(2), rankSum)

	rankBests, err := svc.OverallRank(ctx, "bob", domain.TotalPolicyBests)
	require.NoError(t, err)
	require.Equal(t, int64(1), rankBests)
}

func TestRescanAchievementsIsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// seed the ledger directly so nothing was granted on the way in
	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertScoreEvent(ctx, domain.ScoreEvent{
			Game:     "snake",
			Username: "ann",
			Score:    1200,
		}))
	}

	achs, err := svc.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.Empty(t, achs)

	matched, err := svc.RescanAchievements(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), matched)

	achs, err = svc.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{"snake_score_500", "snake_score_1000", "snake_plays_5"},
		achievementKeys(achs))

	// a second pass matches the same thresholds but grants nothing new
	matched, err = svc.RescanAchievements(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), matched)

	achs, err = svc.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, achs, 3)
}

func TestFriendshipLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RequestFriend(ctx, "bob", "ann"))

	incoming, err := svc.IncomingRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Equal(t, "ann", incoming[0].Username)

	// nothing visible on either friend list yet
	friends, err := svc.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, friends)
	friends, err = svc.Friends(ctx, "ann")
	require.NoError(t, err)
	require.Empty(t, friends)

	require.NoError(t, svc.AcceptRequest(ctx, "bob", "ann"))

	friends, err = svc.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	require.Equal(t, "ann", friends[0].Friend)

	friends, err = svc.Friends(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	require.Equal(t, "bob", friends[0].Friend)

	incoming, err = svc.IncomingRequests(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, incoming)

	// accepting again changes nothing
	require.NoError(t, svc.AcceptRequest(ctx, "bob", "ann"))
	friends, err = svc.Friends(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, friends, 1)
}

func TestFriendOpsValidateUsernames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.RequestFriend(ctx, "", "ann"), domain.ErrInvalidUsername)
	require.ErrorIs(t, svc.RequestFriend(ctx, "bob", ""), domain.ErrInvalidUsername)
	require.ErrorIs(t, svc.AcceptRequest(ctx, "bob", ""), domain.ErrInvalidUsername)

	_, err := svc.IncomingRequests(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidUsername)
	_, err = svc.Friends(ctx, "")
	require.ErrorIs(t, err, domain.ErrInvalidUsername)
}

func TestProfileForUnknownAndKnownPlayers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	profile, err := svc.Profile(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, profile.Registered)
	require.Zero(t, profile.TotalScore)
	require.Zero(t, profile.TotalPlays)
	require.Empty(t, profile.Achievements)
	require.Contains(t, profile.Render(), "Joined: unknown")
	require.Contains(t, profile.Render(), "- None yet")

	record(t, svc, "snake", "ann", 550)
	record(t, svc, "pacman", "ann", 200)

	profile, err = svc.Profile(ctx, "ann")
	require.NoError(t, err)
	require.True(t, profile.Registered)
	require.False(t, profile.Joined.IsZero())
	require.Equal(t, int64(750), profile.TotalScore) // best per game, summed
	require.Equal(t, int64(2), profile.TotalPlays)
	require.ElementsMatch(t, []string{"snake_score_500"}, achievementKeys(profile.Achievements))
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	record(t, svc, "snake", "ann", 300)
	record(t, svc, "snake", "ann", 500)
	record(t, svc, "pacman", "ann", 100)
	record(t, svc, "snake", "bob", 450)

	summary, err := svc.Summary(ctx, "ann")
	require.NoError(t, err)
	require.Equal(t, int64(500), summary.BestScore)
	require.Equal(t, int64(900), summary.TotalScore)
	require.Equal(t, int64(600), summary.TotalByBests)
	require.Equal(t, int64(3), summary.PlayCount)
	require.Equal(t, int64(1), summary.OverallRank)
	require.Equal(t, int64(1), summary.OverallRankByBests)

	summary, err = svc.Summary(ctx, "ghost")
	require.NoError(t, err)
	require.Zero(t, summary.BestScore)
	require.Zero(t, summary.OverallRank)
}

func TestGamesListsPlayedGames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	games, err := svc.Games(ctx)
	require.NoError(t, err)
	require.Empty(t, games)

	record(t, svc, "snake", "ann", 1)
	record(t, svc, "pacman", "bob", 2)
	record(t, svc, "snake", "bob", 3)

	games, err = svc.Games(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"pacman", "snake"}, games)
}
