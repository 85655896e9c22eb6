package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcade-hub/internal/domain"
)

var base = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func record(t *testing.T, s *Store, game, user string, score int64, at time.Time) {
	t.Helper()
	require.NoError(t, s.InsertScoreEvent(context.Background(), domain.ScoreEvent{
		Game: game, Username: user, Score: score, CreatedAt: at,
	}))
}

func TestBestAndTotalsPerGame(t *testing.T) {
	ctx := context.Background()
	s := New()

	record(t, s, "Snake", "ann", 100, base)
	record(t, s, "Snake", "ann", 250, base.Add(time.Minute))
	record(t, s, "Snake", "ann", 50, base.Add(2*time.Minute))
	record(t, s, "Pacman", "ann", 80, base.Add(3*time.Minute))

	best, err := s.UserBestForGame(ctx, "ann", "Snake")
	require.NoError(t, err)
	require.EqualValues(t, 250, best)

	gameTotal, err := s.UserGameTotal(ctx, "ann", "Snake")
	require.NoError(t, err)
	require.EqualValues(t, 400, gameTotal)

	total, err := s.UserTotal(ctx, "ann")
	require.NoError(t, err)
	require.EqualValues(t, 480, total)

	byBests, err := s.UserOverallByBests(ctx, "ann")
	require.NoError(t, err)
	require.EqualValues(t, 330, byBests) // 250 + 80

	overallBest, err := s.UserBestScore(ctx, "ann")
	require.NoError(t, err)
	require.EqualValues(t, 250, overallBest)
}

func TestZeroSentinelsForUnknownUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	record(t, s, "Snake", "ann", 100, base)

	for name, fn := range map[string]func() (int64, error){
		"total":    func() (int64, error) { return s.UserTotal(ctx, "ghost") },
		"byBests":  func() (int64, error) { return s.UserOverallByBests(ctx, "ghost") },
		"best":     func() (int64, error) { return s.UserBestScore(ctx, "ghost") },
		"gameBest": func() (int64, error) { return s.UserBestForGame(ctx, "ghost", "Snake") },
		"rank":     func() (int64, error) { return s.RankForGame(ctx, "ghost", "Snake") },
		"overall":  func() (int64, error) { return s.OverallRank(ctx, "ghost") },
		"byBestsR": func() (int64, error) { return s.OverallRankByBests(ctx, "ghost") },
	} {
		got, err := fn()
		require.NoError(t, err, name)
		require.Zero(t, got, name)
	}
}

func TestRankTiesShareAndDoNotInflate(t *testing.T) {
	ctx := context.Background()
	s := New()

	record(t, s, "Snake", "ann", 100, base)
	record(t, s, "Snake", "bob", 100, base.Add(time.Minute))
	record(t, s, "Snake", "carol", 50, base.Add(2*time.Minute))

	for user, want := range map[string]int64{"ann": 1, "bob": 1, "carol": 3} {
		rank, err := s.RankForGame(ctx, user, "Snake")
		require.NoError(t, err)
		require.Equal(t, want, rank, "rank for %s", user)
	}
}

func TestRankDistinguishesZeroScoreFromNoData(t *testing.T) {
	ctx := context.Background()
	s := New()

	record(t, s, "Dino", "ann", 0, base)
	record(t, s, "Dino", "bob", 10, base)

	rank, err := s.RankForGame(ctx, "ann", "Dino")
	require.NoError(t, err)
	require.EqualValues(t, 2, rank, "a recorded zero still ranks")

	rank, err = s.RankForGame(ctx, "carol", "Dino")
	require.NoError(t, err)
	require.Zero(t, rank, "no events means no rank")
}

func TestLeaderboardOrderLastPlayedAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()

	record(t, s, "Snake", "ann", 300, base)
	record(t, s, "Snake", "ann", 100, base.Add(3*time.Minute))
	record(t, s, "Snake", "bob", 200, base.Add(time.Minute))
	record(t, s, "Snake", "carol", 400, base.Add(2*time.Minute))
	record(t, s, "Pacman", "dave", 999, base)

	entries, err := s.Leaderboard(ctx, "Snake", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "carol", entries[0].Username)
	require.Equal(t, "ann", entries[1].Username)
	require.Equal(t, "bob", entries[2].Username)
	require.EqualValues(t, 300, entries[1].BestScore)
	require.Equal(t, base.Add(3*time.Minute), entries[1].LastPlayed, "last played is the latest event, not the best one")
	require.EqualValues(t, 1, entries[0].Rank)
	require.EqualValues(t, 3, entries[2].Rank)

	top2, err := s.Leaderboard(ctx, "Snake", 2)
	require.NoError(t, err)
	require.Len(t, top2, 2)
}

func TestOverallBoardsFollowTheirPolicies(t *testing.T) {
	ctx := context.Background()
	s := New()

	// ann grinds Snake; bob peaks once in each game
	record(t, s, "Snake", "ann", 100, base)
	record(t, s, "Snake", "ann", 100, base.Add(time.Minute))
	record(t, s, "Snake", "ann", 100, base.Add(2*time.Minute))
	record(t, s, "Snake", "bob", 150, base)
	record(t, s, "Pacman", "bob", 120, base)

	sum, err := s.OverallLeaderboard(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "ann", sum[0].Username)
	require.EqualValues(t, 300, sum[0].Total)
	require.EqualValues(t, 270, sum[1].Total)

	bests, err := s.OverallLeaderboardByBests(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "bob", bests[0].Username)
	require.EqualValues(t, 270, bests[0].Total, "sum of per-game maxima")
	require.EqualValues(t, 100, bests[1].Total)
}

func TestGameAggregates(t *testing.T) {
	ctx := context.Background()
	s := New()

	record(t, s, "Snake", "ann", 100, base)
	record(t, s, "Snake", "ann", 300, base.Add(time.Minute))
	record(t, s, "Pacman", "ann", 50, base)
	record(t, s, "Snake", "bob", 200, base)

	aggs, err := s.GameAggregates(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.GameAggregate{
		{Username: "ann", Game: "Pacman", Best: 50, Plays: 1},
		{Username: "ann", Game: "Snake", Best: 300, Plays: 2},
		{Username: "bob", Game: "Snake", Best: 200, Plays: 1},
	}, aggs)

	games, err := s.Games(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Pacman", "Snake"}, games)
}

func TestGrantAchievementsSkipsHeldKeys(t *testing.T) {
	ctx := context.Background()
	s := New()

	cand := domain.Achievement{Username: "ann", Key: "Snake_score_500", Reason: "Score >= 500 in Snake", AwardedAt: base}

	granted, err := s.GrantAchievements(ctx, []domain.Achievement{cand})
	require.NoError(t, err)
	require.Len(t, granted, 1)

	granted, err = s.GrantAchievements(ctx, []domain.Achievement{cand})
	require.NoError(t, err)
	require.Empty(t, granted)

	achs, err := s.UserAchievements(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, achs, 1)
}

func TestFriendEdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	// ann requests bob: a requester-owned pending edge naming bob
	pending := domain.FriendEdge{Username: "ann", Friend: "bob", Status: domain.FriendStatusPending, AddedAt: base}
	require.NoError(t, s.InsertFriendEdge(ctx, pending))
	pending.AddedAt = base.Add(time.Minute)
	require.NoError(t, s.InsertFriendEdge(ctx, pending))

	incoming, err := s.IncomingRequests(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, incoming, 2, "duplicate requests stack")
	require.Equal(t, "ann", incoming[0].Username)

	require.NoError(t, s.AcceptFriend(ctx, "bob", "ann", base.Add(2*time.Minute)))

	bobFriends, err := s.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)
	require.Equal(t, "ann", bobFriends[0].Friend)

	annFriends, err := s.Friends(ctx, "ann")
	require.NoError(t, err)
	require.Len(t, annFriends, 1, "both duplicate edges flipped, read path dedups")
	require.Equal(t, "bob", annFriends[0].Friend)

	// accepting again changes nothing observable
	require.NoError(t, s.AcceptFriend(ctx, "bob", "ann", base.Add(3*time.Minute)))
	bobFriends, err = s.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobFriends, 1)

	incoming, err = s.IncomingRequests(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, incoming)
}

func TestAcceptPromotesCrossedRequest(t *testing.T) {
	ctx := context.Background()
	s := New()

	// both directions pending at once
	require.NoError(t, s.InsertFriendEdge(ctx, domain.FriendEdge{Username: "ann", Friend: "bob", Status: domain.FriendStatusPending, AddedAt: base}))
	require.NoError(t, s.InsertFriendEdge(ctx, domain.FriendEdge{Username: "bob", Friend: "ann", Status: domain.FriendStatusPending, AddedAt: base}))

	require.NoError(t, s.AcceptFriend(ctx, "bob", "ann", base.Add(time.Minute)))

	for _, user := range []string{"ann", "bob"} {
		friends, err := s.Friends(ctx, user)
		require.NoError(t, err)
		require.Len(t, friends, 1, "one accept heals both directions for %s", user)
	}
}

func TestFriendsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.InsertFriendEdge(ctx, domain.FriendEdge{Username: "ann", Friend: "bob", Status: domain.FriendStatusAccepted, AddedAt: base}))
	require.NoError(t, s.InsertFriendEdge(ctx, domain.FriendEdge{Username: "ann", Friend: "carol", Status: domain.FriendStatusAccepted, AddedAt: base.Add(time.Hour)}))

	friends, err := s.Friends(ctx, "ann")
	require.NoError(t, err)
	require.Equal(t, "carol", friends[0].Friend)
	require.Equal(t, "bob", friends[1].Friend)
}
