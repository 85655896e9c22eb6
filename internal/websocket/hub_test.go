package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcade-hub/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHubRoutesGameKeyedBroadcasts(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	snakeFan := NewClient(hub, nil, "ann", testLogger())
	lurker := NewClient(hub, nil, "", testLogger())
	hub.Register(snakeFan)
	hub.Register(lurker)

	require.Eventually(t, func() bool {
		return hub.GetTotalConnections() == 2
	}, time.Second, 10*time.Millisecond)

	hub.Subscribe(snakeFan, "snake")
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("snake") == 1
	}, time.Second, 10*time.Millisecond)

	stats := hub.Stats()
	require.Equal(t, 2, stats.Connections)
	require.Equal(t, map[string]int{"snake": 1}, stats.Subscriptions)

	hub.BroadcastScore(domain.ScoreEvent{Game: "snake", Username: "ann", Score: 550})

	msg := receive(t, snakeFan)
	require.Equal(t, MessageTypeScoreRecorded, msg.Type)
	require.Equal(t, "snake", msg.Game)
	require.Empty(t, lurker.send)

	// achievement announcements reach everyone
	hub.BroadcastAchievements("ann", []domain.Achievement{{Username: "ann", Key: "snake_score_500"}})

	msg = receive(t, snakeFan)
	require.Equal(t, MessageTypeAchievementUnlocked, msg.Type)
	msg = receive(t, lurker)
	require.Equal(t, MessageTypeAchievementUnlocked, msg.Type)

	hub.BroadcastLeaderboard("snake", []domain.LeaderboardEntry{{Rank: 1, Username: "ann", BestScore: 550}})
	msg = receive(t, snakeFan)
	require.Equal(t, MessageTypeLeaderboardUpdate, msg.Type)
	require.Empty(t, lurker.send)
}

func TestClientSubscribeProtocol(t *testing.T) {
	hub := NewHub(testLogger())
	go hub.Run()
	defer hub.Stop()

	client := NewClient(hub, nil, "bob", testLogger())
	hub.Register(client)
	require.Eventually(t, func() bool {
		return hub.GetTotalConnections() == 1
	}, time.Second, 10*time.Millisecond)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe, Game: "pacman"})
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("pacman") == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "subscribed", receive(t, client).Type)

	client.handleMessage(&ClientMessage{Type: MessageTypeSubscribe})
	require.Equal(t, MessageTypeError, receive(t, client).Type)

	client.handleMessage(&ClientMessage{Type: MessageTypePing})
	require.Equal(t, MessageTypePong, receive(t, client).Type)

	client.handleMessage(&ClientMessage{Type: MessageTypeUnsubscribe, Game: "pacman"})
	require.Eventually(t, func() bool {
		return hub.GetSubscriberCount("pacman") == 0
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "unsubscribed", receive(t, client).Type)
}
