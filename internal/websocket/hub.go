package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/arcade-hub/internal/domain"
)

// Message types
const (
	MessageTypeScoreRecorded       = "score_recorded"
	MessageTypeLeaderboardUpdate   = "leaderboard_update"
	MessageTypeAchievementUnlocked = "achievement_unlocked"
	MessageTypeSubscribe           = "subscribe"
	MessageTypeUnsubscribe         = "unsubscribe"
	MessageTypePing                = "ping"
	MessageTypePong                = "pong"
	MessageTypeError               = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Game      string      `json:"game,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BoardUpdate contains leaderboard data for broadcast
type BoardUpdate struct {
	Game    string                    `json:"game"`
	Entries []domain.LeaderboardEntry `json:"entries"`
}

// AchievementUpdate announces freshly unlocked badges
type AchievementUpdate struct {
	Username     string               `json:"username"`
	Achievements []domain.Achievement `json:"achievements"`
}

// Hub maintains the set of active clients and broadcasts messages.
// Clients subscribe to game names; game-keyed messages reach only their
// subscribers, the rest reach everyone.
type Hub struct {
	// Registered clients by game
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	game   string
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all game subscriptions
				for game, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, game)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.game]; !ok {
				h.clients[req.game] = make(map[*Client]bool)
			}
			h.clients[req.game][req.client] = true
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "game", req.game)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.game]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.game)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "game", req.game)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to all subscribed clients
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	// Game-keyed messages go to that game's subscribers only
	if message.Game != "" {
		if clients, ok := h.clients[message.Game]; ok {
			for client := range clients {
				select {
				case client.send <- data:
				default:
					// Client's buffer is full, skip
					h.logger.Warn("client buffer full, skipping", "client_id", client.id)
				}
			}
		}
	} else {
		// Broadcast to all clients
		for client := range h.allClients {
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

// enqueue hands a message to the broadcast loop, dropping it when the
// loop is saturated
func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type)
	}
}

// BroadcastScore announces a freshly recorded run to the game's
// subscribers
func (h *Hub) BroadcastScore(event domain.ScoreEvent) {
	h.enqueue(&Message{
		Type:      MessageTypeScoreRecorded,
		Game:      event.Game,
		Data:      event,
		Timestamp: time.Now(),
	})
}

// BroadcastLeaderboard sends a board update to the game's subscribers
func (h *Hub) BroadcastLeaderboard(game string, entries []domain.LeaderboardEntry) {
	h.enqueue(&Message{
		Type: MessageTypeLeaderboardUpdate,
		Game: game,
		Data: BoardUpdate{
			Game:    game,
			Entries: entries,
		},
		Timestamp: time.Now(),
	})
}

// BroadcastAchievements announces unlocked badges to every connected
// client
func (h *Hub) BroadcastAchievements(username string, granted []domain.Achievement) {
	h.enqueue(&Message{
		Type: MessageTypeAchievementUnlocked,
		Data: AchievementUpdate{
			Username:     username,
			Achievements: granted,
		},
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe adds a client to a game subscription
func (h *Hub) Subscribe(client *Client, game string) {
	h.subscribe <- &subscriptionRequest{
		client: client,
		game:   game,
	}
}

// Unsubscribe removes a client from a game subscription
func (h *Hub) Unsubscribe(client *Client, game string) {
	h.unsubscribe <- &subscriptionRequest{
		client: client,
		game:   game,
	}
}

// GetSubscriberCount returns the number of subscribers for a game
func (h *Hub) GetSubscriberCount(game string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if clients, ok := h.clients[game]; ok {
		return len(clients)
	}
	return 0
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// HubStats is a point-in-time snapshot of hub occupancy.
type HubStats struct {
	Connections   int            `json:"connections"`
	Subscriptions map[string]int `json:"subscriptions"`
}

// Stats reports connected clients and per-game subscriber counts.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		Connections:   len(h.allClients),
		Subscriptions: make(map[string]int, len(h.clients)),
	}
	for game, clients := range h.clients {
		stats.Subscriptions[game] = len(clients)
	}
	return stats
}
