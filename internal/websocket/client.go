package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // per-frame write deadline
	pongWait       = 60 * time.Second    // read deadline, refreshed by pongs
	pingPeriod     = (pongWait * 9) / 10 // must stay under pongWait
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Arcade shells connect from arbitrary origins
		return true
	},
}

// Client is one connected arcade shell.
type Client struct {
	id       string
	username string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	logger   *slog.Logger
}

// ClientMessage is the envelope shells send to the hub.
type ClientMessage struct {
	Type string `json:"type"`
	Game string `json:"game,omitempty"`
}

// NewClient wraps a connection. The username is an optional shell
// identity carried into logs.
func NewClient(hub *Hub, conn *websocket.Conn, username string, logger *slog.Logger) *Client {
	return &Client{
		id:       uuid.New().String(),
		username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		logger:   logger,
	}
}

// readPump feeds shell messages into the hub until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger.Debug("websocket client disconnected", "client_id", c.id, "username", c.username)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("undecodable client message", "client_id", c.id, "error", err)
			c.sendError("messages must be JSON")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.Game == "" {
			c.sendError("game required for subscribe")
			return
		}
		c.hub.Subscribe(c, msg.Game)
		c.sendAck("subscribed", msg.Game)

	case MessageTypeUnsubscribe:
		if msg.Game != "" {
			c.hub.Unsubscribe(c, msg.Game)
			c.sendAck("unsubscribed", msg.Game)
		}

	case MessageTypePing:
		c.sendPong()

	default:
		c.logger.Debug("unknown message type", "client_id", c.id, "type", msg.Type)
		c.sendError("unknown message type: " + msg.Type)
	}
}

// writePump drains the send queue and keeps the connection pinged.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain the backlog; each frame carries one JSON document.
			for i := len(c.send); i > 0; i-- {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues a control reply, dropping it when the client is slow.
func (c *Client) deliver(msg Message) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(reason string) {
	c.deliver(Message{
		Type:      MessageTypeError,
		Data:      map[string]string{"error": reason},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendAck(action, game string) {
	c.deliver(Message{
		Type:      action,
		Game:      game,
		Data:      map[string]string{"status": "ok", "client_id": c.id},
		Timestamp: time.Now(),
	})
}

func (c *Client) sendPong() {
	c.deliver(Message{Type: MessageTypePong, Timestamp: time.Now()})
}

// ServeWs upgrades the request and attaches the client to the hub.
// Shells may identify themselves with a username query parameter.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if len(username) > 64 {
		username = ""
	}

	client := NewClient(hub, conn, username, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	logger.Debug("websocket client connected", "client_id", client.id, "username", username)
}
