package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/makeasinger/modelgen/internal/model"
	"github.com/rs/zerolog"
)

const (
	sendBuffer   = 64
	pingInterval = 30 * time.Second
)

var pongMessage = []byte(`{"type":"pong"}`)

// Client represents a WebSocket subscriber of one session
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	// Snapshot, when set, is called once the client is registered and its
	// result is queued ahead of any later broadcast.
	Snapshot func() []byte
	pong     chan struct{}
}

// Hub fans session events out to WebSocket subscribers
type Hub struct {
	// Clients grouped by session ID; only touched by Run
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	count      chan countRequest
	done       chan struct{}

	logger zerolog.Logger
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

type countRequest struct {
	sessionID string
	reply     chan int
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		count:      make(chan countRequest),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, id)
			}
			return nil

		case client := <-h.register:
			if h.clients[client.SessionID] == nil {
				h.clients[client.SessionID] = make(map[*Client]bool)
			}
			h.clients[client.SessionID][client] = true
			h.logger.Debug().Str("session_id", client.SessionID).Msg("client registered")
			if client.Snapshot != nil {
				if msg := client.Snapshot(); msg != nil {
					select {
					case client.Send <- msg:
					default:
					}
				}
			}

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Debug().Str("session_id", client.SessionID).Msg("client unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.SessionID] {
				select {
				case client.Send <- msg.Message:
				default:
					h.logger.Warn().Str("session_id", msg.SessionID).Msg("dropping slow client")
					h.remove(client)
				}
			}

		case req := <-h.count:
			req.reply <- len(h.clients[req.sessionID])
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.SessionID)
	}
}

// Register adds a new client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of clients watching sessionID
func (h *Hub) Subscribers(sessionID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{sessionID: sessionID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// BroadcastSnapshot sends the session state to all subscribers
func (h *Hub) BroadcastSnapshot(snap model.SessionSnapshot) {
	h.publish(snap.ID, model.WSSnapshotMessage{
		Type:      model.WSMessageTypeSnapshot,
		SessionID: snap.ID,
		Snapshot:  snap,
	})
}

// BroadcastComplete sends a completion message to all subscribers
func (h *Hub) BroadcastComplete(sessionID, modelURL, downloadURL string) {
	h.publish(sessionID, model.WSCompleteMessage{
		Type:        model.WSMessageTypeComplete,
		SessionID:   sessionID,
		ModelURL:    modelURL,
		DownloadURL: downloadURL,
	})
}

// BroadcastArchived tells subscribers where the archived model lives
func (h *Hub) BroadcastArchived(sessionID, archiveURL string) {
	h.publish(sessionID, model.WSArchivedMessage{
		Type:       model.WSMessageTypeArchived,
		SessionID:  sessionID,
		ArchiveURL: archiveURL,
	})
}

// BroadcastError sends an error message to all subscribers
func (h *Hub) BroadcastError(sessionID, code, message string) {
	h.publish(sessionID, model.WSErrorMessage{
		Type:      model.WSMessageTypeError,
		SessionID: sessionID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// publish never blocks; a full broadcast queue drops the message.
func (h *Hub) publish(sessionID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Message: data}:
	default:
		h.logger.Warn().Str("session_id", sessionID).Msg("broadcast queue full, message dropped")
	}
}

// HandleConnection serves one WebSocket connection. snapshot, when not nil,
// supplies the first message and is read after registration.
func (h *Hub) HandleConnection(c *websocket.Conn, sessionID string, snapshot func() []byte) {
	client := &Client{
		SessionID: sessionID,
		Conn:      c,
		Send:      make(chan []byte, sendBuffer),
		Snapshot:  snapshot,
		pong:      make(chan struct{}, 1),
	}

	if !h.Register(client) {
		return
	}
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-client.pong:
				if err := c.WriteMessage(websocket.TextMessage, pongMessage); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("websocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			select {
			case client.pong <- struct{}{}:
			default:
			}
		}
	}
}
