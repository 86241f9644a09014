package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/pkg/response"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// terminalSendTimeout bounds how long Publish waits to queue a job's final
// update when the broadcast buffer is full
const terminalSendTimeout = 5 * time.Second

// Hub maintains active WebSocket connections grouped by job
type Hub struct {
	clients map[string]map[*Client]bool
	// latest is the newest snapshot sent to each subscribed job
	latest     map[string]version
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	// direct delivers to one client through the hub loop
	direct chan *directMessage
}

// BroadcastMessage carries the rendered messages of one job snapshot
type BroadcastMessage struct {
	JobID     string
	UpdatedAt time.Time
	Progress  int
	Messages  [][]byte
}

type version struct {
	updatedAt time.Time
	progress  int
}

// olderThan reports whether msg was committed before v
func (msg *BroadcastMessage) olderThan(v version) bool {
	return msg.UpdatedAt.Before(v.updatedAt) || msg.Progress < v.progress
}

type directMessage struct {
	client  *Client
	message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		latest:     make(map[string]version),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		direct:     make(chan *directMessage, 64),
	}
}

// Run starts the hub's main loop. The client map is only touched here.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			log.WithField("job_id", client.JobID).Debug("Client registered")

		case client := <-h.unregister:
			h.remove(client)
			log.WithField("job_id", client.JobID).Debug("Client unregistered")

		case msg := <-h.direct:
			if h.clients[msg.client.JobID][msg.client] {
				h.deliver(msg.client, msg.message)
			}

		case msg := <-h.broadcast:
			clients := h.clients[msg.JobID]
			if len(clients) == 0 {
				continue
			}
			if last, ok := h.latest[msg.JobID]; ok && msg.olderThan(last) {
				log.WithField("job_id", msg.JobID).Debug("Dropping out-of-order update")
				continue
			}
			h.latest[msg.JobID] = version{updatedAt: msg.UpdatedAt, progress: msg.Progress}
			for client := range clients {
				for _, m := range msg.Messages {
					if !h.deliver(client, m) {
						break
					}
				}
			}
		}
	}
}

// deliver drops clients that cannot keep up and reports whether the client
// is still registered
func (h *Hub) deliver(client *Client, message []byte) bool {
	select {
	case client.Send <- message:
		return true
	default:
		log.WithField("job_id", client.JobID).Warn("Dropping slow websocket client")
		h.remove(client)
		return false
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
		delete(h.latest, client.JobID)
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish pushes a job snapshot to the job's subscribers: always a progress
// message, then a complete or error message once the job is terminal.
// Snapshots older than one already sent are dropped.
func (h *Hub) Publish(ctx context.Context, snap *model.JobSnapshot) {
	h.send(ctx, &BroadcastMessage{
		JobID:     snap.JobID,
		UpdatedAt: snap.UpdatedAt,
		Progress:  snap.Progress,
		Messages:  Messages(snap),
	}, snap.Status.Terminal())
}

// Messages renders the websocket messages for a snapshot
func Messages(snap *model.JobSnapshot) [][]byte {
	var out []interface{}
	out = append(out, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		JobID:    snap.JobID,
		Progress: snap.Progress,
		Status:   snap.Status,
		Stages:   snap.Stages,
	})
	switch snap.Status {
	case model.JobStatusCompleted:
		out = append(out, model.WSCompleteMessage{
			Type:      model.WSMessageTypeComplete,
			JobID:     snap.JobID,
			ResultRef: snap.ResultRef,
		})
	case model.JobStatusFailed:
		out = append(out, model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: snap.JobID,
			Error: model.WSError{Code: response.CodeJobFailed, Message: snap.Error},
		})
	}

	data := make([][]byte, 0, len(out))
	for _, m := range out {
		b, err := json.Marshal(m)
		if err != nil {
			log.WithError(err).Error("Failed to marshal websocket message")
			continue
		}
		data = append(data, b)
	}
	return data
}

// send drops progress updates when the buffer is full. Terminal updates
// wait for room instead.
func (h *Hub) send(ctx context.Context, msg *BroadcastMessage, terminal bool) {
	select {
	case h.broadcast <- msg:
		return
	default:
	}
	logger := log.WithField("job_id", msg.JobID)
	if !terminal {
		logger.Warn("Websocket broadcast buffer full, dropping update")
		return
	}

	timer := time.NewTimer(terminalSendTimeout)
	defer timer.Stop()
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
		logger.WithError(ctx.Err()).Warn("Final websocket update not delivered")
	case <-timer.C:
		logger.Warn("Websocket broadcast buffer still full, final update not delivered")
	}
}

// HandleConnection serves one subscriber until it disconnects. initial, if
// set, is sent right after registration.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, initial *model.JobSnapshot) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	if initial != nil {
		for _, msg := range Messages(initial) {
			h.direct <- &directMessage{client: client, message: msg}
		}
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
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
				log.WithError(err).Warn("WebSocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.direct <- &directMessage{client: client, message: pong}
		}
	}
}
