// Package ws implements the WebSocket broadcaster for live competition
// observation.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/event"
)

// CompetitionReader supplies the persisted aggregate for sync frames.
type CompetitionReader interface {
	GetCompetition(ctx context.Context, id string) (*competition.Competition, error)
}

// ControlFrame is the inbound message a client sends to manage its
// subscriptions.
type ControlFrame struct {
	Type          string `json:"type"` // "subscribe" | "unsubscribe"
	CompetitionID string `json:"competition_id"`
}

// conn wraps a single WebSocket connection and its subscription set.
// writeMu serializes all frame writes; holding it across subscription
// registration and the sync read guarantees a client never sees a live
// event before its sync frame.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc

	writeMu sync.Mutex
	subs    map[string]struct{}
}

// Hub fans lifecycle events out to the connections subscribed to each
// event's competition.
type Hub struct {
	reader CompetitionReader

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a hub that serves sync frames from the given reader.
func NewHub(reader CompetitionReader) *Hub {
	return &Hub{
		reader: reader,
		conns:  make(map[*conn]struct{}),
	}
}

// HandleWS upgrades the request and runs the control-frame read loop until
// the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, subs: make(map[string]struct{})}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var frame ControlFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				slog.Debug("websocket bad control frame", "error", err)
				continue
			}
			h.handleControl(ctx, c, frame)
		}
	}()
}

func (h *Hub) handleControl(ctx context.Context, c *conn, frame ControlFrame) {
	if frame.CompetitionID == "" {
		return
	}
	switch frame.Type {
	case "subscribe":
		h.subscribe(ctx, c, frame.CompetitionID)
	case "unsubscribe":
		c.writeMu.Lock()
		delete(c.subs, frame.CompetitionID)
		c.writeMu.Unlock()
	}
}

// subscribe registers the connection for a competition and sends the
// synthetic catch-up frame. Registration and the sync write happen under
// the connection's write lock so no live event can slip in between.
func (h *Hub) subscribe(ctx context.Context, c *conn, competitionID string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.subs[competitionID] = struct{}{}

	comp, err := h.reader.GetCompetition(ctx, competitionID)
	if err != nil {
		slog.Warn("websocket sync read failed", "competition_id", competitionID, "error", err)
		return
	}

	sync := event.New(event.TypeCompetitionSync, competitionID, comp)
	if err := c.write(ctx, sync); err != nil {
		slog.Debug("websocket sync write failed", "error", err)
	}
}

// Relay delivers one live event to every connection subscribed to its
// competition. Wire it to the event bus at startup.
func (h *Hub) Relay(ctx context.Context, ev event.Event) {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.writeMu.Lock()
		_, subscribed := c.subs[ev.CompetitionID]
		var err error
		if subscribed {
			err = c.write(ctx, ev)
		}
		c.writeMu.Unlock()

		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			go h.remove(c)
		}
	}
}

// write must be called with c.writeMu held.
func (c *conn) write(ctx context.Context, ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected")
	}
}
