package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	// replayLimit caps how many stream entries a reconnecting client gets.
	replayLimit = 500
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Config names the bus channel and stream the hub relays.
type Config struct {
	Channel   string
	Stream    string
	Mode      string
	Node      domain.Pubkey
	StartedAt time.Time
}

// Hub relays auction events from the signal bus to WebSocket clients as
// binary protobuf Struct frames. Clients may narrow the feed to a set of
// auctions or sellers.
type Hub struct {
	cfg        Config
	bus        domain.SignalBus
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	// done is closed when Run returns.
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// event is a decoded bus payload with the keys clients filter on.
type event struct {
	fields    map[string]any
	auction   string
	authority string
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	filters map[string]bool
	mu      sync.RWMutex
}

// subscribeMsg narrows (subscribe) or widens (unsubscribe) a client's feed.
// Keys are auction or seller addresses. An empty filter set receives all.
type subscribeMsg struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}

// NewHub creates a hub bridging bus to WebSocket clients.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		cfg:        cfg,
		bus:        bus,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run starts the hub loop. It exits when ctx is cancelled. Connections
// arriving after that are closed immediately.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	msgs, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "ws: subscribed", slog.String("channel", h.cfg.Channel))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case data, ok := <-msgs:
			if !ok {
				h.logger.WarnContext(ctx, "ws: subscription closed")
				msgs = nil
				continue
			}
			ev, err := decodeEvent(data)
			if err != nil {
				h.logger.WarnContext(ctx, "ws: bad event payload", slog.String("error", err.Error()))
				continue
			}
			h.fanout(ev)

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))
		}
	}
}

func (h *Hub) fanout(ev event) {
	frame, err := encodeFrame("auction_event", ev.fields)
	if err != nil {
		h.logger.Warn("ws: encode frame", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client. With ?since=<id>
// the client first receives stream entries after that ID.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		filters: make(map[string]bool),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	c.sendStatus()
	if since := r.URL.Query().Get("since"); since != "" {
		c.replay(r.Context(), since)
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) sendStatus() {
	frame, err := encodeFrame("node_status", map[string]any{
		"mode":           c.hub.cfg.Mode,
		"node":           c.hub.cfg.Node.String(),
		"uptime_seconds": max(0, int64(time.Since(c.hub.cfg.StartedAt).Seconds())),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) replay(ctx context.Context, since string) {
	msgs, err := c.hub.bus.StreamRead(ctx, c.hub.cfg.Stream, since, replayLimit)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		ev, err := decodeEvent(m.Payload)
		if err != nil {
			continue
		}
		ev.fields["stream_id"] = m.ID
		frame, err := encodeFrame("auction_event", ev.fields)
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range msg.Keys {
		switch msg.Action {
		case "subscribe":
			c.filters[k] = true
		case "unsubscribe":
			delete(c.filters, k)
		}
	}
}

func (c *client) wants(ev event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.filters) == 0 {
		return true
	}
	return c.filters[ev.auction] || c.filters[ev.authority]
}

func (c *client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decodeEvent(data []byte) (event, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return event{}, err
	}
	auction, _ := fields["auction"].(string)
	authority, _ := fields["authority"].(string)
	return event{fields: fields, auction: auction, authority: authority}, nil
}

// encodeFrame wraps payload as {"type": kind, "payload": payload} in a
// protobuf Struct.
func encodeFrame(kind string, payload map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"type":    kind,
		"payload": payload,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// DecodeFrame parses a frame produced by the hub. Clients in Go use it to
// read the feed.
func DecodeFrame(frame []byte) (string, map[string]any, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(frame, &s); err != nil {
		return "", nil, err
	}
	m := s.AsMap()
	kind, _ := m["type"].(string)
	payload, _ := m["payload"].(map[string]any)
	return kind, payload, nil
}
