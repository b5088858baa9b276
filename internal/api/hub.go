package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"vodpick/internal/resolve"
)

const (
	peerQueue    = 64
	frameLimit   = 1024
	writeTimeout = 10 * time.Second
	idleTimeout  = time.Minute
	pingInterval = 45 * time.Second
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Hub fans orchestrator events out to WebSocket peers. A peer whose queue
// fills up is disconnected; it can reconnect and is greeted with the full
// state again.
type Hub struct {
	mu       sync.Mutex
	peers    map[*peer]struct{}
	closed   bool
	upgrader websocket.Upgrader
	snapshot func() any
	log      zerolog.Logger
}

type peer struct {
	conn *websocket.Conn
	out  chan []byte
}

// NewHub creates a hub. snapshot greets new peers and answers "state:get".
func NewHub(snapshot func() any, log zerolog.Logger) *Hub {
	return &Hub{
		peers: make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  frameLimit,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHost,
		},
		snapshot: snapshot,
		log:      log,
	}
}

// sameHost accepts non-browser clients and pages served by this host.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Relay broadcasts events until the channel closes or ctx ends, then
// disconnects every peer.
func (h *Hub) Relay(ctx context.Context, events <-chan resolve.Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := frame("resolve:"+string(ev.Type), ev)
			if err != nil {
				h.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("encoding event")
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if !h.sendLocked(p, data) {
			h.log.Debug().Msg("websocket peer too slow, disconnecting")
		}
	}
}

// sendLocked queues data for p, dropping p when its queue is full.
func (h *Hub) sendLocked(p *peer, data []byte) bool {
	if _, ok := h.peers[p]; !ok {
		return false
	}
	select {
	case p.out <- data:
		return true
	default:
		h.dropLocked(p)
		return false
	}
}

func (h *Hub) dropLocked(p *peer) {
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.out)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for p := range h.peers {
		h.dropLocked(p)
	}
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// HandleWebSocket upgrades the connection and greets the peer with the
// current state.
// GET /ws
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	greeting, err := frame("state", h.snapshot())
	if err != nil {
		conn.Close()
		return err
	}

	p := &peer{conn: conn, out: make(chan []byte, peerQueue)}
	p.out <- greeting

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	h.peers[p] = struct{}{}
	count := len(h.peers)
	h.mu.Unlock()
	h.log.Debug().Int("peers", count).Msg("websocket peer connected")

	go h.write(p)
	go h.read(p)
	return nil
}

// read handles requests from p until the connection fails.
func (h *Hub) read(p *peer) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(p)
		h.mu.Unlock()
	}()

	p.conn.SetReadLimit(frameLimit)
	p.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		var req Message
		if err := json.Unmarshal(raw, &req); err != nil || req.Type != "state:get" {
			continue
		}
		data, err := frame("state", h.snapshot())
		if err != nil {
			h.log.Warn().Err(err).Msg("encoding state")
			continue
		}
		h.mu.Lock()
		h.sendLocked(p, data)
		h.mu.Unlock()
	}
}

// write drains p's queue and keeps the connection alive with pings. It
// closes the connection once the queue is closed.
func (h *Hub) write(p *peer) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.out:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func frame(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
