package notify

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	peerBuffer   = 64
	readLimit    = 4 << 10
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

type peer struct {
	audience Audience
	out      chan []byte
}

type room struct {
	mu    sync.Mutex
	peers map[*peer]struct{}
}

// Hub is an Emitter that streams notifications to websocket subscribers
// grouped by world.
type Hub struct {
	mu           sync.Mutex
	rooms        map[string]*room
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewHub builds a hub. A zero writeTimeout uses five seconds.
func NewHub(writeTimeout time.Duration) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		rooms: make(map[string]*room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			// Callers authenticate before upgrading.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: writeTimeout,
	}
}

func (h *Hub) room(worldID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[worldID]
	if !ok {
		r = &room{peers: make(map[*peer]struct{})}
		h.rooms[worldID] = r
	}
	return r
}

func (h *Hub) join(worldID string, p *peer) {
	r := h.room(worldID)
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()
}

func (h *Hub) leave(worldID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[worldID]
	if !ok {
		return
	}
	r.mu.Lock()
	delete(r.peers, p)
	empty := len(r.peers) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, worldID)
	}
}

// Subscribers returns how many peers follow a world.
func (h *Hub) Subscribers(worldID string) int {
	h.mu.Lock()
	r, ok := h.rooms[worldID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Emit implements Emitter. Peers whose buffer is full miss the notification.
func (h *Hub) Emit(_ context.Context, n Notification) {
	h.mu.Lock()
	r, ok := h.rooms[n.WorldID]
	h.mu.Unlock()
	if !ok {
		return
	}
	frame, err := json.Marshal(n)
	if err != nil {
		log.Printf("notify: encode %s: %v", n.Type, err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for p := range r.peers {
		if p.audience == AudiencePlayers && n.Audience != AudiencePlayers {
			continue
		}
		select {
		case p.out <- frame:
		default:
			log.Printf("notify: dropped %s for slow subscriber in world %s", n.Type, n.WorldID)
		}
	}
}

// Serve upgrades the request and streams a world's notifications until the
// client disconnects or ctx ends.
func (h *Hub) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, worldID string, audience Audience) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	p := &peer{audience: audience, out: make(chan []byte, peerBuffer)}
	h.join(worldID, p)
	defer h.leave(worldID, p)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Reader: only control frames are expected; any error ends the stream.
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "closing"),
				time.Now().Add(time.Second))
			return nil
		case frame := <-p.out:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return err
			}
		}
	}
}
