package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsQueueSize  = 64
)

// WSMessage is the frame sent to subscribers for every committed event.
type WSMessage struct {
	Type  string      `json:"type"`
	Event model.Event `json:"event"`
}

// subscriber is one WebSocket connection. Empty filters match everything.
type subscriber struct {
	conn    *websocket.Conn
	send    chan []byte
	account string
	engine  string
}

func (s *subscriber) wants(ev model.Event) bool {
	if s.account != "" && ev.Account != s.account {
		return false
	}
	return s.engine == "" || ev.Engine == s.engine
}

type delivery struct {
	ev   model.Event
	data []byte
}

// WSHub streams ledger events to WebSocket subscribers. It implements
// events.Emitter; slow subscribers are disconnected instead of blocking the
// engines.
type WSHub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	events  chan delivery
	join    chan *subscriber
	leave   chan *subscriber
	stopped chan struct{}
}

// NewWSHub creates a hub. Run must be started before clients connect.
func NewWSHub() *WSHub {
	return &WSHub{
		subs:    make(map[*subscriber]struct{}),
		events:  make(chan delivery, 256),
		join:    make(chan *subscriber),
		leave:   make(chan *subscriber),
		stopped: make(chan struct{}),
	}
}

// Run dispatches events until ctx is done, then disconnects everyone.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for sub := range h.subs {
				h.drop(sub)
			}
			h.mu.Unlock()
			return

		case sub := <-h.join:
			h.mu.Lock()
			h.subs[sub] = struct{}{}
			h.setGauge()
			h.mu.Unlock()
			slog.Info("ws subscriber joined", "account", sub.account, "engine", sub.engine)

		case sub := <-h.leave:
			h.mu.Lock()
			h.drop(sub)
			h.mu.Unlock()

		case d := <-h.events:
			h.mu.Lock()
			for sub := range h.subs {
				if !sub.wants(d.ev) {
					continue
				}
				select {
				case sub.send <- d.data:
				default:
					slog.Warn("ws subscriber too slow, disconnecting", "account", sub.account)
					h.drop(sub)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes sub and closes its queue. Caller holds mu.
func (h *WSHub) drop(sub *subscriber) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	h.setGauge()
}

// setGauge publishes the subscriber count. Caller holds mu.
func (h *WSHub) setGauge() {
	metrics.WebSocketClients.Set(float64(len(h.subs)))
}

// Clients returns the number of connected subscribers.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit queues ev for delivery. Events are dropped when the queue is full.
func (h *WSHub) Emit(_ context.Context, ev model.Event) {
	data, err := json.Marshal(WSMessage{Type: "ledger_event", Event: ev})
	if err != nil {
		slog.Error("ws marshal failed", "event_id", ev.ID, "err", err)
		return
	}
	select {
	case h.events <- delivery{ev: ev, data: data}:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS upgrades GET /api/v1/ws?account=&engine= and subscribes the
// connection to matching events.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sub := &subscriber{send: make(chan []byte, wsQueueSize), engine: r.URL.Query().Get("engine")}
	if v := r.URL.Query().Get("account"); v != "" {
		acct, err := model.ParseAccount(v)
		if err != nil {
			writeError(w, err)
			return
		}
		sub.account = acct.Hex()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	sub.conn = conn

	select {
	case h.join <- sub:
	case <-h.stopped:
		conn.Close()
		return
	}

	go h.writePump(sub)
	go h.readPump(sub)
}

// readPump discards client frames and notices disconnects.
func (h *WSHub) readPump(sub *subscriber) {
	defer func() {
		select {
		case h.leave <- sub:
		case <-h.stopped:
		}
	}()
	sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump owns all writes on the connection.
func (h *WSHub) writePump(sub *subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
