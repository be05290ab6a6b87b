package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sawt-ai/sawt/internal/call"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard is served from a different origin than the API.
		return true
	},
}

// Hub fans call events out to WebSocket subscribers, keyed by session. A
// slow subscriber is dropped rather than blocking the turn pipeline.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	logger *zap.Logger
}

type subscriber struct {
	out  chan call.Event
	done chan struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), logger: logger}
}

// Publish delivers an event to every subscriber of its session. Never
// blocks.
func (h *Hub) Publish(ev call.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.Session] {
		select {
		case sub.out <- ev:
		default:
			// Backed-up subscriber; close it out.
			close(sub.done)
			delete(h.subs[ev.Session], sub)
		}
	}
}

// Serve upgrades the request and streams the session's events until the
// client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := &subscriber{out: make(chan call.Event, 16), done: make(chan struct{})}
	h.add(session, sub)
	defer h.remove(session, sub)

	// Reader goroutine: the feed is write-only, reads only detect close.
	readerGone := make(chan struct{})
	go func() {
		defer close(readerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-sub.out:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-sub.done:
			return
		case <-readerGone:
			return
		}
	}
}

func (h *Hub) add(session string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[session] == nil {
		h.subs[session] = make(map[*subscriber]struct{})
	}
	h.subs[session][sub] = struct{}{}
}

func (h *Hub) remove(session string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[session]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, session)
		}
	}
}
