package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"genescore/internal"
	"genescore/internal/refresh"

	"github.com/gin-gonic/gin"
)

// SSEHub fans refresh events out to Server-Sent Events clients
type SSEHub struct {
	clients    map[chan refresh.Event]bool
	clientsMu  sync.RWMutex
	register   chan chan refresh.Event
	unregister chan chan refresh.Event
	broadcast  chan refresh.Event
	done       chan struct{}
	closeOnce  sync.Once
	heartbeat  time.Duration
	logger     *internal.Logger
}

// NewSSEHub creates a hub and starts its dispatch loop
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.DefaultLogger.With("SSE")
	}
	hub := &SSEHub{
		clients:    make(map[chan refresh.Event]bool),
		register:   make(chan chan refresh.Event, 10),
		unregister: make(chan chan refresh.Event, 10),
		broadcast:  make(chan refresh.Event, 100),
		done:       make(chan struct{}),
		heartbeat:  30 * time.Second,
		logger:     logger,
	}
	go hub.run()
	return hub
}

func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			h.clientsMu.Lock()
			for ch := range h.clients {
				delete(h.clients, ch)
				close(ch)
			}
			h.clientsMu.Unlock()
			return

		case ch := <-h.register:
			h.clientsMu.Lock()
			h.clients[ch] = true
			h.logger.Debug("client registered (total clients: %d)", len(h.clients))
			h.clientsMu.Unlock()

		case ch := <-h.unregister:
			h.clientsMu.Lock()
			if h.clients[ch] {
				delete(h.clients, ch)
				close(ch)
			}
			h.logger.Debug("client unregistered (remaining clients: %d)", len(h.clients))
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for ch := range h.clients {
				select {
				case ch <- event:
				default:
					h.logger.Warn("client channel full, skipping %s event", event.Type)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Publish queues an event for every connected client. It never blocks, so
// it can be handed to the refresh coordinator as its event hook.
func (h *SSEHub) Publish(event refresh.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping %s event", event.Type)
	}
}

// Close disconnects every client and stops the hub
func (h *SSEHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients
func (h *SSEHub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleSSE streams refresh events until the client disconnects
func (h *SSEHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := make(chan refresh.Event, 10)
	select {
	case h.register <- ch:
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event hub registration failed"})
		return
	}
	defer func() {
		select {
		case h.unregister <- ch:
		case <-h.done:
		}
	}()

	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event: %v", err)
				return true
			}
			c.SSEvent(string(event.Type), string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("ping", `{"status":"alive","timestamp":"`+time.Now().UTC().Format(time.RFC3339)+`"}`)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
