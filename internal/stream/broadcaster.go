// Package stream fans session activity out to browser clients over
// Server-Sent Events and keeps the current offer board up to date.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/session"
)

// SSE event types.
const (
	EventConnected = "connected"
	EventState     = "state"
	EventMessage   = "message"
	EventOffers    = "offers"
	EventCleared   = "cleared"
	EventPing      = "ping"
)

// Source is the session surface the broadcaster observes.
type Source interface {
	Subscribe(fn func(session.Update)) func()
	Snapshot() session.Snapshot
}

// Options tunes the SSE stream.
type Options struct {
	KeepAlive  time.Duration
	Retry      time.Duration
	ReplaySize int
}

// DefaultOptions returns the default stream settings.
func DefaultOptions() Options {
	return Options{KeepAlive: 10 * time.Second, Retry: 5 * time.Second, ReplaySize: 100}
}

type statePayload struct {
	From    domain.ConnectionState `json:"from"`
	To      domain.ConnectionState `json:"to"`
	Attempt int                    `json:"attempt"`
	Status  string                 `json:"status"`
	Error   string                 `json:"error,omitempty"`
}

type client struct {
	id      int64
	w       io.Writer
	flusher http.Flusher
	lastID  int64
	closed  bool
	mu      sync.Mutex
}

// Broadcaster turns session updates into SSE events, records them for
// replay and writes them to every connected client.
type Broadcaster struct {
	src    Source
	board  *OfferBoard
	queue  *ReplayQueue
	opts   Options
	logger *slog.Logger

	updates     chan session.Update
	unsubscribe func()

	clientsMu sync.RWMutex
	clients   map[int64]*client

	counterMu sync.Mutex
	eventID   int64
	clientID  int64

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewBroadcaster subscribes to src and starts the broadcast loop. Close
// stops it.
func NewBroadcaster(src Source, board *OfferBoard, opts Options, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = def.KeepAlive
	}
	if opts.Retry <= 0 {
		opts.Retry = def.Retry
	}
	b := &Broadcaster{
		src:     src,
		board:   board,
		queue:   NewReplayQueue(opts.ReplaySize),
		opts:    opts,
		logger:  logger.With("component", "stream"),
		updates: make(chan session.Update, 64),
		clients: make(map[int64]*client),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.unsubscribe = src.Subscribe(func(u session.Update) {
		select {
		case b.updates <- u:
		case <-b.done:
		}
	})
	go b.broadcastLoop()
	return b
}

// Board returns the offer board maintained by the broadcaster.
func (b *Broadcaster) Board() *OfferBoard {
	return b.board
}

// Close stops the broadcast loop and ends every open stream.
func (b *Broadcaster) Close() {
	b.once.Do(func() {
		b.unsubscribe()
		close(b.done)
		<-b.stopped
	})
}

func (b *Broadcaster) broadcastLoop() {
	defer close(b.stopped)
	b.logger.Info("Broadcast loop started")
	for {
		select {
		case <-b.done:
			b.logger.Info("Broadcast loop shutting down")
			return
		case u := <-b.updates:
			b.handleUpdate(u)
		}
	}
}

func (b *Broadcaster) handleUpdate(u session.Update) {
	switch u.Kind {
	case session.UpdateState:
		p := statePayload{
			From:    u.State.From,
			To:      u.State.To,
			Attempt: u.State.Attempt,
			Status:  b.src.Snapshot().Status,
		}
		if u.State.Err != nil {
			p.Error = u.State.Err.Error()
		}
		b.Publish(EventState, p)

	case session.UpdateMessage:
		b.Publish(EventMessage, u.Message)
		if bot, ok := u.Message.(domain.BotMessage); ok {
			if state, changed := b.board.Apply(bot); changed {
				b.logger.Info("Offer board updated", "strategy", state.Strategy, "count", len(state.Offers))
				b.Publish(EventOffers, state)
			}
		}

	case session.UpdateCleared:
		b.board.Reset()
		b.Publish(EventCleared, struct{}{})
		b.Publish(EventOffers, b.board.State())
	}
}

// Publish records an event and sends it to every connected client.
func (b *Broadcaster) Publish(eventType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("Failed to marshal SSE event", "error", err, "event", eventType)
		return
	}

	b.counterMu.Lock()
	b.eventID++
	ev := Event{ID: b.eventID, Type: eventType, Data: data, Timestamp: time.Now()}
	b.counterMu.Unlock()

	b.queue.Enqueue(ev)

	b.clientsMu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clientsMu.RUnlock()

	for _, c := range clients {
		b.sendTo(c, ev)
	}
}

// sendTo writes ev to one client. Events the client already has are
// skipped.
func (b *Broadcaster) sendTo(c *client, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.writeLocked(c, ev)
}

func (b *Broadcaster) writeLocked(c *client, ev Event) {
	if c.closed || ev.ID <= c.lastID {
		return
	}
	if err := writeSSEWithID(c.w, ev.ID, ev.Type, string(ev.Data)); err != nil {
		b.logger.Warn("Failed to write SSE event", "error", err, "conn_id", c.id)
		return
	}
	c.flusher.Flush()
	c.lastID = ev.ID
}

// HandleStream serves GET /api/events. Clients resuming with Last-Event-ID
// (header or lastEventId query parameter) first receive the events they
// missed.
func (b *Broadcaster) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", b.opts.Retry.Milliseconds()); err != nil {
		b.logger.Warn("Failed to write SSE retry header", "error", err)
		return
	}
	flusher.Flush()

	b.counterMu.Lock()
	b.clientID++
	c := &client{id: b.clientID, w: w, flusher: flusher, lastID: lastEventID}
	b.counterMu.Unlock()

	// Hold the client lock until the replay is written so that live events
	// queue up behind it.
	c.mu.Lock()
	b.clientsMu.Lock()
	b.clients[c.id] = c
	b.clientsMu.Unlock()

	defer func() {
		b.clientsMu.Lock()
		delete(b.clients, c.id)
		b.clientsMu.Unlock()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		b.logger.Info("SSE connection closed", "conn_id", c.id)
	}()

	missed := b.queue.Since(lastEventID)
	if lastEventID > 0 && len(missed) > 0 {
		b.logger.Info("Sending missed events", "conn_id", c.id, "count", len(missed))
		for _, ev := range missed {
			b.writeLocked(c, ev)
		}
	}

	hello, err := json.Marshal(map[string]any{
		"status":   "connected",
		"event_id": c.lastID,
		"session":  b.src.Snapshot(),
		"offers":   b.board.State(),
	})
	if err != nil {
		c.mu.Unlock()
		b.logger.Error("Failed to marshal SSE connected event", "error", err)
		return
	}
	if err := writeSSE(w, EventConnected, string(hello)); err != nil {
		c.mu.Unlock()
		b.logger.Warn("Failed to write SSE connected event", "error", err)
		return
	}
	flusher.Flush()
	c.mu.Unlock()

	b.logger.Info("SSE connection established", "conn_id", c.id, "reconnect", lastEventID > 0)

	keepalive := time.NewTicker(b.opts.KeepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-b.done:
			return
		case <-keepalive.C:
			c.mu.Lock()
			if err := writeSSE(w, EventPing, `{"status":"alive"}`); err != nil {
				c.mu.Unlock()
				b.logger.Warn("Failed to write SSE keepalive ping", "error", err, "conn_id", c.id)
				return
			}
			flusher.Flush()
			c.mu.Unlock()
		}
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
