// Package session owns the single realtime connection to the assistant
// backend: the connection state machine, the reconnect policy, the frame
// protocol and the ordered message log.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/offer-assistant/internal/domain"
)

// Config holds the connection and reconnect policy.
type Config struct {
	URL            string
	MaxAttempts    int
	ReconnectDelay time.Duration
	AutoReconnect  bool
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultConfig returns the default policy for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		MaxAttempts:    5,
		ReconnectDelay: 3 * time.Second,
		AutoReconnect:  true,
		DialTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
	}
}

// UpdateKind discriminates session notifications.
type UpdateKind int

const (
	// UpdateState carries a state transition.
	UpdateState UpdateKind = iota + 1
	// UpdateMessage carries a message appended to the log.
	UpdateMessage
	// UpdateCleared reports that the log was emptied.
	UpdateCleared
)

// Update is delivered to subscribers in the order changes happened.
type Update struct {
	Kind    UpdateKind
	State   domain.StateChange
	Message domain.Message
}

// Snapshot is a consistent view of the session scalars.
type Snapshot struct {
	State       domain.ConnectionState `json:"state"`
	Status      string                 `json:"status"`
	Attempt     int                    `json:"attempt"`
	MaxAttempts int                    `json:"max_attempts"`
	Pending     bool                   `json:"pending"`
	LastError   string                 `json:"last_error,omitempty"`
}

// Option customizes a Session.
type Option func(*Session)

// WithClock sets the timestamp source for new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDs sets the message ID generator.
func WithIDs(next func() string) Option {
	return func(s *Session) { s.newID = next }
}

// Session is one logical connection lifecycle to the assistant backend.
// All methods are safe for concurrent use. Subscribers are called from a
// single dispatcher goroutine and may call back into the Session.
type Session struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu            sync.Mutex
	state         domain.ConnectionState
	attempt       int
	autoReconnect bool
	pending       bool
	lastErr       error
	conn          Conn
	gen           uint64
	timer         *time.Timer
	cancelDial    context.CancelFunc
	log           []domain.Message
	closed        bool

	writeMu sync.Mutex
	wg      sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]func(Update)
	nextSub int
	queue   []Update
	notify  chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// New creates a disconnected Session. Call Connect to open it and Close to
// release it.
func New(cfg Config, transport Transport, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultConfig("").DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig("").WriteTimeout
	}
	s := &Session{
		cfg:           cfg,
		transport:     transport,
		logger:        logger.With("component", "session"),
		now:           time.Now,
		newID:         uuid.NewString,
		autoReconnect: cfg.AutoReconnect,
		subs:          make(map[int]func(Update)),
		notify:        make(chan struct{}, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.dispatch()
	return s
}

// Connect opens the transport. It is a no-op while connecting, connected
// or failed. While a reconnect is scheduled it dials immediately instead of
// waiting for the delay.
func (s *Session) Connect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch s.state {
	case domain.StateConnecting, domain.StateConnected, domain.StateFailed:
		return
	case domain.StateReconnecting:
		s.stopTimerLocked()
		s.attempt++
	}
	s.dialLocked()
}

// Disconnect closes the transport and disables automatic reconnection.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.autoReconnect = false
	conn := s.teardownLocked()
	if s.state != domain.StateFailed {
		s.setStateLocked(domain.StateDisconnected, nil)
	}
	s.mu.Unlock()

	s.closeConn(conn)
}

// Reconnect drops any current connection, resets the attempt counter,
// re-enables automatic reconnection and dials again. It is the only way
// out of the failed state.
func (s *Session) Reconnect() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attempt = 0
	s.autoReconnect = true
	s.lastErr = nil
	conn := s.teardownLocked()
	s.setStateLocked(domain.StateDisconnected, nil)
	s.dialLocked()
	s.mu.Unlock()

	s.closeConn(conn)
}

// Send posts a user message. It returns false, without touching the log,
// when the session is not connected or text is blank. On success the
// message is appended to the log before it is transmitted.
func (s *Session) Send(text string) bool {
	s.mu.Lock()
	if s.state != domain.StateConnected || s.conn == nil {
		s.lastErr = ErrNotConnected
		s.mu.Unlock()
		s.logger.Warn("Send rejected", "error", ErrNotConnected)
		return false
	}
	if strings.TrimSpace(text) == "" {
		s.lastErr = ErrEmptyMessage
		s.mu.Unlock()
		return false
	}
	data, err := encodeFrame(FrameUserMessage, userMessageData{Message: text})
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	s.appendLocked(domain.UserMessage{Header: s.headerLocked(), Text: text})
	s.pending = true
	s.lastErr = nil
	conn, gen := s.conn, s.gen
	s.mu.Unlock()

	return s.transmit(conn, gen, FrameUserMessage, data)
}

// SendBatchQuestions posts a questionnaire payload. The answers come back
// as a batch result message. offerName defaults to DefaultOfferName.
func (s *Session) SendBatchQuestions(payload json.RawMessage, offerName string) bool {
	if offerName == "" {
		offerName = DefaultOfferName
	}

	s.mu.Lock()
	if s.state != domain.StateConnected || s.conn == nil {
		s.lastErr = ErrNotConnected
		s.mu.Unlock()
		return false
	}
	if !json.Valid(payload) {
		s.lastErr = ErrInvalidPayload
		s.mu.Unlock()
		return false
	}
	data, err := encodeFrame(FrameBatchQuestions, batchQuestionsData{Payload: payload, OfferName: offerName})
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	s.pending = true
	s.lastErr = nil
	conn, gen := s.conn, s.gen
	s.mu.Unlock()

	return s.transmit(conn, gen, FrameBatchQuestions, data)
}

// HandleFrame applies one inbound frame to the session. Malformed frames
// never fail: they are logged and turned into an error message.
func (s *Session) HandleFrame(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyFrameLocked(raw)
}

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a short human readable connection status.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Pending reports whether a reply is awaited.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastError returns the most recent error, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Snapshot returns the session scalars in one consistent read.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:       s.state,
		Status:      s.statusLocked(),
		Attempt:     s.attempt,
		MaxAttempts: s.cfg.MaxAttempts,
		Pending:     s.pending,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Messages returns a copy of the message log in arrival order.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.log))
	copy(out, s.log)
	return out
}

// ClearMessages starts a new conversation: the log and the last error are
// cleared.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.lastErr = nil
	s.emit(Update{Kind: UpdateCleared})
}

// Subscribe registers fn for session updates and returns a function that
// removes it.
func (s *Session) Subscribe(fn func(Update)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Close disconnects and stops every background goroutine. Pending updates
// are delivered before Close returns. The Session cannot be reused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.autoReconnect = false
	conn := s.teardownLocked()
	if s.state != domain.StateFailed {
		s.setStateLocked(domain.StateDisconnected, nil)
	}
	s.closed = true
	s.mu.Unlock()

	s.closeConn(conn)
	s.wg.Wait()
	close(s.quit)
	<-s.done
}

// dialLocked starts a new connection attempt in the background.
func (s *Session) dialLocked() {
	s.gen++
	gen := s.gen
	s.setStateLocked(domain.StateConnecting, nil)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DialTimeout)
	s.cancelDial = cancel
	s.wg.Add(1)
	go s.dial(ctx, cancel, gen)
}

func (s *Session) dial(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer s.wg.Done()
	defer cancel()

	s.logger.Info("Connecting to assistant", "url", s.cfg.URL, "attempt", s.attemptSnapshot())
	conn, err := s.transport.Dial(ctx, s.cfg.URL)

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		if conn != nil {
			s.closeConn(conn)
		}
		return
	}
	s.cancelDial = nil
	if err != nil {
		s.logger.Warn("Dial failed", "error", err, "url", s.cfg.URL)
		s.dropLocked(&TransportError{Op: "dial", Err: err})
		s.mu.Unlock()
		return
	}
	s.conn = conn
	s.attempt = 0
	s.lastErr = nil
	s.setStateLocked(domain.StateConnected, nil)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.readLoop(conn, gen)
}

func (s *Session) readLoop(conn Conn, gen uint64) {
	defer s.wg.Done()
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			s.mu.Lock()
			current := gen == s.gen && !s.closed
			if current {
				s.conn = nil
				s.logger.Warn("Connection dropped", "error", err)
				s.dropLocked(&TransportError{Op: "read", Err: err})
			}
			s.mu.Unlock()
			if current {
				s.closeConn(conn)
			}
			return
		}

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.applyFrameLocked(data)
		s.mu.Unlock()
	}
}

// transmit writes an encoded frame. Writes are serialized across callers.
func (s *Session) transmit(conn Conn, gen uint64, event string, data []byte) bool {
	s.writeMu.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	err := conn.Write(ctx, data)
	cancel()
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn("Failed to send frame", "event", event, "error", err)
		s.mu.Lock()
		if gen == s.gen {
			s.pending = false
			s.lastErr = &TransportError{Op: "write", Err: err}
		}
		s.mu.Unlock()
		return false
	}
	s.logger.Debug("Frame sent", "event", event, "bytes", len(data))
	return true
}

// dropLocked handles a lost or failed connection according to the
// reconnect policy.
func (s *Session) dropLocked(err error) {
	s.lastErr = err
	s.pending = false
	if !s.autoReconnect {
		s.setStateLocked(domain.StateDisconnected, err)
		return
	}
	s.setStateLocked(domain.StateReconnecting, err)
	if s.attempt >= s.cfg.MaxAttempts {
		s.lastErr = fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, s.attempt, err)
		s.logger.Error("Giving up on assistant connection", "attempts", s.attempt, "error", err)
		s.setStateLocked(domain.StateFailed, s.lastErr)
		return
	}

	gen := s.gen
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.cfg.ReconnectDelay, func() { s.retry(gen) })
}

// retry fires when the reconnect delay elapses.
func (s *Session) retry(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed || s.state != domain.StateReconnecting {
		return
	}
	s.timer = nil
	s.attempt++
	s.dialLocked()
}

// teardownLocked invalidates the current connection generation and returns
// the detached connection, if any, for the caller to close after unlocking.
func (s *Session) teardownLocked() Conn {
	s.stopTimerLocked()
	if s.cancelDial != nil {
		s.cancelDial()
		s.cancelDial = nil
	}
	s.gen++
	s.pending = false
	conn := s.conn
	s.conn = nil
	return conn
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) closeConn(conn Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug("Failed to close connection", "error", err)
	}
}

func (s *Session) applyFrameLocked(raw []byte) {
	f, err := decodeFrame(raw)
	if err != nil {
		s.decodeFailedLocked(err)
		return
	}

	switch f.Event {
	case FrameBotReply:
		var d botReplyData
		if err := decodeData(f, &d); err != nil {
			s.decodeFailedLocked(err)
			return
		}
		sources := make([]domain.Source, 0, len(d.Sources))
		for _, src := range d.Sources {
			sources = append(sources, domain.Source(src))
		}
		s.pending = false
		s.appendLocked(domain.BotMessage{Header: s.headerLocked(), Text: d.Message, Sources: sources})

	case FrameError:
		var d errorData
		if err := decodeData(f, &d); err != nil {
			s.decodeFailedLocked(err)
			return
		}
		s.pending = false
		s.lastErr = &ProtocolError{Message: d.Message}
		s.logger.Warn("Backend reported an error", "message", d.Message)
		s.appendLocked(domain.ErrorMessage{Header: s.headerLocked(), Text: ProtocolErrorPrefix + d.Message})

	case FrameBatchAnswers:
		s.pending = false
		s.appendLocked(domain.BatchResult{Header: s.headerLocked(), Payload: append(json.RawMessage(nil), f.Data...)})

	default:
		s.logger.Debug("Ignoring unknown frame", "event", f.Event)
	}
}

func (s *Session) decodeFailedLocked(err error) {
	s.logger.Error("Failed to decode frame", "error", err)
	s.pending = false
	s.lastErr = err
	s.appendLocked(domain.ErrorMessage{Header: s.headerLocked(), Text: DecodeFailureText})
}

func (s *Session) appendLocked(m domain.Message) {
	s.log = append(s.log, m)
	s.emit(Update{Kind: UpdateMessage, Message: m})
}

func (s *Session) headerLocked() domain.Header {
	return domain.Header{ID: s.newID(), Timestamp: s.now()}
}

func (s *Session) setStateLocked(to domain.ConnectionState, err error) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.logger.Info("Session state changed", "from", from, "to", to, "attempt", s.attempt)
	s.emit(Update{Kind: UpdateState, State: domain.StateChange{From: from, To: to, Attempt: s.attempt, Err: err}})
}

func (s *Session) statusLocked() string {
	if s.state == domain.StateReconnecting {
		return fmt.Sprintf("reconnecting (%d/%d)", s.attempt+1, s.cfg.MaxAttempts)
	}
	return s.state.String()
}

func (s *Session) attemptSnapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// emit queues an update for the dispatcher. It never blocks.
func (s *Session) emit(u Update) {
	s.subMu.Lock()
	s.queue = append(s.queue, u)
	s.subMu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) dispatch() {
	defer close(s.done)
	for {
		select {
		case <-s.notify:
			s.deliver()
		case <-s.quit:
			s.deliver()
			return
		}
	}
}

func (s *Session) deliver() {
	for {
		s.subMu.Lock()
		if len(s.queue) == 0 {
			s.subMu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		ids := make([]int, 0, len(s.subs))
		for id := range s.subs {
			ids = append(ids, id)
		}
		subs := make([]func(Update), 0, len(ids))
		slices.Sort(ids)
		for _, id := range ids {
			subs = append(subs, s.subs[id])
		}
		s.subMu.Unlock()

		for _, u := range batch {
			for _, fn := range subs {
				fn(u)
			}
		}
	}
}
