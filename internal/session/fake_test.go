package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/offer-assistant/internal/domain"
)

var errDropped = errors.New("connection dropped")

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		return nil, errDropped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	mu    sync.Mutex
	dials int
	fail  bool
	conns []*fakeConn
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.fail {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) setFail(fail bool) {
	t.mu.Lock()
	t.fail = fail
	t.mu.Unlock()
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) last() *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) add(u Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func (r *recorder) all() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Update, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *recorder) states() []domain.StateChange {
	var out []domain.StateChange
	for _, u := range r.all() {
		if u.Kind == UpdateState {
			out = append(out, u.State)
		}
	}
	return out
}

func (r *recorder) reached(state domain.ConnectionState) bool {
	for _, c := range r.states() {
		if c.To == state {
			return true
		}
	}
	return false
}

var fixedTime = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, tr Transport, mutate func(*Config)) (*Session, *recorder) {
	t.Helper()
	cfg := DefaultConfig("ws://assistant.test/ws/chat")
	cfg.ReconnectDelay = time.Millisecond
	cfg.MaxAttempts = 3
	if mutate != nil {
		mutate(&cfg)
	}

	var n atomic.Int64
	s := New(cfg, tr, testLogger(),
		WithClock(func() time.Time { return fixedTime }),
		WithIDs(func() string { return "msg-" + strconv.FormatInt(n.Add(1), 10) }),
	)
	rec := &recorder{}
	s.Subscribe(rec.add)
	t.Cleanup(s.Close)
	return s, rec
}

func waitForState(t *testing.T, s *Session, want domain.ConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, 2*time.Second, time.Millisecond,
		"state never reached %s, last %s", want, s.State())
}
