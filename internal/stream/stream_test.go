package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/offer-assistant/internal/domain"
	"github.com/ashureev/offer-assistant/internal/offers"
	"github.com/ashureev/offer-assistant/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const packList = "### 1. Pack Fibre 100 Mbps\nInternet illimité\n1900 DZD par mois"

type fakeSource struct {
	mu   sync.Mutex
	subs map[int]func(session.Update)
	next int
	snap session.Snapshot
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subs: make(map[int]func(session.Update)),
		snap: session.Snapshot{State: domain.StateConnected, Status: "connected", MaxAttempts: 5},
	}
}

func (f *fakeSource) Subscribe(fn func(session.Update)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) emit(u session.Update) {
	f.mu.Lock()
	subs := make([]func(session.Update), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func bot(id, text string) domain.BotMessage {
	return domain.BotMessage{
		Header:  domain.Header{ID: id, Timestamp: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)},
		Text:    text,
		Sources: []domain.Source{},
	}
}

type sseEvent struct {
	id    string
	event string
	data  string
}

// readEvent returns the next SSE block that names an event.
func readEvent(br *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.event != "" {
				return ev, nil
			}
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newTestBroadcaster(t *testing.T, src Source, opts Options) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster(src, NewOfferBoard(), opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(b.HandleStream))
	t.Cleanup(srv.Close)
	t.Cleanup(b.Close)
	return b, srv
}

func openStream(t *testing.T, srv *httptest.Server, lastEventID string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestStreamDeliversSessionActivity(t *testing.T) {
	src := newFakeSource()
	b, srv := newTestBroadcaster(t, src, Options{})

	br := openStream(t, srv, "")
	hello, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventConnected, hello.event)
	assert.Contains(t, hello.data, `"status":"connected"`)

	src.emit(session.Update{Kind: session.UpdateState, State: domain.StateChange{
		From: domain.StateConnecting, To: domain.StateConnected,
	}})
	src.emit(session.Update{Kind: session.UpdateMessage, Message: bot("m1", packList)})

	state, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventState, state.event)
	assert.Equal(t, "1", state.id)
	assert.JSONEq(t, `{"from":"connecting","to":"connected","attempt":0,"status":"connected"}`, state.data)

	msg, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventMessage, msg.event)
	assert.Equal(t, "2", msg.id)
	assert.Contains(t, msg.data, `"kind":"bot"`)

	board, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventOffers, board.event)
	assert.Equal(t, "3", board.id)

	var got BoardState
	require.NoError(t, json.Unmarshal([]byte(board.data), &got))
	assert.Equal(t, offers.StrategyNumbered, got.Strategy)
	assert.Equal(t, "m1", got.MessageID)
	require.Len(t, got.Offers, 1)
	assert.Equal(t, "Pack Fibre 100 Mbps", got.Offers[0].Title)

	assert.Equal(t, got, b.Board().State())
}

func TestStreamReplaysMissedEvents(t *testing.T) {
	src := newFakeSource()
	b, srv := newTestBroadcaster(t, src, Options{ReplaySize: 10})

	b.Publish(EventMessage, map[string]string{"text": "a"})
	b.Publish(EventMessage, map[string]string{"text": "b"})
	b.Publish(EventMessage, map[string]string{"text": "c"})

	br := openStream(t, srv, "1")

	var ids []string
	for i := 0; i < 2; i++ {
		ev, err := readEvent(br)
		require.NoError(t, err)
		ids = append(ids, ev.id)
	}
	assert.Equal(t, []string{"2", "3"}, ids)

	hello, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventConnected, hello.event)
	assert.Contains(t, hello.data, `"event_id":3`)
}

func TestStreamKeepAlive(t *testing.T) {
	_, srv := newTestBroadcaster(t, newFakeSource(), Options{KeepAlive: 10 * time.Millisecond})

	br := openStream(t, srv, "")
	_, err := readEvent(br)
	require.NoError(t, err)

	ping, err := readEvent(br)
	require.NoError(t, err)
	assert.Equal(t, EventPing, ping.event)
}

func TestClearedResetsBoard(t *testing.T) {
	src := newFakeSource()
	b, srv := newTestBroadcaster(t, src, Options{})

	br := openStream(t, srv, "")
	_, err := readEvent(br)
	require.NoError(t, err)

	src.emit(session.Update{Kind: session.UpdateMessage, Message: bot("m1", packList)})
	src.emit(session.Update{Kind: session.UpdateCleared})

	var types []string
	for i := 0; i < 4; i++ {
		ev, err := readEvent(br)
		require.NoError(t, err)
		types = append(types, ev.event)
	}
	assert.Equal(t, []string{EventMessage, EventOffers, EventCleared, EventOffers}, types)
	assert.Empty(t, b.Board().State().Offers)
}

func TestOfferBoardKeepsPreviousSet(t *testing.T) {
	board := NewOfferBoard()

	first, changed := board.Apply(bot("m1", packList))
	require.True(t, changed)
	require.Len(t, first.Offers, 1)

	same, changed := board.Apply(bot("m2", "Bonjour, comment puis-je vous aider ?"))
	assert.False(t, changed)
	assert.Equal(t, first, same)

	next, changed := board.Apply(bot("m3", "Je recommande l'offre: Pack Pro 50GB"))
	require.True(t, changed)
	assert.Equal(t, "m3", next.MessageID)
	assert.Equal(t, offers.StrategyRecommended, next.Strategy)
	assert.True(t, next.Offers[0].Recommended())

	board.Reset()
	assert.Empty(t, board.State().Offers)
	assert.NotNil(t, board.State().Offers)
}

func TestOfferBoardApplyLatest(t *testing.T) {
	board := NewOfferBoard()
	log := []domain.Message{
		bot("m1", packList),
		domain.ErrorMessage{Header: domain.Header{ID: "m2"}, Text: "Erreur: x"},
	}

	state, changed := board.ApplyLatest(log)
	require.True(t, changed)
	assert.Equal(t, "m1", state.MessageID)

	_, changed = board.ApplyLatest(nil)
	assert.False(t, changed)
}

func TestOfferBoardStateIsCopy(t *testing.T) {
	board := NewOfferBoard()
	_, _ = board.Apply(bot("m1", packList))

	s := board.State()
	s.Offers[0].Title = "modifié"
	assert.Equal(t, "Pack Fibre 100 Mbps", board.State().Offers[0].Title)
}

func TestReplayQueueEvicts(t *testing.T) {
	q := NewReplayQueue(2)
	for i := int64(1); i <= 3; i++ {
		q.Enqueue(Event{ID: i, Type: EventMessage})
	}

	assert.Equal(t, 2, q.Len())
	missed := q.Since(0)
	require.Len(t, missed, 2)
	assert.Equal(t, int64(2), missed[0].ID)
	assert.Equal(t, int64(3), missed[1].ID)
	assert.Empty(t, q.Since(3))
}

type noFlushWriter struct {
	header http.Header
	code   int
}

func (w *noFlushWriter) Header() http.Header         { return w.header }
func (w *noFlushWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *noFlushWriter) WriteHeader(code int)        { w.code = code }

func TestStreamRequiresFlusher(t *testing.T) {
	b := NewBroadcaster(newFakeSource(), NewOfferBoard(), Options{}, nil)
	defer b.Close()

	w := &noFlushWriter{header: http.Header{}}
	b.HandleStream(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusInternalServerError, w.code)
}

func TestPublishUnmarshalable(t *testing.T) {
	b := NewBroadcaster(newFakeSource(), NewOfferBoard(), Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer b.Close()

	b.Publish(EventMessage, func() {})
	assert.Equal(t, 0, b.queue.Len())
}
