package longpoll

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkcoursebot/core/vk"
)

type fakeGateway struct {
	calls atomic.Int64
	next  vk.PollServer
	err   error
}

func (g *fakeGateway) AcquirePollServer(ctx context.Context) (vk.PollServer, error) {
	g.calls.Add(1)
	return g.next, g.err
}

type acquireResult struct {
	srv vk.PollServer
	err error
}

// scriptedGateway answers AcquirePollServer calls from a fixed script,
// repeating the last entry once exhausted.
type scriptedGateway struct {
	mu     sync.Mutex
	calls  int
	script []acquireResult
}

func (g *scriptedGateway) AcquirePollServer(ctx context.Context) (vk.PollServer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i >= len(g.script) {
		i = len(g.script) - 1
	}
	return g.script[i].srv, g.script[i].err
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestPoller(t *testing.T, gw *fakeGateway, handler http.HandlerFunc) (*Poller, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New(Options{
		Gateway:     gw,
		WaitSeconds: 1,
		Backoff:     time.Millisecond,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return p, srv
}

func TestParseCheckResponseVariants(t *testing.T) {
	res, err := parseCheckResponse([]byte(`{"ts":"21","updates":[{"type":"message_new","object":{}},{"type":"message_reply","object":{}}]}`))
	require.NoError(t, err)
	events, ok := res.(Events)
	require.True(t, ok)
	assert.Equal(t, "21", events.Cursor)
	assert.Len(t, events.Updates, 2)

	// failed=1 delivers a numeric replacement cursor
	res, err = parseCheckResponse([]byte(`{"failed":1,"ts":30}`))
	require.NoError(t, err)
	rec, ok := res.(Recoverable)
	require.True(t, ok)
	assert.Equal(t, KindCursorStale, rec.Kind)
	assert.Equal(t, "30", rec.Cursor)

	res, err = parseCheckResponse([]byte(`{"failed":2}`))
	require.NoError(t, err)
	assert.Equal(t, KindKeyExpired, res.(Recoverable).Kind)

	res, err = parseCheckResponse([]byte(`{"failed":3}`))
	require.NoError(t, err)
	assert.Equal(t, KindKeyCursorExpired, res.(Recoverable).Kind)

	_, err = parseCheckResponse([]byte(`{"failed":4}`))
	require.Error(t, err)
}

func TestRepairCursorStaleKeepsKeyAndServer(t *testing.T) {
	gw := &fakeGateway{}
	p, srv := newTestPoller(t, gw, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"failed":1,"ts":30}`))
	})
	p.setDescriptor(vk.PollServer{Key: "k1", Server: srv.URL, TS: "10"})

	res := p.poll(context.Background())
	rec, ok := res.(Recoverable)
	require.True(t, ok)
	require.NoError(t, p.repair(context.Background(), rec))

	desc := p.Descriptor()
	assert.Equal(t, "30", desc.TS)
	assert.Equal(t, "k1", desc.Key)
	assert.Equal(t, srv.URL, desc.Server)
	assert.Equal(t, int64(0), gw.calls.Load(), "cursor repair must not hit the gateway")
}

func TestRepairKeyExpiredKeepsCursor(t *testing.T) {
	gw := &fakeGateway{next: vk.PollServer{Key: "k2", Server: "https://lp2.vk.com", TS: "99"}}
	p, _ := newTestPoller(t, gw, func(w http.ResponseWriter, r *http.Request) {})
	p.setDescriptor(vk.PollServer{Key: "k1", Server: "https://lp1.vk.com", TS: "10"})

	require.NoError(t, p.repair(context.Background(), Recoverable{Kind: KindKeyExpired}))

	desc := p.Descriptor()
	assert.Equal(t, "k2", desc.Key, "key must be freshly acquired")
	assert.Equal(t, "https://lp2.vk.com", desc.Server)
	assert.Equal(t, "10", desc.TS, "cursor must stay unchanged")
	assert.Equal(t, int64(1), gw.calls.Load())
}

func TestRepairKeyCursorExpiredKeepsServer(t *testing.T) {
	gw := &fakeGateway{next: vk.PollServer{Key: "k2", Server: "https://lp2.vk.com", TS: "99"}}
	p, _ := newTestPoller(t, gw, func(w http.ResponseWriter, r *http.Request) {})
	p.setDescriptor(vk.PollServer{Key: "k1", Server: "https://lp1.vk.com", TS: "10"})

	require.NoError(t, p.repair(context.Background(), Recoverable{Kind: KindKeyCursorExpired}))

	desc := p.Descriptor()
	assert.Equal(t, "k2", desc.Key)
	assert.Equal(t, "99", desc.TS)
	assert.Equal(t, "https://lp1.vk.com", desc.Server, "server must stay unchanged")
}

func TestRunForwardsOnlyMessageNew(t *testing.T) {
	var requests atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) > 1 {
			cancel()
			w.Write([]byte(`{"ts":"12","updates":[]}`))
			return
		}
		assert.Equal(t, "a_check", r.URL.Query().Get("act"))
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		assert.Equal(t, "11", r.URL.Query().Get("ts"))
		w.Write([]byte(`{"ts":"12","updates":[
			{"type":"message_new","object":{"message":{"from_id":42,"text":"start"}}},
			{"type":"message_typing_state","object":{}}
		]}`))
	})

	gw := &fakeGateway{next: vk.PollServer{Key: "k1", Server: srv.URL + "/poll", TS: "11"}}
	p, err := New(Options{Gateway: gw, WaitSeconds: 1, Backoff: time.Millisecond, HTTPClient: srv.Client()})
	require.NoError(t, err)

	var seen []Update
	err = p.Run(ctx, func(ctx context.Context, u Update) error {
		seen = append(seen, u)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "message_new", seen[0].Type)
	var obj struct {
		Message struct {
			FromID int64 `json:"from_id"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(seen[0].Object, &obj))
	assert.Equal(t, int64(42), obj.Message.FromID)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Events)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, "12", stats.Cursor)
}

func TestRunTransportFaultReacquiresWholeDescriptor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/fresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k2", r.URL.Query().Get("key"))
		assert.Equal(t, "77", r.URL.Query().Get("ts"))
		cancel()
		w.Write([]byte(`{"ts":"78","updates":[]}`))
	})

	gw := &scriptedGateway{script: []acquireResult{
		{srv: vk.PollServer{Key: "k1", Server: srv.URL + "/old", TS: "11"}},
		{srv: vk.PollServer{Key: "k2", Server: srv.URL + "/fresh", TS: "77"}},
	}}
	p, err := New(Options{Gateway: gw, WaitSeconds: 1, Backoff: time.Millisecond, HTTPClient: srv.Client()})
	require.NoError(t, err)

	err = p.Run(ctx, func(ctx context.Context, u Update) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 2, gw.callCount(), "transport fault must re-acquire from the gateway")
	assert.Equal(t, uint64(1), p.Stats().Transport)
	desc := p.Descriptor()
	assert.Equal(t, "k2", desc.Key, "key must be wholesale-replaced")
	assert.Equal(t, srv.URL+"/fresh", desc.Server, "server must be wholesale-replaced")
}

func TestRunRepairFailureFallsBackToReacquire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"failed":2}`))
	})
	mux.HandleFunc("/fresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k2", r.URL.Query().Get("key"))
		cancel()
		w.Write([]byte(`{"ts":"78","updates":[]}`))
	})

	gw := &scriptedGateway{script: []acquireResult{
		{srv: vk.PollServer{Key: "k1", Server: srv.URL + "/old", TS: "11"}},
		{err: errors.New("getLongPollServer unavailable")},
		{srv: vk.PollServer{Key: "k2", Server: srv.URL + "/fresh", TS: "77"}},
	}}
	p, err := New(Options{Gateway: gw, WaitSeconds: 1, Backoff: time.Millisecond, HTTPClient: srv.Client()})
	require.NoError(t, err)

	err = p.Run(ctx, func(ctx context.Context, u Update) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 3, gw.callCount(), "failed repair must retry through a full re-acquire")
	assert.Equal(t, uint64(1), p.Stats().Repairs)
	assert.Equal(t, "k2", p.Descriptor().Key)
}

func TestRunFailsWithoutInitialDescriptor(t *testing.T) {
	gw := &fakeGateway{err: context.DeadlineExceeded}
	p, err := New(Options{Gateway: gw})
	require.NoError(t, err)

	err = p.Run(context.Background(), func(ctx context.Context, u Update) error { return nil })
	require.Error(t, err)
}
