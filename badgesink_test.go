package badgesink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBackoff = 30 * time.Millisecond

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBadgeAPI serves canned reports in order, then empty reports forever.
type fakeBadgeAPI struct {
	tokenCalls atomic.Int32

	mu           sync.Mutex
	reports      []string
	queries      []url.Values
	reportStatus int
}

func newFakeBadgeAPI(t *testing.T, reports ...string) (*fakeBadgeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBadgeAPI{reports: reports, reportStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accessToken", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok"})
	})
	mux.HandleFunc("/v1/badgeReport", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query())
		status := f.reportStatus
		body := `{"badgeEvents":[],"cursor":null}`
		if len(f.reports) > 0 {
			body = f.reports[0]
			f.reports = f.reports[1:]
		}
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBadgeAPI) recordedQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries...)
}

func (f *fakeBadgeAPI) failReports(status int) {
	f.mu.Lock()
	f.reportStatus = status
	f.mu.Unlock()
}

// collector is a Handler that records rider ids.
type collector struct {
	mu     sync.Mutex
	riders []string
}

func (c *collector) handle(ev BadgeEvent) error {
	c.mu.Lock()
	c.riders = append(c.riders, ev.RiderID)
	c.mu.Unlock()
	return nil
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.riders...)
}

func newTestSink(t *testing.T, srv *httptest.Server, opts ...Option) *Sink {
	t.Helper()
	base := []Option{WithLogger(testLogger()), WithBackoff(testBackoff), WithLocation(time.UTC)}
	sink, err := New("app", "secret", srv.URL, append(base, opts...)...)
	require.NoError(t, err)
	return sink
}

func stopAndWait(t *testing.T, cancel context.CancelFunc, sink *Sink) {
	t.Helper()
	cancel()
	select {
	case <-sink.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not stop after cancellation")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		appID   string
		secret  string
		baseURL string
		opts    []Option
	}{
		{name: "empty app id", appID: "", secret: "s", baseURL: "https://api.example.com"},
		{name: "empty secret", appID: "a", secret: "", baseURL: "https://api.example.com"},
		{name: "empty base url", appID: "a", secret: "s", baseURL: ""},
		{name: "bad scheme", appID: "a", secret: "s", baseURL: "ftp://api.example.com"},
		{name: "no host", appID: "a", secret: "s", baseURL: "https://"},
		{name: "nil logger", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithLogger(nil)}},
		{name: "zero backoff", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithBackoff(0)}},
		{name: "negative timeout", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithRequestTimeout(-time.Second)}},
		{name: "nil http client", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithHTTPClient(nil)}},
		{name: "nil location", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithLocation(nil)}},
		{name: "nil registerer", appID: "a", secret: "s", baseURL: "https://api.example.com", opts: []Option{WithRegisterer(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.appID, tt.secret, tt.baseURL, tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	sink, err := New("a", "s", "https://api.example.com")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, sink.backoff)
	assert.Equal(t, slog.Default(), sink.logger)
	assert.Equal(t, Status{}, sink.Status())
	assert.NoError(t, sink.Err())
}

func TestSink_DeliversInOrderAndFollowsCursor(t *testing.T) {
	f, srv := newFakeBadgeAPI(t,
		`{"badgeEvents":[{"riderId":"e1","at":"2024-05-01T08:00:00.000"},{"riderId":"e2","at":"2024-05-01T08:00:01.000"}],"cursor":"c1"}`,
		`{"badgeEvents":[{"riderId":"e3","at":"2024-05-01T08:00:02.000"}],"cursor":"c2"}`,
	)
	sink := newTestSink(t, srv)
	rec := &collector{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sink.Start(ctx, rec.handle))

	require.Eventually(t, func() bool { return len(f.recordedQueries()) >= 4 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, cancel, sink)

	assert.Equal(t, []string{"e1", "e2", "e3"}, rec.seen())

	queries := f.recordedQueries()
	assert.NotEmpty(t, queries[0].Get("startTime"))
	assert.NotEmpty(t, queries[0].Get("endTime"))
	assert.Empty(t, queries[0].Get("cursor"))
	assert.Equal(t, "c1", queries[1].Get("cursor"))
	for _, q := range queries[2:] {
		assert.Equal(t, "c2", q.Get("cursor"))
		assert.Empty(t, q.Get("startTime"))
	}

	status := sink.Status()
	assert.False(t, status.Running)
	assert.Equal(t, ModeCursor, status.Mode)
	assert.Equal(t, "c2", status.Cursor)
	assert.Nil(t, status.WindowStart)
	assert.Equal(t, uint64(3), status.EventsDispatched)
	assert.GreaterOrEqual(t, status.Backoffs, uint64(1))
	assert.ErrorIs(t, sink.Err(), context.Canceled)
}

func TestSink_EmptyWindowKeepsStartTime(t *testing.T) {
	f, srv := newFakeBadgeAPI(t)
	sink := newTestSink(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sink.Start(ctx, (&collector{}).handle))

	require.Eventually(t, func() bool { return len(f.recordedQueries()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, cancel, sink)

	queries := f.recordedQueries()
	start := queries[0].Get("startTime")
	prevEnd := ""
	for i, q := range queries {
		assert.Equal(t, start, q.Get("startTime"), "query %d", i)
		assert.Empty(t, q.Get("cursor"), "query %d", i)
		// fixed-width timestamps compare lexically
		assert.GreaterOrEqual(t, q.Get("endTime"), prevEnd, "query %d", i)
		assert.GreaterOrEqual(t, q.Get("endTime"), start, "query %d", i)
		prevEnd = q.Get("endTime")
	}

	status := sink.Status()
	assert.Equal(t, ModeWindow, status.Mode)
	require.NotNil(t, status.WindowStart)
	assert.Empty(t, status.Cursor)
}

func TestSink_HandlerFailuresAreIsolated(t *testing.T) {
	f, srv := newFakeBadgeAPI(t,
		`{"badgeEvents":[{"riderId":"fails"},{"riderId":"panics"},{"riderId":"ok"}],"cursor":"c1"}`,
	)
	reg := prometheus.NewRegistry()
	sink := newTestSink(t, srv, WithRegisterer(reg))

	var delivered []string
	var mu sync.Mutex
	handler := func(ev BadgeEvent) error {
		mu.Lock()
		delivered = append(delivered, ev.RiderID)
		mu.Unlock()
		switch ev.RiderID {
		case "fails":
			return errors.New("downstream unavailable")
		case "panics":
			panic("handler bug")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sink.Start(ctx, handler))

	// the loop keeps polling after the failing batch
	require.Eventually(t, func() bool { return len(f.recordedQueries()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, cancel, sink)

	mu.Lock()
	assert.Equal(t, []string{"fails", "panics", "ok"}, delivered)
	mu.Unlock()

	status := sink.Status()
	assert.Equal(t, uint64(2), status.HandlerFailures)
	assert.Equal(t, uint64(3), status.EventsDispatched)

	assert.Equal(t, 1.0, counterValue(t, reg, "badgesink_handler_failures_total", map[string]string{"kind": "error"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "badgesink_handler_failures_total", map[string]string{"kind": "panic"}))
	assert.Equal(t, 3.0, counterValue(t, reg, "badgesink_events_dispatched_total", nil))
}

func TestSink_TransportErrorStopsLoop(t *testing.T) {
	f, srv := newFakeBadgeAPI(t)
	f.failReports(http.StatusBadGateway)
	sink := newTestSink(t, srv)

	require.NoError(t, sink.Start(context.Background(), (&collector{}).handle))

	select {
	case <-sink.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop after transport error")
	}

	var te *TransportError
	require.ErrorAs(t, sink.Err(), &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)

	// no further fetches once the loop has stopped
	time.Sleep(3 * testBackoff)
	assert.Len(t, f.recordedQueries(), 1)

	status := sink.Status()
	assert.False(t, status.Running)
	assert.Contains(t, status.Error, "502")
}

func TestSink_StartTwiceAndNilHandler(t *testing.T) {
	_, srv := newFakeBadgeAPI(t)
	sink := newTestSink(t, srv)

	assert.Error(t, sink.Start(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sink.Start(ctx, (&collector{}).handle))
	assert.ErrorIs(t, sink.Start(ctx, (&collector{}).handle), ErrAlreadyStarted)

	stopAndWait(t, cancel, sink)
}

func TestSink_StartReturnsImmediately(t *testing.T) {
	// a server that never answers keeps the loop blocked in its first fetch
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	sink := newTestSink(t, srv)
	ctx, cancel := context.WithCancel(context.Background())

	returned := make(chan struct{})
	go func() {
		_ = sink.Start(ctx, (&collector{}).handle)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Start blocked")
	}
	assert.True(t, sink.Status().Running)

	// cancellation reaches the in-flight request
	stopAndWait(t, cancel, sink)
	assert.ErrorIs(t, sink.Err(), context.Canceled)
}

func TestSink_Wait(t *testing.T) {
	_, srv := newFakeBadgeAPI(t)
	sink := newTestSink(t, srv)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, sink.Wait(waitCtx), context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sink.Start(ctx, (&collector{}).handle))
	cancel()

	assert.ErrorIs(t, sink.Wait(context.Background()), context.Canceled)
}

func TestSink_Fetch(t *testing.T) {
	f, srv := newFakeBadgeAPI(t,
		`{"badgeEvents":[{"riderId":"r1","at":"2024-05-01T08:00:00.500","location":{"lg":1.5,"lt":2.5},"stopName":"A"}],"cursor":"c9"}`,
	)
	sink := newTestSink(t, srv)

	report, err := sink.Fetch(context.Background(), CursorQuery("c8"))
	require.NoError(t, err)
	assert.Equal(t, "c9", report.Cursor)
	require.Len(t, report.Events, 1)
	assert.Equal(t, BadgeEvent{
		RiderID:  "r1",
		At:       time.Date(2024, 5, 1, 8, 0, 0, 500_000_000, time.UTC),
		Location: Location{Longitude: 1.5, Latitude: 2.5},
		StopName: "A",
	}, report.Events[0])

	since := time.Now().Add(-time.Hour)
	_, err = sink.Fetch(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	cursor := "c9"
	_, err = sink.Fetch(context.Background(), Query{Cursor: &cursor, Since: &since})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Len(t, f.recordedQueries(), 1)
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestSink_TokenReuse(t *testing.T) {
	f, srv := newFakeBadgeAPI(t)
	sink := newTestSink(t, srv, WithTokenReuse())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sink.Start(ctx, (&collector{}).handle))

	require.Eventually(t, func() bool { return len(f.recordedQueries()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	stopAndWait(t, cancel, sink)

	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

// counterValue reads a counter from reg, matching the given labels.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}
