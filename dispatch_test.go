package badgesink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/badgesink/internal/api"
)

func apiEvents(riders ...string) []api.BadgeEvent {
	events := make([]api.BadgeEvent, len(riders))
	for i, r := range riders {
		events[i] = api.BadgeEvent{RiderID: r}
	}
	return events
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	var got []string
	d := &dispatcher{
		handler: func(ev BadgeEvent) error {
			got = append(got, ev.RiderID)
			return nil
		},
		logger:  testLogger(),
		tracker: newTracker(nil),
	}

	d.dispatch(context.Background(), apiEvents("a", "b", "c"))

	assert.Equal(t, []string{"a", "b", "c"}, got)
	status := d.tracker.snapshot()
	assert.Equal(t, uint64(3), status.EventsDispatched)
	assert.Zero(t, status.HandlerFailures)
}

func TestDispatcher_ErrorDoesNotStopBatch(t *testing.T) {
	var buf bytes.Buffer
	var got []string
	d := &dispatcher{
		handler: func(ev BadgeEvent) error {
			got = append(got, ev.RiderID)
			if ev.RiderID == "e1" {
				return errors.New("boom")
			}
			return nil
		},
		logger:  slog.New(slog.NewJSONHandler(&buf, nil)),
		tracker: newTracker(nil),
	}

	d.dispatch(context.Background(), apiEvents("e1", "e2"))

	assert.Equal(t, []string{"e1", "e2"}, got)
	assert.Equal(t, uint64(1), d.tracker.snapshot().HandlerFailures)
	assert.Contains(t, buf.String(), `"msg":"badge handler failed"`)
	assert.Contains(t, buf.String(), `"rider_id":"e1"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestDispatcher_PanicIsRecovered(t *testing.T) {
	var buf bytes.Buffer
	var got []string
	d := &dispatcher{
		handler: func(ev BadgeEvent) error {
			got = append(got, ev.RiderID)
			if ev.RiderID == "e1" {
				panic("nil map write")
			}
			return nil
		},
		logger:  slog.New(slog.NewJSONHandler(&buf, nil)),
		tracker: newTracker(nil),
	}

	require.NotPanics(t, func() {
		d.dispatch(context.Background(), apiEvents("e1", "e2"))
	})
	assert.Equal(t, []string{"e1", "e2"}, got)

	// one log line for the panic, none for a returned error
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "badge handler panicked", entry["msg"])
	assert.Equal(t, "e1", entry["rider_id"])
	assert.Equal(t, "nil map write", entry["panic"])
	assert.NotEmpty(t, entry["stack"])

	id, ok := entry["correlation_id"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	status := d.tracker.snapshot()
	assert.Equal(t, uint64(1), status.HandlerFailures)
	assert.Equal(t, uint64(2), status.EventsDispatched)
}

func TestDispatcher_CancelledContextDeliversWholeBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count := 0
	d := &dispatcher{
		handler: func(BadgeEvent) error {
			count++
			return nil
		},
		logger:  testLogger(),
		tracker: newTracker(nil),
	}

	d.dispatch(ctx, apiEvents("a", "b"))
	assert.Equal(t, 2, count)
}
