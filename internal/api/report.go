package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TimestampLayout is the wire format for window bounds: ISO-8601 date, hour,
// minute, second and millisecond fraction, without a zone.
const TimestampLayout = "2006-01-02T15:04:05.000"

// parseLayout accepts any number of fraction digits, including none.
const parseLayout = "2006-01-02T15:04:05.999999999"

// LatLng is a longitude/latitude pair.
type LatLng struct {
	Longitude float64
	Latitude  float64
}

// BadgeEvent is one rider check-in decoded from a report.
type BadgeEvent struct {
	RiderID     string
	At          time.Time
	Location    LatLng
	StopName    string
	VehicleName string
	RideName    string
}

// Report is one batch returned by GET /v1/badgeReport.
type Report struct {
	// Events are in server order and may be empty.
	Events []BadgeEvent

	// Cursor marks the position after the last event. It may be empty when
	// Events is empty.
	Cursor string
}

// ReportRequest selects what a fetch asks for. Exactly one of Cursor and
// Since must be set.
type ReportRequest struct {
	// Cursor requests the events strictly after this position.
	Cursor *string

	// Since requests the events between this instant and now.
	Since *time.Time
}

// CursorRequest builds a request for the events after cursor.
func CursorRequest(cursor string) ReportRequest {
	return ReportRequest{Cursor: &cursor}
}

// WindowRequest builds a request for the events between since and now.
func WindowRequest(since time.Time) ReportRequest {
	return ReportRequest{Since: &since}
}

// Validate checks the exactly-one-of invariant.
func (r ReportRequest) Validate() error {
	if (r.Cursor == nil) == (r.Since == nil) {
		return fmt.Errorf("%w: exactly one of cursor or window start must be set", ErrInvalidArgument)
	}
	return nil
}

type wireReport struct {
	BadgeEvents []wireEvent `json:"badgeEvents"`
	Cursor      *string     `json:"cursor"`
}

type wireEvent struct {
	RiderID     string      `json:"riderId"`
	At          string      `json:"at"`
	Location    *wireLatLng `json:"location"`
	StopName    string      `json:"stopName"`
	VehicleName string      `json:"vehicleName"`
	RideName    string      `json:"rideName"`
}

type wireLatLng struct {
	Lg float64 `json:"lg"`
	Lt float64 `json:"lt"`
}

// FetchReport validates req, acquires a token and reads one batch of events.
//
// In window mode the end of the window is the current instant at call time.
// With token reuse enabled, a 401 answer drops the cached token and the
// request is repeated once with a fresh one; otherwise there is no retry.
func (c *Client) FetchReport(ctx context.Context, req ReportRequest) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}

	reportURL := c.reportURL(req)

	report, token, err := c.fetchOnce(ctx, reportURL)
	if err != nil && c.reuseToken && token != "" && isUnauthorized(err) {
		c.invalidateToken(token)
		report, _, err = c.fetchOnce(ctx, reportURL)
	}
	return report, err
}

func (c *Client) fetchOnce(ctx context.Context, reportURL string) (Report, string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return Report{}, "", err
	}

	var wire wireReport
	headers := map[string]string{"Authorization": "Bearer " + token}
	if err := c.doJSON(ctx, "badge report", http.MethodGet, reportURL, headers, nil, &wire); err != nil {
		return Report{}, token, err
	}

	report, err := c.decodeReport(wire)
	if err != nil {
		return Report{}, token, &TransportError{Op: "badge report", URL: reportURL, StatusCode: http.StatusOK, Err: err}
	}
	return report, token, nil
}

// reportURL builds the query for req. The cursor is query-escaped so that
// base64 padding and separators survive the round trip.
func (c *Client) reportURL(req ReportRequest) string {
	u := c.baseURL + "/v1/badgeReport"
	if req.Cursor != nil {
		return u + "?cursor=" + url.QueryEscape(*req.Cursor)
	}
	start := FormatTimestamp(*req.Since, c.location)
	end := FormatTimestamp(c.now(), c.location)
	return u + "?startTime=" + url.QueryEscape(start) + "&endTime=" + url.QueryEscape(end)
}

func (c *Client) decodeReport(wire wireReport) (Report, error) {
	events := make([]BadgeEvent, 0, len(wire.BadgeEvents))
	for i, we := range wire.BadgeEvents {
		ev, err := c.decodeEvent(we)
		if err != nil {
			return Report{}, fmt.Errorf("badgeEvents[%d]: %w", i, err)
		}
		events = append(events, ev)
	}

	var cursor string
	if wire.Cursor != nil {
		cursor = *wire.Cursor
	} else if len(events) > 0 {
		return Report{}, errMissingCursor
	}

	return Report{Events: events, Cursor: cursor}, nil
}

func (c *Client) decodeEvent(we wireEvent) (BadgeEvent, error) {
	ev := BadgeEvent{
		RiderID:     we.RiderID,
		StopName:    we.StopName,
		VehicleName: we.VehicleName,
		RideName:    we.RideName,
	}
	if we.Location != nil {
		ev.Location = LatLng{Longitude: we.Location.Lg, Latitude: we.Location.Lt}
	}
	if we.At != "" {
		at, err := ParseTimestamp(we.At, c.location)
		if err != nil {
			return BadgeEvent{}, err
		}
		ev.At = at
	}
	return ev, nil
}

// FormatTimestamp renders t in loc using [TimestampLayout].
func FormatTimestamp(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp parses an event timestamp. Values with a zone or offset are
// honoured; values without one are read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(parseLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
