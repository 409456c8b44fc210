// Package mockapi is a fake badge API for the examples. It issues access
// tokens to any caller and serves a growing stream of random badge events.
package mockapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000"
	pageSize        = 20
)

var (
	stops    = []string{"Gare du Nord", "République", "Bastille", "Nation", "Opéra"}
	vehicles = []string{"Bus 12", "Bus 38", "Tram 3a", "Tram 2"}
	rides    = []string{"Morning loop", "School run", "Airport shuttle"}
)

type event struct {
	RiderID     string   `json:"riderId"`
	At          string   `json:"at"`
	Location    location `json:"location"`
	StopName    string   `json:"stopName"`
	VehicleName string   `json:"vehicleName"`
	RideName    string   `json:"rideName"`

	at time.Time
}

type location struct {
	Longitude float64 `json:"lg"`
	Latitude  float64 `json:"lt"`
}

// Server holds the generated events. The zero value is not usable; use New.
type Server struct {
	mu     sync.Mutex
	events []event
	rng    *rand.Rand
}

// New creates an empty Server.
func New() *Server {
	return &Server{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Generate adds zero to three events every interval until ctx is done.
func (s *Server) Generate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.mu.Lock()
			n := s.rng.Intn(4)
			for i := 0; i < n; i++ {
				s.events = append(s.events, event{
					RiderID:     fmt.Sprintf("rider-%03d", s.rng.Intn(200)),
					At:          now.Format(timestampLayout),
					Location:    location{Longitude: 2.30 + s.rng.Float64()/10, Latitude: 48.82 + s.rng.Float64()/10},
					StopName:    stops[s.rng.Intn(len(stops))],
					VehicleName: vehicles[s.rng.Intn(len(vehicles))],
					RideName:    rides[s.rng.Intn(len(rides))],
					at:          now,
				})
			}
			s.mu.Unlock()
			if n > 0 {
				slog.Info("mock badges generated", "count", n)
			}
		}
	}
}

// Handler serves /v1/accessToken and /v1/badgeReport.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accessToken", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]string{"accessToken": fmt.Sprintf("mock-%d", time.Now().UnixNano())})
	})
	mux.HandleFunc("/v1/badgeReport", s.handleReport)
	return mux
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()

	var offset int
	switch {
	case q.Has("cursor"):
		o, err := DecodeCursor(q.Get("cursor"))
		if err != nil || o > len(s.events) {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		offset = o
	case q.Has("startTime"):
		start, err := time.ParseInLocation(timestampLayout, q.Get("startTime"), time.Local)
		if err != nil {
			http.Error(w, "bad startTime", http.StatusBadRequest)
			return
		}
		offset = len(s.events)
		for i, ev := range s.events {
			if !ev.at.Before(start) {
				offset = i
				break
			}
		}
	default:
		http.Error(w, "cursor or startTime required", http.StatusBadRequest)
		return
	}

	end := min(offset+pageSize, len(s.events))
	page := append([]event{}, s.events[offset:end]...)

	var cursor *string
	if len(page) > 0 {
		c := EncodeCursor(end)
		cursor = &c
	}
	writeJSON(w, struct {
		BadgeEvents []event `json:"badgeEvents"`
		Cursor      *string `json:"cursor"`
	}{page, cursor})
}

// EncodeCursor returns the opaque cursor for a stream offset.
func EncodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte("offset:" + strconv.Itoa(offset)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(c string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(c)
	if err != nil {
		return 0, err
	}
	var offset int
	if _, err := fmt.Sscanf(string(raw), "offset:%d", &offset); err != nil {
		return 0, err
	}
	return offset, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
