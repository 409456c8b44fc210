package config

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildOptions_Count(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		logger *slog.Logger
		reg    prometheus.Registerer
		want   int
	}{
		{name: "location only", cfg: Config{}, want: 1},
		{name: "durations", cfg: Config{Backoff: Duration(time.Second), RequestTimeout: Duration(time.Second)}, want: 3},
		{name: "token reuse", cfg: Config{ReuseToken: true}, want: 2},
		{name: "logger and registry", cfg: Config{}, logger: testLogger(), reg: prometheus.NewRegistry(), want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := BuildOptions(&tt.cfg, tt.logger, tt.reg)
			if err != nil {
				t.Fatalf("BuildOptions() error = %v", err)
			}
			if len(opts) != tt.want {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.want)
			}
		})
	}
}

func TestBuildOptions_BadLocation(t *testing.T) {
	_, err := BuildOptions(&Config{Location: "Nowhere/Land"}, nil, nil)
	if err == nil {
		t.Fatal("BuildOptions() expected error for unknown location")
	}
}

func TestBuildSink(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "reuse_token: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	sink, err := BuildSink(cfg, testLogger(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("BuildSink() error = %v", err)
	}
	if sink.Status().Running {
		t.Error("sink should not be running before Start")
	}
}

func TestBuildSink_MissingCredentials(t *testing.T) {
	_, err := BuildSink(&Config{BaseURL: "https://api.example.com"}, nil, nil)
	if err == nil {
		t.Fatal("BuildSink() expected error without credentials")
	}
}

func TestBuildForwarders(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
forward:
  log: true
  sql:
    driver: sqlite3
    dsn: ":memory:"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	fws, err := BuildForwarders(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildForwarders() error = %v", err)
	}
	defer func() { _ = CloseForwarders(fws) }()

	var names []string
	for _, f := range fws {
		names = append(names, f.Name())
	}
	if strings.Join(names, ",") != "log,sql" {
		t.Errorf("forwarders = %v, want [log sql]", names)
	}
}

func TestBuildForwarders_NoneEnabled(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	fws, err := BuildForwarders(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("BuildForwarders() error = %v", err)
	}
	if len(fws) != 0 {
		t.Errorf("len(forwarders) = %d, want 0", len(fws))
	}
}

func TestBuildForwarders_NATSUnreachable(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
forward:
  log: true
  nats:
    url: nats://127.0.0.1:1
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err = BuildForwarders(context.Background(), cfg, testLogger())
	if err == nil {
		t.Fatal("BuildForwarders() expected error for unreachable NATS")
	}
	if !strings.Contains(err.Error(), "nats") {
		t.Errorf("error = %v, want it to mention nats", err)
	}
}
