package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/badgesink/internal/store"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "badges"

// publisher is the subset of *nats.Conn used for publishing.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each event as JSON on "<prefix>.<ride>", where the ride
// name is reduced to a valid subject token ("_" when empty).
type NATS struct {
	conn   *nats.Conn
	pub    publisher
	prefix string
	logger *slog.Logger
}

// NewNATS connects to the NATS server at url.
func NewNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("badgesink"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	n := newNATS(nc, prefix, logger)
	n.conn = nc
	return n, nil
}

func newNATS(pub publisher, prefix string, logger *slog.Logger) *NATS {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: pub, prefix: prefix, logger: logger}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Forward(_ context.Context, ev store.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := n.subject(ev)
	if err := n.pub.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) subject(ev store.Event) string {
	return n.prefix + "." + subjectToken(ev.RideName)
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
