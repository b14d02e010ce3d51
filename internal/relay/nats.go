// ABOUTME: NATS-backed relay that mirrors group events between parley instances
// ABOUTME: Envelopes are msgpack encoded; repeats are dropped through a dedupe window

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/2389/parley/internal/dedupe"
	"github.com/2389/parley/internal/hub"
	"github.com/2389/parley/internal/metrics"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "parley.group"

// Envelope is the wire form of a relayed event.
type Envelope struct {
	ID           string `msgpack:"i"`
	Origin       string `msgpack:"o"` // instance that published it
	Group        string `msgpack:"g"`
	Type         string `msgpack:"t"`
	OriginUserID string `msgpack:"u"`
	Payload      []byte `msgpack:"p"`
}

// publisher is the part of *nats.Conn used for sending.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS delivers every event locally at once and publishes it to
// <prefix>.<group> for other instances. Envelopes received from the
// subscription on <prefix>.> are delivered to the local registry unless
// their ID was already seen, which also filters this instance's own echoes.
type NATS struct {
	conn       *nats.Conn
	sub        *nats.Subscription
	pub        publisher
	prefix     string
	instanceID string
	registry   *hub.Registry
	seen       *dedupe.Cache
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Ensure NATS implements Relay.
var _ Relay = (*NATS)(nil)

// NATSConfig configures a NATS relay.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// NewNATS connects to the NATS server and subscribes to all group subjects.
func NewNATS(cfg NATSConfig, registry *hub.Registry, m *metrics.Metrics, logger *slog.Logger) (*NATS, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	n := newNATS(nil, cfg.SubjectPrefix, registry, m, logger)

	conn, err := nats.Connect(cfg.URL,
		nats.Name("parley-"+n.instanceID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("relay disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			n.logger.Info("relay reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		n.seen.Close()
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	sub, err := conn.Subscribe(n.prefix+".>", func(msg *nats.Msg) {
		n.receive(msg.Data)
	})
	if err != nil {
		conn.Close()
		n.seen.Close()
		return nil, fmt.Errorf("subscribing to %s.>: %w", n.prefix, err)
	}

	n.conn = conn
	n.sub = sub
	n.pub = conn

	n.logger.Info("relay connected", "url", conn.ConnectedUrl(), "prefix", n.prefix)
	return n, nil
}

func newNATS(pub publisher, prefix string, registry *hub.Registry, m *metrics.Metrics, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	instanceID := uuid.New().String()
	return &NATS{
		pub:        pub,
		prefix:     strings.TrimSuffix(prefix, "."),
		instanceID: instanceID,
		registry:   registry,
		seen:       dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxSize),
		metrics:    m,
		logger:     logger.With("component", "relay", "instance", instanceID),
	}
}

// Publish delivers ev locally, then publishes it for other instances.
// Publish failures are logged; local delivery has already happened.
func (n *NATS) Publish(ctx context.Context, group string, ev *hub.Event) error {
	env := &Envelope{
		ID:           uuid.New().String(),
		Origin:       n.instanceID,
		Group:        group,
		Type:         ev.Type,
		OriginUserID: ev.OriginUserID,
		Payload:      ev.Payload,
	}
	n.seen.Mark(env.ID)
	n.registry.Broadcast(group, ev)

	data, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	if err := n.pub.Publish(n.subject(group), data); err != nil {
		n.logger.Warn("relay publish failed, delivered locally only",
			"group", group,
			"event_type", ev.Type,
			"error", err)
		n.metrics.RelayEnvelope("publish_failed")
	}
	return nil
}

// receive handles one envelope from the subscription.
func (n *NATS) receive(data []byte) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		n.logger.Warn("dropping undecodable envelope", "error", err)
		return
	}
	if env.ID == "" || env.Group == "" {
		n.logger.Warn("dropping incomplete envelope", "id", env.ID)
		return
	}
	if n.seen.Seen(env.ID) {
		n.metrics.RelayEnvelope("duplicate")
		return
	}

	n.metrics.RelayEnvelope("delivered")
	n.registry.Broadcast(env.Group, &hub.Event{
		Type:         env.Type,
		OriginUserID: env.OriginUserID,
		Payload:      env.Payload,
	})
}

// subject maps a group key onto a single NATS subject token.
func (n *NATS) subject(group string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, group)
	return n.prefix + "." + token
}

// Close drains the subscription and closes the connection.
func (n *NATS) Close() error {
	defer n.seen.Close()

	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
