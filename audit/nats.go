package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/vineethsai/etdi-go/events"
)

// defaultSubjectPrefix roots the event subject hierarchy. Subjects take
// the form <prefix>.<category>.<type>, for example
// etdi.events.security.signature_failed.
const defaultSubjectPrefix = "etdi.events"

// NATSBridge republishes events to NATS subjects so external consumers
// (alerting, SIEM ingestion) can subscribe by category or type without
// touching this process.
type NATSBridge struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewNATSBridge connects to url and returns a bridge publishing under the
// default subject prefix. The connection retries in the background, so a
// NATS outage delays events instead of failing startup once the initial
// connect succeeds.
func NewNATSBridge(url string, logger *zap.Logger) (*NATSBridge, error) {
	conn, err := nats.Connect(url,
		nats.Name("etdi-audit"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSBridge{conn: conn, prefix: defaultSubjectPrefix, logger: logger}, nil
}

// wireEvent is the JSON shape published to NATS. Enum fields travel as
// their wire names so consumers never depend on this module's types.
type wireEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Category   string         `json:"category"`
	Severity   string         `json:"severity"`
	Source     string         `json:"source"`
	ThreatType string         `json:"threat_type,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func toWire(e events.Event) wireEvent {
	return wireEvent{
		ID:         e.ID,
		Type:       e.Type.String(),
		Category:   e.Type.Category().String(),
		Severity:   e.Severity.String(),
		Source:     e.Source,
		ThreatType: e.ThreatType,
		Detail:     e.Detail,
		Timestamp:  e.Timestamp,
	}
}

func subjectFor(prefix string, e events.Event) string {
	return prefix + "." + e.Type.Category().String() + "." + strings.ToLower(e.Type.String())
}

func (b *NATSBridge) OnEvent(_ context.Context, e events.Event) {
	data, err := json.Marshal(toWire(e))
	if err != nil {
		b.logger.Error("event marshal failed", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	if err := b.conn.Publish(subjectFor(b.prefix, e), data); err != nil {
		b.logger.Warn("nats publish failed",
			zap.String("event_id", e.ID),
			zap.Error(err),
		)
	}
}

// Close drains pending publishes before closing the connection.
func (b *NATSBridge) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("nats drain failed", zap.Error(err))
		b.conn.Close()
	}
}
