package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/vineethsai/etdi-go/events"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
	insertTimeout = 5 * time.Second
)

// ClickHouseSink batch-inserts events into the etdi_security_events table.
// OnEvent is non-blocking: events are buffered and flushed by a background
// goroutine, and dropped when the buffer is full.
type ClickHouseSink struct {
	conn    driver.Conn
	buffer  chan events.Event
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseSink connects to dsn and starts the background flush loop.
func NewClickHouseSink(dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	s := &ClickHouseSink{
		conn:    conn,
		buffer:  make(chan events.Event, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go s.flushLoop()
	return s, nil
}

// OnEvent queues e for async insertion, dropping it if the buffer is full.
func (s *ClickHouseSink) OnEvent(_ context.Context, e events.Event) {
	select {
	case s.buffer <- e:
	default:
		s.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("event_id", e.ID),
		)
	}
}

// Close signals the flush loop to drain remaining events and waits for it.
func (s *ClickHouseSink) Close() {
	close(s.done)
	<-s.flushed
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]events.Event, 0, flushBatch)

	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-s.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(batch []events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	insert, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO etdi_security_events (
			event_id, timestamp, type, category, severity, source,
			threat_type, tool_id, detail_json
		)
	`)
	if err != nil {
		s.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range batch {
		toolID, _ := e.Detail["tool_id"].(string)
		detail := "{}"
		if len(e.Detail) > 0 {
			if raw, err := json.Marshal(e.Detail); err == nil {
				detail = string(raw)
			}
		}
		if err := insert.Append(
			e.ID,
			e.Timestamp,
			e.Type.String(),
			e.Type.Category().String(),
			e.Severity.String(),
			e.Source,
			e.ThreatType,
			toolID,
			detail,
		); err != nil {
			s.logger.Error("clickhouse append event failed",
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		}
	}

	if err := insert.Send(); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
	}
}
