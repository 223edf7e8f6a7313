// Package audit batches rotation and alert events into the audit
// database. Modeled directly on the teacher's writer.TickerWriter: an
// input channel, an in-memory batch with a size threshold and a flush
// timer, pgx.Batch inserts with ON CONFLICT (id) DO NOTHING.
//
// A full input channel drops the record and increments a counter rather
// than blocking the producer (alert engine or rotator), the same
// best-effort posture spec.md §4.4 mandates for sink delivery extends to
// this tap, per SPEC_FULL §4.10.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Kind identifies the type of audit event.
type Kind int

const (
	KindRotationStarted Kind = iota
	KindRotationFailed
	KindRotationCompleted
	KindAlertFired
)

func (k Kind) String() string {
	switch k {
	case KindRotationStarted:
		return "RotationStarted"
	case KindRotationFailed:
		return "RotationFailed"
	case KindRotationCompleted:
		return "RotationCompleted"
	case KindAlertFired:
		return "AlertFired"
	default:
		return "Unknown"
	}
}

// Record is one write-once audit row.
type Record struct {
	ID         string
	Kind       Kind
	OccurredAt time.Time
	Payload    map[string]any
}

type auditRow struct {
	ID         string
	Kind       string
	OccurredAt int64 // unix micros
	Payload    []byte
}

// Config configures a Log.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// Metrics holds observability counters for the audit log.
type Metrics struct {
	Inserts int64
	Dropped int64
	Errors  int64
	Flushes int64
}

// Log is the batched audit writer.
type Log struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	input chan Record

	batch       []auditRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

// New creates a Log backed by db.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  make(chan Record, cfg.BufferSize),
		batch:  make([]auditRow, 0, cfg.BatchSize),
	}
}

// Start begins the consume and flush loops.
func (l *Log) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.flushTicker = time.NewTicker(l.cfg.FlushInterval)

	l.wg.Add(1)
	go l.consumeLoop()

	l.wg.Add(1)
	go l.flushLoop()
}

// Stop cancels both loops, waits for them to exit, then performs a final
// flush of whatever remains batched.
func (l *Log) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.flushTicker != nil {
		l.flushTicker.Stop()
	}
	l.wg.Wait()
	l.flush()
}

// Record enqueues rec for batched persistence. Never blocks: if the input
// channel is full, the record is dropped and counted.
func (l *Log) Record(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	select {
	case l.input <- rec:
	default:
		l.metricsMu.Lock()
		l.metrics.Dropped++
		l.metricsMu.Unlock()
		l.logger.Warn("audit record dropped, input buffer full", "kind", rec.Kind)
	}
}

// Stats returns a snapshot of the audit log's counters.
func (l *Log) Stats() Metrics {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	return l.metrics
}

// Pending returns the number of records currently queued on the input
// channel, waiting for the consume loop to pick them up.
func (l *Log) Pending() int {
	return len(l.input)
}

// Drain removes and returns up to n queued records without starting the
// consume loop. Intended for tests that need to inspect a record's payload
// directly.
func (l *Log) Drain(n int) []Record {
	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		select {
		case rec := <-l.input:
			recs = append(recs, rec)
		default:
			return recs
		}
	}
	return recs
}

func (l *Log) consumeLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case rec := <-l.input:
			l.handleRecord(rec)
		}
	}
}

func (l *Log) flushLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.flushTicker.C:
			l.flush()
		}
	}
}

func (l *Log) handleRecord(rec Record) {
	row := transform(rec)

	l.batchMu.Lock()
	l.batch = append(l.batch, row)
	shouldFlush := len(l.batch) >= l.cfg.BatchSize
	l.batchMu.Unlock()

	if shouldFlush {
		l.flush()
	}
}

func transform(rec Record) auditRow {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		payload = []byte("{}")
	}
	return auditRow{
		ID:         rec.ID,
		Kind:       rec.Kind.String(),
		OccurredAt: rec.OccurredAt.UnixMicro(),
		Payload:    payload,
	}
}

func (l *Log) flush() {
	l.batchMu.Lock()
	if len(l.batch) == 0 {
		l.batchMu.Unlock()
		return
	}
	batch := l.batch
	l.batch = make([]auditRow, 0, l.cfg.BatchSize)
	l.batchMu.Unlock()

	if err := l.batchInsert(batch); err != nil {
		l.logger.Error("audit batch insert failed", "error", err, "count", len(batch))
		l.metricsMu.Lock()
		l.metrics.Errors++
		l.metricsMu.Unlock()
		return
	}

	l.metricsMu.Lock()
	l.metrics.Inserts += int64(len(batch))
	l.metrics.Flushes++
	l.metricsMu.Unlock()
}

func (l *Log) batchInsert(rows []auditRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO audit_records (id, kind, occurred_at, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Kind, r.OccurredAt, r.Payload)
	}

	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	results := l.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
