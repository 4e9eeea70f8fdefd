// Package ledger is the usage/cost audit sink: every completed request
// appends one row (provider, model, tokens, decimal cost, latency, cache
// hit) to ClickHouse. This wires clickhouse-go/v2 — present in the
// teacher's go.mod but never actually imported by any of its packages —
// into the one place spec.md's cost-accounting component (§4.A) implies
// but doesn't itself own: a durable record of what was billed. It mirrors
// internal/logger's non-blocking batched-channel design so the billing
// path never stalls the request hot path.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	channelBuffer = 10_000
	batchSize     = 200
	flushInterval = 2 * time.Second
)

// Entry is one billed request.
type Entry struct {
	ID           uuid.UUID
	Provider     string
	Model        string
	PromptTokens uint32
	CompletionTokens uint32
	CostUSD      decimal.Decimal
	LatencyMs    uint32
	CacheHit     bool
	CreatedAt    time.Time
}

// Ledger batches Entry rows and flushes them to ClickHouse in the
// background. Entries submitted while the channel is full are dropped and
// counted in DroppedEntries, the same graceful-degradation rule the
// request logger uses.
type Ledger struct {
	conn driver.Conn
	log  *slog.Logger

	ch        chan Entry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	droppedEntries int64
}

// Config holds the ClickHouse connection parameters.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Open connects to ClickHouse and starts the background flush loop.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Ledger, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if err := ensureSchema(ctx, conn); err != nil {
		return nil, fmt.Errorf("ledger: schema: %w", err)
	}

	l := &Ledger{
		conn: conn,
		log:  log,
		ch:   make(chan Entry, channelBuffer),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run(ctx)
	return l, nil
}

func ensureSchema(ctx context.Context, conn driver.Conn) error {
	return conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS request_ledger (
			id String,
			provider String,
			model String,
			prompt_tokens UInt32,
			completion_tokens UInt32,
			cost_usd String,
			latency_ms UInt32,
			cache_hit UInt8,
			created_at DateTime
		) ENGINE = MergeTree()
		ORDER BY (created_at, provider)
	`)
}

// Record enqueues an entry for async write. Never blocks.
func (l *Ledger) Record(e Entry) {
	select {
	case l.ch <- e:
	default:
		atomic.AddInt64(&l.droppedEntries, 1)
	}
}

// DroppedEntries reports how many Record calls were dropped due to backpressure.
func (l *Ledger) DroppedEntries() int64 { return atomic.LoadInt64(&l.droppedEntries) }

// Close flushes any remaining batch and disconnects.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	return l.conn.Close()
}

func (l *Ledger) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.writeBatch(ctx, batch); err != nil {
			l.log.ErrorContext(ctx, "ledger_flush_failed", slog.String("error", err.Error()), slog.Int("rows", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.done:
			for {
				select {
				case e := <-l.ch:
					batch = append(batch, e)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *Ledger) writeBatch(ctx context.Context, entries []Entry) error {
	b, err := l.conn.PrepareBatch(ctx, "INSERT INTO request_ledger")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := b.Append(
			e.ID.String(),
			e.Provider,
			e.Model,
			e.PromptTokens,
			e.CompletionTokens,
			e.CostUSD.String(),
			e.LatencyMs,
			boolToUint8(e.CacheHit),
			normalizeTime(e.CreatedAt),
		); err != nil {
			return err
		}
	}
	return b.Send()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
