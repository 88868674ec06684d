package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
)

// Batcher sends a queued batch. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds exchange writer settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int // Exchanges held before the oldest are dropped
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
		QueueSize:     10000,
	}
}

// WriterMetrics counts exchange writer activity.
type WriterMetrics struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Errors    int64 `json:"errors"`
	Flushes   int64 `json:"flushes"`
	Dropped   int64 `json:"dropped"`
}

// ExchangeWriter batches exchanges into the bot_exchanges table.
type ExchangeWriter struct {
	cfg    WriterConfig
	db     Batcher
	clock  clock.Clock
	logger *slog.Logger

	queue *ring[Exchange]
	kick  chan struct{}

	// flushMu serializes flushes so batches land in order.
	flushMu sync.Mutex

	metricsMu sync.Mutex
	metrics   WriterMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExchangeWriter creates a writer. Call Start before Enqueue.
func NewExchangeWriter(cfg WriterConfig, db Batcher, clk clock.Clock, logger *slog.Logger) *ExchangeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.QueueSize < cfg.BatchSize {
		cfg.QueueSize = max(def.QueueSize, cfg.BatchSize)
	}
	return &ExchangeWriter{
		cfg:    cfg,
		db:     db,
		clock:  clk,
		logger: logger.With("component", "exchange_writer"),
		queue:  newRing[Exchange](cfg.QueueSize),
		kick:   make(chan struct{}, 1),
	}
}

// Start begins the periodic flush loop.
func (w *ExchangeWriter) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	ticker := w.clock.Ticker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop(ctx, ticker)

	w.logger.Info("exchange writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
}

// Enqueue adds an exchange to the next batch. It never blocks; when the queue
// is full the oldest exchange is dropped.
func (w *ExchangeWriter) Enqueue(ex Exchange) {
	if _, dropped := w.queue.push(ex); dropped {
		w.metricsMu.Lock()
		w.metrics.Dropped++
		w.metricsMu.Unlock()
	}
	if w.queue.len() >= w.cfg.BatchSize {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Stop ends the flush loop and writes whatever is still queued using ctx.
func (w *ExchangeWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("exchange writer stop timed out")
		return ctx.Err()
	}

	w.flushAll(ctx)
	w.logger.Info("exchange writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *ExchangeWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

func (w *ExchangeWriter) flushLoop(ctx context.Context, ticker *clock.Ticker) {
	defer w.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushAll(ctx)
		case <-w.kick:
			w.flushAll(ctx)
		}
	}
}

// flushAll writes queued exchanges in BatchSize chunks until the queue is empty
// or a batch fails.
func (w *ExchangeWriter) flushAll(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	for {
		rows := w.queue.drain(w.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		if err := w.flush(ctx, rows); err != nil {
			return
		}
	}
}

func (w *ExchangeWriter) flush(ctx context.Context, rows []Exchange) error {
	start := w.clock.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.metricsMu.Lock()
		w.metrics.Errors++
		w.metricsMu.Unlock()
		return err
	}

	w.metricsMu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.metricsMu.Unlock()

	w.logger.Debug("flushed exchanges",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", w.clock.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *ExchangeWriter) batchInsert(ctx context.Context, rows []Exchange) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertExchangeSQL,
			r.ID, r.ConversationID, r.MessageID, r.Prompt, r.Reply,
			r.Success, r.Error, r.StartedAt, r.Duration.Microseconds(),
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
