package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the Postgres store.
type DB interface {
	Batcher
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores state in PostgreSQL. Exchanges go through an ExchangeWriter.
type Postgres struct {
	db     DB
	writer *ExchangeWriter
	logger *slog.Logger
}

// NewPostgres creates the store and starts its exchange writer. The schema
// must exist; see Migrate.
func NewPostgres(ctx context.Context, db DB, cfg WriterConfig, clk clock.Clock, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	w := NewExchangeWriter(cfg, db, clk, logger)
	w.Start(ctx)
	return &Postgres{
		db:     db,
		writer: w,
		logger: logger.With("component", "store"),
	}
}

// Migrate creates the bridge tables if they do not exist.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) IsWelcomed(ctx context.Context, conversationID string) (bool, error) {
	var ok bool
	if err := p.db.QueryRow(ctx, selectWelcomedSQL, conversationID).Scan(&ok); err != nil {
		return false, fmt.Errorf("query welcomed %s: %w", conversationID, err)
	}
	return ok, nil
}

func (p *Postgres) MarkWelcomed(ctx context.Context, conversationID string, at time.Time) error {
	if _, err := p.db.Exec(ctx, insertWelcomedSQL, conversationID, at); err != nil {
		return fmt.Errorf("mark welcomed %s: %w", conversationID, err)
	}
	return nil
}

func (p *Postgres) MarkProcessed(ctx context.Context, messageID string, at time.Time) (bool, error) {
	ct, err := p.db.Exec(ctx, insertProcessedSQL, messageID, at)
	if err != nil {
		return false, fmt.Errorf("mark processed %s: %w", messageID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// PruneProcessed deletes processed-message claims older than before.
func (p *Postgres) PruneProcessed(ctx context.Context, before time.Time) (int64, error) {
	ct, err := p.db.Exec(ctx, pruneProcessedSQL, before)
	if err != nil {
		return 0, fmt.Errorf("prune processed: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (p *Postgres) RecordExchange(_ context.Context, ex Exchange) error {
	p.writer.Enqueue(ex)
	return nil
}

func (p *Postgres) RecentExchanges(ctx context.Context, limit int) ([]Exchange, error) {
	rows, err := p.db.Query(ctx, selectExchangesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exchange, error) {
		var (
			ex  Exchange
			dur int64
		)
		err := row.Scan(&ex.ID, &ex.ConversationID, &ex.MessageID, &ex.Prompt, &ex.Reply,
			&ex.Success, &ex.Error, &ex.StartedAt, &dur)
		ex.Duration = time.Duration(dur) * time.Microsecond
		return ex, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan exchanges: %w", err)
	}
	return out, nil
}

// WriterStats returns the exchange writer's counters.
func (p *Postgres) WriterStats() WriterMetrics {
	return p.writer.Stats()
}

// Close flushes queued exchanges. The pool itself is owned by the caller.
func (p *Postgres) Close(ctx context.Context) error {
	return p.writer.Stop(ctx)
}
