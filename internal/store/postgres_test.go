package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func newTestPostgres(t *testing.T, db *fakeDB) *Postgres {
	t.Helper()
	p := NewPostgres(context.Background(), db, WriterConfig{BatchSize: 10, FlushInterval: time.Hour}, clock.NewMock(), nil)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func TestMigrate(t *testing.T) {
	db := newFakeDB()
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(db.execs) != 1 || db.execs[0] != Schema {
		t.Errorf("Migrate executed %d statements, want the schema once", len(db.execs))
	}

	for _, table := range []string{"welcomed_conversations", "processed_messages", "bot_exchanges"} {
		if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("schema missing table %s", table)
		}
	}
}

func TestMigrate_Error(t *testing.T) {
	db := newFakeDB()
	db.execErr = errors.New("permission denied")
	err := Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "apply schema") {
		t.Errorf("Migrate() error = %v, want apply schema error", err)
	}
}

func TestPostgres_Welcomed(t *testing.T) {
	ctx := context.Background()
	p := newTestPostgres(t, newFakeDB())

	if ok, err := p.IsWelcomed(ctx, "conv-1"); err != nil || ok {
		t.Fatalf("IsWelcomed before mark = (%v, %v), want (false, nil)", ok, err)
	}
	if err := p.MarkWelcomed(ctx, "conv-1", time.Now()); err != nil {
		t.Fatalf("MarkWelcomed() error = %v", err)
	}
	// Marking twice is not an error.
	if err := p.MarkWelcomed(ctx, "conv-1", time.Now()); err != nil {
		t.Fatalf("second MarkWelcomed() error = %v", err)
	}
	if ok, _ := p.IsWelcomed(ctx, "conv-1"); !ok {
		t.Error("IsWelcomed after mark = false, want true")
	}
}

func TestPostgres_MarkProcessed(t *testing.T) {
	ctx := context.Background()
	p := newTestPostgres(t, newFakeDB())

	first, err := p.MarkProcessed(ctx, "msg-1", time.Now())
	if err != nil || !first {
		t.Fatalf("first MarkProcessed = (%v, %v), want (true, nil)", first, err)
	}
	again, err := p.MarkProcessed(ctx, "msg-1", time.Now())
	if err != nil || again {
		t.Errorf("repeated MarkProcessed = (%v, %v), want (false, nil)", again, err)
	}

	n, err := p.PruneProcessed(ctx, time.Now())
	if err != nil || n != 1 {
		t.Errorf("PruneProcessed = (%d, %v), want (1, nil)", n, err)
	}
}

func TestPostgres_MarkProcessedError(t *testing.T) {
	db := newFakeDB()
	p := newTestPostgres(t, db)
	db.execErr = errors.New("database is down")

	if _, err := p.MarkProcessed(context.Background(), "msg-1", time.Now()); err == nil {
		t.Error("expected error")
	}
}

func TestPostgres_RecordExchangeFlushesOnClose(t *testing.T) {
	db := newFakeDB()
	p := NewPostgres(context.Background(), db, WriterConfig{BatchSize: 10, FlushInterval: time.Hour}, clock.NewMock(), nil)

	if err := p.RecordExchange(context.Background(), exchange(7)); err != nil {
		t.Fatalf("RecordExchange() error = %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := db.exchangeIDs(); len(got) != 1 || got[0] != "ex-7" {
		t.Errorf("inserted = %v, want [ex-7]", got)
	}
	if s := p.WriterStats(); s.Inserts != 1 {
		t.Errorf("WriterStats().Inserts = %d, want 1", s.Inserts)
	}
}
