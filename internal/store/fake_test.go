package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB emulates the ON CONFLICT DO NOTHING tables in memory.
type fakeDB struct {
	mu        sync.Mutex
	rows      map[string]map[string]bool // table -> primary keys
	execs     []string
	batches   int
	batchErr  error
	execErr   error
	exchanges []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{rows: map[string]map[string]bool{}}
}

func (f *fakeDB) insert(table, key string) pgconn.CommandTag {
	if f.rows[table] == nil {
		f.rows[table] = map[string]bool{}
	}
	if f.rows[table][key] {
		return pgconn.NewCommandTag("INSERT 0 0")
	}
	f.rows[table][key] = true
	return pgconn.NewCommandTag("INSERT 0 1")
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	switch sql {
	case insertWelcomedSQL:
		return f.insert("welcomed_conversations", args[0].(string)), nil
	case insertProcessedSQL:
		return f.insert("processed_messages", args[0].(string)), nil
	case pruneProcessedSQL:
		n := len(f.rows["processed_messages"])
		delete(f.rows, "processed_messages")
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", n)), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: query not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sql != selectWelcomedSQL {
		return fakeRow{err: errors.New("fakeDB: unexpected query")}
	}
	return fakeRow{val: f.rows["welcomed_conversations"][args[0].(string)]}
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	res := &fakeResults{err: f.batchErr}
	if f.batchErr != nil {
		return res
	}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(string)
		res.tags = append(res.tags, f.insert("bot_exchanges", id))
		f.exchanges = append(f.exchanges, id)
	}
	return res
}

func (f *fakeDB) exchangeIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.exchanges...)
}

type fakeRow struct {
	val bool
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.val
	return nil
}

type fakeResults struct {
	tags []pgconn.CommandTag
	err  error
	i    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	t := r.tags[r.i]
	r.i++
	return t, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row         { return fakeRow{err: errors.New("not supported")} }
func (r *fakeResults) Close() error              { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
