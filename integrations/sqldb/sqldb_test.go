package sqldb_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aponysus/callscope/callscope"
	"github.com/aponysus/callscope/integrations/sqldb"
	"github.com/aponysus/callscope/observe"
)

type records struct {
	mu   sync.Mutex
	list []*observe.Record
}

func (r *records) OnRecord(_ context.Context, rec *observe.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rec)
}

func (r *records) last(t *testing.T) *observe.Record {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.list)
	return r.list[len(r.list)-1]
}

func openDB(t *testing.T, opts ...sqldb.Option) (*sqldb.DB, *records) {
	t.Helper()
	recs := &records{}
	engine := callscope.NewEngine(callscope.WithObserver(recs))
	db, err := sqldb.Open("sqlite", ":memory:", append([]sqldb.Option{sqldb.WithEngine(engine), sqldb.WithService("orders-db")}, opts...)...)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(context.Background(), `CREATE TABLE orders (id TEXT PRIMARY KEY, amount INTEGER NOT NULL)`)
	require.NoError(t, err)
	return db, recs
}

func TestVerb(t *testing.T) {
	assert.Equal(t, "SELECT", sqldb.Verb("  select * from t"))
	assert.Equal(t, "UNKNOWN", sqldb.Verb(""))
}

func TestExecContext(t *testing.T) {
	db, recs := openDB(t)
	ctx := context.Background()

	res, err := db.ExecContext(ctx, `INSERT INTO orders (id, amount) VALUES (?, ?)`, "o-1", 10)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rec := recs.last(t)
	assert.Equal(t, observe.LogPointSQL, rec.LogPoint)
	assert.Equal(t, "orders-db", rec.Service)
	assert.Equal(t, "INSERT", rec.Action)
	assert.True(t, rec.Success)
	assert.Equal(t, map[string]any{"rowsAffected": int64(1)}, rec.Output)
}

func TestExecContext_ErrorIsFailure(t *testing.T) {
	db, recs := openDB(t)
	_, err := db.ExecContext(context.Background(), `INSERT INTO missing (id) VALUES (1)`)
	require.Error(t, err)

	rec := recs.last(t)
	assert.False(t, rec.Success)
	assert.Equal(t, "SYSTEM_ERROR", rec.MsgCode)
	assert.Equal(t, err, rec.Err)
}

func TestQueryContext(t *testing.T) {
	db, recs := openDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `INSERT INTO orders (id, amount) VALUES ('a', 1), ('b', 2)`)
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, `SELECT id FROM orders ORDER BY id`)
	require.NoError(t, err)
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"a", "b"}, ids)

	rec := recs.last(t)
	assert.Equal(t, "SELECT", rec.Action)
	assert.True(t, rec.Success)
}

func TestQueryRowContext_NoRowsIsNotAFailure(t *testing.T) {
	db, recs := openDB(t)
	var amount int
	err := db.QueryRowContext(context.Background(), `SELECT amount FROM orders WHERE id = ?`, "none").Scan(&amount)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	rec := recs.last(t)
	assert.Equal(t, "SELECT", rec.Action)
	assert.True(t, rec.Success)
}
