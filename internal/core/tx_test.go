package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactional_Commit(t *testing.T) {
	db, d := newFakeDB(t, affecting(1))

	err := db.Transactional(context.Background(), func(tx *Tx) error {
		_, err := tx.Builder().Insert("audit", map[string]any{"action": "login"}).Execute(context.Background())
		if err != nil {
			return err
		}
		_, err = tx.Builder().Update("users").Set(map[string]any{"logins": 1}).Where("id", "=", 1).Execute(context.Background())
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), d.begun.Load())
	assert.Equal(t, int64(1), d.committed.Load())
	assert.Equal(t, int64(0), d.rolledBack.Load())
	assert.Len(t, d.Calls(), 2)
}

func TestTransactional_RollbackOnError(t *testing.T) {
	db, d := newFakeDB(t, affecting(1))
	boom := errors.New("boom")

	err := db.Transactional(context.Background(), func(tx *Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), d.committed.Load())
	assert.Equal(t, int64(1), d.rolledBack.Load())
}

func TestTransactional_RollbackOnPanic(t *testing.T) {
	db, d := newFakeDB(t, affecting(1))

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = db.Transactional(context.Background(), func(tx *Tx) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, int64(1), d.rolledBack.Load())
	assert.Equal(t, int64(0), d.committed.Load())
}

func TestTransactional_RejectedQueryRollsBack(t *testing.T) {
	db, d := newFakeDB(t, affecting(1))

	err := db.Transactional(context.Background(), func(tx *Tx) error {
		_, err := tx.Builder().Delete("users").Execute(context.Background())
		return err
	})

	assert.ErrorIs(t, err, ErrEmptyWhereOnMutation)
	assert.Empty(t, d.Calls())
	assert.Equal(t, int64(1), d.rolledBack.Load())
}

func TestTx_StatementsAreNotRetried(t *testing.T) {
	db, d := newFakeDB(t, func(context.Context, string, []any) (fakeResult, error) {
		return fakeResult{}, &pq.Error{Code: "40001"}
	}, fastRetry())

	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Builder().Table("users").Execute(context.Background())
	require.Error(t, err)
	assert.Len(t, d.Calls(), 1)
}

func TestTx_BypassesStatementCache(t *testing.T) {
	db, d := newFakeDB(t, rowsOf([]string{"id"}))

	tx, err := db.Begin(context.Background())
	require.NoError(t, err)

	q := tx.Builder().Table("users").Where("id", "=", 1)
	for i := 0; i < 2; i++ {
		_, err := q.Execute(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(2), d.prepared.Load())
	assert.Equal(t, 0, db.CacheStats().Size)
	assert.ErrorIs(t, tx.Rollback(), sql.ErrTxDone)
}

func TestBeginTx_Options(t *testing.T) {
	db, d := newFakeDB(t, affecting(0))

	tx, err := db.BeginTx(context.Background(), &TxOptions{ReadOnly: true})
	require.NoError(t, err)
	assert.True(t, d.readOnly.Load())
	require.NoError(t, tx.Rollback())
}

func TestTx_SharesSchemas(t *testing.T) {
	db, _ := newFakeDB(t, affecting(0), WithSchema("orders", "id"))

	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	q := tx.Builder().Table("orders").OrderBy("missing")
	assert.Error(t, q.Err())
}
