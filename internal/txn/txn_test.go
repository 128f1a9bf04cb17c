package txn_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beccauwu/bones-api/internal/adapter/memory"
	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/logging"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/txn"
	"github.com/beccauwu/bones-api/internal/value"
)

func newStore(t *testing.T) (*store.Store, *schema.Registry) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Widget",
		TableName:  "widgets",
		IDField:    "id",
		Fields:     []schema.Field{{Name: "id", Type: schema.TypeText}, {Name: "label", Type: schema.TypeText}},
	}))
	return store.New(reg), reg
}

func newCoordinator(t *testing.T) (*txn.Coordinator, *store.Store) {
	t.Helper()
	st, reg := newStore(t)
	return txn.NewCoordinator(st, memory.New(st, reg), logging.Nop()), st
}

func TestExecuteCommitsOnSuccess(t *testing.T) {
	coord, st := newCoordinator(t)

	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		_, err := tx.Put(ctx, "widgets", "1", value.Record{"id": value.Text("1"), "label": value.Text("a")})
		return err
	})
	require.NoError(t, err)

	row, ok, err := st.Get("widgets", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", row["label"].Text())
}

func TestExecuteConsolidatesHistoryOnCommit(t *testing.T) {
	coord, st := newCoordinator(t)

	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		_, err := tx.Put(ctx, "widgets", "1", value.Record{"id": value.Text("1"), "label": value.Text("a")})
		return err
	})
	require.NoError(t, err)

	versions, err := st.Versions("widgets")
	require.NoError(t, err)
	assert.Empty(t, versions, "a clean commit with no other open transaction should fold history immediately")
}

func TestExecuteRollsBackOnError(t *testing.T) {
	coord, st := newCoordinator(t)

	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		if _, err := tx.Put(ctx, "widgets", "1", value.Record{"id": value.Text("1"), "label": value.Text("a")}); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTransactionAborted))

	_, ok, err := st.Get("widgets", "1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecutePreservesTypedErrorOnAbort(t *testing.T) {
	coord, _ := newCoordinator(t)

	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		return errs.FieldInvalid(errs.InvalidRequired, "widgets", "label", "")
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindFieldInvalid), "a typed application error must survive Execute unflattened")
	assert.False(t, errs.Is(err, errs.KindTransactionAborted))
}

func TestNestedExecuteIsRejected(t *testing.T) {
	coord, _ := newCoordinator(t)

	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		return coord.Execute(ctx, func(ctx context.Context, tx *txn.Transaction) error { return nil })
	})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNestedTransaction))
}

func TestAutoExecuteReusesOpenTransaction(t *testing.T) {
	coord, _ := newCoordinator(t)

	var innerID int64
	err := coord.Execute(context.Background(), func(ctx context.Context, tx *txn.Transaction) error {
		return coord.AutoExecute(ctx, func(ctx context.Context, inner *txn.Transaction) error {
			innerID = inner.ID()
			return nil
		})
	})
	require.NoError(t, err)
	assert.NotZero(t, innerID)
}
