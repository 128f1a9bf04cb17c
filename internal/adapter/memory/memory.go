// Package memory implements the in-memory reference Adapter: the same
// versioned table store the repository uses directly, exposed behind the
// backend-agnostic contract so the repository can be pointed at either
// this or a real relational collaborator without changing its own code.
package memory

import (
	"context"

	"github.com/beccauwu/bones-api/internal/adapter"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/value"
)

// conn is the in-memory adapter's trivial connection marker: there is no
// real session to open or close, only a closed flag to satisfy the
// contract's lifecycle checks.
type conn struct{ closed bool }

func (c *conn) Closed() bool { return c.closed }

type tx struct{ closed bool }

func (t *tx) Closed() bool { return t.closed }

// Adapter wraps a table store and schema registry to implement
// adapter.Adapter.
type Adapter struct {
	store    *store.Store
	registry *schema.Registry
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a memory Adapter over store and registry.
func New(st *store.Store, registry *schema.Registry) *Adapter {
	return &Adapter{store: st, registry: registry}
}

func (a *Adapter) CreateConnection(ctx context.Context) (adapter.Connection, error) {
	return &conn{}, nil
}

func (a *Adapter) CloseConnection(ctx context.Context, c adapter.Connection) error {
	c.(*conn).closed = true
	return nil
}

func (a *Adapter) IsValid(ctx context.Context, c adapter.Connection) bool {
	return !c.Closed()
}

func (a *Adapter) OpenTransaction(ctx context.Context, c adapter.Connection) (adapter.Tx, error) {
	return &tx{}, nil
}

func (a *Adapter) CloseTransaction(ctx context.Context, t adapter.Tx) error {
	t.(*tx).closed = true
	return nil
}

func (a *Adapter) CancelTransaction(ctx context.Context, t adapter.Tx) error {
	t.(*tx).closed = true
	return nil
}

func (a *Adapter) matchAll(table string, cond query.Node, params query.Params) ([]value.Record, error) {
	entries, err := a.store.Entries(table)
	if err != nil {
		return nil, err
	}
	if cond == nil {
		out := make([]value.Record, 0, len(entries))
		for _, row := range entries {
			out = append(out, row)
		}
		return out, nil
	}
	ev := query.NewEvaluator(a.registry, a.store)
	var out []value.Record
	for id, row := range entries {
		ok, err := ev.Match(cond, table, id, row, params)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (a *Adapter) Count(ctx context.Context, c adapter.Connection, table string, cond query.Node, params query.Params) (int, error) {
	rows, err := a.matchAll(table, cond, params)
	return len(rows), err
}

func (a *Adapter) Select(ctx context.Context, c adapter.Connection, table string, cond query.Node, params query.Params) ([]value.Record, error) {
	return a.matchAll(table, cond, params)
}

func (a *Adapter) Insert(ctx context.Context, c adapter.Connection, table, id string, row value.Record) error {
	_, err := a.store.Put(table, id, row)
	return err
}

func (a *Adapter) Update(ctx context.Context, c adapter.Connection, table, id string, row value.Record) error {
	_, err := a.store.Put(table, id, row)
	return err
}

func (a *Adapter) Delete(ctx context.Context, c adapter.Connection, table, id string) error {
	_, err := a.store.Delete(table, id)
	return err
}

func (a *Adapter) InsertRelationship(ctx context.Context, c adapter.Connection, relTable, sourceField, targetField, sourceID, targetID string) error {
	row := value.Record{sourceField: value.ID(sourceID), targetField: value.ID(targetID)}
	id := store.ContentHashID(row, []string{sourceField, targetField})
	_, err := a.store.Put(relTable, id, row)
	return err
}
