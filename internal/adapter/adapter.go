// Package adapter defines the backend-agnostic storage contract that both
// the in-memory table store and a real relational collaborator implement,
// grounded on the teacher's compile-time interface-assertion pattern
// (internal/storage.Storage / internal/storage.VersionedStorage).
package adapter

import (
	"context"

	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/value"
)

// Connection represents one backend session. For the in-memory adapter this
// is a trivial marker; for the relational adapter it wraps a *sql.Conn.
type Connection interface {
	// Closed reports whether Close has already been called.
	Closed() bool
}

// Tx represents one open backend transaction.
type Tx interface {
	Closed() bool
}

// Adapter is the contract any storage backend (in-memory simulator or real
// relational database) must satisfy to back an entity repository.
type Adapter interface {
	CreateConnection(ctx context.Context) (Connection, error)
	CloseConnection(ctx context.Context, conn Connection) error
	IsValid(ctx context.Context, conn Connection) bool

	OpenTransaction(ctx context.Context, conn Connection) (Tx, error)
	CloseTransaction(ctx context.Context, tx Tx) error
	CancelTransaction(ctx context.Context, tx Tx) error

	Count(ctx context.Context, conn Connection, table string, cond query.Node, params query.Params) (int, error)
	Select(ctx context.Context, conn Connection, table string, cond query.Node, params query.Params) ([]value.Record, error)
	Insert(ctx context.Context, conn Connection, table, id string, row value.Record) error
	Update(ctx context.Context, conn Connection, table, id string, row value.Record) error
	Delete(ctx context.Context, conn Connection, table, id string) error
	InsertRelationship(ctx context.Context, conn Connection, relTable, sourceField, targetField, sourceID, targetID string) error
}
