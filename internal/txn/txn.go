// Package txn implements the transaction coordinator: cooperative
// single-threaded execution of a block of store operations, snapshot-based
// rollback on error or explicit abort, and a FIFO queue of deferred
// consolidations flushed once the last concurrently-open transaction
// closes.
package txn

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/beccauwu/bones-api/internal/adapter"
	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/logging"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/value"
)

type ctxKey struct{}

// Transaction wraps a table store with per-table version snapshots taken at
// first touch, so Abort can roll every touched table back to the state it
// held when the transaction opened. Writes route through the coordinator's
// backing Adapter (Insert for a new id, Update for an existing one) so the
// Adapter contract governs every row mutation, not just the in-memory
// default; the store itself remains the source of truth for versioning and
// rollback regardless of which adapter is wired in.
type Transaction struct {
	id      int64
	store   *store.Store
	coord   *Coordinator
	backend adapter.Adapter
	conn    adapter.Connection

	mu        sync.Mutex
	snapshots map[string]int64
	aborted   bool
}

// ID returns the transaction's coordinator-assigned identifier.
func (tx *Transaction) ID() int64 { return tx.id }

func (tx *Transaction) snapshotLocked(table string) error {
	if _, ok := tx.snapshots[table]; ok {
		return nil
	}
	v, err := tx.store.Version(table)
	if err != nil {
		if !errs.Is(err, errs.KindUnknownTable) {
			return err
		}
		v = 0
	}
	tx.snapshots[table] = v
	return nil
}

// Put writes a row within the transaction, recording a rollback point for
// table on first touch, then inserts or updates through the backend
// adapter depending on whether id already exists.
func (tx *Transaction) Put(ctx context.Context, table, id string, row value.Record) (int64, error) {
	tx.mu.Lock()
	if err := tx.snapshotLocked(table); err != nil {
		tx.mu.Unlock()
		return 0, err
	}
	tx.mu.Unlock()

	_, existed, err := tx.store.Get(table, id)
	if err != nil {
		return 0, err
	}
	if existed {
		err = tx.backend.Update(ctx, tx.conn, table, id, row)
	} else {
		err = tx.backend.Insert(ctx, tx.conn, table, id, row)
	}
	if err != nil {
		return 0, err
	}
	return tx.store.Version(table)
}

// Delete removes a row within the transaction, recording a rollback point
// for table on first touch, then removes it through the backend adapter.
// Returns false without calling the adapter if the row did not exist.
func (tx *Transaction) Delete(ctx context.Context, table, id string) (bool, error) {
	tx.mu.Lock()
	if err := tx.snapshotLocked(table); err != nil {
		tx.mu.Unlock()
		return false, err
	}
	tx.mu.Unlock()

	_, existed, err := tx.store.Get(table, id)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	if err := tx.backend.Delete(ctx, tx.conn, table, id); err != nil {
		return false, err
	}
	return true, nil
}

// Get reads a row, delegating directly to the store (reads never need a
// rollback point).
func (tx *Transaction) Get(table, id string) (value.Record, bool, error) {
	return tx.store.Get(table, id)
}

// Entries lists every live row in table.
func (tx *Transaction) Entries(table string) (map[string]value.Record, error) {
	return tx.store.Entries(table)
}

// Store exposes the underlying table store for read-heavy callers (the
// condition evaluator) that don't need transactional write tracking.
func (tx *Transaction) Store() *store.Store { return tx.store }

func (tx *Transaction) rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for table, v := range tx.snapshots {
		_ = tx.store.Rollback(table, v)
	}
	tx.aborted = true
}

// FromContext retrieves the Transaction active on ctx, if any.
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*Transaction)
	return tx, ok
}

func withTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

type pendingConsolidate struct {
	table string
	upTo  int64
}

// Coordinator serializes transaction execution against one table store. Its
// "currently executing" transaction lives on the context passed to
// Execute, not on coordinator state, so goroutines running independent
// call chains never observe each other's transaction.
type Coordinator struct {
	store   *store.Store
	backend adapter.Adapter

	mu        sync.Mutex
	openCount int
	pending   []pendingConsolidate
	conn      adapter.Connection

	nextID int64

	log         *logging.Logger
	tracer      trace.Tracer
	abortCounts metric.Int64Counter
}

// NewCoordinator creates a Coordinator over st, routing every transaction's
// writes through backend, and logging through log (pass logging.Nop() to
// discard).
func NewCoordinator(st *store.Store, backend adapter.Adapter, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	c := &Coordinator{
		store:   st,
		backend: backend,
		log:     log,
		tracer:  otel.Tracer("bones-api/txn"),
	}
	counter, err := otel.Meter("bones-api/txn").Int64Counter(
		"txn_aborts_total",
		metric.WithDescription("transactions aborted, by reason"),
	)
	if err != nil {
		log.Warn("txn: failed to create abort counter", "error", err)
	}
	c.abortCounts = counter
	return c
}

// connection returns the coordinator's shared backend connection, opening
// one on first use.
func (c *Coordinator) connection(ctx context.Context) (adapter.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.backend.IsValid(ctx, c.conn) {
		return c.conn, nil
	}
	conn, err := c.backend.CreateConnection(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// Execute runs fn inside a new transaction. If ctx already carries an open
// transaction, Execute returns NestedTransaction without calling fn.
// fn's returned error aborts (rolls back) the transaction; otherwise it
// commits and consolidates every table fn touched up to the version it
// reached, per the close-order FIFO in RequestConsolidate.
func (c *Coordinator) Execute(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	if _, already := FromContext(ctx); already {
		return errs.NestedTransaction()
	}

	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}

	id := atomic.AddInt64(&c.nextID, 1)
	ctx, span := c.tracer.Start(ctx, "txn.execute", trace.WithAttributes(attribute.Int64("txn.id", id)))
	defer span.End()

	btx, err := c.backend.OpenTransaction(ctx, conn)
	if err != nil {
		return err
	}

	tx := &Transaction{id: id, store: c.store, coord: c, backend: c.backend, conn: conn, snapshots: make(map[string]int64)}

	c.mu.Lock()
	c.openCount++
	c.mu.Unlock()

	fnErr := fn(withTransaction(ctx, tx), tx)

	if fnErr != nil {
		tx.rollback()
		_ = c.backend.CancelTransaction(ctx, btx)
		typed := errs.AsTransactionFailure(fnErr)
		if c.abortCounts != nil {
			c.abortCounts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(typed.Kind))))
		}
		span.RecordError(fnErr)
		c.closeOne()
		return typed
	}

	if err := c.backend.CloseTransaction(ctx, btx); err != nil {
		tx.rollback()
		c.closeOne()
		return errs.AsTransactionFailure(err)
	}

	for table, snapshotVersion := range tx.snapshots {
		upTo, verr := c.store.Version(table)
		if verr != nil {
			continue
		}
		if upTo > snapshotVersion {
			c.RequestConsolidate(table, upTo)
		}
	}

	c.closeOne()
	return nil
}

// RequestConsolidate enqueues a deferred fold of table's history up to
// upTo. It runs once the last currently-open transaction closes, so a
// transaction that opened before the consolidation was requested can still
// see the pre-consolidation diff trail if it needs to roll back.
func (c *Coordinator) RequestConsolidate(table string, upTo int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, pendingConsolidate{table: table, upTo: upTo})
	if c.openCount == 0 {
		c.flushLocked()
	}
}

func (c *Coordinator) closeOne() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openCount--
	if c.openCount == 0 {
		c.flushLocked()
	}
}

// flushLocked applies every queued consolidation in FIFO order. Caller must
// hold mu.
func (c *Coordinator) flushLocked() {
	for _, p := range c.pending {
		_ = c.store.Consolidate(p.table, p.upTo)
	}
	c.pending = c.pending[:0]
}

// AutoExecute runs fn as an implicit single-operation transaction when ctx
// carries no open transaction, or reuses the existing one otherwise. This
// gives every repository operation transactional semantics (auto-commit)
// without callers having to wrap single writes themselves.
func (c *Coordinator) AutoExecute(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	if tx, ok := FromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return c.Execute(ctx, fn)
}
