// Package relational implements the Adapter contract against a real
// database/sql backend (Dolt or MySQL), grounded on the teacher's
// internal/storage/dolt and internal/storage/ephemeral stores: a DSN-opened
// *sql.DB, SetMaxOpenConns tuning, and hand-built parameterized SQL rather
// than an ORM.
//
// Condition translation only supports single-segment field paths; a
// dotted reference path (".", crossing a foreign key) has no single-table
// SQL equivalent here and returns an error instead of silently degrading -
// callers needing cross-entity filtering on a relational backend should
// fall back to Select-then-filter in Go.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/dolthub/driver"
	_ "github.com/go-sql-driver/mysql"

	"github.com/beccauwu/bones-api/internal/adapter"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/value"
)

// Adapter implements adapter.Adapter against a SQL database reachable
// through database/sql.
type Adapter struct {
	db       *sql.DB
	registry *schema.Registry
}

var _ adapter.Adapter = (*Adapter)(nil)

// Open dials driverName (e.g. "mysql" or the dolthub/driver's registered
// name) at dsn and returns a relational Adapter bound to registry.
func Open(driverName, dsn string, registry *schema.Registry) (*Adapter, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(8)
	return &Adapter{db: db, registry: registry}, nil
}

type conn struct {
	c      *sql.Conn
	closed bool
}

func (c *conn) Closed() bool { return c.closed }

type tx struct {
	t      *sql.Tx
	closed bool
}

func (t *tx) Closed() bool { return t.closed }

func (a *Adapter) CreateConnection(ctx context.Context) (adapter.Connection, error) {
	c, err := a.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{c: c}, nil
}

func (a *Adapter) CloseConnection(ctx context.Context, c adapter.Connection) error {
	cc := c.(*conn)
	cc.closed = true
	return cc.c.Close()
}

func (a *Adapter) IsValid(ctx context.Context, c adapter.Connection) bool {
	cc := c.(*conn)
	if cc.closed {
		return false
	}
	return cc.c.PingContext(ctx) == nil
}

func (a *Adapter) OpenTransaction(ctx context.Context, c adapter.Connection) (adapter.Tx, error) {
	cc := c.(*conn)
	t, err := cc.c.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{t: t}, nil
}

func (a *Adapter) CloseTransaction(ctx context.Context, t adapter.Tx) error {
	tt := t.(*tx)
	tt.closed = true
	return tt.t.Commit()
}

func (a *Adapter) CancelTransaction(ctx context.Context, t adapter.Tx) error {
	tt := t.(*tx)
	tt.closed = true
	return tt.t.Rollback()
}

func (a *Adapter) fieldsFor(table string) (*schema.Metadata, error) {
	meta, ok := a.registry.ByTable(table)
	if !ok {
		return nil, fmt.Errorf("relational: unknown table %q", table)
	}
	return meta, nil
}

func (a *Adapter) Count(ctx context.Context, c adapter.Connection, table string, cond query.Node, params query.Params) (int, error) {
	where, args, err := translateWhere(cond, params)
	if err != nil {
		return 0, err
	}
	sqlStr := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	var count int
	err = a.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count)
	return count, err
}

func (a *Adapter) Select(ctx context.Context, c adapter.Connection, table string, cond query.Node, params query.Params) ([]value.Record, error) {
	meta, err := a.fieldsFor(table)
	if err != nil {
		return nil, err
	}
	where, args, err := translateWhere(cond, params)
	if err != nil {
		return nil, err
	}
	cols := meta.FieldNames()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(cols, ", "), table, where)

	rows, err := a.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []value.Record
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := value.Record{}
		for i, col := range cols {
			f, _ := meta.Field(col)
			rec[col] = sqlToValue(f, dest[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func sqlToValue(f schema.Field, raw any) value.Value {
	if raw == nil {
		return value.Null()
	}
	switch f.Type {
	case schema.TypeBool:
		switch v := raw.(type) {
		case bool:
			return value.Bool(v)
		case int64:
			return value.Bool(v != 0)
		}
	case schema.TypeInt:
		if v, ok := raw.(int64); ok {
			return value.Int(v)
		}
	case schema.TypeFloat:
		if v, ok := raw.(float64); ok {
			return value.Float(v)
		}
	case schema.TypeTimestamp:
		if v, ok := raw.(time.Time); ok {
			return value.Timestamp(v)
		}
	case schema.TypeRef:
		if v, ok := raw.(string); ok {
			return value.ID(v)
		}
	}
	switch v := raw.(type) {
	case []byte:
		return value.Text(string(v))
	case string:
		return value.Text(v)
	default:
		return value.Text(fmt.Sprintf("%v", v))
	}
}

func (a *Adapter) Insert(ctx context.Context, c adapter.Connection, table, id string, row value.Record) error {
	meta, err := a.fieldsFor(table)
	if err != nil {
		return err
	}
	cols := meta.FieldNames()
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = "?"
		args[i] = valueToSQL(row[col])
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err = a.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (a *Adapter) Update(ctx context.Context, c adapter.Connection, table, id string, row value.Record) error {
	meta, err := a.fieldsFor(table)
	if err != nil {
		return err
	}
	var sets []string
	var args []any
	for _, col := range meta.FieldNames() {
		if col == meta.IDField {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, valueToSQL(row[col]))
	}
	args = append(args, id)
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", table, strings.Join(sets, ", "), meta.IDField)
	_, err = a.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (a *Adapter) Delete(ctx context.Context, c adapter.Connection, table, id string) error {
	meta, err := a.fieldsFor(table)
	if err != nil {
		return err
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, meta.IDField)
	_, err = a.db.ExecContext(ctx, sqlStr, id)
	return err
}

func (a *Adapter) InsertRelationship(ctx context.Context, c adapter.Connection, relTable, sourceField, targetField, sourceID, targetID string) error {
	sqlStr := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (?, ?) ON DUPLICATE KEY UPDATE %s = %s",
		relTable, sourceField, targetField, sourceField, sourceField,
	)
	_, err := a.db.ExecContext(ctx, sqlStr, sourceID, targetID)
	return err
}

func valueToSQL(v value.Value) any {
	jv, err := v.ToJSON()
	if err != nil {
		return nil
	}
	return jv
}

// translateWhere converts a flat (single-connective, single-segment-path)
// condition AST into a parameterized SQL WHERE clause.
func translateWhere(cond query.Node, params query.Params) (string, []any, error) {
	if cond == nil {
		return "", nil, nil
	}
	clause, args, err := translateNode(cond, params)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + clause, args, nil
}

func translateNode(n query.Node, params query.Params) (string, []any, error) {
	switch node := n.(type) {
	case *query.BoolNode:
		sep := " AND "
		if node.Op == query.BoolOr {
			sep = " OR "
		}
		var clauses []string
		var args []any
		for _, term := range node.Terms {
			c, a, err := translateNode(term, params)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, c)
			args = append(args, a...)
		}
		return "(" + strings.Join(clauses, sep) + ")", args, nil
	case *query.ComparisonNode:
		if len(node.Path) != 1 {
			return "", nil, fmt.Errorf("relational: condition path %v crosses a reference, not supported on SQL backend", node.Path)
		}
		col := node.Path[0]
		if strings.HasPrefix(col, "#") {
			col = strings.TrimPrefix(col, "#")
		}
		op, err := sqlOp(node.Op)
		if err != nil {
			return "", nil, err
		}
		arg, err := resolveArg(node.Val, params)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", col, op), []any{arg}, nil
	default:
		return "", nil, fmt.Errorf("relational: unsupported node type %T", n)
	}
}

func sqlOp(op query.CompareOp) (string, error) {
	switch op {
	case query.OpEq:
		return "=", nil
	case query.OpNeq:
		return "!=", nil
	case query.OpLt:
		return "<", nil
	case query.OpLe:
		return "<=", nil
	case query.OpGt:
		return ">", nil
	case query.OpGe:
		return ">=", nil
	case query.OpMatch:
		return "LIKE", nil
	default:
		return "", fmt.Errorf("relational: operator %v not supported on SQL backend", op)
	}
}

func resolveArg(ref query.ValueRef, params query.Params) (any, error) {
	switch ref.Kind {
	case query.RefLiteral:
		return valueToSQL(ref.Literal), nil
	case query.RefPositional:
		idx := ref.Positional - 1
		if idx < 0 || idx >= len(params.Positional) {
			return nil, fmt.Errorf("relational: missing positional parameter %d", ref.Positional)
		}
		return valueToSQL(params.Positional[idx]), nil
	case query.RefNamed:
		v, ok := params.Named[ref.Name]
		if !ok {
			return nil, fmt.Errorf("relational: missing named parameter %q", ref.Name)
		}
		return valueToSQL(v), nil
	default:
		return nil, fmt.Errorf("relational: unresolvable value reference")
	}
}
