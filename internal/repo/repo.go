// Package repo implements the entity repository façade: the single surface
// application code uses to store, fetch, query, and delete entities, wiring
// together the schema registry, table store, relationship resolver,
// transaction coordinator, and backend adapter.
package repo

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/beccauwu/bones-api/internal/adapter"
	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/relate"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/txn"
	"github.com/beccauwu/bones-api/internal/value"
)

// Repository is the entity persistence façade. Entity rows are selected,
// counted, inserted, updated and deleted through backend (the Adapter
// contract). Id allocation, reference materialization, unique and
// delete-constraint checks, and relationship-table rows go through the
// in-memory table store directly, not through backend.
type Repository struct {
	registry *schema.Registry
	store    *store.Store
	resolver *relate.Resolver
	coord    *txn.Coordinator
	backend  adapter.Adapter

	connMu sync.Mutex
	conn   adapter.Connection

	astCache sync.Map // query text -> *cachedAST
}

type cachedAST struct {
	node query.Node
	err  error
}

// New creates a Repository over the given registry, store, resolver,
// transaction coordinator, and backend adapter. All of these must share
// the same underlying store instance.
func New(registry *schema.Registry, st *store.Store, resolver *relate.Resolver, coord *txn.Coordinator, backend adapter.Adapter) *Repository {
	return &Repository{registry: registry, store: st, resolver: resolver, coord: coord, backend: backend}
}

func (r *Repository) metaFor(entityType string) (*schema.Metadata, error) {
	meta, ok := r.registry.ByType(entityType)
	if !ok {
		return nil, errs.UnknownTable(entityType)
	}
	return meta, nil
}

func (r *Repository) parse(queryText string) (query.Node, error) {
	if cached, ok := r.astCache.Load(queryText); ok {
		c := cached.(*cachedAST)
		return c.node, c.err
	}
	node, err := query.Parse(queryText)
	r.astCache.Store(queryText, &cachedAST{node: node, err: err})
	return node, err
}

// connection returns the repository's shared backend connection, opening
// one on first use (and replacing it if the backend reports it invalid).
func (r *Repository) connection(ctx context.Context) (adapter.Connection, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil && r.backend.IsValid(ctx, r.conn) {
		return r.conn, nil
	}
	conn, err := r.backend.CreateConnection(ctx)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	return conn, nil
}

// idEqCond builds the "#id == <id>" condition used to fetch a single row
// through the Adapter's bulk Select/Count, which has no dedicated
// get-by-id method.
func idEqCond(id string) query.Node {
	return &query.ComparisonNode{
		Path: []string{"#id"},
		Op:   query.OpEq,
		Val:  query.ValueRef{Kind: query.RefLiteral, Literal: value.Text(id)},
	}
}

// SelectByID fetches one entity by id and materializes its references to
// depth.
func (r *Repository) SelectByID(ctx context.Context, entityType, id string, depth relate.Depth) (value.Record, bool, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return nil, false, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, false, err
	}
	rows, err := r.backend.Select(ctx, conn, meta.TableName, idEqCond(id), query.Params{})
	if err != nil || len(rows) == 0 {
		return nil, false, err
	}
	resolved, err := r.resolver.Resolve(meta.TableName, rows[0], depth)
	return resolved, true, err
}

// ExistsID reports whether id exists in entityType's table.
func (r *Repository) ExistsID(ctx context.Context, entityType, id string) (bool, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return false, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return false, err
	}
	n, err := r.backend.Count(ctx, conn, meta.TableName, idEqCond(id), query.Params{})
	return n > 0, err
}

// Select returns every live row of entityType, materialized to depth.
func (r *Repository) Select(ctx context.Context, entityType string, depth relate.Depth) ([]value.Record, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return nil, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.backend.Select(ctx, conn, meta.TableName, nil, query.Params{})
	if err != nil {
		return nil, err
	}
	out := make([]value.Record, 0, len(rows))
	for _, row := range rows {
		resolved, err := r.resolver.Resolve(meta.TableName, row, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// Count returns the number of live rows of entityType.
func (r *Repository) Count(ctx context.Context, entityType string) (int, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return 0, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return 0, err
	}
	return r.backend.Count(ctx, conn, meta.TableName, nil, query.Params{})
}

// Length is an alias for Count, matching the façade's entity-collection
// vocabulary.
func (r *Repository) Length(ctx context.Context, entityType string) (int, error) {
	return r.Count(ctx, entityType)
}

// SelectByQuery evaluates queryText (cached by text after first parse)
// against every row of entityType and returns the matches, materialized to
// depth.
func (r *Repository) SelectByQuery(ctx context.Context, entityType, queryText string, params query.Params, depth relate.Depth) ([]value.Record, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return nil, err
	}
	node, err := r.parse(queryText)
	if err != nil {
		return nil, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.backend.Select(ctx, conn, meta.TableName, node, params)
	if err != nil {
		return nil, err
	}
	out := make([]value.Record, 0, len(rows))
	for _, row := range rows {
		resolved, err := r.resolver.Resolve(meta.TableName, row, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

// DeleteByQuery deletes every row of entityType matching queryText,
// enforcing delete constraints per row, inside one transaction.
func (r *Repository) DeleteByQuery(ctx context.Context, entityType, queryText string, params query.Params) (int, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return 0, err
	}
	node, err := r.parse(queryText)
	if err != nil {
		return 0, err
	}
	conn, err := r.connection(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := r.backend.Select(ctx, conn, meta.TableName, node, params)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if idVal, ok := row[meta.IDField]; ok {
			id := idVal.Text()
			if idVal.Kind() == value.KindID {
				id = idVal.ID()
			}
			ids = append(ids, id)
		}
	}

	count := 0
	err = r.coord.Execute(ctx, func(ctx context.Context, tx *txn.Transaction) error {
		for _, id := range ids {
			if err := r.resolver.CheckDeleteConstraints(meta.TableName, id); err != nil {
				return err
			}
			if _, err := tx.Delete(ctx, meta.TableName, id); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Delete removes one entity by id, enforcing delete constraints.
func (r *Repository) Delete(ctx context.Context, entityType, id string) error {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return err
	}
	return r.coord.Execute(ctx, func(ctx context.Context, tx *txn.Transaction) error {
		if err := r.resolver.CheckDeleteConstraints(meta.TableName, id); err != nil {
			return err
		}
		_, err := tx.Delete(ctx, meta.TableName, id)
		return err
	})
}

// DeleteEntityCascade removes id and recursively removes every row (in any
// registered table) that references it directly or transitively, plus the
// relationship-table rows it participates in on either side. Unlike
// Delete, this never raises DeleteConstraint: dependents are removed
// instead of blocking the delete.
func (r *Repository) DeleteEntityCascade(ctx context.Context, entityType, id string) error {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return err
	}
	return r.coord.Execute(ctx, func(ctx context.Context, tx *txn.Transaction) error {
		visited := make(map[string]bool)
		return r.cascadeDelete(ctx, tx, meta.TableName, id, visited)
	})
}

func (r *Repository) cascadeDelete(ctx context.Context, tx *txn.Transaction, table, id string, visited map[string]bool) error {
	key := table + "#" + id
	if visited[key] {
		return nil
	}
	visited[key] = true

	for _, typeName := range r.registry.Types() {
		meta, _ := r.registry.ByType(typeName)
		entries, err := tx.Entries(meta.TableName)
		if err != nil {
			return err
		}
		for field, ref := range meta.References {
			if ref.TargetTable != table {
				continue
			}
			for rowID, row := range entries {
				if v, ok := row[field]; ok && !v.IsNull() && v.ID() == id {
					if err := r.cascadeDelete(ctx, tx, meta.TableName, rowID, visited); err != nil {
						return err
					}
				}
			}
		}
		for _, rel := range meta.Relationships {
			relEntries, err := tx.Entries(rel.RelTable)
			if err != nil {
				continue
			}
			for relRowID, relRow := range relEntries {
				srcMatch := rel.SourceTable == table && relRow[rel.SourceField].ID() == id
				tgtMatch := rel.TargetTable == table && relRow[rel.TargetField].ID() == id
				if srcMatch || tgtMatch {
					if _, err := tx.Delete(ctx, rel.RelTable, relRowID); err != nil {
						return err
					}
				}
			}
		}
	}

	_, err := tx.Delete(ctx, table, id)
	return err
}

// Store inserts (id == "") or overwrites (id != "") an entity, validating
// constraints, storing any nested sub-entity depth-first, and synchronizing
// any list-of-reference fields against their derived relationship tables.
// Returns the id written.
func (r *Repository) Store(ctx context.Context, entityType, id string, fields map[string]any) (string, error) {
	var resultID string
	err := r.coord.Execute(ctx, func(ctx context.Context, tx *txn.Transaction) error {
		var err error
		resultID, err = r.storeWithTx(ctx, tx, entityType, id, fields)
		return err
	})
	if err != nil {
		return "", err
	}
	return resultID, nil
}

// storeWithTx performs one entity write against an already-open
// transaction, recursing into nested reference fields (a map instead of a
// bare id) so a whole entity graph is stored atomically in one Execute
// call. tx.Put/tx.Delete drive every write through the backend adapter.
func (r *Repository) storeWithTx(ctx context.Context, tx *txn.Transaction, entityType, id string, fields map[string]any) (string, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return "", err
	}

	resultID := id
	if resultID == "" {
		allocated, err := r.store.NextID(meta.TableName)
		if err != nil {
			return "", err
		}
		resultID = allocated
	}

	row := value.Record{}
	var relListFields []string
	for _, f := range meta.Fields {
		if f.Name == meta.IDField {
			row[f.Name] = value.Text(resultID)
			continue
		}
		if f.Type == schema.TypeRefList {
			relListFields = append(relListFields, f.Name)
			continue
		}

		raw, present := fields[f.Name]

		if f.Type == schema.TypeRef {
			if present {
				if nested, ok := raw.(map[string]any); ok {
					nestedID, err := r.storeNested(ctx, tx, f.RefType, nested)
					if err != nil {
						return "", err
					}
					raw = nestedID
				}
			}
		}

		if !present {
			if f.Constraints.Required {
				return "", errs.FieldInvalid(errs.InvalidRequired, meta.TableName, f.Name, "")
			}
			row[f.Name] = value.Null()
			continue
		}
		v, err := value.FromJSON(f.Type.ValueKind(), raw)
		if err != nil {
			return "", errs.TypeMismatch(meta.TableName, f.Name, err.Error())
		}
		if err := validateField(meta.TableName, f, v); err != nil {
			return "", err
		}
		if f.Constraints.Unique {
			if err := r.resolver.CheckUnique(meta.TableName, f.Name, v, resultID); err != nil {
				return "", err
			}
		}
		row[f.Name] = v
	}

	if _, err := tx.Put(ctx, meta.TableName, resultID, row); err != nil {
		return "", err
	}

	for _, field := range relListFields {
		raw, present := fields[field]
		if !present {
			continue
		}
		fdef, _ := meta.Field(field)
		arr, ok := raw.([]any)
		if !ok {
			return "", errs.TypeMismatch(meta.TableName, field, "expected list of id or nested object")
		}
		ids := make([]string, 0, len(arr))
		for _, el := range arr {
			switch v := el.(type) {
			case string:
				ids = append(ids, v)
			case map[string]any:
				nestedID, err := r.storeNested(ctx, tx, fdef.RefType, v)
				if err != nil {
					return "", err
				}
				ids = append(ids, nestedID)
			default:
				return "", errs.TypeMismatch(meta.TableName, field, "expected id string or nested object in list")
			}
		}
		if err := r.resolver.SyncRelationships(meta.TableName, resultID, field, ids); err != nil {
			return "", err
		}
		row[field] = value.IDList(ids)
	}

	// Rewrite the row so it carries the list-of-reference ids just synced.
	if len(relListFields) > 0 {
		if _, err := tx.Put(ctx, meta.TableName, resultID, row); err != nil {
			return "", err
		}
	}
	return resultID, nil
}

// storeNested resolves nested's keys against targetType's declared fields
// (same case-insensitive rules as StoreFromJSON) and stores it depth-first,
// within the same transaction, returning its id.
func (r *Repository) storeNested(ctx context.Context, tx *txn.Transaction, targetType string, nested map[string]any) (string, error) {
	targetMeta, err := r.metaFor(targetType)
	if err != nil {
		return "", err
	}
	resolved := schema.BuildRecordFromMap(targetMeta.FieldNames(), nested)
	id, _ := resolved[targetMeta.IDField].(string)
	return r.storeWithTx(ctx, tx, targetType, id, resolved)
}

// StoreFromJSON resolves raw's keys against entityType's declared fields
// (case-insensitive, then simplified) before storing. Nested sub-entities
// (a map value under a reference field, instead of a bare id) are resolved
// and stored the same way, recursively.
func (r *Repository) StoreFromJSON(ctx context.Context, entityType, id string, raw map[string]any) (string, error) {
	meta, err := r.metaFor(entityType)
	if err != nil {
		return "", err
	}
	resolved := schema.BuildRecordFromMap(meta.FieldNames(), raw)
	return r.Store(ctx, entityType, id, resolved)
}

func validateField(table string, f schema.Field, v value.Value) error {
	if f.Constraints.Required && v.IsNull() {
		return errs.FieldInvalid(errs.InvalidRequired, table, f.Name, "")
	}
	if f.Type == schema.TypeText && f.Constraints.MaxLength > 0 && len(v.Text()) > f.Constraints.MaxLength {
		return errs.FieldInvalid(errs.InvalidMaximum, table, f.Name, v.Text())
	}
	if f.Type == schema.TypeText && f.Constraints.Pattern != "" {
		re, err := regexp.Compile(f.Constraints.Pattern)
		if err != nil {
			return errs.TypeMismatch(table, f.Name, fmt.Sprintf("invalid pattern constraint: %v", err))
		}
		if !re.MatchString(v.Text()) {
			return errs.FieldInvalid(errs.InvalidRegexp, table, f.Name, v.Text())
		}
	}
	if f.Type == schema.TypeEnum {
		found := false
		for _, allowed := range f.EnumValues {
			if allowed == v.Text() {
				found = true
				break
			}
		}
		if !found {
			return errs.FieldInvalid(errs.InvalidType, table, f.Name, v.Text())
		}
	}
	return nil
}
