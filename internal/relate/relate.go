// Package relate implements foreign-key materialization on read, many-to-many
// relationship-table synchronization on write, and the referential-integrity
// checks the store itself does not enforce (unique fields, delete
// constraints). It sits between internal/store and internal/repo.
package relate

import (
	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/value"
)

// Depth controls how many levels of reference a Resolve call materializes.
// DepthShallow only resolves the requested entity's direct references;
// DepthEagerAll recursively resolves every reachable reference.
type Depth int

const (
	DepthShallow Depth = iota
	DepthEagerAll
)

// Resolver materializes references and relationship lists when reading rows
// out of the store, and keeps relationship tables consistent when writing.
type Resolver struct {
	registry *schema.Registry
	store    *store.Store
}

// New creates a Resolver over registry and store.
func New(registry *schema.Registry, st *store.Store) *Resolver {
	return &Resolver{registry: registry, store: st}
}

// Materialized is a row with every reference/relationship field replaced by
// a nested value.RecordList. A single reference whose target is dangling
// (missing from the store) is left as a bare id; dangling entries of a
// relationship list are omitted from that list.
type Materialized = value.Record

// Resolve returns row's fields with references and relationship lists
// expanded according to depth. A single reference whose target id is set
// but whose row does not exist is left as the bare id value. A
// relationship-list id whose row does not exist is left out of the
// resulting record list.
func (r *Resolver) Resolve(table string, row value.Record, depth Depth) (Materialized, error) {
	meta, ok := r.registry.ByTable(table)
	if !ok {
		return nil, errs.UnknownTable(table)
	}
	out := row.Clone()

	for field, ref := range meta.References {
		v, ok := out[field]
		if !ok || v.IsNull() {
			continue
		}
		targetRow, found, err := r.store.Get(ref.TargetTable, v.ID())
		if err != nil {
			return nil, err
		}
		if !found {
			continue // dangling: leave the bare id in place
		}
		if depth == DepthEagerAll {
			targetRow, err = r.Resolve(ref.TargetTable, targetRow, depth)
			if err != nil {
				return nil, err
			}
		}
		out[field] = value.RecordList([]value.Record{targetRow})
	}

	for field, rel := range meta.Relationships {
		v, ok := out[field]
		if !ok {
			continue
		}
		var records []value.Record
		for _, targetID := range v.IDList() {
			targetRow, found, err := r.store.Get(rel.TargetTable, targetID)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			if depth == DepthEagerAll {
				targetRow, err = r.Resolve(rel.TargetTable, targetRow, depth)
				if err != nil {
					return nil, err
				}
			}
			records = append(records, targetRow)
		}
		out[field] = value.RecordList(records)
	}

	return out, nil
}

// CheckUnique scans every live row in table and returns a FieldInvalid error
// if any row other than excludeID already holds value for field. This is a
// full-table scan, matching the in-memory store's lack of a secondary index.
func (r *Resolver) CheckUnique(table, field string, v value.Value, excludeID string) error {
	entries, err := r.store.Entries(table)
	if err != nil {
		return err
	}
	for id, row := range entries {
		if id == excludeID {
			continue
		}
		if existing, ok := row[field]; ok && existing.Equal(v) {
			jv, _ := v.ToJSON()
			return errs.FieldInvalid(errs.InvalidUnique, table, field, toDisplayString(jv))
		}
	}
	return nil
}

func toDisplayString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// CheckDeleteConstraints scans every registered table (table itself
// included) for a reference
// (single or list) pointing at id in table, returning a DeleteConstraint
// error naming the first offending row found.
func (r *Resolver) CheckDeleteConstraints(table, id string) error {
	for _, candidateType := range r.registry.Types() {
		meta, _ := r.registry.ByType(candidateType)
		entries, err := r.store.Entries(meta.TableName)
		if err != nil {
			return err
		}
		for field, ref := range meta.References {
			if ref.TargetTable != table {
				continue
			}
			for rowID, row := range entries {
				if v, ok := row[field]; ok && !v.IsNull() && v.ID() == id {
					return errs.DeleteConstraint(meta.TableName, rowID, field, id)
				}
			}
		}
		for field, rel := range meta.Relationships {
			if rel.TargetTable != table {
				continue
			}
			for rowID, row := range entries {
				if v, ok := row[field]; ok {
					for _, rid := range v.IDList() {
						if rid == id {
							return errs.DeleteConstraint(meta.TableName, rowID, field, id)
						}
					}
				}
			}
		}
	}
	return nil
}

// SyncRelationships diffs oldIDs against newIDs for a list-of-reference
// field and writes/removes the corresponding rows in the derived
// relationship table, deduping by full-field equality so re-adding an id
// that was never actually removed is a no-op.
func (r *Resolver) SyncRelationships(table, sourceID, field string, newIDs []string) error {
	meta, ok := r.registry.ByTable(table)
	if !ok {
		return errs.UnknownTable(table)
	}
	rel, ok := meta.Relationships[field]
	if !ok {
		return errs.FieldNotFound(table, field)
	}

	want := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		want[id] = true
	}

	entries, err := r.store.Entries(rel.RelTable)
	if err != nil {
		return err
	}
	have := make(map[string]string) // targetID -> relationship row id
	for rowID, row := range entries {
		if src, ok := row[rel.SourceField]; ok && src.ID() == sourceID {
			if tgt, ok := row[rel.TargetField]; ok {
				have[tgt.ID()] = rowID
			}
		}
	}

	for targetID, rowID := range have {
		if !want[targetID] {
			if _, err := r.store.Delete(rel.RelTable, rowID); err != nil {
				return err
			}
		}
	}
	for targetID := range want {
		if _, exists := have[targetID]; exists {
			continue
		}
		row := value.Record{
			rel.SourceField: value.ID(sourceID),
			rel.TargetField: value.ID(targetID),
		}
		rowID := store.ContentHashID(row, []string{rel.SourceField, rel.TargetField})
		if _, err := r.store.Put(rel.RelTable, rowID, row); err != nil {
			return err
		}
	}
	return nil
}
