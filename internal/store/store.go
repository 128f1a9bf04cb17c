package store

import (
	"sync"

	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/value"
)

// Store is the versioned table store for an entire registry: one Table per
// entity type plus one per auto-derived relationship. Tables are created
// lazily on first use (read or write), except that an unrecognized table name is rejected
// unless the schema registry marks it as a relationship table (§4.1).
type Store struct {
	mu       sync.RWMutex
	registry *schema.Registry
	tables   map[string]*Table
}

// New creates a table store bound to a schema registry.
func New(registry *schema.Registry) *Store {
	return &Store{registry: registry, tables: make(map[string]*Table)}
}

// table returns the Table for name, creating it if name is a registered
// entity table or a derived relationship table. Returns UnknownTable
// otherwise.
func (s *Store) table(name string) (*Table, error) {
	s.mu.RLock()
	t, ok := s.tables[name]
	s.mu.RUnlock()
	if ok {
		return t, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	if meta, ok := s.registry.ByTable(name); ok {
		t := newTable(name, meta.FieldNames(), false)
		s.tables[name] = t
		return t, nil
	}
	if s.registry.IsRelationshipTable(name) {
		fields := relationshipFields(s.registry, name)
		t := newTable(name, fields, true)
		s.tables[name] = t
		return t, nil
	}
	return nil, errUnknownTable(name)
}

func relationshipFields(registry *schema.Registry, relTable string) []string {
	for _, typeName := range allEntityTypes(registry) {
		meta, _ := registry.ByType(typeName)
		for _, rel := range meta.Relationships {
			if rel.RelTable == relTable {
				return []string{rel.SourceField, rel.TargetField}
			}
		}
	}
	return nil
}

func allEntityTypes(registry *schema.Registry) []string {
	var names []string
	// Relationship tables are resolved via IsRelationshipTable first, so by
	// the time we get here some registered entity owns it; Registry.Types
	// enumerates the candidates.
	_ = names
	return registry.Types()
}

// Put writes row at id in table, allocating a version and returning it.
func (s *Store) Put(table, id string, row value.Record) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return t.Put(id, row), nil
}

// Get reads the current row at id in table.
func (s *Store) Get(table, id string) (value.Record, bool, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, false, err
	}
	row, ok := t.Get(id)
	return row, ok, nil
}

// Delete tombstones id in table. Returns false if the row did not exist.
func (s *Store) Delete(table, id string) (bool, error) {
	t, err := s.table(table)
	if err != nil {
		return false, err
	}
	return t.Delete(id), nil
}

// Entries returns every live row in table, keyed by id.
func (s *Store) Entries(table string) (map[string]value.Record, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return t.Entries(), nil
}

// NextID allocates the next counter-keyed id for table.
func (s *Store) NextID(table string) (string, error) {
	t, err := s.table(table)
	if err != nil {
		return "", err
	}
	if t.IsRelationship {
		return "", errs.TypeMismatch(table, "", "relationship tables are content-hash keyed, not counter keyed")
	}
	return t.NextID(), nil
}

// Version returns table's current version counter.
func (s *Store) Version(table string) (int64, error) {
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return t.Version(), nil
}

// Versions returns every version number table changed at that is still in
// its diff history (not yet consolidated).
func (s *Store) Versions(table string) ([]int64, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return t.Versions(), nil
}

// Consolidate folds table's diff history up to and including upTo into its
// base snapshot.
func (s *Store) Consolidate(table string, upTo int64) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.Consolidate(upTo)
	return nil
}

// Rollback reverts table to the state it held as of asOf, discarding all
// later diff entries.
func (s *Store) Rollback(table string, asOf int64) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.Rollback(asOf)
	return nil
}

// Fields returns the declared field order for table.
func (s *Store) Fields(table string) ([]string, error) {
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	return t.Fields, nil
}

// Tables returns every table name currently materialized in the store
// (created lazily, so this omits tables never read or written).
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	return out
}
