// Package ref implements EntityReference and EntityReferenceList: lazy,
// fetch-hook-backed handles to a related entity (or list of entities) that
// may be known only by id, only by a materialized row, by both, or by
// neither.
package ref

import (
	"context"
	"fmt"

	"github.com/beccauwu/bones-api/internal/value"
)

// FetchFunc resolves an entity by id and type. It returns (row, false, nil)
// when no such entity exists; a non-nil error aborts the fetch but never
// the enclosing transaction (mirrors errs.FetchFailed).
type FetchFunc func(ctx context.Context, id, entityType string) (value.Record, bool, error)

// Reference is a single EntityReference field value. Its zero value is the
// null state (neither id nor entity known).
type Reference struct {
	entityType string
	fetch      FetchFunc

	id        string
	hasID     bool
	entity    value.Record
	hasEntity bool
}

// New creates an empty (null) Reference for entityType, using fetch to
// resolve ids to rows on demand.
func New(entityType string, fetch FetchFunc) *Reference {
	return &Reference{entityType: entityType, fetch: fetch}
}

// State names one of the reference's four possible states.
type State int

const (
	StateNull State = iota
	StateIDOnly
	StateEntityOnly
	StateBoth
)

// State reports which of the four states the reference currently holds.
func (r *Reference) State() State {
	switch {
	case r.hasID && r.hasEntity:
		return StateBoth
	case r.hasID:
		return StateIDOnly
	case r.hasEntity:
		return StateEntityOnly
	default:
		return StateNull
	}
}

// SetID points the reference at id, discarding any previously materialized
// entity: changing the id disposes of the stale row rather than leaving it
// attached to a now-unrelated id.
func (r *Reference) SetID(id string) {
	r.id = id
	r.hasID = id != ""
	r.hasEntity = false
	r.entity = nil
}

// SetEntity attaches a materialized row and its id directly, skipping a
// fetch.
func (r *Reference) SetEntity(id string, row value.Record) {
	r.id = id
	r.hasID = id != ""
	r.entity = row
	r.hasEntity = row != nil
}

// Clear resets the reference to the null state.
func (r *Reference) Clear() {
	r.id = ""
	r.hasID = false
	r.entity = nil
	r.hasEntity = false
}

// ID returns the known id, if any.
func (r *Reference) ID() (string, bool) { return r.id, r.hasID }

// Get returns the materialized entity, fetching it via the hook if the
// reference only knows an id. The fetched result is cached on the
// Reference. Returns (nil, false, nil) for the null state or a dangling id.
func (r *Reference) Get(ctx context.Context) (value.Record, bool, error) {
	if r.hasEntity {
		return r.entity, true, nil
	}
	if !r.hasID {
		return nil, false, nil
	}
	if r.fetch == nil {
		return nil, false, fmt.Errorf("ref: no fetch hook configured for type %q", r.entityType)
	}
	row, found, err := r.fetch(ctx, r.id, r.entityType)
	if err != nil {
		return nil, false, err
	}
	if found {
		r.entity = row
		r.hasEntity = true
	}
	return row, found, nil
}

// Refresh discards any cached entity and re-fetches it from the hook on the
// next Get.
func (r *Reference) Refresh() {
	r.entity = nil
	r.hasEntity = false
}

// Equal compares two references: both null are equal; otherwise they are
// equal only if both have a known id and the ids match.
func (r *Reference) Equal(other *Reference) bool {
	if r.State() == StateNull && other.State() == StateNull {
		return true
	}
	if r.hasID && other.hasID {
		return r.id == other.id
	}
	return false
}

// ToJSON renders the reference in the wire shape
// {"EntityReference": entityType, "id": id-or-null}, adding an "entity" key
// with the materialized row whenever one is known (EntityOnly or Both
// state).
func (r *Reference) ToJSON() (map[string]any, error) {
	var id any
	if r.hasID {
		id = r.id
	}
	out := map[string]any{"EntityReference": r.entityType, "id": id}
	if r.hasEntity {
		entity, err := recordToJSON(r.entity)
		if err != nil {
			return nil, err
		}
		out["entity"] = entity
	}
	return out, nil
}

func recordToJSON(row value.Record) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		jv, err := v.ToJSON()
		if err != nil {
			return nil, err
		}
		out[k] = jv
	}
	return out, nil
}

// List is an EntityReferenceList: parallel ids/entities, where an entity is
// only fetched for index i on demand via GetAt.
type List struct {
	entityType string
	fetch      FetchFunc
	ids        []string
	entities   []value.Record
	loaded     []bool
}

// NewList creates an empty EntityReferenceList for entityType.
func NewList(entityType string, fetch FetchFunc) *List {
	return &List{entityType: entityType, fetch: fetch}
}

// SetIDs replaces the list's ids, discarding any cached entities (mirrors
// Reference.SetID's disposal rule).
func (l *List) SetIDs(ids []string) {
	l.ids = append([]string(nil), ids...)
	l.entities = make([]value.Record, len(ids))
	l.loaded = make([]bool, len(ids))
}

// IDs returns the list's known ids.
func (l *List) IDs() []string { return l.ids }

// Len returns the number of entries in the list.
func (l *List) Len() int { return len(l.ids) }

// GetAt fetches (and caches) the entity at index i.
func (l *List) GetAt(ctx context.Context, i int) (value.Record, bool, error) {
	if i < 0 || i >= len(l.ids) {
		return nil, false, fmt.Errorf("ref: index %d out of range (len %d)", i, len(l.ids))
	}
	if l.loaded[i] {
		return l.entities[i], l.entities[i] != nil, nil
	}
	if l.fetch == nil {
		return nil, false, fmt.Errorf("ref: no fetch hook configured for type %q", l.entityType)
	}
	row, found, err := l.fetch(ctx, l.ids[i], l.entityType)
	if err != nil {
		return nil, false, err
	}
	l.loaded[i] = true
	if found {
		l.entities[i] = row
	}
	return row, found, nil
}

// ToJSON renders the list in the wire shape
// {"EntityReferenceList": entityType, "ids": [...], "entities": [...]}
// (entities only includes indexes already fetched/cached; others are null).
func (l *List) ToJSON() (map[string]any, error) {
	entities := make([]any, len(l.ids))
	for i, loaded := range l.loaded {
		if loaded && l.entities[i] != nil {
			jv, err := recordToJSON(l.entities[i])
			if err != nil {
				return nil, err
			}
			entities[i] = jv
		}
	}
	return map[string]any{
		"EntityReferenceList": l.entityType,
		"ids":                 l.ids,
		"entities":            entities,
	}, nil
}
