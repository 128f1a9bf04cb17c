package schema

import "fmt"

// Reference describes a foreign key: the field on the source entity, the
// table it points at, and the target's identifier field/type.
type Reference struct {
	Field       string
	TargetTable string
	TargetField string
	TargetType  FieldType
}

// Relationship describes an auto-derived many-to-many join table produced
// by a list<ref<T>> field (§4.2).
type Relationship struct {
	RelTable    string // "<source>__<field>__rel"
	SourceField string // "<source_table>__<source.id_field>"
	SourceTable string
	TargetField string // "<target_table>__<target.id_field>"
	TargetTable string
}

// Metadata describes one entity type: its identifier field, its ordered
// field list, and the derived reference/relationship maps. It is immutable
// once registered.
type Metadata struct {
	EntityType string
	TableName  string
	IDField    string
	Fields     []Field

	References    map[string]Reference    // field name -> Reference
	Relationships map[string]Relationship // field name -> Relationship
}

// FieldNames returns the ordered list of declared field names.
func (m *Metadata) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by exact declared name.
func (m *Metadata) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Registry maps entity types and table names to their Metadata, deriving
// relationship tables from list<ref<T>> fields on registration.
type Registry struct {
	byType  map[string]*Metadata
	byTable map[string]*Metadata
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[string]*Metadata),
		byTable: make(map[string]*Metadata),
	}
}

// Register adds an entity type's schema, deriving its References and
// Relationships maps in place. It must be called for every referenced
// target type before types that reference it, since relationship-table
// names embed the target's table/id-field.
func (r *Registry) Register(m *Metadata) error {
	if m.EntityType == "" || m.TableName == "" || m.IDField == "" {
		return fmt.Errorf("schema: entity type, table name, and id field are required")
	}
	if _, ok := m.Field(m.IDField); !ok {
		return fmt.Errorf("schema: %s id field %q is not a declared field", m.EntityType, m.IDField)
	}
	if _, exists := r.byType[m.EntityType]; exists {
		return fmt.Errorf("schema: entity type %q already registered", m.EntityType)
	}

	m.References = make(map[string]Reference)
	m.Relationships = make(map[string]Relationship)

	for _, f := range m.Fields {
		switch f.Type {
		case TypeRef:
			target, ok := r.byType[f.RefType]
			if !ok {
				return fmt.Errorf("schema: %s.%s references unregistered type %q", m.EntityType, f.Name, f.RefType)
			}
			m.References[f.Name] = Reference{
				Field:       f.Name,
				TargetTable: target.TableName,
				TargetField: target.IDField,
				TargetType:  mustField(target, target.IDField).Type,
			}
		case TypeRefList:
			target, ok := r.byType[f.RefType]
			if !ok {
				return fmt.Errorf("schema: %s.%s references unregistered type %q", m.EntityType, f.Name, f.RefType)
			}
			m.Relationships[f.Name] = Relationship{
				RelTable:    fmt.Sprintf("%s__%s__rel", m.TableName, f.Name),
				SourceTable: m.TableName,
				SourceField: fmt.Sprintf("%s__%s", m.TableName, m.IDField),
				TargetTable: target.TableName,
				TargetField: fmt.Sprintf("%s__%s", target.TableName, target.IDField),
			}
		}
	}

	r.byType[m.EntityType] = m
	r.byTable[m.TableName] = m
	return nil
}

func mustField(m *Metadata, name string) Field {
	f, ok := m.Field(name)
	if !ok {
		// id_field is validated at registration time; this only fires on
		// a malformed Metadata constructed outside Register.
		return Field{Name: name, Type: TypeText}
	}
	return f
}

// ByType looks up metadata by entity type name.
func (r *Registry) ByType(entityType string) (*Metadata, bool) {
	m, ok := r.byType[entityType]
	return m, ok
}

// ByTable looks up metadata by table name.
func (r *Registry) ByTable(table string) (*Metadata, bool) {
	m, ok := r.byTable[table]
	return m, ok
}

// Types returns every registered entity type name.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}

// IsRelationshipTable reports whether table is an auto-derived many-to-many
// join table belonging to any registered entity, used by the store to
// decide whether an unknown table may be auto-created (§4.1).
func (r *Registry) IsRelationshipTable(table string) bool {
	for _, m := range r.byTable {
		for _, rel := range m.Relationships {
			if rel.RelTable == table {
				return true
			}
		}
	}
	return false
}
