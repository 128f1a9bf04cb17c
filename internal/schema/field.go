// Package schema implements entity metadata, the schema registry, and
// case-insensitive/simplified field-name resolution (§4.2).
package schema

import (
	"strings"

	"github.com/beccauwu/bones-api/internal/value"
)

// FieldType names one of the primitive or structural field types a Field
// can declare.
type FieldType int

const (
	TypeBool FieldType = iota
	TypeInt
	TypeDecimal
	TypeFloat
	TypeText
	TypeTimestamp
	TypeTimeOfDay
	TypeBytes
	TypeEnum
	TypeRef        // ref<T>: a foreign key to another entity
	TypeRefList    // list<ref<T>>: a many-to-many relationship
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDecimal:
		return "decimal"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeTimestamp:
		return "timestamp"
	case TypeTimeOfDay:
		return "time_of_day"
	case TypeBytes:
		return "bytes"
	case TypeEnum:
		return "enum"
	case TypeRef:
		return "ref"
	case TypeRefList:
		return "list<ref>"
	default:
		return "unknown"
	}
}

// ValueKind maps a FieldType to the value.Kind used to store it, for the
// scalar (non-reference) types.
func (t FieldType) ValueKind() value.Kind {
	switch t {
	case TypeBool:
		return value.KindBool
	case TypeInt:
		return value.KindInt
	case TypeDecimal:
		return value.KindDecimal
	case TypeFloat:
		return value.KindFloat
	case TypeText, TypeEnum:
		return value.KindText
	case TypeTimestamp:
		return value.KindTimestamp
	case TypeTimeOfDay:
		return value.KindTimeOfDay
	case TypeBytes:
		return value.KindBytes
	case TypeRef:
		return value.KindID
	case TypeRefList:
		return value.KindIDList
	default:
		return value.KindNull
	}
}

// Constraints are the per-field validation rules enforced on store (§4.4,
// §7: required, unique, maximum length, pattern).
type Constraints struct {
	Required  bool
	Unique    bool
	MaxLength int    // 0 means unbounded
	Pattern   string // regexp, empty means unconstrained
}

// Field describes one declared field of an entity type.
type Field struct {
	Name        string
	Type        FieldType
	EnumValues  []string // only meaningful when Type == TypeEnum
	RefType     string   // target entity type name, for TypeRef/TypeRefList
	Constraints Constraints
}

// simplify lowercases s and strips everything but letters and digits, used
// as the last-resort match in field-name resolution.
func simplify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolveFieldName finds which declared field name a raw external key
// (e.g. a map key from JSON) refers to, trying in order: exact match,
// lowercase match, then simplified match. Returns "" if none match.
func ResolveFieldName(fields []string, raw string) string {
	for _, f := range fields {
		if f == raw {
			return f
		}
	}
	lower := strings.ToLower(raw)
	for _, f := range fields {
		if strings.ToLower(f) == lower {
			return f
		}
	}
	simp := simplify(raw)
	for _, f := range fields {
		if simplify(f) == simp {
			return f
		}
	}
	return ""
}

// BuildRecordFromMap resolves every key in raw against fields using
// ResolveFieldName and returns a map keyed by the canonical declared field
// name. Keys that resolve to no declared field are dropped.
func BuildRecordFromMap(fields []string, raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if canonical := ResolveFieldName(fields, k); canonical != "" {
			out[canonical] = v
		}
	}
	return out
}
