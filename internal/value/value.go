// Package value implements the tagged-union row value carried by every
// TableRecord field: null, bool, integer, decimal, float, text, timestamp,
// time-of-day, binary blob, identifier, list of identifiers, or list of
// records.
package value

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindFloat
	KindText
	KindTimestamp
	KindTimeOfDay
	KindBytes
	KindID
	KindIDList
	KindRecordList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindTimeOfDay:
		return "time_of_day"
	case KindBytes:
		return "bytes"
	case KindID:
		return "id"
	case KindIDList:
		return "list<id>"
	case KindRecordList:
		return "list<record>"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// TimeOfDay is a wall-clock time with no date component, serialized as
// HH:MM:SS.
type TimeOfDay struct {
	Hour, Minute, Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Value is a single field value inside a TableRecord. The zero Value is
// KindNull.
type Value struct {
	kind       Kind
	boolVal    bool
	intVal     int64
	decVal     decimal.Decimal
	floatVal   float64
	textVal    string
	timeVal    time.Time
	todVal     TimeOfDay
	bytesVal   []byte
	idVal      string
	idListVal  []string
	recListVal []Record
}

// Record is an ordered mapping field name -> Value, backing TableRecord.
// Field order is owned by the schema, not the record; Record stores values
// keyed by field name exactly as written and returns them in a
// caller-supplied order via Ordered.
type Record map[string]Value

// Ordered returns the record's values in the given field order. Missing
// fields are returned as Null.
func (r Record) Ordered(fields []string) []Value {
	out := make([]Value, len(fields))
	for i, f := range fields {
		out[i] = r[f]
	}
	return out
}

// Clone returns a shallow copy of the record (values are immutable so this
// is sufficient for copy-on-write semantics in the table store).
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether two records hold equal values for every field name
// present in either record.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, boolVal: b} }
func Int(i int64) Value          { return Value{kind: KindInt, intVal: i} }
func Decimal(d decimal.Decimal) Value { return Value{kind: KindDecimal, decVal: d} }
func Float(f float64) Value      { return Value{kind: KindFloat, floatVal: f} }
func Text(s string) Value        { return Value{kind: KindText, textVal: s} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, timeVal: t} }
func TimeOfDayValue(t TimeOfDay) Value { return Value{kind: KindTimeOfDay, todVal: t} }
func Bytes(b []byte) Value       { return Value{kind: KindBytes, bytesVal: b} }
func ID(id string) Value         { return Value{kind: KindID, idVal: id} }
func IDList(ids []string) Value  { return Value{kind: KindIDList, idListVal: ids} }
func RecordList(rs []Record) Value { return Value{kind: KindRecordList, recListVal: rs} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Bool() bool      { return v.boolVal }
func (v Value) Int() int64      { return v.intVal }
func (v Value) Decimal() decimal.Decimal { return v.decVal }
func (v Value) Float() float64  { return v.floatVal }
func (v Value) Text() string    { return v.textVal }
func (v Value) Timestamp() time.Time { return v.timeVal }
func (v Value) TimeOfDay() TimeOfDay { return v.todVal }
func (v Value) Bytes() []byte   { return v.bytesVal }
func (v Value) ID() string      { return v.idVal }
func (v Value) IDList() []string { return v.idListVal }
func (v Value) RecordList() []Record { return v.recListVal }

// IsList reports whether v holds a list-valued variant (IDList or
// RecordList); the condition engine treats these existentially.
func (v Value) IsList() bool {
	return v.kind == KindIDList || v.kind == KindRecordList
}

// Len returns the number of elements for a list-valued Value, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindIDList:
		return len(v.idListVal)
	case KindRecordList:
		return len(v.recListVal)
	default:
		return 0
	}
}

// Equal compares two values for equality within the same kind. Values of
// different kinds are never equal except null == null.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindDecimal:
		return v.decVal.Equal(other.decVal)
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindText:
		return v.textVal == other.textVal
	case KindTimestamp:
		return v.timeVal.Equal(other.timeVal)
	case KindTimeOfDay:
		return v.todVal == other.todVal
	case KindBytes:
		return string(v.bytesVal) == string(other.bytesVal)
	case KindID:
		return v.idVal == other.idVal
	case KindIDList:
		return equalStringSets(v.idListVal, other.idListVal)
	case KindRecordList:
		if len(v.recListVal) != len(other.recListVal) {
			return false
		}
		for i := range v.recListVal {
			if !v.recListVal[i].Equal(other.recListVal[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Compare orders two values of the same kind for <, <=, >, >= comparisons.
// Returns (0, false) when the kinds are not ordered against each other.
func (v Value) Compare(other Value) (int, bool) {
	if v.kind != other.kind {
		return 0, false
	}
	switch v.kind {
	case KindInt:
		return cmpInt64(v.intVal, other.intVal), true
	case KindFloat:
		return cmpFloat64(v.floatVal, other.floatVal), true
	case KindDecimal:
		return v.decVal.Cmp(other.decVal), true
	case KindText:
		return cmpString(v.textVal, other.textVal), true
	case KindTimestamp:
		switch {
		case v.timeVal.Before(other.timeVal):
			return -1, true
		case v.timeVal.After(other.timeVal):
			return 1, true
		default:
			return 0, true
		}
	case KindTimeOfDay:
		av := v.todVal.Hour*3600 + v.todVal.Minute*60 + v.todVal.Second
		bv := other.todVal.Hour*3600 + other.todVal.Minute*60 + other.todVal.Second
		return cmpInt64(int64(av), int64(bv)), true
	default:
		return 0, false
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
