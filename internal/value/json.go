package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ToJSON renders v per the wire rules in the external-interfaces contract:
// decimals as canonical strings, timestamps as milliseconds since epoch,
// times-of-day as HH:MM:SS, bytes base64, lists as JSON arrays.
func (v Value) ToJSON() (any, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindInt:
		return v.intVal, nil
	case KindDecimal:
		return v.decVal.String(), nil
	case KindFloat:
		return v.floatVal, nil
	case KindText:
		return v.textVal, nil
	case KindTimestamp:
		return v.timeVal.UnixMilli(), nil
	case KindTimeOfDay:
		return v.todVal.String(), nil
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.bytesVal), nil
	case KindID:
		return v.idVal, nil
	case KindIDList:
		return v.idListVal, nil
	case KindRecordList:
		out := make([]map[string]any, len(v.recListVal))
		for i, rec := range v.recListVal {
			m := make(map[string]any, len(rec))
			for k, fv := range rec {
				jv, err := fv.ToJSON()
				if err != nil {
					return nil, err
				}
				m[k] = jv
			}
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// FromJSON builds a Value of the requested kind from a decoded JSON value
// (the result of json.Unmarshal into an any). Returns TypeMismatch-shaped
// errors the caller can wrap with field/table context.
func FromJSON(kind Kind, raw any) (Value, error) {
	if raw == nil {
		return Null(), nil
	}
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return Value{}, fmt.Errorf("expected bool, got %T", raw)
		}
		return Bool(b), nil
	case KindInt:
		switch n := raw.(type) {
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return Value{}, fmt.Errorf("expected int, got %q", n)
			}
			return Int(i), nil
		case float64:
			return Int(int64(n)), nil
		default:
			return Value{}, fmt.Errorf("expected int, got %T", raw)
		}
	case KindDecimal:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected decimal string, got %T", raw)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		return Decimal(d), nil
	case KindFloat:
		switch n := raw.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, fmt.Errorf("expected float, got %q", n)
			}
			return Float(f), nil
		case float64:
			return Float(n), nil
		default:
			return Value{}, fmt.Errorf("expected float, got %T", raw)
		}
	case KindText:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected text, got %T", raw)
		}
		return Text(s), nil
	case KindTimestamp:
		switch n := raw.(type) {
		case json.Number:
			ms, err := n.Int64()
			if err != nil {
				return Value{}, fmt.Errorf("expected timestamp millis, got %q", n)
			}
			return Timestamp(time.UnixMilli(ms).UTC()), nil
		case int64:
			return Timestamp(time.UnixMilli(n).UTC()), nil
		case float64:
			return Timestamp(time.UnixMilli(int64(n)).UTC()), nil
		default:
			return Value{}, fmt.Errorf("expected timestamp millis, got %T", raw)
		}
	case KindTimeOfDay:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected time-of-day string, got %T", raw)
		}
		var h, m, sec int
		if _, err := fmt.Sscanf(s, "%02d:%02d:%02d", &h, &m, &sec); err != nil {
			return Value{}, fmt.Errorf("invalid time-of-day %q: %w", s, err)
		}
		return TimeOfDayValue(TimeOfDay{Hour: h, Minute: m, Second: sec}), nil
	case KindBytes:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected base64 bytes, got %T", raw)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("invalid base64 bytes: %w", err)
		}
		return Bytes(b), nil
	case KindID:
		s, ok := raw.(string)
		if !ok {
			return Value{}, fmt.Errorf("expected id, got %T", raw)
		}
		return ID(s), nil
	case KindIDList:
		arr, ok := raw.([]any)
		if !ok {
			return Value{}, fmt.Errorf("expected list of id, got %T", raw)
		}
		ids := make([]string, 0, len(arr))
		for _, el := range arr {
			s, ok := el.(string)
			if !ok {
				return Value{}, fmt.Errorf("expected id in list, got %T", el)
			}
			ids = append(ids, s)
		}
		return IDList(ids), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported kind %v for FromJSON", kind)
	}
}
