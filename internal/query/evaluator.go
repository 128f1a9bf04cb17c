package query

import (
	"fmt"
	"strings"

	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/value"
)

// Params supplies the concrete values bound to "?" and ":name" placeholders
// when evaluating a parsed condition.
type Params struct {
	Positional []value.Value
	Named      map[string]value.Value
}

// rowFetcher is the subset of the table store the evaluator needs: reading
// a single row by table/id, used to follow reference paths.
type rowFetcher interface {
	Get(table, id string) (value.Record, bool, error)
}

// Evaluator matches a parsed condition AST against a row, following
// reference and relationship fields for dotted paths and applying
// existential semantics whenever a path crosses a list-valued field.
type Evaluator struct {
	registry *schema.Registry
	store    rowFetcher
}

// NewEvaluator creates an Evaluator bound to a schema registry and the
// table store used to resolve reference paths.
func NewEvaluator(registry *schema.Registry, store rowFetcher) *Evaluator {
	return &Evaluator{registry: registry, store: store}
}

// Match reports whether row (identified by id in table) satisfies node
// under the given parameters.
func (e *Evaluator) Match(node Node, table, id string, row value.Record, params Params) (bool, error) {
	switch n := node.(type) {
	case *BoolNode:
		for _, term := range n.Terms {
			ok, err := e.Match(term, table, id, row, params)
			if err != nil {
				return false, err
			}
			if n.Op == BoolOr && ok {
				return true, nil
			}
			if n.Op == BoolAnd && !ok {
				return false, nil
			}
		}
		return n.Op == BoolAnd, nil
	case *ComparisonNode:
		return e.matchComparison(n, table, id, row, params)
	default:
		return false, fmt.Errorf("condition parse error: unknown node type %T", node)
	}
}

func (e *Evaluator) matchComparison(n *ComparisonNode, table, id string, row value.Record, params Params) (bool, error) {
	candidates, err := e.collectValues(table, row, id, n.Path)
	if err != nil {
		return false, err
	}

	if n.Op == OpIn || n.Val.IsList {
		targets, err := e.resolveList(n.Val, params)
		if err != nil {
			return false, err
		}
		for _, c := range candidates {
			for _, t := range targets {
				if membershipMatch(c, t) {
					return true, nil
				}
			}
		}
		return false, nil
	}

	target, err := e.resolveScalar(n.Val, params)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if evalSingle(c, n.Op, target) {
			return true, nil
		}
	}
	return false, nil
}

// collectValues walks path starting at (table, row, id), following ref and
// list-of-ref fields, and returns every leaf value reachable. A dangling
// reference (field holds an id with no corresponding row) simply yields no
// values for that branch rather than erroring, since dangling references
// must remain visible elsewhere but cannot be traversed into.
func (e *Evaluator) collectValues(table string, row value.Record, id string, path []string) ([]value.Value, error) {
	seg := path[0]
	rest := path[1:]

	if strings.HasPrefix(seg, "#") {
		if len(rest) != 0 {
			return nil, errs.ConditionParseError("#id pseudo-field cannot be followed by further path segments", nil)
		}
		return []value.Value{value.ID(id)}, nil
	}

	meta, ok := e.registry.ByTable(table)
	if !ok {
		return nil, errs.UnknownTable(table)
	}
	field, ok := meta.Field(seg)
	if !ok {
		return nil, errs.FieldNotFound(table, seg)
	}

	v, present := row[seg]
	if !present {
		v = value.Null()
	}

	if len(rest) == 0 {
		return []value.Value{v}, nil
	}

	switch field.Type {
	case schema.TypeRef:
		if v.IsNull() {
			return nil, nil
		}
		ref := meta.References[seg]
		targetRow, ok, err := e.store.Get(ref.TargetTable, v.ID())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return e.collectValues(ref.TargetTable, targetRow, v.ID(), rest)
	case schema.TypeRefList:
		rel := meta.Relationships[seg]
		var all []value.Value
		for _, targetID := range v.IDList() {
			targetRow, ok, err := e.store.Get(rel.TargetTable, targetID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			vals, err := e.collectValues(rel.TargetTable, targetRow, targetID, rest)
			if err != nil {
				return nil, err
			}
			all = append(all, vals...)
		}
		return all, nil
	default:
		return nil, errs.TypeMismatch(table, seg, "path continues through a non-reference field")
	}
}

func (e *Evaluator) resolveScalar(ref ValueRef, params Params) (value.Value, error) {
	switch ref.Kind {
	case RefLiteral:
		return ref.Literal, nil
	case RefPositional:
		idx := ref.Positional - 1
		if idx < 0 || idx >= len(params.Positional) {
			return value.Value{}, errs.ConditionParseError(fmt.Sprintf("missing positional parameter %d", ref.Positional), nil)
		}
		return params.Positional[idx], nil
	case RefNamed:
		v, ok := params.Named[ref.Name]
		if !ok {
			return value.Value{}, errs.ConditionParseError(fmt.Sprintf("missing named parameter %q", ref.Name), nil)
		}
		return v, nil
	default:
		return value.Value{}, errs.ConditionParseError("unresolvable value reference", nil)
	}
}

func (e *Evaluator) resolveList(ref ValueRef, params Params) ([]value.Value, error) {
	if ref.IsList {
		return ref.List, nil
	}
	v, err := e.resolveScalar(ref, params)
	if err != nil {
		return nil, err
	}
	if v.Kind() == value.KindIDList {
		out := make([]value.Value, len(v.IDList()))
		for i, id := range v.IDList() {
			out[i] = value.ID(id)
		}
		return out, nil
	}
	return []value.Value{v}, nil
}

// listElements flattens a list-valued candidate into comparable scalars.
func listElements(c value.Value) []value.Value {
	switch c.Kind() {
	case value.KindIDList:
		out := make([]value.Value, len(c.IDList()))
		for i, id := range c.IDList() {
			out[i] = value.ID(id)
		}
		return out
	default:
		return nil
	}
}

// membershipMatch implements the any-in-any semantics used by both =~ and
// IN against a candidate that may itself be list-valued: true if any
// element on either side equals the other.
func membershipMatch(c, t value.Value) bool {
	if c.IsList() {
		for _, el := range listElements(c) {
			if membershipMatch(el, t) {
				return true
			}
		}
		return false
	}
	if t.IsList() {
		for _, el := range listElements(t) {
			if membershipMatch(c, el) {
				return true
			}
		}
		return false
	}
	if valuesComparable(c, t) {
		return c.Equal(t)
	}
	return crossKindEqual(c, t)
}

func evalSingle(c value.Value, op CompareOp, t value.Value) bool {
	if c.IsList() {
		switch op {
		case OpEq, OpMatch:
			for _, el := range listElements(c) {
				if membershipMatch(el, t) {
					return true
				}
			}
			return false
		case OpNeq:
			for _, el := range listElements(c) {
				if !membershipMatch(el, t) {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
	switch op {
	case OpEq:
		return membershipMatch(c, t)
	case OpNeq:
		return !membershipMatch(c, t)
	case OpMatch:
		return matchOp(c, t)
	case OpLt, OpLe, OpGt, OpGe:
		cmp, ok := c.Compare(t)
		if !ok {
			return false
		}
		switch op {
		case OpLt:
			return cmp < 0
		case OpLe:
			return cmp <= 0
		case OpGt:
			return cmp > 0
		default:
			return cmp >= 0
		}
	default:
		return false
	}
}

func matchOp(c, t value.Value) bool {
	if c.Kind() == value.KindText && t.Kind() == value.KindText {
		return strings.Contains(c.Text(), t.Text())
	}
	return membershipMatch(c, t)
}

func valuesComparable(a, b value.Value) bool { return a.Kind() == b.Kind() }

// crossKindEqual lets an id field compare equal to a text literal and vice
// versa, since parameters bound from JSON arrive as text.
func crossKindEqual(a, b value.Value) bool {
	if a.Kind() == value.KindID && b.Kind() == value.KindText {
		return a.ID() == b.Text()
	}
	if a.Kind() == value.KindText && b.Kind() == value.KindID {
		return a.Text() == b.ID()
	}
	return false
}
