package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/value"
)

// CompareOp enumerates the comparison operators the condition language
// supports.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpMatch // =~ : contains (text) / membership (list)
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
)

func (o CompareOp) String() string {
	switch o {
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpMatch:
		return "=~"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpIn:
		return "IN"
	default:
		return "?"
	}
}

// Node is any node of the condition AST.
type Node interface {
	node()
	String() string
}

// BoolOp is the connective joining two expressions in a BoolNode.
type BoolOp int

const (
	BoolAnd BoolOp = iota
	BoolOr
)

// BoolNode is a flat left-to-right chain of expressions joined by a single
// connective, matching the grammar's "group := expr (('&&'|'||') expr)*"
// (no precedence between && and ||; parenthesize to group explicitly).
type BoolNode struct {
	Op    BoolOp
	Terms []Node
}

func (*BoolNode) node() {}
func (n *BoolNode) String() string {
	sep := " && "
	if n.Op == BoolOr {
		sep = " || "
	}
	parts := make([]string, len(n.Terms))
	for i, t := range n.Terms {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// ValueRef is a comparison's right-hand side: a literal, a positional
// placeholder ("?"), or a named placeholder (":name").
type ValueRef struct {
	Literal    value.Value
	List       []value.Value // set when the literal is a bracketed list
	IsList     bool
	Positional int // 1-based index, set when Kind == RefPositional
	Name       string
	Kind       RefKind
}

// RefKind tags which variant a ValueRef holds.
type RefKind int

const (
	RefLiteral RefKind = iota
	RefPositional
	RefNamed
)

func (v ValueRef) String() string {
	switch v.Kind {
	case RefPositional:
		return "?"
	case RefNamed:
		return ":" + v.Name
	default:
		if v.IsList {
			parts := make([]string, len(v.List))
			for i, el := range v.List {
				parts[i] = literalString(el)
			}
			return "[" + strings.Join(parts, ", ") + "]"
		}
		return literalString(v.Literal)
	}
}

func literalString(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case value.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case value.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case value.KindText:
		return strconv.Quote(v.Text())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ComparisonNode is a single "path op value" leaf of the condition tree.
type ComparisonNode struct {
	Path []string
	Op   CompareOp
	Val  ValueRef
}

func (*ComparisonNode) node() {}
func (n *ComparisonNode) String() string {
	return fmt.Sprintf("%s %s %s", strings.Join(n.Path, "."), n.Op, n.Val)
}

// Parser is a recursive descent parser over a Lexer's token stream,
// buffering one token of lookahead.
type Parser struct {
	lexer    *Lexer
	cur      Token
	peeked   *Token
	posCount int
}

// NewParser creates a Parser over input.
func NewParser(input string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(input)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.cur = *p.peeked
		p.peeked = nil
		return nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// Parse parses input as a full condition expression.
func Parse(input string) (Node, error) {
	p, err := NewParser(input)
	if err != nil {
		return nil, errs.ConditionParseError(err.Error(), err)
	}
	node, err := p.parseGroup()
	if err != nil {
		return nil, errs.ConditionParseError(err.Error(), err)
	}
	if p.cur.Type != TokenEOF {
		return nil, errs.ConditionParseError(fmt.Sprintf("unexpected trailing token %q at %d", p.cur.Value, p.cur.Pos), nil)
	}
	return node, nil
}

// parseGroup implements "group := expr (('&&'|'||') expr)*": a flat chain
// of terms joined by one connective (mixing && and || without parentheses
// is a parse error, since there is no defined precedence between them).
func (p *Parser) parseGroup() (Node, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.Type != TokenAnd && p.cur.Type != TokenOr {
		return first, nil
	}
	op := BoolAnd
	tokType := p.cur.Type
	if tokType == TokenOr {
		op = BoolOr
	}
	terms := []Node{first}
	for p.cur.Type == tokType {
		if err := p.advance(); err != nil {
			return nil, err
		}
		term, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if p.cur.Type == TokenAnd || p.cur.Type == TokenOr {
		return nil, fmt.Errorf("cannot mix && and || without parentheses at %d", p.cur.Pos)
	}
	return &BoolNode{Op: op, Terms: terms}, nil
}

// parseExpr implements "expr := path op value | '(' group ')'".
func (p *Parser) parseExpr() (Node, error) {
	if p.cur.Type == TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRParen {
			return nil, fmt.Errorf("expected ) at %d, got %q", p.cur.Pos, p.cur.Value)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *Parser) parsePath() ([]string, error) {
	var segs []string
	if p.cur.Type == TokenHash {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != TokenIdent {
			return nil, fmt.Errorf("expected identifier after # at %d", p.cur.Pos)
		}
		segs = append(segs, "#"+p.cur.Value)
		if err := p.advance(); err != nil {
			return nil, err
		}
		return segs, nil
	}
	if p.cur.Type != TokenIdent {
		return nil, fmt.Errorf("expected field path at %d, got %q", p.cur.Pos, p.cur.Value)
	}
	segs = append(segs, p.cur.Value)
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.cur.Type == TokenDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Type != TokenIdent {
			return nil, fmt.Errorf("expected identifier after . at %d", p.cur.Pos)
		}
		segs = append(segs, p.cur.Value)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

func (p *Parser) parseComparison() (Node, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &ComparisonNode{Path: path, Op: op, Val: val}, nil
}

func (p *Parser) parseOp() (CompareOp, error) {
	var op CompareOp
	switch p.cur.Type {
	case TokenEq:
		op = OpEq
	case TokenNeq:
		op = OpNeq
	case TokenMatch:
		op = OpMatch
	case TokenLt:
		op = OpLt
	case TokenLe:
		op = OpLe
	case TokenGt:
		op = OpGt
	case TokenGe:
		op = OpGe
	case TokenIn:
		op = OpIn
	default:
		return 0, fmt.Errorf("expected comparison operator at %d, got %q", p.cur.Pos, p.cur.Value)
	}
	return op, p.advance()
}

func (p *Parser) parseValue() (ValueRef, error) {
	switch p.cur.Type {
	case TokenQuestion:
		if err := p.advance(); err != nil {
			return ValueRef{}, err
		}
		p.posCount++
		return ValueRef{Kind: RefPositional, Positional: p.posCount}, nil
	case TokenColon:
		if err := p.advance(); err != nil {
			return ValueRef{}, err
		}
		if p.cur.Type != TokenIdent {
			return ValueRef{}, fmt.Errorf("expected identifier after : at %d", p.cur.Pos)
		}
		name := p.cur.Value
		return ValueRef{Kind: RefNamed, Name: name}, p.advance()
	case TokenLBracket:
		return p.parseListLiteral()
	default:
		lit, err := p.parseLiteral()
		if err != nil {
			return ValueRef{}, err
		}
		return ValueRef{Kind: RefLiteral, Literal: lit}, nil
	}
}

func (p *Parser) parseListLiteral() (ValueRef, error) {
	if err := p.advance(); err != nil {
		return ValueRef{}, err
	}
	var items []value.Value
	for p.cur.Type != TokenRBracket {
		lit, err := p.parseLiteral()
		if err != nil {
			return ValueRef{}, err
		}
		items = append(items, lit)
		if p.cur.Type == TokenComma {
			if err := p.advance(); err != nil {
				return ValueRef{}, err
			}
			continue
		}
		break
	}
	if p.cur.Type != TokenRBracket {
		return ValueRef{}, fmt.Errorf("expected ] at %d, got %q", p.cur.Pos, p.cur.Value)
	}
	if err := p.advance(); err != nil {
		return ValueRef{}, err
	}
	return ValueRef{Kind: RefLiteral, IsList: true, List: items}, nil
}

func (p *Parser) parseLiteral() (value.Value, error) {
	var lit value.Value
	switch p.cur.Type {
	case TokenString:
		lit = value.Text(p.cur.Value)
	case TokenNumber:
		if strings.Contains(p.cur.Value, ".") {
			f, err := strconv.ParseFloat(p.cur.Value, 64)
			if err != nil {
				return value.Value{}, fmt.Errorf("invalid number %q at %d", p.cur.Value, p.cur.Pos)
			}
			lit = value.Float(f)
		} else {
			i, err := strconv.ParseInt(p.cur.Value, 10, 64)
			if err != nil {
				return value.Value{}, fmt.Errorf("invalid number %q at %d", p.cur.Value, p.cur.Pos)
			}
			lit = value.Int(i)
		}
	case TokenTrue:
		lit = value.Bool(true)
	case TokenFalse:
		lit = value.Bool(false)
	case TokenNull:
		lit = value.Null()
	default:
		return value.Value{}, fmt.Errorf("expected literal value at %d, got %q", p.cur.Pos, p.cur.Value)
	}
	if err := p.advance(); err != nil {
		return value.Value{}, err
	}
	return lit, nil
}
