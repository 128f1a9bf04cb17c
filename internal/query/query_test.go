package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/value"
)

func TestLexerTokenizesOperators(t *testing.T) {
	toks, err := query.NewLexer(`status == "open" && priority >= 2`).Tokenize()
	require.NoError(t, err)

	var types []query.TokenType
	for _, tok := range toks {
		types = append(types, tok.Type)
	}
	assert.Equal(t, []query.TokenType{
		query.TokenIdent, query.TokenEq, query.TokenString,
		query.TokenAnd,
		query.TokenIdent, query.TokenGe, query.TokenNumber,
		query.TokenEOF,
	}, types)
}

func TestParseRoundTripsThroughString(t *testing.T) {
	node, err := query.Parse(`author.name == "ada" && #id != ?`)
	require.NoError(t, err)

	reparsed, err := query.Parse(node.String())
	require.NoError(t, err)
	assert.Equal(t, node.String(), reparsed.String())
}

func TestParseRejectsMixedConnectivesWithoutParens(t *testing.T) {
	_, err := query.Parse(`a == 1 && b == 2 || c == 3`)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConditionParseError))
}

func TestParseAcceptsParenthesizedMixing(t *testing.T) {
	node, err := query.Parse(`(a == 1 && b == 2) || c == 3`)
	require.NoError(t, err)
	assert.NotEmpty(t, node.String())
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Author",
		TableName:  "authors",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "title", Type: schema.TypeText},
			{Name: "views", Type: schema.TypeInt},
			{Name: "author", Type: schema.TypeRef, RefType: "Author"},
			{Name: "tags", Type: schema.TypeRefList, RefType: "Tag"},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Tag",
		TableName:  "tags",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "label", Type: schema.TypeText},
		},
	}))
	return reg
}

func TestEvaluatorMatchesDottedReferencePath(t *testing.T) {
	reg := newTestRegistry(t)
	st := store.New(reg)

	_, err := st.Put("authors", "1", value.Record{"id": value.Text("1"), "name": value.Text("ada")})
	require.NoError(t, err)
	_, err = st.Put("posts", "10", value.Record{
		"id":     value.Text("10"),
		"title":  value.Text("hello"),
		"views":  value.Int(5),
		"author": value.ID("1"),
		"tags":   value.IDList(nil),
	})
	require.NoError(t, err)

	ev := query.NewEvaluator(reg, st)
	node, err := query.Parse(`author.name == "ada"`)
	require.NoError(t, err)

	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	ok, err := ev.Match(node, "posts", "10", row, query.Params{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatorDanglingReferenceYieldsNoMatch(t *testing.T) {
	reg := newTestRegistry(t)
	st := store.New(reg)

	_, err := st.Put("posts", "10", value.Record{
		"id":     value.Text("10"),
		"title":  value.Text("hello"),
		"views":  value.Int(5),
		"author": value.ID("missing"),
		"tags":   value.IDList(nil),
	})
	require.NoError(t, err)

	ev := query.NewEvaluator(reg, st)
	node, err := query.Parse(`author.name == "ada"`)
	require.NoError(t, err)

	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	ok, err := ev.Match(node, "posts", "10", row, query.Params{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluatorExistentialOverRelationshipList(t *testing.T) {
	reg := newTestRegistry(t)
	st := store.New(reg)

	_, err := st.Put("tags", "a", value.Record{"id": value.Text("a"), "label": value.Text("go")})
	require.NoError(t, err)
	_, err = st.Put("tags", "b", value.Record{"id": value.Text("b"), "label": value.Text("rust")})
	require.NoError(t, err)
	_, err = st.Put("posts", "10", value.Record{
		"id":     value.Text("10"),
		"title":  value.Text("hello"),
		"views":  value.Int(5),
		"author": value.Null(),
		"tags":   value.IDList([]string{"a", "b"}),
	})
	require.NoError(t, err)

	ev := query.NewEvaluator(reg, st)
	node, err := query.Parse(`tags.label == "rust"`)
	require.NoError(t, err)

	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	ok, err := ev.Match(node, "posts", "10", row, query.Params{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatorPositionalAndNamedParameters(t *testing.T) {
	reg := newTestRegistry(t)
	st := store.New(reg)
	_, err := st.Put("posts", "10", value.Record{
		"id":    value.Text("10"),
		"title": value.Text("hello"),
		"views": value.Int(5),
	})
	require.NoError(t, err)

	ev := query.NewEvaluator(reg, st)
	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)

	node, err := query.Parse(`views > ?`)
	require.NoError(t, err)
	ok, err := ev.Match(node, "posts", "10", row, query.Params{Positional: []value.Value{value.Int(1)}})
	require.NoError(t, err)
	assert.True(t, ok)

	node, err = query.Parse(`title =~ :needle`)
	require.NoError(t, err)
	ok, err = ev.Match(node, "posts", "10", row, query.Params{Named: map[string]value.Value{"needle": value.Text("ell")}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluatorHashIDPseudoField(t *testing.T) {
	reg := newTestRegistry(t)
	st := store.New(reg)
	_, err := st.Put("posts", "10", value.Record{"id": value.Text("10"), "title": value.Text("hello"), "views": value.Int(1)})
	require.NoError(t, err)

	ev := query.NewEvaluator(reg, st)
	node, err := query.Parse(`#id == "10"`)
	require.NoError(t, err)
	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	ok, err := ev.Match(node, "posts", "10", row, query.Params{})
	require.NoError(t, err)
	assert.True(t, ok)
}
