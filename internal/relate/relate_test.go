package relate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/relate"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/value"
)

func setup(t *testing.T) (*schema.Registry, *store.Store, *relate.Resolver) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Author",
		TableName:  "authors",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText, Constraints: schema.Constraints{Unique: true}},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "title", Type: schema.TypeText},
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
	st := store.New(reg)
	return reg, st, relate.New(reg, st)
}

func TestResolveMaterializesReference(t *testing.T) {
	_, st, resolver := setup(t)
	_, err := st.Put("authors", "1", value.Record{"id": value.Text("1"), "name": value.Text("ada")})
	require.NoError(t, err)
	_, err = st.Put("posts", "10", value.Record{"id": value.Text("10"), "title": value.Text("hi"), "author": value.ID("1"), "tags": value.IDList(nil)})
	require.NoError(t, err)

	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	resolved, err := resolver.Resolve("posts", row, relate.DepthShallow)
	require.NoError(t, err)

	authors := resolved["author"].RecordList()
	require.Len(t, authors, 1)
	assert.Equal(t, "ada", authors[0]["name"].Text())
}

func TestResolveLeavesDanglingReferenceAsBareID(t *testing.T) {
	_, st, resolver := setup(t)
	_, err := st.Put("posts", "10", value.Record{"id": value.Text("10"), "title": value.Text("hi"), "author": value.ID("missing"), "tags": value.IDList(nil)})
	require.NoError(t, err)

	row, _, err := st.Get("posts", "10")
	require.NoError(t, err)
	resolved, err := resolver.Resolve("posts", row, relate.DepthShallow)
	require.NoError(t, err)
	assert.Equal(t, "missing", resolved["author"].ID())
}

func TestCheckUniqueRejectsDuplicate(t *testing.T) {
	_, st, resolver := setup(t)
	_, err := st.Put("authors", "1", value.Record{"id": value.Text("1"), "name": value.Text("ada")})
	require.NoError(t, err)

	err = resolver.CheckUnique("authors", "name", value.Text("ada"), "2")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindFieldInvalid, e.Kind)
	assert.Equal(t, errs.InvalidUnique, e.InvalidKind)
}

func TestCheckDeleteConstraintsBlocksReferencedRow(t *testing.T) {
	_, st, resolver := setup(t)
	_, err := st.Put("authors", "1", value.Record{"id": value.Text("1"), "name": value.Text("ada")})
	require.NoError(t, err)
	_, err = st.Put("posts", "10", value.Record{"id": value.Text("10"), "title": value.Text("hi"), "author": value.ID("1"), "tags": value.IDList(nil)})
	require.NoError(t, err)

	err = resolver.CheckDeleteConstraints("authors", "1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindDeleteConstraint))
}

func TestSyncRelationshipsDedupesOnReinsert(t *testing.T) {
	_, st, resolver := setup(t)
	require.NoError(t, resolver.SyncRelationships("posts", "10", "tags", []string{"a", "b"}))
	entries1, err := st.Entries("posts__tags__rel")
	require.NoError(t, err)
	require.Len(t, entries1, 2)

	require.NoError(t, resolver.SyncRelationships("posts", "10", "tags", []string{"a", "b"}))
	entries2, err := st.Entries("posts__tags__rel")
	require.NoError(t, err)
	assert.Equal(t, entries1, entries2)

	require.NoError(t, resolver.SyncRelationships("posts", "10", "tags", []string{"a"}))
	entries3, err := st.Entries("posts__tags__rel")
	require.NoError(t, err)
	assert.Len(t, entries3, 1)
}
