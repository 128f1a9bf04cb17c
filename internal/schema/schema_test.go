package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beccauwu/bones-api/internal/schema"
)

func TestRegisterDerivesReferencesAndRelationships(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Author",
		TableName:  "authors",
		IDField:    "id",
		Fields:     []schema.Field{{Name: "id", Type: schema.TypeText}},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "author", Type: schema.TypeRef, RefType: "Author"},
			{Name: "coauthors", Type: schema.TypeRefList, RefType: "Author"},
		},
	}))

	post, ok := reg.ByType("Post")
	require.True(t, ok)

	ref, ok := post.References["author"]
	require.True(t, ok)
	assert.Equal(t, "authors", ref.TargetTable)
	assert.Equal(t, "id", ref.TargetField)

	rel, ok := post.Relationships["coauthors"]
	require.True(t, ok)
	assert.Equal(t, "posts__coauthors__rel", rel.RelTable)
	assert.Equal(t, "posts__id", rel.SourceField)
	assert.Equal(t, "authors__id", rel.TargetField)
}

func TestRegisterRejectsUnknownReferenceTarget(t *testing.T) {
	reg := schema.NewRegistry()
	err := reg.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "author", Type: schema.TypeRef, RefType: "Author"},
		},
	})
	assert.Error(t, err)
}

func TestRegisterRejectsDuplicateEntityType(t *testing.T) {
	reg := schema.NewRegistry()
	meta := func() *schema.Metadata {
		return &schema.Metadata{EntityType: "Author", TableName: "authors", IDField: "id",
			Fields: []schema.Field{{Name: "id", Type: schema.TypeText}}}
	}
	require.NoError(t, reg.Register(meta()))
	assert.Error(t, reg.Register(meta()))
}

func TestIsRelationshipTable(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Author", TableName: "authors", IDField: "id",
		Fields: []schema.Field{{Name: "id", Type: schema.TypeText}},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Post", TableName: "posts", IDField: "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "coauthors", Type: schema.TypeRefList, RefType: "Author"},
		},
	}))
	assert.True(t, reg.IsRelationshipTable("posts__coauthors__rel"))
	assert.False(t, reg.IsRelationshipTable("posts"))
}

func TestResolveFieldNameFallsBackToSimplified(t *testing.T) {
	fields := []string{"firstName", "lastName"}
	assert.Equal(t, "firstName", schema.ResolveFieldName(fields, "firstName"))
	assert.Equal(t, "firstName", schema.ResolveFieldName(fields, "FIRSTNAME"))
	assert.Equal(t, "firstName", schema.ResolveFieldName(fields, "first_name"))
	assert.Equal(t, "", schema.ResolveFieldName(fields, "unknown"))
}

func TestBuildRecordFromMapDropsUnresolvedKeys(t *testing.T) {
	fields := []string{"name"}
	out := schema.BuildRecordFromMap(fields, map[string]any{"Name": "ada", "extra": 1})
	assert.Equal(t, map[string]any{"name": "ada"}, out)
}
