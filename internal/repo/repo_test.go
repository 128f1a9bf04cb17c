package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beccauwu/bones-api/internal/adapter/memory"
	"github.com/beccauwu/bones-api/internal/errs"
	"github.com/beccauwu/bones-api/internal/logging"
	"github.com/beccauwu/bones-api/internal/query"
	"github.com/beccauwu/bones-api/internal/relate"
	"github.com/beccauwu/bones-api/internal/repo"
	"github.com/beccauwu/bones-api/internal/schema"
	"github.com/beccauwu/bones-api/internal/store"
	"github.com/beccauwu/bones-api/internal/txn"
)

func newRepo(t *testing.T) *repo.Repository {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Author",
		TableName:  "authors",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText, Constraints: schema.Constraints{Required: true, Unique: true}},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Post",
		TableName:  "posts",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "title", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
			{Name: "author", Type: schema.TypeRef, RefType: "Author"},
			{Name: "tags", Type: schema.TypeRefList, RefType: "Author"},
		},
	}))
	st := store.New(reg)
	resolver := relate.New(reg, st)
	backend := memory.New(st, reg)
	coord := txn.NewCoordinator(st, backend, logging.Nop())
	return repo.New(reg, st, resolver, coord, backend)
}

// newNestedRepo registers a User that carries a nested Address (a ref
// field) and a nested list of Roles (a ref-list field), for exercising
// depth-first nested-entity storage.
func newNestedRepo(t *testing.T) *repo.Repository {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Address",
		TableName:  "addresses",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "city", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "Role",
		TableName:  "roles",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
		},
	}))
	require.NoError(t, reg.Register(&schema.Metadata{
		EntityType: "User",
		TableName:  "users",
		IDField:    "id",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeText},
			{Name: "name", Type: schema.TypeText, Constraints: schema.Constraints{Required: true}},
			{Name: "address", Type: schema.TypeRef, RefType: "Address"},
			{Name: "roles", Type: schema.TypeRefList, RefType: "Role"},
		},
	}))
	st := store.New(reg)
	resolver := relate.New(reg, st)
	backend := memory.New(st, reg)
	coord := txn.NewCoordinator(st, backend, logging.Nop())
	return repo.New(reg, st, resolver, coord, backend)
}

func TestStoreAllocatesIDWhenEmpty(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	id, err := r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	id2, err := r.Store(ctx, "Author", "", map[string]any{"name": "grace"})
	require.NoError(t, err)
	assert.Equal(t, "2", id2)
}

func TestStoreEnforcesRequiredField(t *testing.T) {
	r := newRepo(t)
	_, err := r.Store(context.Background(), "Post", "", map[string]any{})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindFieldInvalid, e.Kind)
	assert.Equal(t, errs.InvalidRequired, e.InvalidKind)
}

func TestStoreEnforcesUniqueConstraint(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	_, err := r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	_, err = r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.Error(t, err)
}

func TestDeleteBlockedByReference(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	authorID, err := r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	_, err = r.Store(ctx, "Post", "", map[string]any{"title": "hi", "author": authorID})
	require.NoError(t, err)

	err = r.Delete(ctx, "Author", authorID)
	require.Error(t, err)
}

func TestDeleteEntityCascadeRemovesDependents(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	authorID, err := r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	postID, err := r.Store(ctx, "Post", "", map[string]any{"title": "hi", "author": authorID})
	require.NoError(t, err)

	require.NoError(t, r.DeleteEntityCascade(ctx, "Author", authorID))

	exists, err := r.ExistsID(ctx, "Post", postID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSelectByQueryFiltersRows(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	_, err := r.Store(ctx, "Author", "", map[string]any{"name": "ada"})
	require.NoError(t, err)
	_, err = r.Store(ctx, "Author", "", map[string]any{"name": "grace"})
	require.NoError(t, err)

	rows, err := r.SelectByQuery(ctx, "Author", `name == "grace"`, query.Params{}, relate.DepthShallow)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "grace", rows[0]["name"].Text())
}

func TestStoreFromJSONResolvesNestedSubEntities(t *testing.T) {
	r := newNestedRepo(t)
	ctx := context.Background()

	id, err := r.StoreFromJSON(ctx, "User", "", map[string]any{
		"name": "ada",
		"address": map[string]any{
			"city": "london",
		},
		"roles": []any{
			map[string]any{"name": "admin"},
			map[string]any{"name": "editor"},
		},
	})
	require.NoError(t, err)

	row, found, err := r.SelectByID(ctx, "User", id, relate.DepthShallow)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ada", row["name"].Text())

	addressRecords := row["address"].RecordList()
	require.Len(t, addressRecords, 1)
	assert.Equal(t, "london", addressRecords[0]["city"].Text())

	roleRecords := row["roles"].RecordList()
	require.Len(t, roleRecords, 2)

	n, err := r.Count(ctx, "Role")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreFromJSONResolvesFieldNamesCaseInsensitively(t *testing.T) {
	r := newRepo(t)
	id, err := r.StoreFromJSON(context.Background(), "Author", "", map[string]any{"NAME": "ada"})
	require.NoError(t, err)
	row, found, err := r.SelectByID(context.Background(), "Author", id, relate.DepthShallow)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ada", row["name"].Text())
}
