package tenancy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuild(t *testing.T) {
	orgID := uuid.New()
	id := uuid.New()

	tests := []struct {
		name     string
		query    *Query
		scope    Scope
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "select appends organization filter",
			query:    Select("id, name").From("locations").Where("id = ?", id),
			scope:    ForOrganization(orgID),
			wantSQL:  "SELECT id, name FROM locations WHERE (id = $1) AND organization_id = $2",
			wantArgs: []interface{}{id, orgID},
		},
		{
			name:     "select without conditions still filters",
			query:    Select("id").From("locations").OrderBy("created_at DESC").Limit(10).Offset(20),
			scope:    ForOrganization(orgID),
			wantSQL:  "SELECT id FROM locations WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
			wantArgs: []interface{}{orgID, 10, 20},
		},
		{
			name:     "unscoped select has no organization filter",
			query:    Select("id").From("members").Where("user_id = ?", id),
			scope:    Unscoped(),
			wantSQL:  "SELECT id FROM members WHERE (user_id = $1)",
			wantArgs: []interface{}{id},
		},
		{
			name: "update binds assignments before conditions",
			query: Update("refresh_tokens").
				SetExpr("use_count = use_count + 1").
				Set("updated_at", "now").
				Where("token = ?", "abc").
				Returning("id"),
			scope:    ForOrganization(orgID),
			wantSQL:  "UPDATE refresh_tokens SET use_count = use_count + 1, updated_at = $1 WHERE (token = $2) AND organization_id = $3 RETURNING id",
			wantArgs: []interface{}{"now", "abc", orgID},
		},
		{
			name:     "disjunction cannot escape the organization filter",
			query:    Select("id").From("locations").Where("name = ? OR name = ?", "hq", "depot"),
			scope:    ForOrganization(orgID),
			wantSQL:  "SELECT id FROM locations WHERE (name = $1 OR name = $2) AND organization_id = $3",
			wantArgs: []interface{}{"hq", "depot", orgID},
		},
		{
			name:     "disjunction in a delete",
			query:    DeleteFrom("locations").Where("id = ? OR true", id),
			scope:    ForOrganization(orgID),
			wantSQL:  "DELETE FROM locations WHERE (id = $1 OR true) AND organization_id = $2",
			wantArgs: []interface{}{id, orgID},
		},
		{
			name:     "delete",
			query:    DeleteFrom("locations").Where("id = ?", id),
			scope:    ForOrganization(orgID),
			wantSQL:  "DELETE FROM locations WHERE (id = $1) AND organization_id = $2",
			wantArgs: []interface{}{id, orgID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.query.Build(tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQueryBuildErrors(t *testing.T) {
	t.Run("zero scope", func(t *testing.T) {
		_, _, err := Select("id").From("locations").Build(Scope{})
		assert.ErrorIs(t, err, ErrMissingScope)
	})

	t.Run("missing table", func(t *testing.T) {
		_, _, err := Select("id").Build(Unscoped())
		assert.Error(t, err)
	})

	t.Run("update without assignments", func(t *testing.T) {
		_, _, err := Update("locations").Build(ForOrganization(uuid.New()))
		assert.Error(t, err)
	})
}

func TestQueryBuildIsRepeatable(t *testing.T) {
	q := Select("id").From("locations").Where("name = ?", "hq")

	first, _, err := q.Build(ForOrganization(uuid.New()))
	require.NoError(t, err)
	second, args, err := q.Build(ForOrganization(uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, args, 2)
}
