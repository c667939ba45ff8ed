package rbac

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMatrixDense(t *testing.T) {
	groups := []Group{
		{ID: 1, Name: "superadmin"},
		{ID: 2, Name: "editors"},
	}
	pages := []Page{
		{ID: 10, Name: "Users", URL: "/users"},
		{ID: 11, Name: "Reports", URL: "/reports"},
	}
	rows := []PermissionRow{
		{GroupID: 2, PageID: 10, CapabilitySet: CapabilitySet{CanView: true, CanEdit: true}},
	}

	matrix := BuildMatrix(groups, pages, rows)

	// Dense presentation: every (group, page) pair has a cell even though
	// only one row is stored.
	require.Len(t, matrix.Matrix, 2)
	for _, group := range groups {
		entry, ok := matrix.Matrix[group.ID]
		require.True(t, ok)
		assert.Equal(t, group.Name, entry.GroupInfo.Name)
		require.Len(t, entry.Permissions, 2)
	}

	stored := matrix.Matrix[2].Permissions[10]
	assert.True(t, stored.CanView)
	assert.True(t, stored.CanEdit)
	assert.False(t, stored.CanDelete)
	assert.Equal(t, "Users", stored.PageInfo.Name)

	// Absent cells materialize all-false.
	absent := matrix.Matrix[2].Permissions[11]
	assert.Equal(t, CapabilitySet{}, absent.CapabilitySet)
	assert.Equal(t, "/reports", absent.PageInfo.URL)
	assert.Equal(t, CapabilitySet{}, matrix.Matrix[1].Permissions[10].CapabilitySet)
}

func TestBuildMatrixEmpty(t *testing.T) {
	matrix := BuildMatrix(nil, nil, nil)
	assert.Empty(t, matrix.Matrix)
	assert.Empty(t, matrix.Groups)
	assert.Empty(t, matrix.Pages)
}

func TestBuildMatrixJSONShape(t *testing.T) {
	groups := []Group{{ID: 2, Name: "editors"}}
	pages := []Page{{ID: 10, Name: "Users", URL: "/users"}}
	rows := []PermissionRow{
		{GroupID: 2, PageID: 10, CapabilitySet: CapabilitySet{CanView: true}},
	}

	data, err := json.Marshal(BuildMatrix(groups, pages, rows))
	require.NoError(t, err)

	var decoded struct {
		Matrix map[string]struct {
			GroupInfo struct {
				Name string `json:"groupName"`
			} `json:"groupInfo"`
			Permissions map[string]struct {
				PageInfo struct {
					Name string `json:"pageName"`
				} `json:"pageInfo"`
				CanView bool `json:"CanView"`
				CanAdd  bool `json:"CanAdd"`
			} `json:"permissions"`
		} `json:"matrix"`
		Groups []json.RawMessage `json:"groups"`
		Pages  []json.RawMessage `json:"pages"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	entry, ok := decoded.Matrix["2"]
	require.True(t, ok)
	assert.Equal(t, "editors", entry.GroupInfo.Name)

	cell, ok := entry.Permissions["10"]
	require.True(t, ok)
	assert.Equal(t, "Users", cell.PageInfo.Name)
	assert.True(t, cell.CanView)
	assert.False(t, cell.CanAdd)
	assert.Len(t, decoded.Groups, 1)
	assert.Len(t, decoded.Pages, 1)
}

func TestPermissionMatrixFromStore(t *testing.T) {
	store := testStore(t)
	evaluator := NewEvaluator(store, nil)
	ctx := context.Background()

	editors := seedGroup(t, store, "editors")
	users := seedPage(t, store, Page{Name: "Users", URL: "/users"})
	reports := seedPage(t, store, Page{Name: "Reports", URL: "/reports"})

	_, err := evaluator.SetPermission(ctx, editors.ID, users.ID, CapabilitySet{CanView: true})
	require.NoError(t, err)

	matrix, err := evaluator.PermissionMatrix(ctx)
	require.NoError(t, err)

	// Seeded superadmin group plus editors, both dense over both pages.
	require.Len(t, matrix.Groups, 2)
	require.Len(t, matrix.Pages, 2)
	require.Len(t, matrix.Matrix, 2)

	assert.True(t, matrix.Matrix[editors.ID].Permissions[users.ID].CanView)
	assert.False(t, matrix.Matrix[editors.ID].Permissions[reports.ID].CanView)
	assert.Equal(t, CapabilitySet{}, matrix.Matrix[SuperadminGroupID].Permissions[users.ID].CapabilitySet)
}

func TestPermissionMatrixExcludesInactive(t *testing.T) {
	store := testStore(t)
	evaluator := NewEvaluator(store, nil)
	ctx := context.Background()

	editors := seedGroup(t, store, "editors")
	page := seedPage(t, store, Page{Name: "Users", URL: "/users"})

	require.NoError(t, store.DeleteGroup(ctx, editors.ID, nil))
	require.NoError(t, store.DeletePage(ctx, page.ID, nil))

	matrix, err := evaluator.PermissionMatrix(ctx)
	require.NoError(t, err)

	require.Len(t, matrix.Groups, 1)
	assert.Equal(t, SuperadminGroupID, matrix.Groups[0].ID)
	assert.Empty(t, matrix.Pages)
}
