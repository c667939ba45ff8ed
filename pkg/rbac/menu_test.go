package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestBuildMenuParentsThenStandalone(t *testing.T) {
	pages := []Page{
		{ID: 1, Name: "Admin", URL: "/admin", IsParent: true, SortNo: 1},
		{ID: 2, Name: "Users", URL: "/users", ParentID: int64Ptr(1), SortNo: 2},
		{ID: 3, Name: "Groups", URL: "/groups", ParentID: int64Ptr(1), SortNo: 1},
		{ID: 4, Name: "Profile", URL: "/profile", SortNo: 1},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 2)

	admin := menu[0]
	assert.Equal(t, "Admin", admin.PageName)
	require.Len(t, admin.Children, 2)
	assert.Equal(t, "Groups", admin.Children[0].PageName)
	assert.Equal(t, "Users", admin.Children[1].PageName)

	profile := menu[1]
	assert.Equal(t, "Profile", profile.PageName)
	assert.Empty(t, profile.Children)
}

func TestBuildMenuOrphanChildBecomesStandalone(t *testing.T) {
	pages := []Page{
		{ID: 1, Name: "Admin", URL: "/admin", IsParent: true, SortNo: 1},
		{ID: 2, Name: "Lost", URL: "/lost", ParentID: int64Ptr(42), SortNo: 1},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 2)
	assert.Equal(t, "Admin", menu[0].PageName)
	assert.Equal(t, "Lost", menu[1].PageName)
	assert.Empty(t, menu[1].Children)
}

func TestBuildMenuChildOfNonParentPage(t *testing.T) {
	// Page 1 exists but is not flagged is_parent: referencing it does not
	// create a nesting, the child is standalone.
	pages := []Page{
		{ID: 1, Name: "Plain", URL: "/plain", SortNo: 1},
		{ID: 2, Name: "Child", URL: "/child", ParentID: int64Ptr(1), SortNo: 2},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 2)
	assert.Equal(t, "Plain", menu[0].PageName)
	assert.Equal(t, "Child", menu[1].PageName)
}

func TestBuildMenuChildlessParentKept(t *testing.T) {
	pages := []Page{
		{ID: 1, Name: "Empty Section", URL: "/empty", IsParent: true, SortNo: 1},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 1)
	assert.Equal(t, "Empty Section", menu[0].PageName)
	assert.NotNil(t, menu[0].Children)
	assert.Empty(t, menu[0].Children)
}

func TestBuildMenuParentAndStandaloneSorting(t *testing.T) {
	// Parents sort among themselves, standalone entries among themselves;
	// standalone entries always follow the parent sections regardless of
	// sort_no.
	pages := []Page{
		{ID: 1, Name: "Zeta", URL: "/zeta", IsParent: true, SortNo: 5},
		{ID: 2, Name: "Alpha", URL: "/alpha", IsParent: true, SortNo: 2},
		{ID: 3, Name: "First", URL: "/first", SortNo: 1},
		{ID: 4, Name: "Second", URL: "/second", SortNo: 3},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 4)
	assert.Equal(t, "Alpha", menu[0].PageName)
	assert.Equal(t, "Zeta", menu[1].PageName)
	assert.Equal(t, "First", menu[2].PageName)
	assert.Equal(t, "Second", menu[3].PageName)
}

func TestBuildMenuStableTies(t *testing.T) {
	pages := []Page{
		{ID: 1, Name: "Section", URL: "/s", IsParent: true, SortNo: 1},
		{ID: 2, Name: "One", URL: "/one", ParentID: int64Ptr(1), SortNo: 7},
		{ID: 3, Name: "Two", URL: "/two", ParentID: int64Ptr(1), SortNo: 7},
	}

	menu := BuildMenu(pages)
	require.Len(t, menu, 1)
	require.Len(t, menu[0].Children, 2)
	assert.Equal(t, "One", menu[0].Children[0].PageName)
	assert.Equal(t, "Two", menu[0].Children[1].PageName)
}

func TestBuildMenuEmpty(t *testing.T) {
	assert.Empty(t, BuildMenu(nil))
}

func TestMenuFromStore(t *testing.T) {
	store := testStore(t)
	evaluator := NewEvaluator(store, nil)
	ctx := context.Background()

	admin := seedPage(t, store, Page{Name: "Admin", URL: "/admin", IsParent: true, IsMenu: true, SortNo: 1})
	seedPage(t, store, Page{Name: "Users", URL: "/users", ParentID: int64Ptr(admin.ID), IsMenu: true, SortNo: 2})
	seedPage(t, store, Page{Name: "Groups", URL: "/groups", ParentID: int64Ptr(admin.ID), IsMenu: true, SortNo: 1})
	seedPage(t, store, Page{Name: "Profile", URL: "/profile", IsMenu: true, SortNo: 1})
	seedPage(t, store, Page{Name: "Hidden", URL: "/hidden", IsMenu: false, SortNo: 1})

	menu, err := evaluator.Menu(ctx)
	require.NoError(t, err)
	require.Len(t, menu, 2)

	assert.Equal(t, "Admin", menu[0].PageName)
	require.Len(t, menu[0].Children, 2)
	assert.Equal(t, "Groups", menu[0].Children[0].PageName)
	assert.Equal(t, "Users", menu[0].Children[1].PageName)
	assert.Equal(t, "Profile", menu[1].PageName)
}

func TestMenuExcludesDeletedPages(t *testing.T) {
	store := testStore(t)
	evaluator := NewEvaluator(store, nil)
	ctx := context.Background()

	page := seedPage(t, store, Page{Name: "Gone", URL: "/gone", IsMenu: true, SortNo: 1})
	seedPage(t, store, Page{Name: "Kept", URL: "/kept", IsMenu: true, SortNo: 2})

	require.NoError(t, store.DeletePage(ctx, page.ID, nil))

	menu, err := evaluator.Menu(ctx)
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, "Kept", menu[0].PageName)
}
