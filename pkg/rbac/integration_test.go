package rbac

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/pkg/observability"
)

// TestPermissionRoundTripLiveDB exercises the store against a real
// Postgres. Set DASHGATE_TEST_POSTGRES to a connection string to run it.
func TestPermissionRoundTripLiveDB(t *testing.T) {
	db := RequireDatabase(t)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	require.NoError(t, RunMigrations(ctx, db, logger))

	store := NewStore(db, nil)

	group := &Group{Name: "it-" + uuid.NewString()[:8], IsActive: true}
	require.NoError(t, store.CreateGroup(ctx, group))

	page := &Page{Name: "Reports", URL: "/it/" + uuid.NewString(), IsActive: true}
	require.NoError(t, store.CreatePage(ctx, page))

	t.Cleanup(func() {
		db.Exec("DELETE FROM page_group WHERE group_id = $1", group.ID)
		db.Exec("DELETE FROM pages WHERE id = $1", page.ID)
		db.Exec("DELETE FROM groups WHERE id = $1", group.ID)
	})

	row, err := store.UpsertPermission(ctx, group.ID, page.ID, CapabilitySet{CanView: true, CanEdit: true})
	require.NoError(t, err)

	caps, err := store.GetCapabilities(ctx, group.ID, page.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanView)
	assert.True(t, caps.CanEdit)
	assert.False(t, caps.CanDelete)

	// Overwrite narrows the grant, same row.
	again, err := store.UpsertPermission(ctx, group.ID, page.ID, CapabilitySet{CanView: true})
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)

	caps, err = store.GetCapabilities(ctx, group.ID, page.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanView)
	assert.False(t, caps.CanEdit)

	require.NoError(t, store.DeactivatePermission(ctx, group.ID, page.ID))
	caps, err = store.GetCapabilities(ctx, group.ID, page.ID)
	require.NoError(t, err)
	assert.False(t, caps.HasAny(AllCapabilities()...))
}
