package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/contextkeys"
	"github.com/dashgate/dashgate/pkg/httputil"
)

type handlerFixture struct {
	store     *Store
	evaluator *Evaluator
	router    *mux.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	store := testStore(t)
	evaluator := NewEvaluator(store, nil)

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	NewHandlers(evaluator).RegisterRoutes(api)

	return &handlerFixture{store: store, evaluator: evaluator, router: router}
}

// do performs a request as the given user (nil for anonymous).
func (f *handlerFixture) do(t *testing.T, method, target string, body interface{}, user *auth.User) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	if user != nil {
		r = r.WithContext(contextkeys.WithAuth(r.Context(), &auth.Context{User: user}))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var envelope httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func admin() *auth.User {
	return auth.NewUser(1, "root", SuperadminGroupID, auth.DesignationSuperadmin)
}

func TestSetPermissionEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	rec := f.do(t, http.MethodPut, "/api/permissions", map[string]interface{}{
		"idGroup": group.ID,
		"idPages": page.ID,
		"CanView": true,
		"CanEdit": true,
	}, admin())

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeBody(t, rec)
	assert.True(t, envelope.Success)

	caps, err := f.store.GetCapabilities(context.Background(), group.ID, page.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanView)
	assert.True(t, caps.CanEdit)
	assert.False(t, caps.CanAdd)
}

func TestSetPermissionEndpointIntegrity(t *testing.T) {
	f := newHandlerFixture(t)
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	rec := f.do(t, http.MethodPut, "/api/permissions", map[string]interface{}{
		"idGroup": 9999,
		"idPages": page.ID,
		"CanView": true,
	}, admin())

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decodeBody(t, rec).Success)
}

func TestSetPermissionEndpointValidation(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPut, "/api/permissions", map[string]interface{}{
		"CanView": true,
	}, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkSetPermissionsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	pageA := seedPage(t, f.store, Page{Name: "A", URL: "/a"})
	pageB := seedPage(t, f.store, Page{Name: "B", URL: "/b"})

	rec := f.do(t, http.MethodPut, "/api/permissions/bulk", map[string]interface{}{
		"idGroup": group.ID,
		"permissions": []map[string]interface{}{
			{"idPages": pageA.ID, "CanView": true},
			{"idPages": pageB.ID, "CanView": true, "CanAdd": true},
		},
	}, admin())

	require.Equal(t, http.StatusOK, rec.Code)

	caps, err := f.store.GetCapabilities(context.Background(), group.ID, pageB.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanAdd)
}

func TestBulkSetPermissionsPartialFailure(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	pageA := seedPage(t, f.store, Page{Name: "A", URL: "/a"})

	rec := f.do(t, http.MethodPut, "/api/permissions/bulk", map[string]interface{}{
		"idGroup": group.ID,
		"permissions": []map[string]interface{}{
			{"idPages": pageA.ID, "CanView": true},
			{"idPages": 9999, "CanView": true},
		},
	}, admin())

	// Best-effort: the request fails but the first entry stays applied.
	assert.Equal(t, http.StatusConflict, rec.Code)

	caps, err := f.store.GetCapabilities(context.Background(), group.ID, pageA.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanView)
}

func TestDeletePermissionEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	_, err := f.evaluator.SetPermission(context.Background(), group.ID, page.ID, FullCapabilities())
	require.NoError(t, err)

	target := "/api/permissions/groups/" + itoa(group.ID) + "/pages/" + itoa(page.ID)
	rec := f.do(t, http.MethodDelete, target, nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	caps, err := f.store.GetCapabilities(context.Background(), group.ID, page.ID)
	require.NoError(t, err)
	assert.Equal(t, CapabilitySet{}, caps)

	// Already inactive: a second delete finds nothing.
	rec = f.do(t, http.MethodDelete, target, nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPermissionMatrixEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	_, err := f.evaluator.SetPermission(context.Background(), group.ID, page.ID, CapabilitySet{CanView: true})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/permissions/matrix", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Matrix map[string]struct {
				Permissions map[string]struct {
					CanView bool `json:"CanView"`
				} `json:"permissions"`
			} `json:"matrix"`
			Groups []json.RawMessage `json:"groups"`
			Pages  []json.RawMessage `json:"pages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data.Groups, 2) // superadmin + editors
	assert.True(t, body.Data.Matrix[itoa(group.ID)].Permissions[itoa(page.ID)].CanView)
	// The superadmin group's cells are present and all-false.
	assert.False(t, body.Data.Matrix["1"].Permissions[itoa(page.ID)].CanView)
}

func TestCheckPermissionEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	_, err := f.evaluator.SetPermission(context.Background(), group.ID, page.ID, CapabilitySet{CanView: true})
	require.NoError(t, err)

	user := auth.NewUser(5, "alice", group.ID, "")

	check := func(target string) (bool, int) {
		rec := f.do(t, http.MethodGet, target, nil, user)
		if rec.Code != http.StatusOK {
			return false, rec.Code
		}
		var body struct {
			Data struct {
				HasPermission bool `json:"hasPermission"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Data.HasPermission, rec.Code
	}

	allowed, code := check("/api/permissions/check?page=" + itoa(page.ID) + "&capability=CanView")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, allowed)

	allowed, _ = check("/api/permissions/check?page=" + itoa(page.ID) + "&capability=CanDelete")
	assert.False(t, allowed)

	allowed, _ = check("/api/permissions/check?url=/users&capability=CanView")
	assert.True(t, allowed)

	// Unknown page is 404, not a plain deny.
	_, code = check("/api/permissions/check?page=9999&capability=CanView")
	assert.Equal(t, http.StatusNotFound, code)

	// Unknown capability name.
	rec := f.do(t, http.MethodGet, "/api/permissions/check?page="+itoa(page.ID)+"&capability=CanFly", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Anonymous.
	rec = f.do(t, http.MethodGet, "/api/permissions/check?page="+itoa(page.ID)+"&capability=CanView", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckPermissionSuperadminUnregisteredPage(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/permissions/check?url=/never-registered&capability=CanDelete", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			HasPermission bool `json:"hasPermission"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.HasPermission)
}

func TestMyPermissionsEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	group := seedGroup(t, f.store, "editors")
	page := seedPage(t, f.store, Page{Name: "Users", URL: "/users"})

	_, err := f.evaluator.SetPermission(context.Background(), group.ID, page.ID, CapabilitySet{CanView: true})
	require.NoError(t, err)

	user := auth.NewUser(5, "alice", group.ID, "")
	rec := f.do(t, http.MethodGet, "/api/me/permissions", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []PermissionRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, page.ID, body.Data[0].PageID)

	rec = f.do(t, http.MethodGet, "/api/me/permissions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMenuEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	section := seedPage(t, f.store, Page{Name: "Admin", URL: "/admin", IsParent: true, IsMenu: true, SortNo: 1})
	seedPage(t, f.store, Page{Name: "Users", URL: "/users", ParentID: &section.ID, IsMenu: true, SortNo: 1})

	rec := f.do(t, http.MethodGet, "/api/menu", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []MenuNode `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Admin", body.Data[0].PageName)
	require.Len(t, body.Data[0].Children, 1)
	assert.Equal(t, "Users", body.Data[0].Children[0].PageName)
}

func TestSuperadminInitEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	seedPage(t, f.store, Page{Name: "Users", URL: "/users"})
	seedPage(t, f.store, Page{Name: "Groups", URL: "/groups"})

	rec := f.do(t, http.MethodPost, "/api/permissions/superadmin/init", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	rows, err := f.store.ListGroupPermissions(context.Background(), SuperadminGroupID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestGroupCRUDEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	// Create
	rec := f.do(t, http.MethodPost, "/api/groups", map[string]interface{}{"groupName": "editors"}, admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data Group `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	groupID := created.Data.ID
	require.NotZero(t, groupID)
	assert.Equal(t, int64(1), *created.Data.CreatedBy)

	// Duplicate name
	rec = f.do(t, http.MethodPost, "/api/groups", map[string]interface{}{"groupName": "editors"}, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Name too long
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	rec = f.do(t, http.MethodPost, "/api/groups", map[string]interface{}{"groupName": string(long)}, admin())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Exists check
	rec = f.do(t, http.MethodGet, "/api/groups/exists?name=editors", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var exists struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exists))
	assert.True(t, exists.Data["exists"])

	// Update
	rec = f.do(t, http.MethodPut, "/api/groups/"+itoa(groupID),
		map[string]interface{}{"groupName": "writers"}, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	// Get
	rec = f.do(t, http.MethodGet, "/api/groups/"+itoa(groupID), nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched struct {
		Data Group `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, "writers", fetched.Data.Name)

	// List includes user counts
	rec = f.do(t, http.MethodGet, "/api/groups", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data []Group `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Data, 2)

	// Delete
	rec = f.do(t, http.MethodDelete, "/api/groups/"+itoa(groupID), nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/groups/"+itoa(groupID), nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupDeleteGuardsOverHTTP(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/groups/1", nil, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/groups/1", map[string]interface{}{"groupName": "renamed"}, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	group := seedGroup(t, f.store, "staff")
	seedUser(t, f.store, "alice", group.ID, "")

	rec = f.do(t, http.MethodDelete, "/api/groups/"+itoa(group.ID), nil, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPageCRUDEndpoints(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/pages", map[string]interface{}{
		"pageName": "Users",
		"pageUrl":  "/users",
		"isMenu":   true,
		"sort_no":  3,
	}, admin())
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data Page `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	pageID := created.Data.ID
	assert.Equal(t, 3, created.Data.SortNo)

	// Duplicate URL
	rec = f.do(t, http.MethodPost, "/api/pages", map[string]interface{}{
		"pageName": "Other",
		"pageUrl":  "/users",
	}, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	// URL exists check excluding self
	rec = f.do(t, http.MethodGet, "/api/pages/exists?url=/users&exclude="+itoa(pageID), nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var exists struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exists))
	assert.False(t, exists.Data["exists"])

	// Update with an invalid parent
	rec = f.do(t, http.MethodPut, "/api/pages/"+itoa(pageID), map[string]interface{}{
		"pageName": "Users",
		"pageUrl":  "/users",
		"idParent": 9999,
	}, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Delete, then gone
	rec = f.do(t, http.MethodDelete, "/api/pages/"+itoa(pageID), nil, admin())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/pages/"+itoa(pageID), nil, admin())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPageDeleteGuardsOverHTTP(t *testing.T) {
	f := newHandlerFixture(t)

	section := seedPage(t, f.store, Page{Name: "Section", URL: "/section", IsParent: true})
	seedPage(t, f.store, Page{Name: "Child", URL: "/section/child", ParentID: int64Ptr(section.ID)})

	rec := f.do(t, http.MethodDelete, "/api/pages/"+itoa(section.ID), nil, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
