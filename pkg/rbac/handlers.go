package rbac

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/httputil"
	"github.com/dashgate/dashgate/pkg/middleware"
	"github.com/dashgate/dashgate/pkg/observability"
)

// Handlers provides the admin HTTP surface: the permission matrix,
// permission writes, the navigation menu, and group/page registry CRUD.
type Handlers struct {
	evaluator *Evaluator
	store     *Store
}

// NewHandlers creates the handler set over an evaluator.
func NewHandlers(evaluator *Evaluator) *Handlers {
	return &Handlers{
		evaluator: evaluator,
		store:     evaluator.Store(),
	}
}

// RegisterRoutes registers all routes on the router, typically a
// subrouter mounted at /api.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Permission matrix and writes
	router.HandleFunc("/permissions/matrix", h.GetPermissionMatrix).Methods("GET")
	router.HandleFunc("/permissions/check", h.CheckPermission).Methods("GET")
	router.HandleFunc("/permissions/groups/{id}", h.ListGroupPermissions).Methods("GET")
	router.HandleFunc("/permissions/pages/{id}", h.ListPagePermissions).Methods("GET")
	router.HandleFunc("/permissions", h.SetPermission).Methods("PUT")
	router.HandleFunc("/permissions/bulk", h.BulkSetPermissions).Methods("PUT")
	router.HandleFunc("/permissions/groups/{groupID}/pages/{pageID}", h.DeletePermission).Methods("DELETE")
	router.HandleFunc("/permissions/superadmin/init", h.InitializeSuperadminPermissions).Methods("POST")

	// Current user
	router.HandleFunc("/me/permissions", h.GetMyPermissions).Methods("GET")
	router.HandleFunc("/menu", h.GetMenu).Methods("GET")

	// Group registry
	router.HandleFunc("/groups", h.ListGroups).Methods("GET")
	router.HandleFunc("/groups", h.CreateGroup).Methods("POST")
	router.HandleFunc("/groups/exists", h.GroupNameExists).Methods("GET")
	router.HandleFunc("/groups/{id}", h.GetGroup).Methods("GET")
	router.HandleFunc("/groups/{id}", h.UpdateGroup).Methods("PUT")
	router.HandleFunc("/groups/{id}", h.DeleteGroup).Methods("DELETE")

	// Page registry
	router.HandleFunc("/pages", h.ListPages).Methods("GET")
	router.HandleFunc("/pages", h.CreatePage).Methods("POST")
	router.HandleFunc("/pages/exists", h.PageURLExists).Methods("GET")
	router.HandleFunc("/pages/{id}", h.GetPage).Methods("GET")
	router.HandleFunc("/pages/{id}", h.UpdatePage).Methods("PUT")
	router.HandleFunc("/pages/{id}", h.DeletePage).Methods("DELETE")
}

// GetPermissionMatrix returns the dense (groups x pages) capability grid.
func (h *Handlers) GetPermissionMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.evaluator.PermissionMatrix(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, matrix) //nolint:errcheck
}

// CheckPermission answers a single capability question for the current
// user. The page is named by ?page=<id> or ?url=<page url>.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	cap, err := ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	pageID, ok := h.resolvePageID(w, r, user)
	if !ok {
		return
	}

	allowed, err := h.evaluator.Allow(r.Context(), user, pageID, cap)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]bool{"hasPermission": allowed}) //nolint:errcheck
}

// resolvePageID resolves the target page from query params. Superadmins
// may name an unregistered page by id; the bypass does not depend on the
// page existing.
func (h *Handlers) resolvePageID(w http.ResponseWriter, r *http.Request, user *auth.User) (int64, bool) {
	if idParam := r.URL.Query().Get("page"); idParam != "" {
		pageID, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid page id")
			return 0, false
		}
		if !user.IsSuperadmin() {
			if _, err := h.store.GetPage(r.Context(), pageID); err != nil {
				h.writeDomainError(w, r, err)
				return 0, false
			}
		}
		return pageID, true
	}

	urlParam := r.URL.Query().Get("url")
	if urlParam == "" {
		httputil.WriteBadRequest(w, "page or url parameter is required")
		return 0, false
	}
	if user.IsSuperadmin() {
		// The bypass short-circuits before any lookup; page identity is
		// irrelevant to the answer.
		return 0, true
	}
	page, err := h.store.GetPageByURL(r.Context(), urlParam)
	if err != nil {
		h.writeDomainError(w, r, err)
		return 0, false
	}
	return page.ID, true
}

// ListGroupPermissions lists a group's active permission rows.
func (h *Handlers) ListGroupPermissions(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetGroup(r.Context(), groupID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rows, err := h.store.ListGroupPermissions(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rows) //nolint:errcheck
}

// ListPagePermissions lists a page's active permission rows across groups.
func (h *Handlers) ListPagePermissions(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetPage(r.Context(), pageID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	rows, err := h.store.ListPagePermissions(r.Context(), pageID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rows) //nolint:errcheck
}

// SetPermission upserts one matrix cell. Capabilities absent from the
// body become false.
func (h *Handlers) SetPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID int64 `json:"idGroup"`
		PageID  int64 `json:"idPages"`
		CapabilitySet
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GroupID == 0 || req.PageID == 0 {
		httputil.WriteBadRequest(w, "idGroup and idPages are required")
		return
	}

	row, err := h.evaluator.SetPermission(r.Context(), req.GroupID, req.PageID, req.CapabilitySet)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "permission saved", row) //nolint:errcheck
}

// BulkSetPermissions applies a batch of cell upserts for one group.
// Best-effort: a failing entry aborts the remainder, applied entries stay.
func (h *Handlers) BulkSetPermissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID     int64       `json:"idGroup"`
		Permissions []BulkEntry `json:"permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GroupID == 0 || len(req.Permissions) == 0 {
		httputil.WriteBadRequest(w, "idGroup and permissions are required")
		return
	}

	applied, err := h.evaluator.BulkSetPermissions(r.Context(), req.GroupID, req.Permissions)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("applied", len(applied)).Warn("bulk permission update aborted")
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "permissions saved", applied) //nolint:errcheck
}

// DeletePermission deactivates one matrix cell.
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.PathInt64OrError(w, r, "groupID")
	if !ok {
		return
	}
	pageID, ok := httputil.PathInt64OrError(w, r, "pageID")
	if !ok {
		return
	}

	if err := h.evaluator.DeletePermission(r.Context(), groupID, pageID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "permission removed", nil) //nolint:errcheck
}

// InitializeSuperadminPermissions grants full capabilities on every
// active page to the superadmin group.
func (h *Handlers) InitializeSuperadminPermissions(w http.ResponseWriter, r *http.Request) {
	granted, err := h.evaluator.InitializeSuperadminPermissions(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "superadmin permissions initialized", map[string]int{"pagesGranted": granted}) //nolint:errcheck
}

// GetMyPermissions lists the current user's group permission rows.
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	rows, err := h.store.ListGroupPermissions(r.Context(), user.GroupID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, rows) //nolint:errcheck
}

// GetMenu returns the navigation tree, rebuilt on every request.
func (h *Handlers) GetMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.evaluator.Menu(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, menu) //nolint:errcheck
}

// ListGroups lists live groups with user counts.
func (h *Handlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, groups) //nolint:errcheck
}

// CreateGroup creates a group. Names are unique among live groups.
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"groupName"`
		IsActive *bool  `json:"isActive"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "groupName is required")
		return
	}
	if len(req.Name) > 50 {
		httputil.WriteBadRequest(w, "groupName must be at most 50 characters")
		return
	}

	group := &Group{
		Name:      req.Name,
		IsActive:  req.IsActive == nil || *req.IsActive,
		CreatedBy: actorID(r),
	}
	if err := h.store.CreateGroup(r.Context(), group); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, "group created", group) //nolint:errcheck
}

// GroupNameExists answers the live-uniqueness check used by admin forms.
func (h *Handlers) GroupNameExists(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.WriteBadRequest(w, "name parameter is required")
		return
	}

	var excludeID int64
	if excludeParam := r.URL.Query().Get("exclude"); excludeParam != "" {
		id, err := strconv.ParseInt(excludeParam, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid exclude id")
			return
		}
		excludeID = id
	}

	exists, err := h.store.GroupNameExists(r.Context(), name, excludeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"exists": exists}) //nolint:errcheck
}

// GetGroup retrieves one group.
func (h *Handlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	group, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, group) //nolint:errcheck
}

// UpdateGroup renames a group or flips its active flag.
func (h *Handlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name     string `json:"groupName"`
		IsActive *bool  `json:"isActive"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "groupName is required")
		return
	}
	if len(req.Name) > 50 {
		httputil.WriteBadRequest(w, "groupName must be at most 50 characters")
		return
	}

	group, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	group.Name = req.Name
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	group.UpdatedBy = actorID(r)

	if err := h.store.UpdateGroup(r.Context(), group); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "group updated", group) //nolint:errcheck
}

// DeleteGroup tombstones a group, subject to the superadmin and
// user-count guards.
func (h *Handlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteGroup(r.Context(), groupID, actorID(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "group deleted", nil) //nolint:errcheck
}

// ListPages lists live pages for administration.
func (h *Handlers) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.store.ListPages(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pages) //nolint:errcheck
}

type pageRequest struct {
	Name      string `json:"pageName"`
	URL       string `json:"pageUrl"`
	IsParent  bool   `json:"isParent"`
	ParentID  *int64 `json:"idParent"`
	MenuIcon  string `json:"menuIcon"`
	MenuClass string `json:"menuClass"`
	IsMenu    bool   `json:"isMenu"`
	SortNo    int    `json:"sort_no"`
	IsActive  *bool  `json:"isActive"`
	LangName  string `json:"langName"`
}

func (req *pageRequest) validate(w http.ResponseWriter) bool {
	if req.Name == "" || req.URL == "" {
		httputil.WriteBadRequest(w, "pageName and pageUrl are required")
		return false
	}
	return true
}

func (req *pageRequest) apply(page *Page) {
	page.Name = req.Name
	page.URL = req.URL
	page.IsParent = req.IsParent
	page.ParentID = req.ParentID
	page.MenuIcon = req.MenuIcon
	page.MenuClass = req.MenuClass
	page.IsMenu = req.IsMenu
	page.SortNo = req.SortNo
	page.IsActive = req.IsActive == nil || *req.IsActive
	page.LangName = req.LangName
}

// CreatePage registers a page.
func (h *Handlers) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	page := &Page{CreatedBy: actorID(r)}
	req.apply(page)

	if err := h.store.CreatePage(r.Context(), page); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, "page created", page) //nolint:errcheck
}

// PageURLExists answers the live URL-uniqueness check used by admin forms.
func (h *Handlers) PageURLExists(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		httputil.WriteBadRequest(w, "url parameter is required")
		return
	}

	var excludeID int64
	if excludeParam := r.URL.Query().Get("exclude"); excludeParam != "" {
		id, err := strconv.ParseInt(excludeParam, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid exclude id")
			return
		}
		excludeID = id
	}

	exists, err := h.store.PageURLExists(r.Context(), pageURL, excludeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"exists": exists}) //nolint:errcheck
}

// GetPage retrieves one page.
func (h *Handlers) GetPage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	page, err := h.store.GetPage(r.Context(), pageID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page) //nolint:errcheck
}

// UpdatePage updates a page's registration.
func (h *Handlers) UpdatePage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req pageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	page, err := h.store.GetPage(r.Context(), pageID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	req.apply(page)
	page.UpdatedBy = actorID(r)

	if err := h.store.UpdatePage(r.Context(), page); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "page updated", page) //nolint:errcheck
}

// DeletePage tombstones a page.
func (h *Handlers) DeletePage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := httputil.PathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeletePage(r.Context(), pageID, actorID(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	httputil.WriteSuccessMessage(w, "page deleted", nil) //nolint:errcheck
}

// writeDomainError maps domain errors onto the response envelope.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var integrity *IntegrityError

	switch {
	case errors.Is(err, ErrNotAuthenticated):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrPageNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPermissionNotFound):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, ErrSuperadminGroupImmutable),
		errors.Is(err, ErrGroupHasUsers),
		errors.Is(err, ErrPageHasChildren),
		errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrDuplicateURL),
		errors.Is(err, ErrInvalidParent):
		httputil.WriteConflict(w, err.Error())
	case errors.As(err, &integrity):
		httputil.WriteConflict(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, "internal error")
	}
}

func actorID(r *http.Request) *int64 {
	user := middleware.GetUser(r)
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}
