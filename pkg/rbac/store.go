package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/observability"
)

// Store handles persistence for groups, pages and permission rows. All
// SQL is parameterized with $n placeholders and runs against PostgreSQL
// in deployments and in-memory SQLite in tests.
type Store struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewStore creates a new store. metrics may be nil.
func NewStore(db *sql.DB, metrics *observability.Metrics) *Store {
	return &Store{db: db, metrics: metrics}
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) observe(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(operation, start, err)
	}
}

// GetUser resolves a live user to the identity the evaluator needs. The
// users table is owned by the auth subsystem; this is a read-only lookup.
func (s *Store) GetUser(ctx context.Context, userID int64) (*auth.User, error) {
	query := `
		SELECT id, username, group_id, designation
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`

	var (
		id          int64
		username    string
		groupID     int64
		designation sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id, &username, &groupID, &designation)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return auth.NewUser(id, username, groupID, designation.String), nil
}

// CountGroupUsers counts live users assigned to a group.
func (s *Store) CountGroupUsers(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE group_id = $1 AND deleted_at IS NULL`,
		groupID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count group users: %w", err)
	}
	return count, nil
}

// CountPageChildren counts live pages whose parent reference points at the
// page.
func (s *Store) CountPageChildren(ctx context.Context, pageID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE parent_id = $1 AND deleted_at IS NULL`,
		pageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count page children: %w", err)
	}
	return count, nil
}

// CreateGroup creates a new group. Names must be unique among live groups.
func (s *Store) CreateGroup(ctx context.Context, group *Group) error {
	exists, err := s.GroupNameExists(ctx, group.Name, 0)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateName
	}

	query := `
		INSERT INTO groups (group_name, is_active, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		group.Name,
		group.IsActive,
		group.CreatedBy,
		now,
		group.CreatedBy,
		now,
	).Scan(&group.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}

	group.CreatedAt = now
	group.UpdatedAt = now
	return nil
}

// GetGroup retrieves a live group by ID.
func (s *Store) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	query := `
		SELECT id, group_name, is_active, created_by, created_at, updated_by, updated_at
		FROM groups
		WHERE id = $1 AND deleted_at IS NULL
	`

	var group Group
	var createdBy, updatedBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&group.ID,
		&group.Name,
		&group.IsActive,
		&createdBy,
		&group.CreatedAt,
		&updatedBy,
		&group.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.CreatedBy = nullInt64Ptr(createdBy)
	group.UpdatedBy = nullInt64Ptr(updatedBy)
	return &group, nil
}

// ListGroups lists live groups with their live-user counts.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	query := `
		SELECT g.id, g.group_name, g.is_active, g.created_by, g.created_at, g.updated_by, g.updated_at,
		       COUNT(u.id) AS user_count
		FROM groups g
		LEFT JOIN users u ON u.group_id = g.id AND u.deleted_at IS NULL
		WHERE g.deleted_at IS NULL
		GROUP BY g.id, g.group_name, g.is_active, g.created_by, g.created_at, g.updated_by, g.updated_at
		ORDER BY g.id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var group Group
		var createdBy, updatedBy sql.NullInt64

		err := rows.Scan(
			&group.ID,
			&group.Name,
			&group.IsActive,
			&createdBy,
			&group.CreatedAt,
			&updatedBy,
			&group.UpdatedAt,
			&group.UserCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}

		group.CreatedBy = nullInt64Ptr(createdBy)
		group.UpdatedBy = nullInt64Ptr(updatedBy)
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// ListActiveGroups lists groups eligible for the permission matrix.
func (s *Store) ListActiveGroups(ctx context.Context) (groups []Group, err error) {
	defer func(start time.Time) { s.observe("list_active_groups", start, err) }(time.Now())

	query := `
		SELECT id, group_name, is_active, created_by, created_at, updated_by, updated_at
		FROM groups
		WHERE is_active = TRUE AND deleted_at IS NULL
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var group Group
		var createdBy, updatedBy sql.NullInt64

		err := rows.Scan(
			&group.ID,
			&group.Name,
			&group.IsActive,
			&createdBy,
			&group.CreatedAt,
			&updatedBy,
			&group.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}

		group.CreatedBy = nullInt64Ptr(createdBy)
		group.UpdatedBy = nullInt64Ptr(updatedBy)
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// UpdateGroup updates a group's name and active flag. The superadmin
// group is immutable.
func (s *Store) UpdateGroup(ctx context.Context, group *Group) error {
	if group.ID == SuperadminGroupID {
		return ErrSuperadminGroupImmutable
	}

	exists, err := s.GroupNameExists(ctx, group.Name, group.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateName
	}

	query := `
		UPDATE groups
		SET group_name = $1, is_active = $2, updated_by = $3, updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`

	group.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		group.Name,
		group.IsActive,
		group.UpdatedBy,
		group.UpdatedAt,
		group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// DeleteGroup tombstones a group. Group 1 is never deletable; a group
// with live users is not deletable either.
func (s *Store) DeleteGroup(ctx context.Context, groupID int64, deletedBy *int64) error {
	if groupID == SuperadminGroupID {
		return ErrSuperadminGroupImmutable
	}

	count, err := s.CountGroupUsers(ctx, groupID)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrGroupHasUsers
	}

	query := `
		UPDATE groups
		SET is_active = FALSE, deleted_by = $1, deleted_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, deletedBy, time.Now(), groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if affected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// GroupNameExists reports whether a live group other than excludeID
// already uses the name.
func (s *Store) GroupNameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM groups
			WHERE group_name = $1 AND id != $2 AND deleted_at IS NULL
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group name: %w", err)
	}
	return exists, nil
}

// CreatePage registers a new page. URLs must be unique among live pages
// and a parent reference must name an is_parent page.
func (s *Store) CreatePage(ctx context.Context, page *Page) error {
	page.ParentID = normalizeParentID(page.ParentID)

	exists, err := s.PageURLExists(ctx, page.URL, 0)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateURL
	}

	if err := s.validateParent(ctx, page.ParentID, 0); err != nil {
		return err
	}

	query := `
		INSERT INTO pages (page_name, page_url, is_parent, parent_id, menu_icon, menu_class,
		                   is_menu, sort_no, is_active, lang_name, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		page.Name,
		page.URL,
		page.IsParent,
		page.ParentID,
		page.MenuIcon,
		page.MenuClass,
		page.IsMenu,
		page.SortNo,
		page.IsActive,
		page.LangName,
		page.CreatedBy,
		now,
		page.CreatedBy,
		now,
	).Scan(&page.ID)
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	page.CreatedAt = now
	page.UpdatedAt = now
	return nil
}

const pageColumns = `id, page_name, page_url, is_parent, parent_id, menu_icon, menu_class,
	is_menu, sort_no, is_active, lang_name, created_by, created_at, updated_by, updated_at`

// GetPage retrieves a live page by ID.
func (s *Store) GetPage(ctx context.Context, pageID int64) (*Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE id = $1 AND deleted_at IS NULL`

	page, err := s.scanPage(s.db.QueryRowContext(ctx, query, pageID))
	if err == sql.ErrNoRows {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return page, nil
}

// GetPageByURL retrieves a live page by its URL.
func (s *Store) GetPageByURL(ctx context.Context, pageURL string) (*Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE page_url = $1 AND deleted_at IS NULL`

	page, err := s.scanPage(s.db.QueryRowContext(ctx, query, pageURL))
	if err == sql.ErrNoRows {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page by url: %w", err)
	}
	return page, nil
}

// ListPages lists all live pages for administration.
func (s *Store) ListPages(ctx context.Context) ([]Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE deleted_at IS NULL ORDER BY sort_no ASC, id ASC`
	return s.queryPages(ctx, query)
}

// ListActivePages lists pages eligible for the permission matrix.
func (s *Store) ListActivePages(ctx context.Context) (pages []Page, err error) {
	defer func(start time.Time) { s.observe("list_active_pages", start, err) }(time.Now())

	query := `SELECT ` + pageColumns + ` FROM pages
		WHERE is_active = TRUE AND deleted_at IS NULL
		ORDER BY sort_no ASC, id ASC`
	return s.queryPages(ctx, query)
}

// ListMenuPages lists menu-visible active pages in menu order. Menu
// visibility is structural; it is not filtered by the permission matrix.
func (s *Store) ListMenuPages(ctx context.Context) (pages []Page, err error) {
	defer func(start time.Time) { s.observe("list_menu_pages", start, err) }(time.Now())

	query := `SELECT ` + pageColumns + ` FROM pages
		WHERE is_menu = TRUE AND is_active = TRUE AND deleted_at IS NULL
		ORDER BY sort_no ASC, id ASC`
	return s.queryPages(ctx, query)
}

// UpdatePage updates a page's registration.
func (s *Store) UpdatePage(ctx context.Context, page *Page) error {
	page.ParentID = normalizeParentID(page.ParentID)

	exists, err := s.PageURLExists(ctx, page.URL, page.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateURL
	}

	if err := s.validateParent(ctx, page.ParentID, page.ID); err != nil {
		return err
	}

	if !page.IsParent {
		children, err := s.CountPageChildren(ctx, page.ID)
		if err != nil {
			return err
		}
		if children > 0 {
			return ErrPageHasChildren
		}
	}

	query := `
		UPDATE pages
		SET page_name = $1, page_url = $2, is_parent = $3, parent_id = $4, menu_icon = $5,
		    menu_class = $6, is_menu = $7, sort_no = $8, is_active = $9, lang_name = $10,
		    updated_by = $11, updated_at = $12
		WHERE id = $13 AND deleted_at IS NULL
	`

	page.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		page.Name,
		page.URL,
		page.IsParent,
		page.ParentID,
		page.MenuIcon,
		page.MenuClass,
		page.IsMenu,
		page.SortNo,
		page.IsActive,
		page.LangName,
		page.UpdatedBy,
		page.UpdatedAt,
		page.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	if affected == 0 {
		return ErrPageNotFound
	}
	return nil
}

// DeletePage tombstones a page. Parent pages with live children are
// rejected so child references never dangle.
func (s *Store) DeletePage(ctx context.Context, pageID int64, deletedBy *int64) error {
	children, err := s.CountPageChildren(ctx, pageID)
	if err != nil {
		return err
	}
	if children > 0 {
		return ErrPageHasChildren
	}

	query := `
		UPDATE pages
		SET is_active = FALSE, deleted_by = $1, deleted_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, deletedBy, time.Now(), pageID)
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	if affected == 0 {
		return ErrPageNotFound
	}
	return nil
}

// PageURLExists reports whether a live page other than excludeID already
// uses the URL.
func (s *Store) PageURLExists(ctx context.Context, pageURL string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM pages
			WHERE page_url = $1 AND id != $2 AND deleted_at IS NULL
		)
	`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, pageURL, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check page url: %w", err)
	}
	return exists, nil
}

// GetCapabilities returns the active capability set for a (group, page)
// key. Absence of a row is not an error: the zero set is the valid
// deny-by-default answer.
func (s *Store) GetCapabilities(ctx context.Context, groupID, pageID int64) (caps CapabilitySet, err error) {
	defer func(start time.Time) { s.observe("get_capabilities", start, err) }(time.Now())

	query := `
		SELECT can_add, can_edit, can_delete, can_view, can_view_all_detail
		FROM page_group
		WHERE group_id = $1 AND page_id = $2 AND is_active = TRUE
	`

	err = s.db.QueryRowContext(ctx, query, groupID, pageID).Scan(
		&caps.CanAdd,
		&caps.CanEdit,
		&caps.CanDelete,
		&caps.CanView,
		&caps.CanViewAllDetail,
	)
	if err == sql.ErrNoRows {
		return CapabilitySet{}, nil
	}
	if err != nil {
		return CapabilitySet{}, fmt.Errorf("failed to get capabilities: %w", err)
	}
	return caps, nil
}

// GetPermission retrieves the active permission row for a (group, page)
// key. Admin operations use this; capability checks use GetCapabilities.
func (s *Store) GetPermission(ctx context.Context, groupID, pageID int64) (*PermissionRow, error) {
	query := `
		SELECT id, group_id, page_id, can_add, can_edit, can_delete, can_view, can_view_all_detail,
		       is_active, created_at, updated_at
		FROM page_group
		WHERE group_id = $1 AND page_id = $2 AND is_active = TRUE
	`

	var row PermissionRow
	err := s.db.QueryRowContext(ctx, query, groupID, pageID).Scan(
		&row.ID,
		&row.GroupID,
		&row.PageID,
		&row.CanAdd,
		&row.CanEdit,
		&row.CanDelete,
		&row.CanView,
		&row.CanViewAllDetail,
		&row.IsActive,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return &row, nil
}

// UpsertPermission is the single write path for the matrix: one atomic
// statement keyed on (group_id, page_id). Full-overwrite semantics, and a
// previously deactivated row is reactivated in place so the key never
// accumulates duplicates. Referential integrity is checked up front; the
// foreign-key mapping below only catches the race where the target is
// deleted between check and write.
func (s *Store) UpsertPermission(ctx context.Context, groupID, pageID int64, caps CapabilitySet) (row *PermissionRow, err error) {
	defer func(start time.Time) { s.observe("upsert_permission", start, err) }(time.Now())

	if err := s.requireGroupExists(ctx, groupID); err != nil {
		return nil, err
	}
	if err := s.requirePageExists(ctx, pageID); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO page_group (group_id, page_id, can_add, can_edit, can_delete, can_view,
		                        can_view_all_detail, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)
		ON CONFLICT (group_id, page_id) DO UPDATE SET
			can_add = excluded.can_add,
			can_edit = excluded.can_edit,
			can_delete = excluded.can_delete,
			can_view = excluded.can_view,
			can_view_all_detail = excluded.can_view_all_detail,
			is_active = TRUE,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	result := PermissionRow{
		GroupID:       groupID,
		PageID:        pageID,
		CapabilitySet: caps,
		IsActive:      true,
		UpdatedAt:     now,
	}

	err = s.db.QueryRowContext(ctx, query,
		groupID,
		pageID,
		caps.CanAdd,
		caps.CanEdit,
		caps.CanDelete,
		caps.CanView,
		caps.CanViewAllDetail,
		now,
		now,
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		if integrity := foreignKeyViolation(err, groupID, pageID); integrity != nil {
			return nil, integrity
		}
		return nil, fmt.Errorf("failed to upsert permission: %w", err)
	}

	return &result, nil
}

// DeactivatePermission soft-deletes the permission row for a key. The row
// is retained; a later upsert reactivates it.
func (s *Store) DeactivatePermission(ctx context.Context, groupID, pageID int64) (err error) {
	defer func(start time.Time) { s.observe("deactivate_permission", start, err) }(time.Now())

	query := `
		UPDATE page_group
		SET is_active = FALSE, updated_at = $1
		WHERE group_id = $2 AND page_id = $3 AND is_active = TRUE
	`

	result, err := s.db.ExecContext(ctx, query, time.Now(), groupID, pageID)
	if err != nil {
		return fmt.Errorf("failed to deactivate permission: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate permission: %w", err)
	}
	if affected == 0 {
		return ErrPermissionNotFound
	}
	return nil
}

// ListGroupPermissions lists a group's active permission rows.
func (s *Store) ListGroupPermissions(ctx context.Context, groupID int64) ([]PermissionRow, error) {
	query := `
		SELECT id, group_id, page_id, can_add, can_edit, can_delete, can_view, can_view_all_detail,
		       is_active, created_at, updated_at
		FROM page_group
		WHERE group_id = $1 AND is_active = TRUE
		ORDER BY page_id ASC
	`
	return s.queryPermissions(ctx, query, groupID)
}

// ListPagePermissions lists a page's active permission rows across groups.
func (s *Store) ListPagePermissions(ctx context.Context, pageID int64) ([]PermissionRow, error) {
	query := `
		SELECT id, group_id, page_id, can_add, can_edit, can_delete, can_view, can_view_all_detail,
		       is_active, created_at, updated_at
		FROM page_group
		WHERE page_id = $1 AND is_active = TRUE
		ORDER BY group_id ASC
	`
	return s.queryPermissions(ctx, query, pageID)
}

// ListActivePermissions lists every active permission row, the sparse
// half of the dense matrix.
func (s *Store) ListActivePermissions(ctx context.Context) (rows []PermissionRow, err error) {
	defer func(start time.Time) { s.observe("list_active_permissions", start, err) }(time.Now())

	query := `
		SELECT id, group_id, page_id, can_add, can_edit, can_delete, can_view, can_view_all_detail,
		       is_active, created_at, updated_at
		FROM page_group
		WHERE is_active = TRUE
		ORDER BY group_id ASC, page_id ASC
	`
	return s.queryPermissions(ctx, query)
}

func (s *Store) queryPermissions(ctx context.Context, query string, args ...interface{}) ([]PermissionRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var result []PermissionRow
	for rows.Next() {
		var row PermissionRow
		err := rows.Scan(
			&row.ID,
			&row.GroupID,
			&row.PageID,
			&row.CanAdd,
			&row.CanEdit,
			&row.CanDelete,
			&row.CanView,
			&row.CanViewAllDetail,
			&row.IsActive,
			&row.CreatedAt,
			&row.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		result = append(result, row)
	}

	return result, rows.Err()
}

func (s *Store) queryPages(ctx context.Context, query string, args ...interface{}) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		page, err := s.scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *page)
	}

	return pages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanPage(scanner rowScanner) (*Page, error) {
	var page Page
	var parentID, createdBy, updatedBy sql.NullInt64
	var menuIcon, menuClass, langName sql.NullString

	err := scanner.Scan(
		&page.ID,
		&page.Name,
		&page.URL,
		&page.IsParent,
		&parentID,
		&menuIcon,
		&menuClass,
		&page.IsMenu,
		&page.SortNo,
		&page.IsActive,
		&langName,
		&createdBy,
		&page.CreatedAt,
		&updatedBy,
		&page.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// NULL and 0 both mean no parent; normalize at the load boundary so
	// tree building never sees the raw representation.
	if parentID.Valid && parentID.Int64 != 0 {
		page.ParentID = &parentID.Int64
	}
	page.MenuIcon = menuIcon.String
	page.MenuClass = menuClass.String
	page.LangName = langName.String
	page.CreatedBy = nullInt64Ptr(createdBy)
	page.UpdatedBy = nullInt64Ptr(updatedBy)
	return &page, nil
}

func (s *Store) requireGroupExists(ctx context.Context, groupID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1 AND deleted_at IS NULL)`,
		groupID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check group: %w", err)
	}
	if !exists {
		return &IntegrityError{Entity: "group", ID: groupID}
	}
	return nil
}

func (s *Store) requirePageExists(ctx context.Context, pageID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pages WHERE id = $1 AND deleted_at IS NULL)`,
		pageID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check page: %w", err)
	}
	if !exists {
		return &IntegrityError{Entity: "page", ID: pageID}
	}
	return nil
}

// validateParent checks that a parent reference names a live page whose
// is_parent flag is set. selfID guards against a page parenting itself.
func (s *Store) validateParent(ctx context.Context, parentID *int64, selfID int64) error {
	if parentID == nil {
		return nil
	}
	if selfID != 0 && *parentID == selfID {
		return ErrInvalidParent
	}

	var isParent bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_parent FROM pages WHERE id = $1 AND deleted_at IS NULL`,
		*parentID,
	).Scan(&isParent)
	if err == sql.ErrNoRows {
		return &IntegrityError{Entity: "page", ID: *parentID}
	}
	if err != nil {
		return fmt.Errorf("failed to check parent page: %w", err)
	}
	if !isParent {
		return ErrInvalidParent
	}
	return nil
}

// foreignKeyViolation maps a Postgres foreign-key violation on the
// permission table to the matching IntegrityError, or nil for anything
// else.
func foreignKeyViolation(err error, groupID, pageID int64) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23503" {
		return nil
	}
	if strings.Contains(pqErr.Constraint, "group") {
		return &IntegrityError{Entity: "group", ID: groupID}
	}
	return &IntegrityError{Entity: "page", ID: pageID}
}

func normalizeParentID(parentID *int64) *int64 {
	if parentID == nil || *parentID == 0 {
		return nil
	}
	return parentID
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
