package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means no resolvable user on the request.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrPageNotFound means the target page cannot be resolved by id or
	// URL. Distinct from a permission denial: it indicates a routing or
	// registry problem, not an access decision.
	ErrPageNotFound = errors.New("page not found")

	// ErrGroupNotFound means the named group does not exist or is deleted.
	ErrGroupNotFound = errors.New("group not found")

	// ErrUserNotFound means the user id resolves to no live user.
	ErrUserNotFound = errors.New("user not found")

	// ErrPermissionNotFound means no active permission row exists for the
	// (group, page) key. Only admin operations report this; capability
	// checks treat absence as a plain deny.
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrSuperadminGroupImmutable guards group 1 against update and delete.
	ErrSuperadminGroupImmutable = errors.New("superadmin group cannot be modified or deleted")

	// ErrGroupHasUsers blocks deletion of a group that still has live users.
	ErrGroupHasUsers = errors.New("group still has active users")

	// ErrPageHasChildren blocks deleting a parent page, or clearing its
	// parent flag, while live child pages still reference it.
	ErrPageHasChildren = errors.New("page still has child pages")

	// ErrDuplicateName means the group name is already used by a live group.
	ErrDuplicateName = errors.New("group name already in use")

	// ErrDuplicateURL means the page URL is already used by a live page.
	ErrDuplicateURL = errors.New("page url already in use")

	// ErrInvalidParent means a parent reference does not name a parent
	// page, or a page references itself.
	ErrInvalidParent = errors.New("parent must reference a parent page")
)

// IntegrityError reports a write that targets a group or page which does
// not exist. The write is rejected before any row is inserted.
type IntegrityError struct {
	Entity string
	ID     int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s %d does not exist", e.Entity, e.ID)
}
