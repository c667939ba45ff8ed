package rbac

import (
	"fmt"
	"time"
)

// SuperadminGroupID is the reserved group that always holds every
// capability. It can never be updated or deleted.
const SuperadminGroupID int64 = 1

// Capability names one of the five boolean rights a group may hold on a
// page. The set is fixed; it is not extensible at runtime.
type Capability string

const (
	CapAdd           Capability = "CanAdd"
	CapEdit          Capability = "CanEdit"
	CapDelete        Capability = "CanDelete"
	CapView          Capability = "CanView"
	CapViewAllDetail Capability = "CanViewAllDetail"
)

// AllCapabilities returns the fixed capability set in declaration order.
func AllCapabilities() []Capability {
	return []Capability{CapAdd, CapEdit, CapDelete, CapView, CapViewAllDetail}
}

// ParseCapability validates a capability name from user input.
func ParseCapability(name string) (Capability, error) {
	switch Capability(name) {
	case CapAdd, CapEdit, CapDelete, CapView, CapViewAllDetail:
		return Capability(name), nil
	}
	return "", fmt.Errorf("unknown capability: %q", name)
}

// CapabilitySet holds the five capability booleans for one (group, page)
// pair. The zero value means no capability, which is the deny-by-default
// state of an absent matrix row.
type CapabilitySet struct {
	CanAdd           bool `json:"CanAdd"`
	CanEdit          bool `json:"CanEdit"`
	CanDelete        bool `json:"CanDelete"`
	CanView          bool `json:"CanView"`
	CanViewAllDetail bool `json:"CanViewAllDetail"`
}

// Has reports whether the named capability is granted.
func (s CapabilitySet) Has(c Capability) bool {
	switch c {
	case CapAdd:
		return s.CanAdd
	case CapEdit:
		return s.CanEdit
	case CapDelete:
		return s.CanDelete
	case CapView:
		return s.CanView
	case CapViewAllDetail:
		return s.CanViewAllDetail
	}
	return false
}

// HasAny reports whether any of the named capabilities is granted,
// stopping at the first one found.
func (s CapabilitySet) HasAny(caps ...Capability) bool {
	for _, c := range caps {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// FullCapabilities returns a set with every capability granted.
func FullCapabilities() CapabilitySet {
	return CapabilitySet{
		CanAdd:           true,
		CanEdit:          true,
		CanDelete:        true,
		CanView:          true,
		CanViewAllDetail: true,
	}
}

// Tombstone records a soft delete. The zero value means the row is live.
type Tombstone struct {
	By *int64     `json:"deletedBy,omitempty"`
	At *time.Time `json:"deletedAt,omitempty"`
}

// Deleted reports whether the tombstone is set.
func (t Tombstone) Deleted() bool {
	return t.At != nil
}

// Group is a role users belong to; the unit of permission assignment.
type Group struct {
	ID        int64     `json:"id"`
	Name      string    `json:"groupName"`
	IsActive  bool      `json:"isActive"`
	CreatedBy *int64    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedBy *int64    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   Tombstone `json:"-"`

	// UserCount is filled by listings only; it counts live users in the
	// group and gates deletion.
	UserCount int64 `json:"userCount"`
}

// Page is a navigable resource. ParentID is nil for top-level pages; when
// set it must name a page whose IsParent flag is true.
type Page struct {
	ID        int64     `json:"idPages"`
	Name      string    `json:"pageName"`
	URL       string    `json:"pageUrl"`
	IsParent  bool      `json:"isParent"`
	ParentID  *int64    `json:"idParent"`
	MenuIcon  string    `json:"menuIcon"`
	MenuClass string    `json:"menuClass"`
	IsMenu    bool      `json:"isMenu"`
	SortNo    int       `json:"sort_no"`
	IsActive  bool      `json:"isActive"`
	LangName  string    `json:"langName,omitempty"`
	CreatedBy *int64    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedBy *int64    `json:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   Tombstone `json:"-"`
}

// PermissionRow is one stored (group, page) capability assignment. At most
// one row exists per key; deactivation flips IsActive instead of removing
// the row, and a later set reactivates it in place.
type PermissionRow struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"idGroup"`
	PageID  int64 `json:"idPages"`
	CapabilitySet
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MenuNode is one entry of the navigation tree. Parent nodes carry their
// sorted children; leaves have an empty children list.
type MenuNode struct {
	ID        int64      `json:"idPages"`
	PageName  string     `json:"pageName"`
	PageURL   string     `json:"pageUrl"`
	MenuIcon  string     `json:"menuIcon"`
	MenuClass string     `json:"menuClass,omitempty"`
	SortNo    int        `json:"sort_no"`
	Children  []MenuNode `json:"children"`
}

// MatrixCell is one dense matrix cell: page info plus the capability set,
// all-false when no row is stored.
type MatrixCell struct {
	PageInfo PageInfo `json:"pageInfo"`
	CapabilitySet
}

// PageInfo is the page summary embedded in matrix cells.
type PageInfo struct {
	ID   int64  `json:"idPages"`
	Name string `json:"pageName"`
	URL  string `json:"pageUrl"`
}

// GroupInfo is the group summary embedded in matrix entries.
type GroupInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"groupName"`
}

// MatrixGroupEntry holds one group's dense row of the matrix, keyed by
// page id.
type MatrixGroupEntry struct {
	GroupInfo   GroupInfo            `json:"groupInfo"`
	Permissions map[int64]MatrixCell `json:"permissions"`
}

// Matrix is the dense (active groups x live pages) permission grid. The
// underlying storage is sparse; absent cells are materialized all-false.
type Matrix struct {
	Matrix map[int64]MatrixGroupEntry `json:"matrix"`
	Groups []Group                    `json:"groups"`
	Pages  []Page                     `json:"pages"`
}
