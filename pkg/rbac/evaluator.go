package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/observability"
)

// Evaluator answers capability questions over the permission matrix and
// owns the write paths that change it. It holds no cross-request state;
// every decision reads the store fresh.
type Evaluator struct {
	store   *Store
	metrics *observability.Metrics
}

// NewEvaluator creates an evaluator. metrics may be nil.
func NewEvaluator(store *Store, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{store: store, metrics: metrics}
}

// Store exposes the backing store for the guard middleware and handlers.
func (e *Evaluator) Store() *Store {
	return e.store
}

// HasPermission reports whether the user's group holds the capability on
// the page. A missing user, group or permission row is a plain deny, not
// an error; only store failures propagate.
func (e *Evaluator) HasPermission(ctx context.Context, userID, pageID int64, cap Capability) (bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		e.observeError()
		return false, err
	}

	return e.groupHasPermission(ctx, user.GroupID, pageID, cap)
}

// HasAnyPermission reports whether the user's group holds any of the
// capabilities on the page, stopping at the first one granted.
func (e *Evaluator) HasAnyPermission(ctx context.Context, userID, pageID int64, caps ...Capability) (bool, error) {
	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		e.observeError()
		return false, err
	}

	return e.groupHasAnyPermission(ctx, user.GroupID, pageID, caps...)
}

// Allow decides a capability check for an already resolved user. The
// superadmin bypass fires before any page or matrix lookup, so it also
// covers pages that were never registered.
func (e *Evaluator) Allow(ctx context.Context, user *auth.User, pageID int64, cap Capability) (bool, error) {
	if user == nil {
		return false, ErrNotAuthenticated
	}
	if user.IsSuperadmin() {
		e.observeBypass(cap)
		return true, nil
	}

	return e.groupHasPermission(ctx, user.GroupID, pageID, cap)
}

// AllowAny decides an any-of capability check for a resolved user, with
// the same bypass ordering as Allow.
func (e *Evaluator) AllowAny(ctx context.Context, user *auth.User, pageID int64, caps ...Capability) (bool, error) {
	if user == nil {
		return false, ErrNotAuthenticated
	}
	if user.IsSuperadmin() {
		for _, cap := range caps {
			e.observeBypass(cap)
		}
		return true, nil
	}

	return e.groupHasAnyPermission(ctx, user.GroupID, pageID, caps...)
}

func (e *Evaluator) groupHasPermission(ctx context.Context, groupID, pageID int64, cap Capability) (bool, error) {
	caps, err := e.store.GetCapabilities(ctx, groupID, pageID)
	if err != nil {
		e.observeError()
		return false, err
	}

	allowed := caps.Has(cap)
	e.observeCheck(cap, allowed)
	return allowed, nil
}

func (e *Evaluator) groupHasAnyPermission(ctx context.Context, groupID, pageID int64, caps ...Capability) (bool, error) {
	set, err := e.store.GetCapabilities(ctx, groupID, pageID)
	if err != nil {
		e.observeError()
		return false, err
	}

	for _, cap := range caps {
		if set.Has(cap) {
			e.observeCheck(cap, true)
			return true, nil
		}
		e.observeCheck(cap, false)
	}
	return false, nil
}

// SetPermission is the sole write path for matrix cells: an idempotent
// upsert keyed by (group, page) with full-overwrite semantics. Absent
// capabilities in the input become false, never "unchanged".
func (e *Evaluator) SetPermission(ctx context.Context, groupID, pageID int64, caps CapabilitySet) (*PermissionRow, error) {
	return e.store.UpsertPermission(ctx, groupID, pageID, caps)
}

// DeletePermission deactivates a matrix cell. History is retained and a
// later SetPermission on the same key reuses the row.
func (e *Evaluator) DeletePermission(ctx context.Context, groupID, pageID int64) error {
	return e.store.DeactivatePermission(ctx, groupID, pageID)
}

// BulkEntry is one page's capability assignment inside a bulk update.
type BulkEntry struct {
	PageID int64 `json:"idPages"`
	CapabilitySet
}

// BulkSetPermissions applies SetPermission per entry. The batch is
// best-effort: each entry is an independent atomic upsert, the first
// failure aborts the remainder and entries already applied stay applied.
// Applied rows are returned alongside the error so callers can report
// partial progress.
func (e *Evaluator) BulkSetPermissions(ctx context.Context, groupID int64, entries []BulkEntry) ([]PermissionRow, error) {
	applied := make([]PermissionRow, 0, len(entries))
	for _, entry := range entries {
		row, err := e.store.UpsertPermission(ctx, groupID, entry.PageID, entry.CapabilitySet)
		if err != nil {
			return applied, fmt.Errorf("failed to set permission for page %d: %w", entry.PageID, err)
		}
		applied = append(applied, *row)
	}
	return applied, nil
}

// InitializeSuperadminPermissions grants every capability on every active
// page to the superadmin group. The group bypasses checks anyway; the
// grants keep its matrix row visible and exportable like any other
// group's. Returns the number of pages granted.
func (e *Evaluator) InitializeSuperadminPermissions(ctx context.Context) (int, error) {
	pages, err := e.store.ListActivePages(ctx)
	if err != nil {
		return 0, err
	}

	full := FullCapabilities()
	for i, page := range pages {
		if _, err := e.store.UpsertPermission(ctx, SuperadminGroupID, page.ID, full); err != nil {
			return i, fmt.Errorf("failed to grant page %d: %w", page.ID, err)
		}
	}
	return len(pages), nil
}

func (e *Evaluator) observeCheck(cap Capability, allowed bool) {
	if e.metrics != nil {
		e.metrics.ObservePermissionCheck(string(cap), allowed)
	}
}

func (e *Evaluator) observeBypass(cap Capability) {
	if e.metrics != nil {
		e.metrics.ObserveSuperadminBypass(string(cap))
	}
}

func (e *Evaluator) observeError() {
	if e.metrics != nil {
		e.metrics.PermissionCheckErrors.Inc()
	}
}
