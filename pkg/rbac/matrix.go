package rbac

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BuildMatrix materializes the dense (groups x pages) grid from the
// sparse stored rows. Every pair gets a cell; pairs without a stored row
// get the all-false capability set. Keeping this densification in one
// explicit read-model function means the absence-means-false rule never
// leaks into write paths.
func BuildMatrix(groups []Group, pages []Page, rows []PermissionRow) *Matrix {
	stored := make(map[int64]map[int64]CapabilitySet, len(groups))
	for _, row := range rows {
		byPage, ok := stored[row.GroupID]
		if !ok {
			byPage = make(map[int64]CapabilitySet)
			stored[row.GroupID] = byPage
		}
		byPage[row.PageID] = row.CapabilitySet
	}

	matrix := make(map[int64]MatrixGroupEntry, len(groups))
	for _, group := range groups {
		entry := MatrixGroupEntry{
			GroupInfo:   GroupInfo{ID: group.ID, Name: group.Name},
			Permissions: make(map[int64]MatrixCell, len(pages)),
		}
		for _, page := range pages {
			entry.Permissions[page.ID] = MatrixCell{
				PageInfo:      PageInfo{ID: page.ID, Name: page.Name, URL: page.URL},
				CapabilitySet: stored[group.ID][page.ID],
			}
		}
		matrix[group.ID] = entry
	}

	return &Matrix{Matrix: matrix, Groups: groups, Pages: pages}
}

// PermissionMatrix assembles the dense grid over every active group and
// page. The three inputs are independent reads, fetched concurrently.
func (e *Evaluator) PermissionMatrix(ctx context.Context) (*Matrix, error) {
	var (
		groups []Group
		pages  []Page
		rows   []PermissionRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		groups, err = e.store.ListActiveGroups(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pages, err = e.store.ListActivePages(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = e.store.ListActivePermissions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.MatrixAssembliesTotal.Inc()
	}
	return BuildMatrix(groups, pages, rows), nil
}
