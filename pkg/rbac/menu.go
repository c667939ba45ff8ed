package rbac

import (
	"context"
	"sort"
)

// BuildMenu turns a flat list of menu-visible pages into the two-level
// navigation tree. Pure function; input order is preserved for sort_no
// ties (storage delivers pages ordered by sort_no then id).
//
// Pages flagged is_parent become section headers. A page whose parent
// reference resolves to such a header becomes its child; everything else,
// including pages whose parent reference does not resolve, is a standalone
// top-level entry. The output is all parent sections first, then all
// standalone entries, each list sorted by sort_no independently. The
// parents-before-standalone ordering is a fixed policy, not an oversight.
func BuildMenu(pages []Page) []MenuNode {
	parents := make(map[int64]*MenuNode)
	var parentOrder []int64
	var standalone []MenuNode

	for _, page := range pages {
		if page.IsParent {
			node := newMenuNode(page)
			parents[page.ID] = &node
			parentOrder = append(parentOrder, page.ID)
		}
	}

	for _, page := range pages {
		if page.IsParent {
			continue
		}
		if page.ParentID != nil {
			if parent, ok := parents[*page.ParentID]; ok {
				parent.Children = append(parent.Children, newMenuNode(page))
				continue
			}
		}
		// No parent, or a parent reference that resolves to nothing:
		// keep the page as a standalone entry rather than dropping it.
		standalone = append(standalone, newMenuNode(page))
	}

	menu := make([]MenuNode, 0, len(parentOrder)+len(standalone))
	for _, id := range parentOrder {
		parent := parents[id]
		sort.SliceStable(parent.Children, func(i, j int) bool {
			return parent.Children[i].SortNo < parent.Children[j].SortNo
		})
		menu = append(menu, *parent)
	}

	sort.SliceStable(menu, func(i, j int) bool {
		return menu[i].SortNo < menu[j].SortNo
	})
	sort.SliceStable(standalone, func(i, j int) bool {
		return standalone[i].SortNo < standalone[j].SortNo
	})

	return append(menu, standalone...)
}

func newMenuNode(page Page) MenuNode {
	return MenuNode{
		ID:        page.ID,
		PageName:  page.Name,
		PageURL:   page.URL,
		MenuIcon:  page.MenuIcon,
		MenuClass: page.MenuClass,
		SortNo:    page.SortNo,
		Children:  []MenuNode{},
	}
}

// Menu builds the navigation tree from the current page registry. It is
// recomputed on every call; page changes must be visible immediately, so
// the tree is never cached.
func (e *Evaluator) Menu(ctx context.Context) ([]MenuNode, error) {
	pages, err := e.store.ListMenuPages(ctx)
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.MenuBuildsTotal.Inc()
	}
	return BuildMenu(pages), nil
}
