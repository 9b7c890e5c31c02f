package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/medstock/internal/model"
)

// GroupFilter narrows GroupedStock.
type GroupFilter struct {
	// Search is a case-insensitive substring of material name or serial/lot number.
	Search string
	// Category is a case-insensitive material name prefix; "" or "all" disables it.
	Category string
	// Owners restricts the result to these owners. Only honored for AllOwners scopes.
	Owners []int64
}

// GroupedStock returns the rows in scope grouped by material and then by
// the first word of the material name.
func GroupedStock(ctx context.Context, q sqlx.QueryerContext, scope model.Scope, filter GroupFilter) ([]model.PrefixGroup, error) {
	var (
		where []string
		args  []any
	)

	switch {
	case !scope.All:
		where = append(where, `owner_id = ?`)
		args = append(args, scope.OwnerID)
	case len(filter.Owners) > 0:
		clause, inArgs, err := sqlx.In(`owner_id IN (?)`, filter.Owners)
		if err != nil {
			return nil, fmt.Errorf("building owner filter: %w", err)
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}

	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := likePattern(s)
		where = append(where, `(fold(material_name) LIKE ? ESCAPE '\' OR fold(serial_lot_number) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	if c := strings.TrimSpace(filter.Category); c != "" && !strings.EqualFold(c, "all") {
		where = append(where, `fold(material_name) LIKE ? ESCAPE '\'`)
		args = append(args, strings.TrimPrefix(likePattern(c), "%"))
	}

	query := `SELECT ` + stockColumns + ` FROM stock_items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY material_name, serial_lot_number`

	var items []model.StockItem
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing stock for grouping: %w", err)
	}
	return GroupByPrefix(items), nil
}

// GroupByPrefix groups rows by exact material name and then by the first
// whitespace-separated word of it. Groups are sorted case-insensitively.
func GroupByPrefix(items []model.StockItem) []model.PrefixGroup {
	materials := make(map[string]*model.MaterialGroup)
	for _, item := range items {
		g, ok := materials[item.MaterialName]
		if !ok {
			g = &model.MaterialGroup{FullName: item.MaterialName}
			materials[item.MaterialName] = g
		}
		g.TotalQuantity += int64(item.Quantity)
		g.Items = append(g.Items, item)
	}

	prefixes := make(map[string]*model.PrefixGroup)
	for name, mg := range materials {
		prefix := name
		if fields := strings.Fields(name); len(fields) > 0 {
			prefix = fields[0]
		}
		pg, ok := prefixes[prefix]
		if !ok {
			pg = &model.PrefixGroup{Prefix: prefix}
			prefixes[prefix] = pg
		}
		pg.TotalQuantity += mg.TotalQuantity
		pg.Materials = append(pg.Materials, *mg)
	}

	groups := make([]model.PrefixGroup, 0, len(prefixes))
	for _, pg := range prefixes {
		sort.Slice(pg.Materials, func(i, j int) bool {
			return lessFold(pg.Materials[i].FullName, pg.Materials[j].FullName)
		})
		groups = append(groups, *pg)
	}
	sort.Slice(groups, func(i, j int) bool {
		return lessFold(groups[i].Prefix, groups[j].Prefix)
	})
	return groups
}

// lessFold orders case-insensitively, falling back to byte order for ties.
func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
