package sheets

import (
	"context"

	"podium-bot/internal/catalog"
	"podium-bot/internal/standings"
)

// ExportStandings overwrites the Standings tab with the global table.
func (c *Client) ExportStandings(ctx context.Context, t standings.Table) error {
	return c.replaceAll(ctx, SheetStandings, standingsRows(t))
}

func standingsRows(t standings.Table) [][]interface{} {
	header := []interface{}{"rank", "participant", "points", "races"}
	for _, cat := range catalog.DefaultCategories {
		header = append(header, cat.Code)
	}
	rows := [][]interface{}{header}
	for _, r := range t.Rows {
		row := []interface{}{r.Rank, r.DisplayName, r.Points, r.Races}
		for _, cat := range catalog.DefaultCategories {
			row = append(row, r.CategoryPoints[cat.Code])
		}
		rows = append(rows, row)
	}
	return rows
}
