package sheets

import (
	"context"
	"strconv"
	"strings"

	"podium-bot/internal/models"
	"podium-bot/internal/results"
)

// FetchPodium reads the Results tab: race ref | position | rider ref | status.
// A race with no rows is not found yet.
func (c *Client) FetchPodium(ctx context.Context, externalRef string) ([]results.Entry, bool, error) {
	values, err := c.readAll(ctx, SheetResults)
	if err != nil {
		return nil, false, err
	}
	entries := parseResults(values, externalRef)
	return entries, len(entries) > 0, nil
}

func parseResults(values [][]interface{}, raceRef string) []results.Entry {
	var out []results.Entry
	for i := 1; i < len(values); i++ {
		row := values[i]
		if !strings.EqualFold(strings.TrimSpace(get(row, 0)), raceRef) {
			continue
		}
		rider := strings.TrimSpace(get(row, 2))
		if rider == "" {
			continue
		}
		pos, _ := strconv.Atoi(strings.TrimSpace(get(row, 1)))
		out = append(out, results.Entry{
			RiderRef: rider,
			Position: pos,
			Status:   models.ParseFinishStatus(get(row, 3)),
		})
	}
	return out
}
