package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"podium-bot/internal/catalog"
	"podium-bot/internal/models"
)

const (
	SheetEvents    = "Events"
	SheetRiders    = "Riders"
	SheetRaces     = "Races"
	SheetResults   = "Results"
	SheetStandings = "Standings"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// parseTime reads a calendar instant. Values without a zone are UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// ---------- Events ----------

func (c *Client) Events(ctx context.Context) ([]models.Event, error) {
	values, err := c.readAll(ctx, SheetEvents)
	if err != nil {
		return nil, err
	}
	return parseEvents(values)
}

// parseEvents reads: ref | season | name | country | circuit | date.
func parseEvents(values [][]interface{}) ([]models.Event, error) {
	events := []models.Event{}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		row := values[i]
		ref := strings.TrimSpace(get(row, 0))
		if ref == "" {
			continue
		}
		season, err := strconv.Atoi(strings.TrimSpace(get(row, 1)))
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad season %q", SheetEvents, i+1, get(row, 1))
		}
		e := models.Event{
			ExternalRef: ref,
			Season:      season,
			Name:        strings.TrimSpace(get(row, 2)),
			Country:     strings.TrimSpace(get(row, 3)),
			Circuit:     strings.TrimSpace(get(row, 4)),
		}
		if d := strings.TrimSpace(get(row, 5)); d != "" {
			if e.Date, err = time.Parse("2006-01-02", d); err != nil {
				return nil, fmt.Errorf("%s row %d: bad date %q", SheetEvents, i+1, d)
			}
		}
		events = append(events, e)
	}
	return events, nil
}

// ---------- Riders ----------

func (c *Client) Riders(ctx context.Context) ([]models.Rider, error) {
	values, err := c.readAll(ctx, SheetRiders)
	if err != nil {
		return nil, err
	}
	return parseRiders(values), nil
}

// parseRiders reads: ref | number | first name | last name | country.
func parseRiders(values [][]interface{}) []models.Rider {
	riders := []models.Rider{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		ref := strings.TrimSpace(get(row, 0))
		if ref == "" {
			continue
		}
		number, _ := strconv.Atoi(strings.TrimSpace(get(row, 1)))
		riders = append(riders, models.Rider{
			ExternalRef: ref,
			Number:      number,
			FirstName:   strings.TrimSpace(get(row, 2)),
			LastName:    strings.TrimSpace(get(row, 3)),
			Country:     strings.TrimSpace(get(row, 4)),
		})
	}
	return riders
}

// ---------- Races ----------

func (c *Client) Races(ctx context.Context) ([]catalog.RaceRow, error) {
	values, err := c.readAll(ctx, SheetRaces)
	if err != nil {
		return nil, err
	}
	return parseRaces(values)
}

// parseRaces reads: ref | event ref | category | kind | starts at | bet close at.
// An empty close column leaves the close time to the catalog default.
func parseRaces(values [][]interface{}) ([]catalog.RaceRow, error) {
	rows := []catalog.RaceRow{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		ref := strings.TrimSpace(get(row, 0))
		if ref == "" {
			continue
		}
		r := catalog.RaceRow{
			ExternalRef: ref,
			EventRef:    strings.TrimSpace(get(row, 1)),
			Category:    strings.ToUpper(strings.TrimSpace(get(row, 2))),
			Kind:        strings.ToUpper(strings.TrimSpace(get(row, 3))),
		}
		var err error
		if r.StartsAt, err = parseTime(get(row, 4)); err != nil {
			return nil, fmt.Errorf("%s row %d: starts at: %w", SheetRaces, i+1, err)
		}
		if s := strings.TrimSpace(get(row, 5)); s != "" {
			if r.BetCloseAt, err = parseTime(s); err != nil {
				return nil, fmt.Errorf("%s row %d: bet close at: %w", SheetRaces, i+1, err)
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}
