// Package calendar holds the clinic's fixed daily slot grid.
package calendar

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	OpensAt  = 9 * time.Hour
	ClosesAt = 17 * time.Hour
	Step     = 30 * time.Minute
)

var grid = buildGrid()

func buildGrid() []string {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	var slots []string
	for t := day.Add(OpensAt); t.Before(day.Add(ClosesAt)); t = t.Add(Step) {
		slots = append(slots, t.Format(TimeLayout))
	}
	return slots
}

// Grid returns every slot label of a clinic day in chronological order.
func Grid() []string {
	return append([]string(nil), grid...)
}

func OnGrid(clock string) bool {
	for _, s := range grid {
		if s == clock {
			return true
		}
	}
	return false
}

// Available returns the grid minus booked, keeping grid order. Labels in
// booked that are not on the grid are ignored.
func Available(booked []string) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	out := make([]string, 0, len(grid))
	for _, s := range grid {
		if _, ok := taken[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func ValidDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// StartsAt resolves a date and slot label to an instant in loc.
func StartsAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %s: %w", date, clock, err)
	}
	return t, nil
}
