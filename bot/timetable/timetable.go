// Package timetable talks to the university schedule service and ranks
// entity search results for disambiguation.
package timetable

import (
	"context"
	"errors"
)

// Kind selects which entity a schedule or list request is about.
type Kind string

const (
	KindGroup   Kind = "Group"
	KindTeacher Kind = "Teacher"
)

// ErrNotFound means the service answered but has no schedule for the
// requested entity and date.
var ErrNotFound = errors.New("schedule not found")

// KindOf maps a query mode name ("student" or "teacher") to the entity
// kind the schedule service expects. Unknown names fall back to groups.
func KindOf(mode string) Kind {
	if mode == "teacher" {
		return KindTeacher
	}
	return KindGroup
}

// Pair is one lesson slot within a day.
type Pair struct {
	Time       string   `json:"time"`
	Subject    string   `json:"subject"`
	Teacher    string   `json:"teacher,omitempty"`
	Auditorium string   `json:"auditorium,omitempty"`
	Groups     []string `json:"groups,omitempty"`
}

// Day is the schedule of a single date.
type Day struct {
	Date    string `json:"date"`
	Weekday string `json:"weekday"`
	Pairs   []Pair `json:"pairs"`
}

// Provider fetches schedules and entity lists. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Schedule returns the days the service has around date (it may
	// return a whole week) for the given group or teacher.
	Schedule(ctx context.Context, date string, query string, kind Kind) ([]Day, error)
	// Entities lists every known group or teacher name.
	Entities(ctx context.Context, kind Kind) ([]string, error)
}
