// Package render asks the rendering service to turn schedules into
// shareable artifacts: week images, per-day images and xlsx workbooks.
// The bot never draws anything itself.
package render

import (
	"context"

	"schedbot/bot/timetable"
)

// Artifact is one rendered file ready to be sent to the user.
type Artifact struct {
	ID       string
	Filename string
	MIME     string
	Data     []byte
}

// Renderer produces export artifacts from structured schedule data.
type Renderer interface {
	// WeekImage renders all days onto a single image.
	WeekImage(ctx context.Context, title string, days []timetable.Day) (*Artifact, error)
	// DayImages renders one image per day, in day order.
	DayImages(ctx context.Context, title string, days []timetable.Day) ([]*Artifact, error)
	// WeekFile renders the days into an xlsx workbook.
	WeekFile(ctx context.Context, title string, days []timetable.Day) (*Artifact, error)
	// Semester renders the full-semester workbook for an entity.
	Semester(ctx context.Context, query string, kind timetable.Kind) (*Artifact, error)
}
