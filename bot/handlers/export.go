package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"schedbot/bot/dispatch"
	"schedbot/bot/session"
	"schedbot/bot/timetable"
	"schedbot/core/telegram/keyboard"
)

// exportMenu opens the export picker. The current schedule screen is
// saved as a return point first, so the back button can restore the
// exact page the user left.
func (h *Handlers) exportMenu(r *dispatch.Request) error {
	mode, _, ok := parseMode(r.Arg)
	if !ok {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	query, _ := r.Session.LastQuery()
	if query == "" {
		return r.Respond.Ack("Open a schedule first", false)
	}

	_, index, _ := r.Session.Current()
	pages := r.Session.Pages()
	r.Session.SaveReturnPoint(session.ResumeExport, session.ReturnPoint{
		Mode:      mode,
		Query:     query,
		Date:      r.Session.Date(),
		Pages:     pages,
		PageIndex: index,
	})

	m := string(mode)
	kb := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "🖼 Week as image", Token: "export_week_image_" + m}},
		[]keyboard.InlineBtn{{Text: "🗂 Each day as image", Token: "export_days_images_" + m}},
		[]keyboard.InlineBtn{{Text: "📄 Week as spreadsheet", Token: "export_week_file_" + m}},
		[]keyboard.InlineBtn{{Text: "📚 Whole semester", Token: "export_semester_" + m}},
		[]keyboard.InlineBtn{{Text: "⬅️ Back to schedule", Token: "back_to_schedule_from_export"}},
	)
	text := fmt.Sprintf("📤 *Export %s*\n\nPick a format:", escapeMD(query))
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// backFromExport restores the schedule screen saved before the export
// detour.
func (h *Handlers) backFromExport(r *dispatch.Request) error {
	if _, ok := r.Session.RestoreReturnPoint(session.ResumeExport); !ok {
		return h.backToStart(r)
	}
	text, kb := h.pageView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// exportPoint resolves which schedule an export acts on. Handlers run
// against the saved return point, not the live session, so flipping
// pages mid-export cannot change what gets rendered.
func (h *Handlers) exportPoint(sess *session.Session) (session.ReturnPoint, error) {
	rp, ok := sess.PeekReturnPoint(session.ResumeExport)
	if !ok {
		query, mode := sess.LastQuery()
		rp = session.ReturnPoint{Mode: mode, Query: query, Date: sess.Date()}
	}
	if rp.Query == "" {
		return rp, errors.New("export: no schedule selected")
	}
	return rp, nil
}

func (h *Handlers) exportDays(ctx context.Context, sess *session.Session) (session.ReturnPoint, []timetable.Day, error) {
	rp, err := h.exportPoint(sess)
	if err != nil {
		return rp, nil, err
	}
	anchor := rp.Date
	if anchor.IsZero() {
		anchor = time.Now()
	}
	days, err := h.schedules.Schedule(ctx, anchor.Format(dateLayout), rp.Query, kindOf(rp.Mode))
	if err != nil {
		return rp, nil, fmt.Errorf("export fetch %q: %w", rp.Query, err)
	}
	return rp, days, nil
}

func (h *Handlers) exportWeekImage(r *dispatch.Request) error {
	if h.renderer == nil {
		return r.Respond.Ack("Exports are not available right now.", true)
	}
	_ = r.Respond.Ack("⏳ Rendering the week…", false)

	rp, days, err := h.exportDays(r.Ctx, r.Session)
	if err != nil {
		return err
	}
	art, err := h.renderer.WeekImage(r.Ctx, rp.Query, days)
	if err != nil {
		return err
	}
	h.logActivity(r.Ctx, r.Session.UserID(), "export_week_image", rp.Query)
	return r.Respond.SendPhoto(art.Data, rp.Query)
}

func (h *Handlers) exportDayImages(r *dispatch.Request) error {
	if h.renderer == nil {
		return r.Respond.Ack("Exports are not available right now.", true)
	}
	_ = r.Respond.Ack("⏳ Rendering the days…", false)

	rp, days, err := h.exportDays(r.Ctx, r.Session)
	if err != nil {
		return err
	}
	arts, err := h.renderer.DayImages(r.Ctx, rp.Query, days)
	if err != nil {
		return err
	}
	for i, art := range arts {
		caption := fmt.Sprintf("%s, %s", rp.Query, days[i].Date)
		if err := r.Respond.SendPhoto(art.Data, caption); err != nil {
			return err
		}
	}
	h.logActivity(r.Ctx, r.Session.UserID(), "export_day_images", rp.Query)
	return nil
}

func (h *Handlers) exportWeekFile(r *dispatch.Request) error {
	if h.renderer == nil {
		return r.Respond.Ack("Exports are not available right now.", true)
	}
	_ = r.Respond.Ack("⏳ Building the spreadsheet…", false)

	rp, days, err := h.exportDays(r.Ctx, r.Session)
	if err != nil {
		return err
	}
	art, err := h.renderer.WeekFile(r.Ctx, rp.Query, days)
	if err != nil {
		return err
	}
	h.logActivity(r.Ctx, r.Session.UserID(), "export_week_file", rp.Query)
	return r.Respond.SendDocument(art.Data, art.Filename)
}

// exportSemester builds the semester workbook straight from the
// renderer, which fetches the full range itself.
func (h *Handlers) exportSemester(r *dispatch.Request) error {
	if h.renderer == nil {
		return r.Respond.Ack("Exports are not available right now.", true)
	}
	_ = r.Respond.Ack("⏳ Building the semester workbook, this can take a while…", false)

	rp, err := h.exportPoint(r.Session)
	if err != nil {
		return err
	}
	art, err := h.renderer.Semester(r.Ctx, rp.Query, kindOf(rp.Mode))
	if err != nil {
		return err
	}
	h.logActivity(r.Ctx, r.Session.UserID(), "export_semester", rp.Query)
	return r.Respond.SendDocument(art.Data, art.Filename)
}
