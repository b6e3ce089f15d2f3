package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"schedbot/bot/dispatch"
	"schedbot/bot/session"
	"schedbot/bot/timetable"
	"schedbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// showSchedule fetches the timetable for query, loads the pages into
// the session and presents the first relevant one. A zero date anchors
// the request at today without selecting a specific day.
func (h *Handlers) showSchedule(ctx context.Context, sess *session.Session, r dispatch.Responder, query string, mode session.Mode, date time.Time, edit bool) error {
	kind := kindOf(mode)
	anchor := date
	if anchor.IsZero() {
		anchor = time.Now()
	}

	days, err := h.schedules.Schedule(ctx, anchor.Format(dateLayout), query, kind)
	if err != nil {
		if errors.Is(err, timetable.ErrNotFound) {
			h.logSearch(ctx, sess.UserID(), query, kind, 0)
			return h.present(r, notFoundText(query, mode), mainMenu(sess), edit)
		}
		return fmt.Errorf("schedule %q: %w", query, err)
	}
	h.logSearch(ctx, sess.UserID(), query, kind, len(days))

	pages := timetable.Pages(days, kind)
	index := 0
	if !date.IsZero() {
		want := date.Format(dateLayout)
		for i, d := range days {
			if d.Date == want {
				index = i
				break
			}
		}
	}

	sess.SetQuery(query, mode)
	sess.SetDate(date)
	sess.SetInput(session.InputNone)
	sess.SetCandidates(nil)
	sess.SetPages(pages, index)

	text, kb := h.pageView(sess)
	return h.present(r, text, kb, edit)
}

func (h *Handlers) present(r dispatch.Responder, text string, kb *tele.ReplyMarkup, edit bool) error {
	if edit {
		return r.Edit(text, kb)
	}
	return r.Send(text, kb)
}

// pageView renders the current page with its navigation keyboard.
func (h *Handlers) pageView(sess *session.Session) (string, *tele.ReplyMarkup) {
	page, _, total := sess.Current()
	if total == 0 {
		return startText, mainMenu(sess)
	}
	query, _ := sess.LastQuery()
	text := fmt.Sprintf("📅 *%s*\n\n%s", escapeMD(query), page)
	return text, h.scheduleKeyboard(sess)
}

// scheduleKeyboard builds the navigation block under a schedule page.
// The set-default shortcut is omitted when the shown entity already is
// the default, and its query travels as a staged content hash, never
// inline in the token.
func (h *Handlers) scheduleKeyboard(sess *session.Session) *tele.ReplyMarkup {
	_, index, total := sess.Current()
	query, mode := sess.LastQuery()

	var rows [][]keyboard.InlineBtn
	if total > 1 {
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "⬅️", Token: fmt.Sprintf("prev_%d", index)},
			{Text: fmt.Sprintf("%d/%d", index+1, total), Token: fmt.Sprintf("refresh_%d", index)},
			{Text: "➡️", Token: fmt.Sprintf("next_%d", index)},
		})
	} else {
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "🔄 Refresh", Token: fmt.Sprintf("refresh_%d", index)},
		})
	}

	rows = append(rows, []keyboard.InlineBtn{
		{Text: "Today", Token: "pick_date_today_" + string(mode)},
		{Text: "Tomorrow", Token: "pick_date_tomorrow_" + string(mode)},
		{Text: "✏️ Date", Token: "enter_date"},
	})

	rows = append(rows, []keyboard.InlineBtn{
		{Text: "📤 Export", Token: "export_menu_" + string(mode)},
	})

	if prefs := sess.Prefs(); query != "" && prefs.DefaultQuery != query {
		hash := session.ContentHash(query, 12)
		sess.PutPending(session.PendingKey("default", hash), query)
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "⭐ Make default", Token: fmt.Sprintf("set_default_from_schedule_%s_%s", mode, hash)},
		})
	}

	rows = append(rows, []keyboard.InlineBtn{
		{Text: "🏠 Menu", Token: "back_to_start"},
	})
	return keyboard.InlineButtonsRows(rows...)
}

// runTextQuery resolves a typed entity name: exact hits show the
// schedule right away, several near matches become a one-time pick
// keyboard the next text message answers.
func (h *Handlers) runTextQuery(ctx context.Context, sess *session.Session, r dispatch.Responder, query string, mode session.Mode) error {
	kind := kindOf(mode)
	names, err := timetable.Search(ctx, h.schedules, query, kind)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}

	switch len(names) {
	case 0:
		h.logSearch(ctx, sess.UserID(), query, kind, 0)
		return r.Send(notFoundText(query, mode), keyboard.SingleCancelMarkup())
	case 1:
		return h.showSchedule(ctx, sess, r, names[0], mode, time.Time{}, false)
	}

	candidates := make([]session.Candidate, 0, len(names))
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, session.Candidate{Key: name, Label: name})
		rows = append(rows, []string{name})
	}
	sess.SetMode(mode)
	sess.SetCandidates(candidates)
	sess.SetInput(session.InputQuery)
	sess.SetKeyboardPinned(true)

	text := fmt.Sprintf("🔎 I found several matches for *%s*, pick one:", escapeMD(query))
	return r.Send(text, keyboard.OneTimeReplyButtons(rows...))
}

// matchCandidate resolves a text message against the stored
// disambiguation candidates.
func matchCandidate(sess *session.Session, text string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	for _, c := range sess.Candidates() {
		if strings.ToLower(c.Label) == needle {
			return c.Key, true
		}
	}
	return "", false
}

func (h *Handlers) prevPage(r *dispatch.Request) error {
	_, _, changed := r.Session.Prev()
	if !changed {
		return r.Respond.Ack("Already at the first page", false)
	}
	text, kb := h.pageView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

func (h *Handlers) nextPage(r *dispatch.Request) error {
	_, _, changed := r.Session.Next()
	if !changed {
		return r.Respond.Ack("Already at the last page", false)
	}
	text, kb := h.pageView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// refreshPage re-fetches the shown schedule. The cursor stays where it
// was as long as the re-fetch yields the same number of pages, only a
// changed page count resets it to the first page.
func (h *Handlers) refreshPage(r *dispatch.Request) error {
	sess := r.Session
	query, mode := sess.LastQuery()
	if query == "" {
		return r.Respond.Ack("Nothing to refresh yet", false)
	}
	_, oldIndex, oldCount := sess.Current()

	kind := kindOf(mode)
	anchor := sess.Date()
	if anchor.IsZero() {
		anchor = time.Now()
	}
	days, err := h.schedules.Schedule(r.Ctx, anchor.Format(dateLayout), query, kind)
	if err != nil {
		if errors.Is(err, timetable.ErrNotFound) {
			h.logSearch(r.Ctx, sess.UserID(), query, kind, 0)
			return h.present(r.Respond, notFoundText(query, mode), mainMenu(sess), true)
		}
		return fmt.Errorf("schedule %q: %w", query, err)
	}
	h.logSearch(r.Ctx, sess.UserID(), query, kind, len(days))

	pages := timetable.Pages(days, kind)
	index := 0
	if len(pages) == oldCount {
		index = oldIndex
	}
	sess.SetPages(pages, index)

	text, kb := h.pageView(sess)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("Updated", false)
}

// pickDate flips the shown schedule to today or tomorrow.
func (h *Handlers) pickDate(offset int) dispatch.HandlerFunc {
	return func(r *dispatch.Request) error {
		mode, _, ok := parseMode(r.Arg)
		if !ok {
			return r.Respond.Ack("This button is no longer supported.", false)
		}
		query, _ := r.Session.LastQuery()
		if query == "" {
			return r.Respond.Ack("Pick a schedule first", false)
		}
		date := time.Now().AddDate(0, 0, offset)
		if err := h.showSchedule(r.Ctx, r.Session, r.Respond, query, mode, date, true); err != nil {
			return err
		}
		return r.Respond.Ack("", false)
	}
}

// pickQuickDate is the date flip for the saved default schedule.
func (h *Handlers) pickQuickDate(offset int) dispatch.HandlerFunc {
	return func(r *dispatch.Request) error {
		mode, _, ok := parseMode(r.Arg)
		if !ok {
			return r.Respond.Ack("This button is no longer supported.", false)
		}
		h.hydrate(r.Ctx, r.Session)
		prefs := r.Session.Prefs()
		if prefs.DefaultQuery == "" {
			return r.Respond.Ack("No default schedule saved yet. Set one in Settings.", true)
		}
		date := time.Now().AddDate(0, 0, offset)
		if err := h.showSchedule(r.Ctx, r.Session, r.Respond, prefs.DefaultQuery, mode, date, true); err != nil {
			return err
		}
		return r.Respond.Ack("", false)
	}
}

func (h *Handlers) quickSchedule(r *dispatch.Request) error {
	mode, _, ok := parseMode(r.Arg)
	if !ok {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	h.hydrate(r.Ctx, r.Session)
	prefs := r.Session.Prefs()
	if prefs.DefaultQuery == "" {
		return r.Respond.Ack("No default schedule saved yet. Set one in Settings.", true)
	}
	if err := h.showSchedule(r.Ctx, r.Session, r.Respond, prefs.DefaultQuery, mode, time.Time{}, true); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// enterDate switches the session into manual date entry.
func (h *Handlers) enterDate(r *dispatch.Request) error {
	query, _ := r.Session.LastQuery()
	if query == "" {
		return r.Respond.Ack("Pick a schedule first", false)
	}
	r.Session.SetInput(session.InputManualDate)
	text := "📅 Send me a date, for example *02.03.2026* or *2026-03-02*."
	if err := r.Respond.Edit(text, keyboard.SingleCancelMarkup()); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// openNotifiedSchedule opens the default schedule for the date a daily
// notification was about.
func (h *Handlers) openNotifiedSchedule(r *dispatch.Request) error {
	mode, rest, ok := parseMode(r.Arg)
	if !ok {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	date, err := time.Parse(dateLayout, rest)
	if err != nil {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	h.hydrate(r.Ctx, r.Session)
	prefs := r.Session.Prefs()
	if prefs.DefaultQuery == "" {
		return r.Respond.Ack("No default schedule saved anymore.", true)
	}
	if err := h.showSchedule(r.Ctx, r.Session, r.Respond, prefs.DefaultQuery, mode, date, false); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// viewChangedSchedule replays the snapshot the change watcher stored,
// so the user sees the exact version the alert was about. Without a
// snapshot it falls back to a live fetch.
func (h *Handlers) viewChangedSchedule(r *dispatch.Request) error {
	mode, rest, ok := parseMode(r.Arg)
	if !ok {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	if h.snapshots != nil {
		if snap, found := h.snapshots.Get(r.Session.UserID(), rest); found {
			r.Session.SetQuery(snap.Query, mode)
			r.Session.SetPages(snap.Pages, 0)
			text, kb := h.pageView(r.Session)
			if err := r.Respond.Send(text, kb); err != nil {
				return err
			}
			return r.Respond.Ack("", false)
		}
	}
	return h.openNotifiedSchedule(r)
}
