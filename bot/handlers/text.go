package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"schedbot/bot/dispatch"
	"schedbot/bot/session"
	"schedbot/bot/timetable"
	"schedbot/core/telegram/helpers"
	"schedbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const busyText = "Please wait, the previous action is still running."

// Awaiting implements router.TextFlow.
func (h *Handlers) Awaiting(userID int64) bool {
	return h.sessions.Awaiting(userID)
}

// HandleText implements router.TextFlow: it consumes a text message
// while the session waits for a specific input.
func (h *Handlers) HandleText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}
	ctx := helpers.BuildContext(c)
	sess := h.sessions.Get(sender.ID)
	r := newResponder(c)

	switch sess.Input() {
	case session.InputQuery:
		return h.textQuery(ctx, sess, r, text)
	case session.InputManualDate:
		return h.textManualDate(ctx, sess, r, text)
	case session.InputDefaultQuery:
		return h.textDefaultQuery(ctx, sess, r, text)
	case session.InputNotificationTime:
		return h.textNotificationTime(ctx, sess, r, text)
	case session.InputFeedback:
		return h.textFeedback(ctx, sess, r, sender, text)
	}
	return nil
}

// FreeText is the fallback for text that arrives with no input flow
// active: it guesses whether the name is a group or a teacher and asks
// when it cannot tell.
func (h *Handlers) FreeText(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	text := strings.TrimSpace(c.Text())
	if text == "" {
		return nil
	}
	ctx := helpers.BuildContext(c)
	sess := h.sessions.Get(sender.ID)
	r := newResponder(c)

	kind, ok := timetable.DetectKind(text)
	if !ok {
		return h.askQueryType(sess, r, text)
	}
	mode := session.ModeStudent
	if kind == timetable.KindTeacher {
		mode = session.ModeTeacher
	}
	return h.searchBusy(ctx, sess, r, text, mode)
}

// askQueryType stages the typed name under a content hash and offers
// the two interpretations as confirmation buttons.
func (h *Handlers) askQueryType(sess *session.Session, r dispatch.Responder, text string) error {
	hash := session.ContentHash(text, 8)
	sess.PutPending(session.PendingKey("confirm", hash), text)

	kb := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "👨‍🎓 A group", Token: "confirm_mode_student_" + hash},
			{Text: "👨‍🏫 A teacher", Token: "confirm_mode_teacher_" + hash},
		},
		[]keyboard.InlineBtn{keyboard.CancelButton()},
	)
	prompt := fmt.Sprintf("🤔 Is *%s* a group or a teacher?", escapeMD(text))
	return r.Send(prompt, kb)
}

// confirmMode resumes a staged cold-start query once the user picked
// an interpretation. The staged entry is consumed, a second tap on the
// same button reports expiry instead of repeating the search.
func (h *Handlers) confirmMode(r *dispatch.Request) error {
	mode, hash, ok := parseMode(r.Arg)
	if !ok || hash == "" {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	query, found := r.Session.TakePending(session.PendingKey("confirm", hash))
	if !found {
		return r.Respond.Ack("This button has expired, send the name again.", true)
	}
	if err := r.Respond.Ack("", false); err != nil {
		return err
	}
	return h.runTextQuery(r.Ctx, r.Session, r.Respond, query, mode)
}

// searchBusy runs a search under the same per-user busy lock callback
// actions use, so typing during a slow lookup backs off instead of
// piling up requests.
func (h *Handlers) searchBusy(ctx context.Context, sess *session.Session, r dispatch.Responder, query string, mode session.Mode) error {
	if !sess.TryBeginBusy() {
		return r.Send(busyText, nil)
	}
	defer sess.EndBusy()
	return h.runTextQuery(ctx, sess, r, query, mode)
}

func (h *Handlers) textQuery(ctx context.Context, sess *session.Session, r dispatch.Responder, text string) error {
	if key, ok := matchCandidate(sess, text); ok {
		sess.SetKeyboardPinned(false)
		if !sess.TryBeginBusy() {
			return r.Send(busyText, nil)
		}
		defer sess.EndBusy()
		return h.showSchedule(ctx, sess, r, key, sess.Mode(), time.Time{}, false)
	}
	return h.searchBusy(ctx, sess, r, text, sess.Mode())
}

func (h *Handlers) textManualDate(ctx context.Context, sess *session.Session, r dispatch.Responder, text string) error {
	date, ok := helpers.ParseFlexibleDate(text)
	if !ok {
		return r.Send("I could not read that date. Try *02.03.2026* or *2026-03-02*.", keyboard.SingleCancelMarkup())
	}
	query, mode := sess.LastQuery()
	if query == "" {
		sess.SetInput(session.InputNone)
		return r.Send(startText, mainMenu(sess))
	}
	sess.SetInput(session.InputNone)
	if !sess.TryBeginBusy() {
		return r.Send(busyText, nil)
	}
	defer sess.EndBusy()
	return h.showSchedule(ctx, sess, r, query, mode, date, false)
}

func (h *Handlers) textDefaultQuery(ctx context.Context, sess *session.Session, r dispatch.Responder, text string) error {
	mode := sess.Mode()
	names, err := timetable.Search(ctx, h.schedules, text, kindOf(mode))
	if err != nil {
		return fmt.Errorf("default query search %q: %w", text, err)
	}
	switch len(names) {
	case 0:
		return r.Send(notFoundText(text, mode), keyboard.SingleCancelMarkup())
	case 1:
	default:
		return r.Send("That matches several names, please be more specific.", keyboard.SingleCancelMarkup())
	}

	sess.SetInput(session.InputNone)
	if err := h.saveDefault(ctx, sess, names[0], mode); err != nil {
		return err
	}
	viewText, kb := settingsView(sess)
	confirmation := fmt.Sprintf("⭐ *%s* is now your default schedule.\n\n%s", escapeMD(names[0]), viewText)
	return r.Send(confirmation, kb)
}

func (h *Handlers) textNotificationTime(ctx context.Context, sess *session.Session, r dispatch.Responder, text string) error {
	if _, err := time.Parse("15:04", text); err != nil {
		return r.Send("Send the time as *HH:MM*, for example *21:30*.", keyboard.SingleCancelMarkup())
	}
	sess.SetInput(session.InputNone)
	if err := h.saveNotificationTime(ctx, sess, text); err != nil {
		return err
	}
	viewText, kb := settingsView(sess)
	return r.Send(viewText, kb)
}

func (h *Handlers) textFeedback(ctx context.Context, sess *session.Session, r dispatch.Responder, sender *tele.User, text string) error {
	sess.SetInput(session.InputNone)
	if h.notify != nil && h.adminID != 0 {
		from := sender.Username
		if from == "" {
			from = fmt.Sprintf("id %d", sender.ID)
		} else {
			from = "@" + from
		}
		msg := fmt.Sprintf("📨 Feedback from %s:\n\n%s", from, text)
		if err := h.notify.Send(ctx, h.adminID, msg, nil); err != nil {
			return fmt.Errorf("forward feedback: %w", err)
		}
	}
	h.logActivity(ctx, sess.UserID(), "feedback", "")
	return r.Send("🙏 Thanks! Your message has been passed on.", mainMenu(sess))
}

// UnknownDocument answers documents the bot has no use for.
func (h *Handlers) UnknownDocument(c tele.Context) error {
	return helpers.SendMD(c, "I can only read text messages, send me a group number or a teacher's name.")
}
