package handlers

import (
	"context"
	"fmt"
	"time"

	"schedbot/bot/dispatch"
	"schedbot/bot/session"
	"schedbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

var presetTimes = []string{"07:00", "08:00", "12:00", "18:00", "20:00", "21:00", "22:00"}

// settingsView renders the settings screen for the current prefs.
func settingsView(sess *session.Session) (string, *tele.ReplyMarkup) {
	prefs := sess.Prefs()

	defaultLine := "not set"
	if prefs.DefaultQuery != "" {
		defaultLine = fmt.Sprintf("%s (%s)", escapeMD(prefs.DefaultQuery), entityLabel(prefs.DefaultMode))
	}
	notifyLine := "off"
	notifyToggle := "🔔 Enable daily digest"
	if prefs.DailyNotifications {
		notifyLine = "on, at " + prefs.NotificationTime
		notifyToggle = "🔕 Disable daily digest"
	}

	text := fmt.Sprintf("⚙️ *Settings*\n\n📌 Default schedule: %s\n🔔 Daily digest: %s",
		defaultLine, notifyLine)

	rows := [][]keyboard.InlineBtn{
		{
			{Text: "📌 Default: group", Token: "set_default_mode_student"},
			{Text: "📌 Default: teacher", Token: "set_default_mode_teacher"},
		},
		{{Text: notifyToggle, Token: "toggle_daily_notifications"}},
		{{Text: "⏰ Digest time", Token: "set_notification_time"}},
		{{Text: "♻️ Reset settings", Token: "reset_settings"}},
		{{Text: "⬅️ Back", Token: "back_to_start"}},
	}
	return text, keyboard.InlineButtonsRows(rows...)
}

func (h *Handlers) settingsMenu(r *dispatch.Request) error {
	h.hydrate(r.Ctx, r.Session)
	text, kb := settingsView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// askDefaultQuery starts the default-schedule entry flow for a mode.
func (h *Handlers) askDefaultQuery(r *dispatch.Request) error {
	mode, _, ok := parseMode(r.Arg)
	if !ok {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	r.Session.SetMode(mode)
	r.Session.SetInput(session.InputDefaultQuery)
	prompt := "Send me the group number to save as your default."
	if mode == session.ModeTeacher {
		prompt = "Send me the teacher's name to save as your default."
	}
	if err := r.Respond.Edit(prompt, keyboard.SingleCancelMarkup()); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// setDefaultFromSchedule saves the currently shown entity as default.
// The token carries a content hash, the query itself is staged in the
// session by the keyboard that offered the button.
func (h *Handlers) setDefaultFromSchedule(r *dispatch.Request) error {
	mode, hash, ok := parseMode(r.Arg)
	if !ok || hash == "" {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	query, found := r.Session.Pending(session.PendingKey("default", hash))
	if !found {
		return r.Respond.Ack("This button has expired, open the schedule again.", true)
	}
	if err := h.saveDefault(r.Ctx, r.Session, query, mode); err != nil {
		return err
	}
	// Redraw so the shortcut row disappears.
	text, kb := h.pageView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("⭐ Saved as your default schedule", false)
}

// saveDefault persists a default selection and enables the daily
// digest the first time a default appears, mirroring what the profile
// row defaults to.
func (h *Handlers) saveDefault(ctx context.Context, sess *session.Session, query string, mode session.Mode) error {
	firstDefault := sess.Prefs().DefaultQuery == ""
	if h.users != nil {
		if err := h.users.SaveDefault(ctx, sess.UserID(), query, string(mode)); err != nil {
			return err
		}
	}
	prefs := sess.UpdatePrefs(func(p *session.Prefs) {
		p.DefaultQuery = query
		p.DefaultMode = mode
		if p.NotificationTime == "" {
			p.NotificationTime = "21:00"
		}
		if firstDefault {
			p.DailyNotifications = true
		}
	})
	if firstDefault && h.users != nil {
		if err := h.users.SaveNotificationPrefs(ctx, sess.UserID(), true, prefs.NotificationTime); err != nil {
			return err
		}
	}
	h.logActivity(ctx, sess.UserID(), "set_default", query)
	return nil
}

func (h *Handlers) toggleNotifications(r *dispatch.Request) error {
	h.hydrate(r.Ctx, r.Session)
	prefs := r.Session.UpdatePrefs(func(p *session.Prefs) {
		p.DailyNotifications = !p.DailyNotifications
		if p.NotificationTime == "" {
			p.NotificationTime = "21:00"
		}
	})
	if h.users != nil {
		if err := h.users.SaveNotificationPrefs(r.Ctx, r.Session.UserID(), prefs.DailyNotifications, prefs.NotificationTime); err != nil {
			return err
		}
	}
	text, kb := settingsView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	notice := "🔕 Daily digest disabled"
	if prefs.DailyNotifications {
		notice = "🔔 Daily digest enabled"
	}
	return r.Respond.Ack(notice, false)
}

func (h *Handlers) askNotificationTime(r *dispatch.Request) error {
	buttons := make([]keyboard.InlineBtn, 0, len(presetTimes)+1)
	for _, at := range presetTimes {
		buttons = append(buttons, keyboard.InlineBtn{Text: at, Token: "set_time_" + at})
	}
	kb := keyboard.InlineButtonsNPerRow(buttons, 3)
	kb.InlineKeyboard = append(kb.InlineKeyboard,
		keyboard.InlineButtonsRows([]keyboard.InlineBtn{
			{Text: "✏️ Other time", Token: "set_time_custom"},
			{Text: "⬅️ Back", Token: "settings_menu"},
		}).InlineKeyboard...)
	if err := r.Respond.Edit("⏰ When should the daily digest arrive?", kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// setNotificationTime handles both the preset buttons and the custom
// entry branch.
func (h *Handlers) setNotificationTime(r *dispatch.Request) error {
	if r.Arg == "custom" {
		r.Session.SetInput(session.InputNotificationTime)
		text := "Send me the time as *HH:MM*, for example *21:30*."
		if err := r.Respond.Edit(text, keyboard.SingleCancelMarkup()); err != nil {
			return err
		}
		return r.Respond.Ack("", false)
	}
	if _, err := time.Parse("15:04", r.Arg); err != nil {
		return r.Respond.Ack("This button is no longer supported.", false)
	}
	if err := h.saveNotificationTime(r.Ctx, r.Session, r.Arg); err != nil {
		return err
	}
	text, kb := settingsView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("⏰ Digest time set to "+r.Arg, false)
}

func (h *Handlers) saveNotificationTime(ctx context.Context, sess *session.Session, at string) error {
	prefs := sess.UpdatePrefs(func(p *session.Prefs) {
		p.NotificationTime = at
		p.DailyNotifications = true
	})
	if h.users != nil {
		if err := h.users.SaveNotificationPrefs(ctx, sess.UserID(), prefs.DailyNotifications, at); err != nil {
			return err
		}
	}
	h.logActivity(ctx, sess.UserID(), "set_notification_time", at)
	return nil
}

func (h *Handlers) confirmReset(r *dispatch.Request) error {
	kb := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{{Text: "✅ Yes, reset", Token: "do_reset_settings"}},
		[]keyboard.InlineBtn{{Text: "⬅️ Keep everything", Token: "settings_menu"}},
	)
	if err := r.Respond.Edit("♻️ Reset the default schedule and notification settings?", kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

func (h *Handlers) doReset(r *dispatch.Request) error {
	if h.users != nil {
		if err := h.users.ResetSettings(r.Ctx, r.Session.UserID()); err != nil {
			return err
		}
	}
	r.Session.UpdatePrefs(func(p *session.Prefs) {
		*p = session.Prefs{NotificationTime: "21:00"}
	})
	h.logActivity(r.Ctx, r.Session.UserID(), "reset_settings", "")
	text, kb := settingsView(r.Session)
	if err := r.Respond.Edit(text, kb); err != nil {
		return err
	}
	return r.Respond.Ack("Settings reset", false)
}
