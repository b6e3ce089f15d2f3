package handlers

import (
	"context"
	"fmt"

	"schedbot/bot/dispatch"
	"schedbot/bot/session"
	"schedbot/core/telegram/format"
	"schedbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const (
	startText = "👋 Hi! I can show university timetables.\n\n" +
		"Pick who you are and send me a group number or a teacher's name, " +
		"or just type it right away."
	helpText = "*How to use the bot*\n\n" +
		"• Tap *Student* or *Teacher* and send a group number or a teacher's name.\n" +
		"• Or just type it, I will figure out which one it is.\n" +
		"• Use the arrows under a schedule to flip through days.\n" +
		"• *Export* saves a schedule as an image or a spreadsheet.\n" +
		"• In *Settings* you can save a default schedule and enable a daily digest."
)

// mainMenu builds the start screen keyboard for a session. The quick
// access row only appears once a default schedule is saved.
func mainMenu(sess *session.Session) *tele.ReplyMarkup {
	rows := [][]keyboard.InlineBtn{
		{
			{Text: "👨‍🎓 Student", Token: "mode_student"},
			{Text: "👨‍🏫 Teacher", Token: "mode_teacher"},
		},
	}
	if prefs := sess.Prefs(); prefs.DefaultQuery != "" {
		rows = append(rows, []keyboard.InlineBtn{
			{Text: "⚡ " + prefs.DefaultQuery, Token: "quick_schedule_" + string(prefs.DefaultMode)},
		})
	}
	rows = append(rows, []keyboard.InlineBtn{
		{Text: "⚙️ Settings", Token: "settings_menu"},
		{Text: "ℹ️ Help", Token: "help_command_inline"},
	})
	rows = append(rows, []keyboard.InlineBtn{
		{Text: "✉️ Feedback", Token: "feedback"},
	})
	return keyboard.InlineButtonsRows(rows...)
}

func (h *Handlers) modeHandler(mode session.Mode) dispatch.HandlerFunc {
	prompt := "Send me the group number, for example *ИТ2-211*."
	if mode == session.ModeTeacher {
		prompt = "Send me the teacher's name, for example *Иванов И.И.*"
	}
	return func(r *dispatch.Request) error {
		r.Session.SetMode(mode)
		r.Session.SetInput(session.InputQuery)
		if err := r.Respond.Edit(prompt, keyboard.SingleCancelMarkup()); err != nil {
			return err
		}
		return r.Respond.Ack("", false)
	}
}

func (h *Handlers) backToStart(r *dispatch.Request) error {
	r.Session.CancelInput()
	h.hydrate(r.Ctx, r.Session)
	if err := r.Respond.Edit(startText, mainMenu(r.Session)); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

func (h *Handlers) helpInline(r *dispatch.Request) error {
	kb := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "⬅️ Back", Token: "back_to_start"},
	})
	if err := r.Respond.Edit(helpText, kb); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

func (h *Handlers) cancelInput(r *dispatch.Request) error {
	r.Session.CancelInput()
	if err := r.Respond.Edit(startText, mainMenu(r.Session)); err != nil {
		return err
	}
	return r.Respond.Ack("Cancelled", false)
}

func (h *Handlers) startFeedback(r *dispatch.Request) error {
	r.Session.SetInput(session.InputFeedback)
	text := "✍️ Write your message and I will pass it to the maintainer."
	if err := r.Respond.Edit(text, keyboard.SingleCancelMarkup()); err != nil {
		return err
	}
	return r.Respond.Ack("", false)
}

// hydrate pulls the stored profile into a session that has not seen
// one yet, so callbacks arriving before /start still know the user's
// defaults.
func (h *Handlers) hydrate(ctx context.Context, sess *session.Session) {
	if h.users == nil {
		return
	}
	if prefs := sess.Prefs(); prefs.NotificationTime != "" {
		return
	}
	u, err := h.users.GetUser(ctx, sess.UserID())
	if err != nil || u == nil {
		sess.UpdatePrefs(func(p *session.Prefs) {
			if p.NotificationTime == "" {
				p.NotificationTime = "21:00"
			}
		})
		return
	}
	sess.UpdatePrefs(func(p *session.Prefs) {
		p.DefaultQuery = u.DefaultQuery.String
		p.DefaultMode = session.Mode(u.DefaultMode.String)
		p.DailyNotifications = u.DailyNotifications
		p.NotificationTime = u.NotificationTime
		if p.NotificationTime == "" {
			p.NotificationTime = "21:00"
		}
	})
}

// escapeMD guards user-supplied names embedded into Markdown replies.
func escapeMD(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return out
}

func entityLabel(mode session.Mode) string {
	if mode == session.ModeTeacher {
		return "teacher"
	}
	return "group"
}

func notFoundText(query string, mode session.Mode) string {
	return fmt.Sprintf("🤷 I could not find a %s named *%s*. Check the spelling and try again.",
		entityLabel(mode), escapeMD(query))
}
