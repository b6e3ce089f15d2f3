package handlers

import (
	"database/sql"

	"schedbot/bot/store"
	tg "schedbot/core/telegram"
	"schedbot/core/telegram/commands"
	"schedbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RegisterCommands installs the slash commands and the free-text
// fallback on a registry.
func (h *Handlers) RegisterCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.onStart,
		Description: "Main menu",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.onHelp,
		Description: "How to use the bot",
	})
	reg.RegisterCommand("/settings", commands.Command{
		Handler:     h.onSettings,
		Description: "Default schedule and notifications",
	})
	reg.RegisterCommand("/maintenance", commands.Command{
		Handler:   h.onMaintenance,
		AdminOnly: true,
		Hidden:    true,
	})
	reg.SetTextFallback(h.FreeText)
}

// onStart records the profile and shows the main menu. It also resets
// any half-finished input flow, /start is the universal escape hatch.
func (h *Handlers) onStart(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := helpers.BuildContext(c)
	sess := h.sessions.Get(sender.ID)
	sess.CancelInput()

	if h.users != nil {
		u := store.User{
			UserID:    sender.ID,
			Username:  nullStr(sender.Username),
			FirstName: nullStr(sender.FirstName),
			LastName:  nullStr(sender.LastName),
		}
		if err := h.users.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	h.hydrate(ctx, sess)
	h.logActivity(ctx, sender.ID, "start", "")

	return helpers.SendMD(c, startText, mainMenu(sess))
}

func (h *Handlers) onHelp(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	sess := h.sessions.Get(sender.ID)
	return helpers.SendMD(c, helpText, mainMenu(sess))
}

func (h *Handlers) onSettings(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	ctx := helpers.BuildContext(c)
	sess := h.sessions.Get(sender.ID)
	h.hydrate(ctx, sess)
	text, kb := settingsView(sess)
	return helpers.SendMD(c, text, kb)
}

// onMaintenance flips the maintenance gate. Admin only, enforced by
// the command router.
func (h *Handlers) onMaintenance(c tele.Context) error {
	on := !h.engine.InMaintenance()
	h.engine.SetMaintenance(on)
	if on {
		return helpers.SendMD(c, "🚧 Maintenance mode is *on*. Only you can use the bot now.")
	}
	return helpers.SendMD(c, "✅ Maintenance mode is *off*.")
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
