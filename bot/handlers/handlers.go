// Package handlers wires the bot's conversational surface: commands,
// free-form text input and every callback action token. All state goes
// through bot/session, all token routing through bot/dispatch.
package handlers

import (
	"context"
	"strings"

	"schedbot/bot/dispatch"
	"schedbot/bot/notify"
	"schedbot/bot/render"
	"schedbot/bot/session"
	"schedbot/bot/store"
	"schedbot/bot/timetable"
	"schedbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const dateLayout = "2006-01-02"

// Storage is the slice of the profile store the handlers need.
// *store.Store satisfies it.
type Storage interface {
	GetUser(ctx context.Context, userID int64) (*store.User, error)
	UpsertUser(ctx context.Context, u store.User) error
	SaveDefault(ctx context.Context, userID int64, query, mode string) error
	ClearDefault(ctx context.Context, userID int64) error
	SaveNotificationPrefs(ctx context.Context, userID int64, enabled bool, at string) error
	ResetSettings(ctx context.Context, userID int64) error
	LogActivity(ctx context.Context, userID int64, action, details string)
	LogSearch(ctx context.Context, userID int64, query, kind string, found int)
}

// Options collects the collaborators for New.
type Options struct {
	Sessions  *session.Manager
	Users     Storage
	Schedules timetable.Provider
	Renderer  render.Renderer
	Snapshots *notify.SnapshotStore
	// Notify sends proactive messages, used to forward feedback to the
	// admin. Optional.
	Notify  notify.Sender
	AdminID int64

	MaintenanceMessage string
	MaintenanceOnStart bool
}

// Handlers owns the dispatch engine and every registered action.
type Handlers struct {
	sessions  *session.Manager
	engine    *dispatch.Engine
	users     Storage
	schedules timetable.Provider
	renderer  render.Renderer
	snapshots *notify.SnapshotStore
	notify    notify.Sender
	adminID   int64
}

// New builds the handler set and registers the full token vocabulary
// on a fresh engine.
func New(opts Options) *Handlers {
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	h := &Handlers{
		sessions: sessions,
		engine: dispatch.NewEngine(dispatch.Options{
			Sessions:           sessions,
			AdminID:            opts.AdminID,
			MaintenanceMessage: opts.MaintenanceMessage,
			MaintenanceOnStart: opts.MaintenanceOnStart,
		}),
		users:     opts.Users,
		schedules: opts.Schedules,
		renderer:  opts.Renderer,
		snapshots: opts.Snapshots,
		notify:    opts.Notify,
		adminID:   opts.AdminID,
	}
	h.register()
	return h
}

// Engine exposes the dispatch engine, mainly for the maintenance toggle.
func (h *Handlers) Engine() *dispatch.Engine { return h.engine }

// Sessions exposes the session manager behind the handlers.
func (h *Handlers) Sessions() *session.Manager { return h.sessions }

// Dispatch implements router.CallbackDispatcher: it runs one callback
// token for the sender of the update.
func (h *Handlers) Dispatch(c tele.Context, token string) (string, error) {
	sender := c.Sender()
	if sender == nil {
		return "no_sender", nil
	}
	ctx := helpers.BuildContext(c)
	return h.engine.Dispatch(ctx, sender.ID, token, newResponder(c))
}

// register wires the whole token vocabulary. Prefix order is
// load-bearing: quick date variants come before the plain date family
// they would otherwise be shadowed by.
func (h *Handlers) register() {
	e := h.engine

	e.Exact("mode_student", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.modeHandler(session.ModeStudent)})
	e.Exact("mode_teacher", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.modeHandler(session.ModeTeacher)})
	e.Exact("back_to_start", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.backToStart})
	e.Exact("help_command_inline", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.helpInline})
	e.Exact("settings_menu", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.settingsMenu})
	e.Exact("cancel_input", dispatch.Handler{Shape: dispatch.IgnoresToken, NoLock: true, Fn: h.cancelInput})
	e.Exact("feedback", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.startFeedback})
	e.Exact("toggle_daily_notifications", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.toggleNotifications})
	e.Exact("set_notification_time", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.askNotificationTime})
	e.Exact("reset_settings", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.confirmReset})
	e.Exact("do_reset_settings", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.doReset})
	e.Exact("back_to_schedule_from_export", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.backFromExport})
	e.Exact("enter_date", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.enterDate})
	e.Exact("export_days_images", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.exportDayImages})
	e.Exact("export_semester", dispatch.Handler{Shape: dispatch.IgnoresToken, Fn: h.exportSemester})

	e.Prefix("export_menu_", dispatch.Handler{Fn: h.exportMenu})
	e.Prefix("export_week_image_", dispatch.Handler{Fn: h.exportWeekImage})
	e.Prefix("export_week_file_", dispatch.Handler{Fn: h.exportWeekFile})
	e.Prefix("export_days_images_", dispatch.Handler{Fn: h.exportDayImages})
	e.Prefix("export_semester_", dispatch.Handler{Fn: h.exportSemester})
	e.Prefix("set_default_mode_", dispatch.Handler{Fn: h.askDefaultQuery})
	e.Prefix("set_default_from_schedule_", dispatch.Handler{Fn: h.setDefaultFromSchedule})
	e.Prefix("quick_schedule_", dispatch.Handler{Fn: h.quickSchedule})
	e.Prefix("confirm_mode_", dispatch.Handler{Fn: h.confirmMode})
	e.Prefix("notification_open_schedule_", dispatch.Handler{Fn: h.openNotifiedSchedule})
	e.Prefix("pick_date_today_quick_", dispatch.Handler{Name: "pick_date_today_quick", Fn: h.pickQuickDate(0)})
	e.Prefix("pick_date_tomorrow_quick_", dispatch.Handler{Name: "pick_date_tomorrow_quick", Fn: h.pickQuickDate(1)})
	e.Prefix("pick_date_today_", dispatch.Handler{Name: "pick_date_today", Fn: h.pickDate(0)})
	e.Prefix("pick_date_tomorrow_", dispatch.Handler{Name: "pick_date_tomorrow", Fn: h.pickDate(1)})
	e.Prefix("set_time_", dispatch.Handler{Fn: h.setNotificationTime})
	e.Prefix("view_changed_schedule_", dispatch.Handler{Fn: h.viewChangedSchedule})
	e.Prefix("prev_", dispatch.Handler{Fn: h.prevPage})
	e.Prefix("next_", dispatch.Handler{Fn: h.nextPage})
	e.Prefix("refresh_", dispatch.Handler{Fn: h.refreshPage})
}

// parseMode reads a mode name off the front of a token argument and
// returns the remainder past the following underscore.
func parseMode(arg string) (session.Mode, string, bool) {
	name := arg
	rest := ""
	if i := strings.IndexByte(arg, '_'); i >= 0 {
		name, rest = arg[:i], arg[i+1:]
	}
	switch session.Mode(name) {
	case session.ModeStudent:
		return session.ModeStudent, rest, true
	case session.ModeTeacher:
		return session.ModeTeacher, rest, true
	}
	return "", "", false
}

func kindOf(m session.Mode) timetable.Kind {
	return timetable.KindOf(string(m))
}

// History writes are best effort and tolerate a missing store.

func (h *Handlers) logSearch(ctx context.Context, userID int64, query string, kind timetable.Kind, found int) {
	if h.users == nil {
		return
	}
	h.users.LogSearch(ctx, userID, query, string(kind), found)
}

func (h *Handlers) logActivity(ctx context.Context, userID int64, action, details string) {
	if h.users == nil {
		return
	}
	h.users.LogActivity(ctx, userID, action, details)
}
