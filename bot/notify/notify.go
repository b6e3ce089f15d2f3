// Package notify runs the background notification jobs: the daily
// schedule digest sent at each user's configured time and the watcher
// that detects upstream schedule edits for subscribed users.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"schedbot/bot/store"
	"schedbot/bot/timetable"
	"schedbot/core/logger"
	"schedbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const (
	defaultCheckInterval = 30 * time.Minute
	dateLayout           = "2006-01-02"
)

// Sender delivers a proactive message to a user outside of any update.
type Sender interface {
	Send(ctx context.Context, userID int64, text string, kb *tele.ReplyMarkup) error
}

// TargetSource yields the users the jobs should visit.
type TargetSource interface {
	NotificationTargets(ctx context.Context, at string) ([]store.NotificationTarget, error)
	SubscribedTargets(ctx context.Context) ([]store.NotificationTarget, error)
}

// Options configures a Scheduler.
type Options struct {
	Targets   TargetSource
	Schedules timetable.Provider
	Send      Sender
	// CheckInterval is how often the change watcher runs. Zero means
	// the default of 30 minutes.
	CheckInterval time.Duration
}

// Scheduler drives both background jobs off a shared loop.
type Scheduler struct {
	targets   TargetSource
	schedules timetable.Provider
	send      Sender
	checkEv   time.Duration
	snapshots *SnapshotStore

	now      func() time.Time
	lastSlot string
}

// NewScheduler builds a scheduler. Run must be called to start it.
func NewScheduler(opts Options) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	return &Scheduler{
		targets:   opts.Targets,
		schedules: opts.Schedules,
		send:      opts.Send,
		checkEv:   opts.CheckInterval,
		snapshots: NewSnapshotStore(),
		now:       time.Now,
	}
}

// Snapshots exposes the change snapshots so callback handlers can
// replay a stored schedule.
func (s *Scheduler) Snapshots() *SnapshotStore {
	return s.snapshots
}

// Run blocks until ctx is cancelled, firing the daily job once per
// minute slot and the change watcher on its interval.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info(ctx, "notify", "notify.start",
		slog.String("check_interval", s.checkEv.String()))

	daily := time.NewTicker(time.Minute)
	defer daily.Stop()
	changes := time.NewTicker(s.checkEv)
	defer changes.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "notify", "notify.stop")
			return
		case <-daily.C:
			s.dailyPass(ctx)
		case <-changes.C:
			s.changePass(ctx)
		}
	}
}

// dailyPass sends tomorrow's schedule to every user whose slot matches
// the current minute. A slot is visited at most once even if the ticker
// fires twice within the same minute.
func (s *Scheduler) dailyPass(ctx context.Context) {
	now := s.now()
	slot := now.Format("15:04")
	if slot == s.lastSlot {
		return
	}
	s.lastSlot = slot

	targets, err := s.targets.NotificationTargets(ctx, slot)
	if err != nil {
		logger.Error(ctx, "notify", "notify.targets_failed",
			slog.String("slot", slot), slog.String("error", err.Error()))
		return
	}
	if len(targets) == 0 {
		return
	}

	date := now.AddDate(0, 0, 1).Format(dateLayout)
	sent := 0
	for _, t := range targets {
		if s.sendDaily(ctx, t, date) {
			sent++
		}
	}
	logger.Info(ctx, "notify", "notify.daily_done",
		slog.String("slot", slot),
		slog.Int("targets", len(targets)),
		slog.Int("sent", sent))
}

func (s *Scheduler) sendDaily(ctx context.Context, t store.NotificationTarget, date string) bool {
	kind := timetable.KindOf(t.DefaultMode)
	days, err := s.schedules.Schedule(ctx, date, t.DefaultQuery, kind)
	if err != nil {
		if !errors.Is(err, timetable.ErrNotFound) {
			logger.Warn(ctx, "notify", "notify.fetch_failed",
				slog.Int64("user_id", t.UserID), slog.String("error", err.Error()))
		}
		return false
	}
	day, ok := dayFor(days, date)
	if !ok {
		return false
	}

	text := fmt.Sprintf("🔔 *Schedule for tomorrow, %s*\n\n%s", t.DefaultQuery, timetable.PageText(day, kind))
	kb := keyboard.InlineButtonsRows(
		[]keyboard.InlineBtn{
			{Text: "📋 Open schedule", Token: fmt.Sprintf("notification_open_schedule_%s_%s", t.DefaultMode, date)},
		},
		[]keyboard.InlineBtn{
			{Text: "Today", Token: "pick_date_today_quick_" + t.DefaultMode},
			{Text: "Tomorrow", Token: "pick_date_tomorrow_quick_" + t.DefaultMode},
		},
		[]keyboard.InlineBtn{
			{Text: "🏠 Main menu", Token: "back_to_start"},
		},
	)
	if err := s.send.Send(ctx, t.UserID, text, kb); err != nil {
		logger.Warn(ctx, "notify", "notify.send_failed",
			slog.Int64("user_id", t.UserID), slog.String("error", err.Error()))
		return false
	}
	return true
}

// changePass compares today's and the next study day's schedules with
// the snapshots from the previous pass and pings users whose schedule
// was edited upstream.
func (s *Scheduler) changePass(ctx context.Context) {
	targets, err := s.targets.SubscribedTargets(ctx)
	if err != nil {
		logger.Error(ctx, "notify", "notify.watch_targets_failed",
			slog.String("error", err.Error()))
		return
	}
	if len(targets) == 0 {
		return
	}

	now := s.now()
	dates := []string{
		now.Format(dateLayout),
		nextWeekday(now).Format(dateLayout),
	}
	s.snapshots.PruneBefore(dates[0])

	notified := 0
	for _, t := range targets {
		for _, date := range dates {
			if s.checkOne(ctx, t, date) {
				notified++
			}
		}
	}
	if notified > 0 {
		logger.Info(ctx, "notify", "notify.changes_done",
			slog.Int("targets", len(targets)), slog.Int("notified", notified))
	}
}

func (s *Scheduler) checkOne(ctx context.Context, t store.NotificationTarget, date string) bool {
	kind := timetable.KindOf(t.DefaultMode)
	days, err := s.schedules.Schedule(ctx, date, t.DefaultQuery, kind)
	if err != nil {
		if !errors.Is(err, timetable.ErrNotFound) {
			logger.Warn(ctx, "notify", "notify.watch_fetch_failed",
				slog.Int64("user_id", t.UserID), slog.String("error", err.Error()))
		}
		return false
	}
	day, ok := dayFor(days, date)
	if !ok {
		return false
	}

	page := timetable.PageText(day, kind)
	snap := Snapshot{
		Query: t.DefaultQuery,
		Mode:  t.DefaultMode,
		Date:  date,
		Pages: []string{page},
	}
	changed := s.snapshots.Update(t.UserID, snap)
	if !changed {
		return false
	}

	text := fmt.Sprintf("📢 The schedule for *%s* on %s has changed.", t.DefaultQuery, date)
	kb := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "👀 View changes", Token: fmt.Sprintf("view_changed_schedule_%s_%s", t.DefaultMode, date)},
		{Text: "🏠 Main menu", Token: "back_to_start"},
	})
	if err := s.send.Send(ctx, t.UserID, text, kb); err != nil {
		logger.Warn(ctx, "notify", "notify.change_send_failed",
			slog.Int64("user_id", t.UserID), slog.String("error", err.Error()))
		return false
	}
	return true
}

func dayFor(days []timetable.Day, date string) (timetable.Day, bool) {
	for _, d := range days {
		if d.Date == date {
			return d, true
		}
	}
	return timetable.Day{}, false
}

// nextWeekday returns the next Monday-to-Friday day strictly after t.
func nextWeekday(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
