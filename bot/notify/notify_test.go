package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"schedbot/bot/store"
	"schedbot/bot/timetable"

	tele "gopkg.in/telebot.v4"
)

type stubTargets struct {
	daily      []store.NotificationTarget
	subscribed []store.NotificationTarget
	lastSlot   string
}

func (s *stubTargets) NotificationTargets(_ context.Context, at string) ([]store.NotificationTarget, error) {
	s.lastSlot = at
	return s.daily, nil
}

func (s *stubTargets) SubscribedTargets(context.Context) ([]store.NotificationTarget, error) {
	return s.subscribed, nil
}

type stubProvider struct {
	mu   sync.Mutex
	days map[string][]timetable.Day
}

func (p *stubProvider) Schedule(_ context.Context, date, _ string, _ timetable.Kind) ([]timetable.Day, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	days, ok := p.days[date]
	if !ok {
		return nil, timetable.ErrNotFound
	}
	return days, nil
}

func (p *stubProvider) Entities(context.Context, timetable.Kind) ([]string, error) {
	return nil, nil
}

func (p *stubProvider) set(date string, days []timetable.Day) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.days == nil {
		p.days = make(map[string][]timetable.Day)
	}
	p.days[date] = days
}

type sentMessage struct {
	userID int64
	text   string
	kb     *tele.ReplyMarkup
}

type stubSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (s *stubSender) Send(_ context.Context, userID int64, text string, kb *tele.ReplyMarkup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{userID: userID, text: text, kb: kb})
	return nil
}

func (s *stubSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func tokensOf(kb *tele.ReplyMarkup) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			out = append(out, btn.Data)
		}
	}
	return out
}

func testDay(date string) timetable.Day {
	return timetable.Day{
		Date:    date,
		Weekday: "Monday",
		Pairs: []timetable.Pair{
			{Time: "08:30-10:05", Subject: "Математика", Teacher: "Иванов И.И.", Auditorium: "301"},
		},
	}
}

func newTestScheduler(targets *stubTargets, provider *stubProvider, sender *stubSender, at time.Time) *Scheduler {
	s := NewScheduler(Options{Targets: targets, Schedules: provider, Send: sender})
	s.now = func() time.Time { return at }
	return s
}

func TestDailyPassSendsTomorrow(t *testing.T) {
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	targets := &stubTargets{daily: []store.NotificationTarget{
		{UserID: 7, DefaultQuery: "ИТ2-211", DefaultMode: "student"},
	}}
	provider := &stubProvider{}
	provider.set("2026-03-03", []timetable.Day{testDay("2026-03-03")})
	sender := &stubSender{}

	s := newTestScheduler(targets, provider, sender, now)
	s.dailyPass(context.Background())

	if targets.lastSlot != "21:00" {
		t.Fatalf("queried slot %q, want 21:00", targets.lastSlot)
	}
	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].userID != 7 {
		t.Fatalf("sent to %d, want 7", msgs[0].userID)
	}
	if !strings.Contains(msgs[0].text, "Математика") {
		t.Fatalf("message misses the schedule body: %q", msgs[0].text)
	}
	want := []string{
		"notification_open_schedule_student_2026-03-03",
		"pick_date_today_quick_student",
		"pick_date_tomorrow_quick_student",
		"back_to_start",
	}
	toks := tokensOf(msgs[0].kb)
	if len(toks) != len(want) {
		t.Fatalf("got %d button tokens %v, want %d", len(toks), toks, len(want))
	}
	for i := range want {
		if toks[i] != want[i] {
			t.Fatalf("button %d token %q, want %q", i, toks[i], want[i])
		}
	}
}

func TestDailyPassVisitsSlotOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	targets := &stubTargets{daily: []store.NotificationTarget{
		{UserID: 7, DefaultQuery: "ИТ2-211", DefaultMode: "student"},
	}}
	provider := &stubProvider{}
	provider.set("2026-03-03", []timetable.Day{testDay("2026-03-03")})
	sender := &stubSender{}

	s := newTestScheduler(targets, provider, sender, now)
	s.dailyPass(context.Background())
	s.dailyPass(context.Background())

	if got := len(sender.messages()); got != 1 {
		t.Fatalf("sent %d messages for one slot, want 1", got)
	}
}

func TestDailyPassSkipsWhenNoSchedule(t *testing.T) {
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	targets := &stubTargets{daily: []store.NotificationTarget{
		{UserID: 7, DefaultQuery: "ИТ2-211", DefaultMode: "student"},
	}}
	sender := &stubSender{}

	s := newTestScheduler(targets, &stubProvider{}, sender, now)
	s.dailyPass(context.Background())

	if got := len(sender.messages()); got != 0 {
		t.Fatalf("sent %d messages without a schedule, want 0", got)
	}
}

func TestChangePassNotifiesOnEdit(t *testing.T) {
	// Monday, so the watched dates are today and Tuesday.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	targets := &stubTargets{subscribed: []store.NotificationTarget{
		{UserID: 9, DefaultQuery: "Иванов И.И.", DefaultMode: "teacher"},
	}}
	provider := &stubProvider{}
	provider.set("2026-03-02", []timetable.Day{testDay("2026-03-02")})
	sender := &stubSender{}

	s := newTestScheduler(targets, provider, sender, now)

	// First pass records the baseline without notifying.
	s.changePass(context.Background())
	if got := len(sender.messages()); got != 0 {
		t.Fatalf("baseline pass sent %d messages, want 0", got)
	}

	// Unchanged schedule stays silent.
	s.changePass(context.Background())
	if got := len(sender.messages()); got != 0 {
		t.Fatalf("unchanged pass sent %d messages, want 0", got)
	}

	day := testDay("2026-03-02")
	day.Pairs[0].Auditorium = "215"
	provider.set("2026-03-02", []timetable.Day{day})

	s.changePass(context.Background())
	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("edited pass sent %d messages, want 1", len(msgs))
	}
	toks := tokensOf(msgs[0].kb)
	if len(toks) == 0 || toks[0] != "view_changed_schedule_teacher_2026-03-02" {
		t.Fatalf("unexpected button tokens %v", toks)
	}

	snap, ok := s.Snapshots().Get(9, "2026-03-02")
	if !ok {
		t.Fatal("no snapshot stored after change")
	}
	if len(snap.Pages) != 1 || !strings.Contains(snap.Pages[0], "215") {
		t.Fatalf("snapshot holds the old schedule: %v", snap.Pages)
	}
}

func TestNextWeekdaySkipsWeekend(t *testing.T) {
	friday := time.Date(2026, 3, 6, 8, 0, 0, 0, time.UTC)
	if got := nextWeekday(friday).Format("2006-01-02"); got != "2026-03-09" {
		t.Fatalf("next weekday after Friday = %s, want 2026-03-09", got)
	}
	monday := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if got := nextWeekday(monday).Format("2006-01-02"); got != "2026-03-03" {
		t.Fatalf("next weekday after Monday = %s, want 2026-03-03", got)
	}
}

func TestSnapshotStorePrune(t *testing.T) {
	st := NewSnapshotStore()
	st.Update(1, Snapshot{Date: "2026-03-01", Pages: []string{"a"}})
	st.Update(1, Snapshot{Date: "2026-03-02", Pages: []string{"b"}})

	st.PruneBefore("2026-03-02")

	if _, ok := st.Get(1, "2026-03-01"); ok {
		t.Fatal("stale snapshot survived prune")
	}
	if _, ok := st.Get(1, "2026-03-02"); !ok {
		t.Fatal("current snapshot was pruned")
	}
}
