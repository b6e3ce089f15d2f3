package handlers

import (
	"context"
	"strings"
	"testing"

	"schedbot/bot/notify"
	"schedbot/bot/render"
	"schedbot/bot/session"
	"schedbot/bot/store"
	"schedbot/bot/timetable"

	tele "gopkg.in/telebot.v4"
)

type fakeStore struct {
	saved        map[int64]string
	savedMode    map[int64]string
	notifyOn     map[int64]bool
	notifyAt     map[int64]string
	resets       int
	activities   []string
	searches     []string
	existingUser *store.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:     make(map[int64]string),
		savedMode: make(map[int64]string),
		notifyOn:  make(map[int64]bool),
		notifyAt:  make(map[int64]string),
	}
}

func (f *fakeStore) GetUser(_ context.Context, _ int64) (*store.User, error) {
	return f.existingUser, nil
}
func (f *fakeStore) UpsertUser(context.Context, store.User) error { return nil }
func (f *fakeStore) SaveDefault(_ context.Context, userID int64, query, mode string) error {
	f.saved[userID] = query
	f.savedMode[userID] = mode
	return nil
}
func (f *fakeStore) ClearDefault(_ context.Context, userID int64) error {
	delete(f.saved, userID)
	return nil
}
func (f *fakeStore) SaveNotificationPrefs(_ context.Context, userID int64, enabled bool, at string) error {
	f.notifyOn[userID] = enabled
	f.notifyAt[userID] = at
	return nil
}
func (f *fakeStore) ResetSettings(_ context.Context, userID int64) error {
	f.resets++
	delete(f.saved, userID)
	return nil
}
func (f *fakeStore) LogActivity(_ context.Context, _ int64, action, _ string) {
	f.activities = append(f.activities, action)
}
func (f *fakeStore) LogSearch(_ context.Context, _ int64, query, _ string, _ int) {
	f.searches = append(f.searches, query)
}

type fakeProvider struct {
	entities map[timetable.Kind][]string
	days     map[string][]timetable.Day
}

func (p *fakeProvider) Schedule(_ context.Context, _ string, query string, _ timetable.Kind) ([]timetable.Day, error) {
	days, ok := p.days[query]
	if !ok {
		return nil, timetable.ErrNotFound
	}
	return days, nil
}

func (p *fakeProvider) Entities(_ context.Context, kind timetable.Kind) ([]string, error) {
	return p.entities[kind], nil
}

type fakeRenderer struct {
	weekFiles int
}

func artifact(name string) *render.Artifact {
	return &render.Artifact{ID: "a", Filename: name, Data: []byte{1, 2, 3}}
}

func (r *fakeRenderer) WeekImage(context.Context, string, []timetable.Day) (*render.Artifact, error) {
	return artifact("week.png"), nil
}
func (r *fakeRenderer) DayImages(_ context.Context, _ string, days []timetable.Day) ([]*render.Artifact, error) {
	out := make([]*render.Artifact, len(days))
	for i := range days {
		out[i] = artifact("day.png")
	}
	return out, nil
}
func (r *fakeRenderer) WeekFile(context.Context, string, []timetable.Day) (*render.Artifact, error) {
	r.weekFiles++
	return artifact("week.xlsx"), nil
}
func (r *fakeRenderer) Semester(context.Context, string, timetable.Kind) (*render.Artifact, error) {
	return artifact("semester.xlsx"), nil
}

type reply struct {
	text  string
	kb    *tele.ReplyMarkup
	alert bool
}

type fakeResponder struct {
	acks  []reply
	edits []reply
	sends []reply
	docs  []string
	pics  int
}

func (r *fakeResponder) Ack(text string, alert bool) error {
	r.acks = append(r.acks, reply{text: text, alert: alert})
	return nil
}
func (r *fakeResponder) Edit(text string, kb *tele.ReplyMarkup) error {
	r.edits = append(r.edits, reply{text: text, kb: kb})
	return nil
}
func (r *fakeResponder) Send(text string, kb *tele.ReplyMarkup) error {
	r.sends = append(r.sends, reply{text: text, kb: kb})
	return nil
}
func (r *fakeResponder) SendPhoto([]byte, string) error {
	r.pics++
	return nil
}
func (r *fakeResponder) SendDocument(_ []byte, filename string) error {
	r.docs = append(r.docs, filename)
	return nil
}

func (r *fakeResponder) lastEdit(t *testing.T) reply {
	t.Helper()
	if len(r.edits) == 0 {
		t.Fatal("no edits recorded")
	}
	return r.edits[len(r.edits)-1]
}

func (r *fakeResponder) lastAck(t *testing.T) reply {
	t.Helper()
	if len(r.acks) == 0 {
		t.Fatal("no acks recorded")
	}
	return r.acks[len(r.acks)-1]
}

func keyboardTokens(kb *tele.ReplyMarkup) []string {
	if kb == nil {
		return nil
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			out = append(out, btn.Data)
		}
	}
	return out
}

func weekDays() []timetable.Day {
	return []timetable.Day{
		{Date: "2026-03-02", Weekday: "Monday", Pairs: []timetable.Pair{
			{Time: "08:30-10:05", Subject: "Математика", Teacher: "Иванов И.И."},
		}},
		{Date: "2026-03-03", Weekday: "Tuesday", Pairs: []timetable.Pair{
			{Time: "10:15-11:50", Subject: "Физика", Teacher: "Петров П.П."},
		}},
		{Date: "2026-03-04", Weekday: "Wednesday", Pairs: []timetable.Pair{
			{Time: "12:00-13:35", Subject: "История", Teacher: "Сидорова А.А."},
		}},
	}
}

func newTestHandlers(fs *fakeStore) (*Handlers, *fakeProvider) {
	fp := &fakeProvider{
		entities: map[timetable.Kind][]string{
			timetable.KindGroup:   {"ИТ2-211", "ИТ2-212"},
			timetable.KindTeacher: {"Иванов И.И.", "Иванова А.А."},
		},
		days: map[string][]timetable.Day{
			"ИТ2-211":    weekDays(),
			"Иванов И.И.": weekDays(),
		},
	}
	h := New(Options{
		Users:     fs,
		Schedules: fp,
		Renderer:  &fakeRenderer{},
		Snapshots: notify.NewSnapshotStore(),
		AdminID:   42,
	})
	return h, fp
}

func dispatchToken(t *testing.T, h *Handlers, userID int64, token string) *fakeResponder {
	t.Helper()
	r := &fakeResponder{}
	rule, err := h.Engine().Dispatch(context.Background(), userID, token, r)
	if err != nil {
		t.Fatalf("dispatch %q (rule %s): %v", token, rule, err)
	}
	return r
}

func TestVocabularyResolution(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())

	cases := []struct {
		token string
		rule  string
		arg   string
	}{
		{"mode_student", "mode_student", ""},
		{"back_to_start", "back_to_start", ""},
		{"pick_date_today_student", "pick_date_today", "student"},
		{"pick_date_today_quick_student", "pick_date_today_quick", "student"},
		{"pick_date_tomorrow_quick_teacher", "pick_date_tomorrow_quick", "teacher"},
		{"prev_2", "prev", "2"},
		{"next_0", "next", "0"},
		{"set_time_21:30", "set_time", "21:30"},
		{"set_time_custom", "set_time", "custom"},
		{"export_days_images", "export_days_images", ""},
		{"export_days_images_student", "export_days_images", "student"},
		{"confirm_mode_teacher_ab12cd34", "confirm_mode", "teacher_ab12cd34"},
		{"view_changed_schedule_student_2026-03-02", "view_changed_schedule", "student_2026-03-02"},
	}
	for _, tc := range cases {
		handler, arg, err := h.Engine().Resolve(tc.token)
		if err != nil {
			t.Fatalf("resolve %q: %v", tc.token, err)
		}
		if handler.Name != tc.rule {
			t.Errorf("resolve %q rule = %q, want %q", tc.token, handler.Name, tc.rule)
		}
		if arg != tc.arg {
			t.Errorf("resolve %q arg = %q, want %q", tc.token, arg, tc.arg)
		}
	}
}

func TestModeSelectionStartsQueryInput(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())

	r := dispatchToken(t, h, 1, "mode_teacher")

	sess := h.Sessions().Get(1)
	if sess.Mode() != session.ModeTeacher {
		t.Fatalf("mode = %q, want teacher", sess.Mode())
	}
	if sess.Input() != session.InputQuery {
		t.Fatalf("input = %q, want query", sess.Input())
	}
	if !strings.Contains(r.lastEdit(t).text, "teacher's name") {
		t.Fatalf("unexpected prompt %q", r.lastEdit(t).text)
	}
}

func TestRunTextQueryExactMatchShowsPages(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(1)
	r := &fakeResponder{}

	err := h.runTextQuery(context.Background(), sess, r, "ИТ2-211", session.ModeStudent)
	if err != nil {
		t.Fatal(err)
	}
	if got := sess.PageCount(); got != 3 {
		t.Fatalf("page count = %d, want 3", got)
	}
	if len(r.sends) != 1 || !strings.Contains(r.sends[0].text, "Математика") {
		t.Fatalf("unexpected reply %+v", r.sends)
	}
	if sess.Input() != session.InputNone {
		t.Fatalf("input = %q, want none", sess.Input())
	}
}

func TestRunTextQueryAmbiguousOffersCandidates(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(1)
	r := &fakeResponder{}

	err := h.runTextQuery(context.Background(), sess, r, "ИТ2", session.ModeStudent)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(sess.Candidates()); got != 2 {
		t.Fatalf("candidates = %d, want 2", got)
	}
	if sess.Input() != session.InputQuery {
		t.Fatalf("input = %q, want query", sess.Input())
	}
	if key, ok := matchCandidate(sess, "ит2-212"); !ok || key != "ИТ2-212" {
		t.Fatalf("candidate match = %q %v", key, ok)
	}
}

func TestPaginationThroughEngine(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(1)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}

	r := dispatchToken(t, h, 1, "next_0")
	if _, idx, _ := sess.Current(); idx != 1 {
		t.Fatalf("index after next = %d, want 1", idx)
	}
	if !strings.Contains(r.lastEdit(t).text, "Физика") {
		t.Fatalf("page 2 not shown: %q", r.lastEdit(t).text)
	}

	dispatchToken(t, h, 1, "prev_1")
	r = dispatchToken(t, h, 1, "prev_0")
	if got := r.lastAck(t).text; !strings.Contains(got, "first page") {
		t.Fatalf("boundary ack = %q", got)
	}
	if _, idx, _ := sess.Current(); idx != 0 {
		t.Fatalf("index clamped to %d, want 0", idx)
	}
}

func TestRefreshKeepsPageWhenCountUnchanged(t *testing.T) {
	h, fp := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(1)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}
	dispatchToken(t, h, 1, "next_0")
	dispatchToken(t, h, 1, "next_1")

	r := dispatchToken(t, h, 1, "refresh_2")
	if _, idx, _ := sess.Current(); idx != 2 {
		t.Fatalf("index after refresh = %d, want it preserved at 2", idx)
	}
	if !strings.Contains(r.lastEdit(t).text, "История") {
		t.Fatalf("page 3 not shown after refresh: %q", r.lastEdit(t).text)
	}

	fp.days["ИТ2-211"] = weekDays()[:2]
	r = dispatchToken(t, h, 1, "refresh_2")
	if _, idx, _ := sess.Current(); idx != 0 {
		t.Fatalf("index after shrinking refresh = %d, want reset to 0", idx)
	}
	if !strings.Contains(r.lastEdit(t).text, "Математика") {
		t.Fatalf("first page not shown after reset: %q", r.lastEdit(t).text)
	}
}

func TestCancelUnsticksBusySession(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(1)
	sess.SetInput(session.InputQuery)
	if !sess.TryBeginBusy() {
		t.Fatal("claim failed")
	}

	dispatchToken(t, h, 1, "cancel_input")
	if sess.Busy() {
		t.Fatal("cancel must release the busy flag")
	}

	r := &fakeResponder{}
	rule, err := h.Engine().Dispatch(context.Background(), 1, "settings_menu", r)
	if err != nil || rule != "settings_menu" {
		t.Fatalf("dispatch after cancel = (%s, %v), expected it accepted", rule, err)
	}
	if !strings.Contains(r.lastEdit(t).text, "Settings") {
		t.Fatalf("settings not shown: %q", r.lastEdit(t).text)
	}
}

func TestQuickScheduleWithoutDefault(t *testing.T) {
	fs := newFakeStore()
	h, _ := newTestHandlers(fs)

	r := dispatchToken(t, h, 1, "quick_schedule_student")
	ack := r.lastAck(t)
	if !ack.alert || !strings.Contains(ack.text, "No default schedule") {
		t.Fatalf("ack = %+v", ack)
	}
	if len(r.edits) != 0 {
		t.Fatal("schedule shown without a default")
	}
}

func TestSetDefaultFromScheduleStagesAndSaves(t *testing.T) {
	fs := newFakeStore()
	h, _ := newTestHandlers(fs)
	sess := h.Sessions().Get(7)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}

	hash := session.ContentHash("ИТ2-211", 12)
	r := dispatchToken(t, h, 7, "set_default_from_schedule_student_"+hash)

	if fs.saved[7] != "ИТ2-211" || fs.savedMode[7] != "student" {
		t.Fatalf("default not saved: %v %v", fs.saved, fs.savedMode)
	}
	if !fs.notifyOn[7] || fs.notifyAt[7] != "21:00" {
		t.Fatalf("first default should enable the digest: on=%v at=%q", fs.notifyOn[7], fs.notifyAt[7])
	}
	if prefs := sess.Prefs(); prefs.DefaultQuery != "ИТ2-211" {
		t.Fatalf("session prefs not updated: %+v", prefs)
	}
	// The redrawn keyboard must not offer the shortcut anymore.
	for _, tok := range keyboardTokens(r.lastEdit(t).kb) {
		if strings.HasPrefix(tok, "set_default_from_schedule_") {
			t.Fatalf("shortcut still offered after saving: %s", tok)
		}
	}

	r = dispatchToken(t, h, 7, "quick_schedule_student")
	if !strings.Contains(r.lastEdit(t).text, "ИТ2-211") {
		t.Fatalf("quick schedule did not show the default: %q", r.lastEdit(t).text)
	}
}

func TestExpiredDefaultShortcut(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())

	r := dispatchToken(t, h, 1, "set_default_from_schedule_student_deadbeefdead")
	ack := r.lastAck(t)
	if !ack.alert || !strings.Contains(ack.text, "expired") {
		t.Fatalf("ack = %+v", ack)
	}
}

func TestColdStartConfirmFlow(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(3)
	r := &fakeResponder{}

	// "Иванов" alone is neither a group name nor two capitalized words.
	if err := h.askQueryType(sess, r, "Иванов"); err != nil {
		t.Fatal(err)
	}
	toks := keyboardTokens(r.sends[0].kb)
	if len(toks) < 2 || !strings.HasPrefix(toks[0], "confirm_mode_student_") {
		t.Fatalf("unexpected confirm tokens %v", toks)
	}

	cb := dispatchToken(t, h, 3, toks[1])
	if len(cb.sends) == 0 {
		t.Fatal("confirming did not run the search")
	}

	// The staged entry is consumed, a replay reports expiry.
	cb = dispatchToken(t, h, 3, toks[1])
	if got := cb.lastAck(t); !strings.Contains(got.text, "expired") {
		t.Fatalf("replayed confirm ack = %+v", got)
	}
}

func TestExportDetourAndReturn(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(5)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}
	dispatchToken(t, h, 5, "next_0")

	r := dispatchToken(t, h, 5, "export_menu_student")
	if !strings.Contains(r.lastEdit(t).text, "Pick a format") {
		t.Fatalf("export menu not shown: %q", r.lastEdit(t).text)
	}

	r = dispatchToken(t, h, 5, "export_week_file_student")
	if len(r.docs) != 1 || r.docs[0] != "week.xlsx" {
		t.Fatalf("docs = %v", r.docs)
	}

	r = dispatchToken(t, h, 5, "back_to_schedule_from_export")
	if !strings.Contains(r.lastEdit(t).text, "Физика") {
		t.Fatalf("return point lost the page: %q", r.lastEdit(t).text)
	}
	if _, ok := sess.PeekReturnPoint(session.ResumeExport); ok {
		t.Fatal("return point not consumed")
	}
}

func TestExportDayImagesSendsOnePerDay(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(5)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}
	dispatchToken(t, h, 5, "export_menu_student")

	r := dispatchToken(t, h, 5, "export_days_images_student")
	if r.pics != 3 {
		t.Fatalf("photos sent = %d, want 3", r.pics)
	}
}

func TestNotificationTimePresetAndCustom(t *testing.T) {
	fs := newFakeStore()
	h, _ := newTestHandlers(fs)

	dispatchToken(t, h, 9, "set_time_08:00")
	if fs.notifyAt[9] != "08:00" || !fs.notifyOn[9] {
		t.Fatalf("preset not saved: on=%v at=%q", fs.notifyOn[9], fs.notifyAt[9])
	}

	dispatchToken(t, h, 9, "set_time_custom")
	if got := h.Sessions().Get(9).Input(); got != session.InputNotificationTime {
		t.Fatalf("input = %q, want notification_time", got)
	}
}

func TestResetSettingsTwoStep(t *testing.T) {
	fs := newFakeStore()
	h, _ := newTestHandlers(fs)
	sess := h.Sessions().Get(11)
	if err := h.saveDefault(context.Background(), sess, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}

	r := dispatchToken(t, h, 11, "reset_settings")
	if fs.resets != 0 {
		t.Fatal("reset ran before confirmation")
	}
	found := false
	for _, tok := range keyboardTokens(r.lastEdit(t).kb) {
		if tok == "do_reset_settings" {
			found = true
		}
	}
	if !found {
		t.Fatal("confirmation keyboard misses do_reset_settings")
	}

	dispatchToken(t, h, 11, "do_reset_settings")
	if fs.resets != 1 {
		t.Fatalf("resets = %d, want 1", fs.resets)
	}
	if prefs := sess.Prefs(); prefs.DefaultQuery != "" || prefs.DailyNotifications {
		t.Fatalf("prefs not cleared: %+v", prefs)
	}
}

func TestViewChangedScheduleReplaysSnapshot(t *testing.T) {
	fs := newFakeStore()
	h, _ := newTestHandlers(fs)
	h.snapshots.Update(13, notify.Snapshot{
		Query: "ИТ2-211",
		Mode:  "student",
		Date:  "2026-03-02",
		Pages: []string{"stored page about Информатика"},
	})

	r := dispatchToken(t, h, 13, "view_changed_schedule_student_2026-03-02")
	if len(r.sends) == 0 || !strings.Contains(r.sends[0].text, "Информатика") {
		t.Fatalf("snapshot not replayed: %+v", r.sends)
	}
}

func TestManualDateEntry(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(15)
	if err := h.runTextQuery(context.Background(), sess, &fakeResponder{}, "ИТ2-211", session.ModeStudent); err != nil {
		t.Fatal(err)
	}

	dispatchToken(t, h, 15, "enter_date")
	if sess.Input() != session.InputManualDate {
		t.Fatalf("input = %q, want manual_date", sess.Input())
	}

	r := &fakeResponder{}
	if err := h.textManualDate(context.Background(), sess, r, "04.03.2026"); err != nil {
		t.Fatal(err)
	}
	if sess.Input() != session.InputNone {
		t.Fatalf("input = %q, want none", sess.Input())
	}
	if got := sess.Date().Format("2006-01-02"); got != "2026-03-04" {
		t.Fatalf("date = %s, want 2026-03-04", got)
	}
	if len(r.sends) == 0 || !strings.Contains(r.sends[0].text, "История") {
		t.Fatalf("wrong page for the picked date: %+v", r.sends)
	}
}

func TestCancelClearsPendingAndCandidates(t *testing.T) {
	h, _ := newTestHandlers(newFakeStore())
	sess := h.Sessions().Get(17)
	if err := h.askQueryType(sess, &fakeResponder{}, "Иванов"); err != nil {
		t.Fatal(err)
	}
	if sess.PendingCount() == 0 {
		t.Fatal("nothing staged")
	}

	dispatchToken(t, h, 17, "cancel_input")
	if sess.PendingCount() != 0 {
		t.Fatal("cancel left staged proposals behind")
	}
	if sess.Input() != session.InputNone {
		t.Fatalf("input = %q, want none", sess.Input())
	}
}
