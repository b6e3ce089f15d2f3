package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"schedbot/bot/session"

	tele "gopkg.in/telebot.v4"
)

type fakeResponder struct {
	acks   []string
	alerts []bool
	edits  []string
	sends  []string
}

func (f *fakeResponder) Ack(text string, alert bool) error {
	f.acks = append(f.acks, text)
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeResponder) Edit(text string, _ *tele.ReplyMarkup) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeResponder) Send(text string, _ *tele.ReplyMarkup) error {
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeResponder) SendPhoto(_ []byte, caption string) error {
	f.sends = append(f.sends, "photo:"+caption)
	return nil
}

func (f *fakeResponder) SendDocument(_ []byte, filename string) error {
	f.sends = append(f.sends, "document:"+filename)
	return nil
}

func newTestEngine() *Engine {
	return NewEngine(Options{Sessions: session.NewManager()})
}

func TestValidateToken(t *testing.T) {
	cases := []struct {
		token string
		ok    bool
	}{
		{"mode_student", true},
		{"prev_3", true},
		{"quick_schedule_IU7-34", true},
		{"", false},
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
		{"with space", false},
		{"tab\there", false},
		{"newline\n", false},
		{"кириллица", false},
	}
	for _, tc := range cases {
		err := ValidateToken(tc.token)
		if tc.ok && err != nil {
			t.Errorf("ValidateToken(%q) = %v, expected ok", tc.token, err)
		}
		if !tc.ok {
			if err == nil {
				t.Errorf("ValidateToken(%q) = nil, expected error", tc.token)
			} else if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken(%q) = %v, expected ErrInvalidToken", tc.token, err)
			}
		}
	}
}

func TestDispatchExactMatch(t *testing.T) {
	e := newTestEngine()
	ran := false
	e.Exact("mode_student", Handler{Fn: func(req *Request) error {
		ran = true
		if req.Arg != "" {
			t.Errorf("arg = %q, expected empty for exact match", req.Arg)
		}
		if req.Token != "mode_student" {
			t.Errorf("token = %q", req.Token)
		}
		return nil
	}})

	r := &fakeResponder{}
	rule, err := e.Dispatch(context.Background(), 1, "mode_student", r)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !ran {
		t.Fatal("handler did not run")
	}
	if rule != "mode_student" {
		t.Fatalf("rule = %q", rule)
	}
	if e.Sessions().Get(1).Busy() {
		t.Fatal("busy flag must be released after the handler returns")
	}
}

func TestDispatchExactBeatsPrefix(t *testing.T) {
	e := newTestEngine()
	var hit string
	e.Prefix("export_", Handler{Name: "export", Fn: func(*Request) error {
		hit = "prefix"
		return nil
	}})
	e.Exact("export_semester", Handler{Fn: func(*Request) error {
		hit = "exact"
		return nil
	}})

	if _, err := e.Dispatch(context.Background(), 1, "export_semester", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hit != "exact" {
		t.Fatalf("hit = %q, expected exact match to win", hit)
	}
}

func TestDispatchPrefixOrder(t *testing.T) {
	e := newTestEngine()
	var hit string
	var arg string
	e.Prefix("pick_date_today_quick_", Handler{Name: "pick_date_today_quick", Fn: func(req *Request) error {
		hit, arg = "quick", req.Arg
		return nil
	}})
	e.Prefix("pick_date_today_", Handler{Name: "pick_date_today", Fn: func(req *Request) error {
		hit, arg = "plain", req.Arg
		return nil
	}})

	rule, err := e.Dispatch(context.Background(), 1, "pick_date_today_quick_IU7-34", &fakeResponder{})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hit != "quick" || arg != "IU7-34" {
		t.Fatalf("hit = %q arg = %q, expected the longer prefix registered first", hit, arg)
	}
	if rule != "pick_date_today_quick" {
		t.Fatalf("rule = %q", rule)
	}

	if _, err := e.Dispatch(context.Background(), 1, "pick_date_today_x", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hit != "plain" || arg != "x" {
		t.Fatalf("hit = %q arg = %q", hit, arg)
	}
}

func TestDispatchUnknownToken(t *testing.T) {
	e := newTestEngine()
	r := &fakeResponder{}
	rule, err := e.Dispatch(context.Background(), 1, "no_such_action", r)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rule != "unknown" {
		t.Fatalf("rule = %q", rule)
	}
	if len(r.acks) != 1 || r.acks[0] == "" {
		t.Fatalf("acks = %v, expected one notice", r.acks)
	}
}

func TestDispatchInvalidToken(t *testing.T) {
	e := newTestEngine()
	for _, token := range []string{"", strings.Repeat("x", 65), "bad token"} {
		r := &fakeResponder{}
		rule, err := e.Dispatch(context.Background(), 1, token, r)
		if err != nil {
			t.Fatalf("dispatch(%q): %v", token, err)
		}
		if rule != "invalid_token" {
			t.Fatalf("rule = %q for token %q", rule, token)
		}
		if len(r.acks) != 1 {
			t.Fatalf("acks = %v, expected a notice for token %q", r.acks, token)
		}
	}
}

func TestDispatchBusyBacksOffWithoutMutation(t *testing.T) {
	e := newTestEngine()
	mutated := false
	e.Exact("toggle_daily_notifications", Handler{Fn: func(req *Request) error {
		mutated = true
		return nil
	}})

	sess := e.Sessions().Get(1)
	sess.SetPages([]string{"a", "b"}, 1)
	if !sess.TryBeginBusy() {
		t.Fatal("claim failed")
	}

	r := &fakeResponder{}
	rule, err := e.Dispatch(context.Background(), 1, "toggle_daily_notifications", r)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rule != "busy" {
		t.Fatalf("rule = %q", rule)
	}
	if mutated {
		t.Fatal("handler must not run while busy")
	}
	if len(r.acks) != 1 || r.acks[0] == "" {
		t.Fatalf("acks = %v, expected a wait notice", r.acks)
	}
	if _, idx, _ := sess.Current(); idx != 1 {
		t.Fatalf("page index = %d, expected untouched", idx)
	}
	if !sess.Busy() {
		t.Fatal("busy flag must stay with its owner")
	}
}

func TestDispatchCancelBypassesBusy(t *testing.T) {
	e := newTestEngine()
	cancelled := false
	e.Exact("cancel_input", Handler{NoLock: true, Fn: func(req *Request) error {
		cancelled = true
		req.Session.CancelInput()
		return nil
	}})
	e.Exact("settings_menu", Handler{Fn: func(*Request) error { return nil }})

	sess := e.Sessions().Get(1)
	sess.SetInput(session.InputFeedback)
	if !sess.TryBeginBusy() {
		t.Fatal("claim failed")
	}

	if _, err := e.Dispatch(context.Background(), 1, "cancel_input", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !cancelled {
		t.Fatal("cancel handler must run while the session is busy")
	}
	if sess.Input() != session.InputNone {
		t.Fatal("expected input cleared")
	}
	if sess.Busy() {
		t.Fatal("cancel must unstick a busy session")
	}
	if rule, err := e.Dispatch(context.Background(), 1, "settings_menu", &fakeResponder{}); err != nil || rule == "busy" {
		t.Fatalf("action after cancel = (%s, %v), expected it accepted", rule, err)
	}
}

func TestDispatchBusyClearedAfterError(t *testing.T) {
	e := newTestEngine()
	boom := errors.New("boom")
	e.Exact("refresh_x", Handler{Fn: func(*Request) error { return boom }})

	r := &fakeResponder{}
	rule, err := e.Dispatch(context.Background(), 1, "refresh_x", r)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, expected handler error surfaced", err)
	}
	if rule != "refresh_x" {
		t.Fatalf("rule = %q", rule)
	}
	if e.Sessions().Get(1).Busy() {
		t.Fatal("busy flag must be released after a failing handler")
	}
	if len(r.acks) != 1 || r.acks[0] == "" {
		t.Fatalf("acks = %v, expected a failure notice", r.acks)
	}
}

func TestDispatchFailureClearsStagedState(t *testing.T) {
	e := newTestEngine()
	boom := errors.New("boom")
	e.Prefix("confirm_mode_", Handler{Fn: func(*Request) error { return boom }})

	sess := e.Sessions().Get(1)
	sess.SetInput(session.InputQuery)
	sess.PutPending("confirm:abcd1234", "ИТ2-211")

	if _, err := e.Dispatch(context.Background(), 1, "confirm_mode_student_abcd1234", &fakeResponder{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, expected handler error surfaced", err)
	}
	if sess.PendingCount() != 0 {
		t.Fatal("staged proposals must be cleared after a failing handler")
	}
	if sess.Input() != session.InputNone {
		t.Fatal("awaiting flag must be cleared after a failing handler")
	}
}

func TestDispatchBusyClearedAfterPanic(t *testing.T) {
	e := newTestEngine()
	e.Exact("settings_menu", Handler{Fn: func(*Request) error {
		panic("handler exploded")
	}})

	r := &fakeResponder{}
	_, err := e.Dispatch(context.Background(), 1, "settings_menu", r)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("err = %v, expected recovered panic", err)
	}
	if e.Sessions().Get(1).Busy() {
		t.Fatal("busy flag must be released after a panicking handler")
	}

	// The session must still be usable.
	ok := false
	e.Exact("back_to_start", Handler{Fn: func(*Request) error {
		ok = true
		return nil
	}})
	if _, err := e.Dispatch(context.Background(), 1, "back_to_start", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch after panic: %v", err)
	}
	if !ok {
		t.Fatal("subsequent dispatch did not run")
	}
}

func TestDispatchMaintenanceGate(t *testing.T) {
	e := NewEngine(Options{
		Sessions:           session.NewManager(),
		AdminID:            42,
		MaintenanceMessage: "closed for maintenance",
		MaintenanceOnStart: true,
	})
	ran := false
	e.Exact("help_command_inline", Handler{Fn: func(*Request) error {
		ran = true
		return nil
	}})

	r := &fakeResponder{}
	rule, err := e.Dispatch(context.Background(), 1, "help_command_inline", r)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rule != "maintenance" || ran {
		t.Fatalf("rule = %q ran = %v, expected blocked", rule, ran)
	}
	if len(r.acks) != 1 || r.acks[0] != "closed for maintenance" || !r.alerts[0] {
		t.Fatalf("acks = %v alerts = %v", r.acks, r.alerts)
	}

	// Admin passes through.
	if _, err := e.Dispatch(context.Background(), 42, "help_command_inline", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch admin: %v", err)
	}
	if !ran {
		t.Fatal("admin must bypass the maintenance gate")
	}

	e.SetMaintenance(false)
	ran = false
	if _, err := e.Dispatch(context.Background(), 1, "help_command_inline", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch after disable: %v", err)
	}
	if !ran {
		t.Fatal("expected handler to run with maintenance off")
	}
}

func TestDispatchIgnoresTokenShape(t *testing.T) {
	e := newTestEngine()
	e.Prefix("set_time_", Handler{Name: "set_time", Fn: func(req *Request) error {
		if req.Arg != "08:30" {
			t.Errorf("arg = %q", req.Arg)
		}
		return nil
	}})
	e.Exact("settings_menu", Handler{Shape: IgnoresToken, Fn: func(req *Request) error {
		if req.Token != "" || req.Arg != "" {
			t.Errorf("token = %q arg = %q, expected blanked for IgnoresToken", req.Token, req.Arg)
		}
		return nil
	}})

	if _, err := e.Dispatch(context.Background(), 1, "set_time_08:30", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := e.Dispatch(context.Background(), 1, "settings_menu", &fakeResponder{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestResolveErrors(t *testing.T) {
	e := newTestEngine()
	if _, _, err := e.Resolve(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, expected ErrInvalidToken", err)
	}
	if _, _, err := e.Resolve("nope"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v, expected ErrUnknownAction", err)
	}
}
