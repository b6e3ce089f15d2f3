// Package session keeps per-user conversational state for the bot.
// Every user gets one Session guarded by its own mutex, so callback
// handlers and free-form text input can touch it concurrently without
// a global lock.
package session

import (
	"sync"
	"time"
)

// Mode selects which kind of entity the user queries the timetable for.
type Mode string

const (
	ModeStudent Mode = "student"
	ModeTeacher Mode = "teacher"
)

// InputState identifies which free-form input the bot is waiting for.
type InputState string

const (
	InputNone             InputState = ""
	InputQuery            InputState = "query"
	InputManualDate       InputState = "manual_date"
	InputDefaultQuery     InputState = "default_query"
	InputNotificationTime InputState = "notification_time"
	InputFeedback         InputState = "feedback"
)

// Candidate is one ambiguous search result offered to the user for a pick.
type Candidate struct {
	Key   string
	Label string
}

// Prefs are the user-tunable settings mirrored to storage.
type Prefs struct {
	DefaultQuery       string
	DefaultMode        Mode
	DailyNotifications bool
	NotificationTime   string
}

// Session holds the conversational state of a single user.
type Session struct {
	mu sync.Mutex

	userID int64

	mode      Mode
	input     InputState
	lastQuery string
	date      time.Time

	prefs Prefs

	busy bool

	pages     []string
	pageIndex int

	candidates []Candidate

	pending map[string]string
	resume  map[string]ReturnPoint

	keyboardPinned bool
}

func newSession(userID int64) *Session {
	return &Session{
		userID:  userID,
		mode:    ModeStudent,
		pending: make(map[string]string),
		resume:  make(map[string]ReturnPoint),
	}
}

// UserID returns the owner of the session.
func (s *Session) UserID() int64 { return s.userID }

// Mode returns the current query mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the query mode.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Input returns the free-form input the session is waiting for.
func (s *Session) Input() InputState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput marks which free-form input is expected next.
func (s *Session) SetInput(in InputState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = in
}

// Awaiting reports whether the session expects free-form text.
func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input != InputNone
}

// LastQuery returns the most recent schedule query.
func (s *Session) LastQuery() (string, Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQuery, s.mode
}

// SetQuery records a resolved schedule query together with its mode.
func (s *Session) SetQuery(query string, m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = query
	s.mode = m
}

// Date returns the selected schedule date; zero means the current week.
func (s *Session) Date() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

// SetDate selects an explicit schedule date.
func (s *Session) SetDate(d time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date = d
}

// ClearDate drops the explicit date selection.
func (s *Session) ClearDate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date = time.Time{}
}

// Prefs returns a copy of the user preferences.
func (s *Session) Prefs() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// UpdatePrefs applies fn to the preferences under the session lock.
func (s *Session) UpdatePrefs(fn func(*Prefs)) Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.prefs)
	return s.prefs
}

// Candidates returns the current disambiguation choices.
func (s *Session) Candidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// SetCandidates stores disambiguation choices for a pending pick.
func (s *Session) SetCandidates(cs []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = cs
}

// KeyboardPinned reports whether the persistent reply keyboard was sent.
func (s *Session) KeyboardPinned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboardPinned
}

// SetKeyboardPinned records that the persistent reply keyboard is in place.
func (s *Session) SetKeyboardPinned(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyboardPinned = v
}

// TryBeginBusy atomically claims the busy flag. It returns false when
// another handler already owns the session; the caller must then back
// off without mutating any state. There is no timeout: the flag is
// released only by EndBusy, which runs even when the owner panics.
func (s *Session) TryBeginBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	return true
}

// EndBusy releases the busy flag.
func (s *Session) EndBusy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
}

// Busy reports whether a handler currently owns the session.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// CancelInput ends any in-progress input flow and drops everything
// staged for it: expected input, disambiguation choices, pending
// proposals and the busy flag. Releasing busy here is what lets the
// lock-exempt cancel action unstick a session whose owner is hung;
// preferences survive untouched.
func (s *Session) CancelInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = InputNone
	s.candidates = nil
	s.pending = make(map[string]string)
	s.busy = false
}
