package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"schedbot/bot/session"
	"schedbot/core/logger"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Responder abstracts the reply surface of a callback update so the
// engine and its handlers stay independent of the transport. Ack
// answers the callback query (empty text just stops the spinner),
// Edit rewrites the message the button was attached to.
type Responder interface {
	Ack(text string, alert bool) error
	Edit(text string, kb *tele.ReplyMarkup) error
	Send(text string, kb *tele.ReplyMarkup) error
	SendPhoto(data []byte, caption string) error
	SendDocument(data []byte, filename string) error
}

// Request carries everything a handler needs to act on one token.
// Arg is the token remainder after the matched prefix, empty for
// exact-match actions.
type Request struct {
	Ctx     context.Context
	Token   string
	Arg     string
	Session *session.Session
	Respond Responder
}

// HandlerFunc acts on a dispatched token.
type HandlerFunc func(*Request) error

// Shape declares how a handler consumes the token. A handler that
// ignores the token gets Token and Arg blanked, which keeps stale
// payloads from leaking into actions that must not depend on them.
type Shape int

const (
	NeedsToken Shape = iota
	IgnoresToken
)

// Handler binds a handler function to a rule. NoLock exempts it from
// the per-user busy gate, which only the cancel action should use.
type Handler struct {
	Name   string
	Shape  Shape
	NoLock bool
	Fn     HandlerFunc
}

type prefixRule struct {
	prefix  string
	handler Handler
}

// User-facing notices the engine answers with when no handler runs.
const (
	noticeUnknown = "This button is no longer supported."
	noticeBusy    = "Please wait, the previous action is still running."
	noticeFailed  = "Something went wrong. Please try again."
)

// Engine resolves action tokens and runs their handlers behind the
// per-user busy gate. Resolution prefers exact matches, then scans
// prefix rules in registration order and takes the first hit, so
// more specific prefixes must be registered before their shorter
// ancestors. On every path where no handler runs the engine answers
// the callback query itself; a handler that runs owns the answer.
type Engine struct {
	sessions *session.Manager
	adminID  int64

	exact    map[string]Handler
	prefixes []prefixRule

	maintenance    atomic.Bool
	maintenanceMsg string
}

// Options configure a new Engine.
type Options struct {
	Sessions           *session.Manager
	AdminID            int64
	MaintenanceMessage string
	MaintenanceOnStart bool
}

// NewEngine constructs an empty Engine.
func NewEngine(opts Options) *Engine {
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	msg := strings.TrimSpace(opts.MaintenanceMessage)
	if msg == "" {
		msg = "The bot is under maintenance, please try again later."
	}
	e := &Engine{
		sessions:       sessions,
		adminID:        opts.AdminID,
		exact:          make(map[string]Handler),
		maintenanceMsg: msg,
	}
	e.maintenance.Store(opts.MaintenanceOnStart)
	return e
}

// Sessions exposes the session manager the engine dispatches against.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Exact registers a handler for a full-token match. Duplicate and
// invalid registrations are dropped with a warning.
func (e *Engine) Exact(token string, h Handler) {
	if token == "" || h.Fn == nil || ValidateToken(token) != nil {
		logger.Warn(context.Background(), "dispatch", "register.skip",
			slog.String("token", token),
			slog.String("reason", "invalid"),
		)
		return
	}
	if _, exists := e.exact[token]; exists {
		logger.Warn(context.Background(), "dispatch", "register.duplicate",
			slog.String("token", token),
		)
		return
	}
	if h.Name == "" {
		h.Name = token
	}
	e.exact[token] = h
}

// Prefix appends a prefix rule. Order matters: register the most
// specific prefix first.
func (e *Engine) Prefix(prefix string, h Handler) {
	if prefix == "" || h.Fn == nil || ValidateToken(prefix) != nil {
		logger.Warn(context.Background(), "dispatch", "register.skip",
			slog.String("prefix", prefix),
			slog.String("reason", "invalid"),
		)
		return
	}
	for _, r := range e.prefixes {
		if r.prefix == prefix {
			logger.Warn(context.Background(), "dispatch", "register.duplicate",
				slog.String("prefix", prefix),
			)
			return
		}
	}
	if h.Name == "" {
		h.Name = strings.TrimSuffix(prefix, "_")
	}
	e.prefixes = append(e.prefixes, prefixRule{prefix: prefix, handler: h})
}

// RuleCount returns the number of registered exact and prefix rules.
func (e *Engine) RuleCount() (exact, prefixes int) {
	return len(e.exact), len(e.prefixes)
}

// SetMaintenance toggles the maintenance gate.
func (e *Engine) SetMaintenance(on bool) { e.maintenance.Store(on) }

// InMaintenance reports whether the maintenance gate is active.
func (e *Engine) InMaintenance() bool { return e.maintenance.Load() }

// Resolve maps a token to its handler and prefix remainder without
// running anything.
func (e *Engine) Resolve(token string) (Handler, string, error) {
	if err := ValidateToken(token); err != nil {
		return Handler{}, "", err
	}
	if h, ok := e.exact[token]; ok {
		return h, "", nil
	}
	for _, r := range e.prefixes {
		if strings.HasPrefix(token, r.prefix) {
			return r.handler, token[len(r.prefix):], nil
		}
	}
	return Handler{}, "", fmt.Errorf("%w: %s", ErrUnknownAction, token)
}

// Dispatch resolves and runs the handler for one callback token. The
// returned rule names what happened for the request summary log; err
// is non-nil only when a handler actually ran and failed, the user is
// already notified in that case.
func (e *Engine) Dispatch(ctx context.Context, userID int64, token string, r Responder) (string, error) {
	if err := ValidateToken(token); err != nil {
		_ = r.Ack(noticeUnknown, false)
		logger.Debug(ctx, "dispatch", "token.invalid",
			slog.String("token", logger.SanitizeLimit(token, MaxTokenLen)),
			slog.String("err", err.Error()),
		)
		return "invalid_token", nil
	}

	if e.InMaintenance() && userID != e.adminID {
		_ = r.Ack(e.maintenanceMsg, true)
		return "maintenance", nil
	}

	h, arg, err := e.Resolve(token)
	if err != nil {
		_ = r.Ack(noticeUnknown, false)
		logger.Warn(ctx, "dispatch", "token.unknown",
			slog.String("token", token),
			slog.Int64("user_id", userID),
		)
		return "unknown", nil
	}

	sess := e.sessions.Get(userID)
	if !h.NoLock {
		if !sess.TryBeginBusy() {
			_ = r.Ack(noticeBusy, false)
			return "busy", nil
		}
		defer sess.EndBusy()
	}

	req := &Request{
		Ctx:     ctx,
		Token:   token,
		Arg:     arg,
		Session: sess,
		Respond: r,
	}
	if h.Shape == IgnoresToken {
		req.Token, req.Arg = "", ""
	}
	if err := e.run(h, req); err != nil {
		// A failed handler may have left staged proposals or an
		// awaiting flag behind, and there is no telling where it
		// stopped. Reset the flow state so the next tap starts clean.
		sess.CancelInput()
		_ = r.Ack(noticeFailed, false)
		return h.Name, err
	}
	return h.Name, nil
}

// run executes the handler and converts a panic into an error so the
// busy flag is always released and the update loop keeps going.
func (e *Engine) run(h Handler, req *Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name, p)
		}
	}()
	return h.Fn(req)
}
