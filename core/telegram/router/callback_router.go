package router

import (
	"strings"
	"time"

	"schedbot/core/logger"
	"schedbot/core/telegram/middleware"
	"log/slog"

	tg "schedbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// CallbackDispatcher resolves a raw callback token to a handler and runs it.
// It returns the name of the matched rule for logging, or a synthetic name
// such as "unknown" or "invalid_token" when no handler ran.
type CallbackDispatcher interface {
	Dispatch(c tele.Context, token string) (rule string, err error)
}

// CallbackRoute returns a route that feeds every callback update through
// the dispatcher. The dispatcher owns answering the callback query, so the
// route never calls Respond itself.
func CallbackRoute(d CallbackDispatcher) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		token := rawToken(cb)
		rule, err := d.Dispatch(c, token)
		name := "callback." + normalizeHandlerName(rule)
		logHandlerSummary(c, name, start, "", "", err,
			slog.String("token", logger.SanitizeLimit(token, 64)),
		)
		return err
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}

// rawToken extracts the opaque action token from a callback update.
// Inline buttons are built with plain Data, but a stray "\f" marker from
// a Unique-style button is stripped so the token always arrives bare.
func rawToken(cb *tele.Callback) string {
	data := strings.TrimPrefix(cb.Data, "\f")
	return strings.TrimSpace(data)
}
