package router

import (
	"time"

	tg "schedbot/core/telegram"
	"schedbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextFlow is implemented by session-backed flows that consume free-form
// text while a user is mid-input (manual date entry, default query setup,
// feedback and so on).
type TextFlow interface {
	Awaiting(userID int64) bool
	HandleText(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document routing. Registered
// commands are mounted as their own endpoints, so an in-progress input flow
// only claims the free-form text that reaches OnText.
func TextRoutes(flow TextFlow, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if flow != nil && c.Sender() != nil && flow.Awaiting(c.Sender().ID) {
			return handleWithSummary(c, "text_flow", start, "", "", func() error {
				return flow.HandleText(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if flow != nil && c.Sender() != nil && flow.Awaiting(c.Sender().ID) {
			return handleWithSummary(c, "text_flow_document", start, "", "", func() error {
				return flow.HandleText(c)
			})
		}
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, "", "", func() error {
				return opts.UnknownDocument(c)
			})
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}
