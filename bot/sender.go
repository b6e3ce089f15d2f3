package bot

import (
	"context"
	"errors"
	"sync/atomic"

	tgsender "schedbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// proactiveSender delivers messages outside of any update, used by the
// notification jobs and feedback forwarding. It is constructed before
// the bot exists and bound to it once the runtime is up; sends before
// that fail instead of blocking.
type proactiveSender struct {
	bot  atomic.Pointer[tele.Bot]
	disp atomic.Pointer[tgsender.Dispatcher]
}

func (s *proactiveSender) Bind(b *tele.Bot, d *tgsender.Dispatcher) {
	s.bot.Store(b)
	s.disp.Store(d)
}

func (s *proactiveSender) Send(ctx context.Context, userID int64, text string, kb *tele.ReplyMarkup) error {
	b := s.bot.Load()
	if b == nil {
		return errors.New("bot: sender not bound yet")
	}
	run := func() error {
		opts := []interface{}{tele.ModeMarkdown}
		if kb != nil {
			opts = append(opts, kb)
		}
		_, err := b.Send(tele.ChatID(userID), text, opts...)
		return err
	}
	if d := s.disp.Load(); d != nil {
		return d.Enqueue(ctx, "notify_send", "sendMessage", run)
	}
	return run()
}
