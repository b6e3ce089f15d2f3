package handlers

import (
	"bytes"

	"schedbot/bot/dispatch"
	"schedbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// teleResponder adapts a telebot context to the dispatch.Responder the
// engine and handlers talk to. It also serves text updates: Ack is a
// no-op there and Edit degrades to a plain send.
type teleResponder struct {
	c tele.Context
}

func newResponder(c tele.Context) dispatch.Responder {
	return &teleResponder{c: c}
}

func (r *teleResponder) Ack(text string, alert bool) error {
	if r.c.Callback() == nil {
		return nil
	}
	return r.c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: alert})
}

func (r *teleResponder) Edit(text string, kb *tele.ReplyMarkup) error {
	if kb != nil {
		return helpers.EditOrSendMD(r.c, text, kb)
	}
	return helpers.EditOrSendMD(r.c, text)
}

func (r *teleResponder) Send(text string, kb *tele.ReplyMarkup) error {
	if kb != nil {
		return helpers.SendMD(r.c, text, kb)
	}
	return helpers.SendMD(r.c, text)
}

func (r *teleResponder) SendPhoto(data []byte, caption string) error {
	photo := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(data)),
		Caption: caption,
	}
	return r.c.Send(photo)
}

func (r *teleResponder) SendDocument(data []byte, filename string) error {
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: filename,
	}
	return r.c.Send(doc)
}
