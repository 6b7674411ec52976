package router

import (
	tg "github.com/m3rciful/tempmailbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoute hands every text update that matched no command to
// opts.UnknownText. Without one, text is logged and skipped.
func TextRoute(opts TextOptions) tg.Route {
	handler := func(c tele.Context) error {
		if opts.UnknownText == nil {
			return handleWithSummary(c, "unknown_text", "skip", func() error { return nil })
		}
		return handleWithSummary(c, "unknown_text", "", func() error {
			return opts.UnknownText(c)
		})
	}
	return tg.Route{Endpoint: tele.OnText, Handler: handler}
}
