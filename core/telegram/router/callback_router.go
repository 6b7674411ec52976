package router

import (
	"log/slog"

	tg "github.com/m3rciful/tempmailbot/core/telegram"
	"github.com/m3rciful/tempmailbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every callback query and routes it through the
// registry. Unknown keys go to opts.NotFound, then the registry fallback.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}

		key := callbacks.CallbackKey(c)
		name := "callback." + normalizeHandlerName(key)
		cbKey := slog.String("cb_key", key)

		// Stop the client spinner before the handler replies.
		_ = c.Respond()

		if h, ok := reg.GetCallback(key); ok && h != nil {
			return handleWithSummary(c, name, "", func() error { return h(c) }, cbKey)
		}

		fallback := opts.NotFound
		if fallback == nil {
			fallback = reg.CallbackNotFound()
		}
		return handleWithSummary(c, name, "skip", func() error {
			if fallback != nil {
				return fallback(c)
			}
			return nil
		}, cbKey, slog.String("cause", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
