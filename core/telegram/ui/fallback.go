package ui

import (
	"github.com/m3rciful/tempmailbot/core/telegram/router"

	tele "gopkg.in/telebot.v4"
)

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands or callbacks.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// RouterOptions maps a provider onto the text and callback router options.
// A nil provider yields zero options, which makes the routers log and skip.
func RouterOptions(p FallbackProvider) (router.TextOptions, router.CallbackOptions) {
	if p == nil {
		return router.TextOptions{}, router.CallbackOptions{}
	}
	return router.TextOptions{UnknownText: p.UnknownText()},
		router.CallbackOptions{NotFound: p.UnknownCallback()}
}
