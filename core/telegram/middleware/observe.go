package middleware

import (
	"time"

	coreconfig "github.com/m3rciful/tempmailbot/core/config"

	tele "gopkg.in/telebot.v4"
)

// UpdateObserver receives the kind, handling time and handler error of an update.
type UpdateObserver func(kind string, elapsed time.Duration, err error)

// ObserveMiddleware reports every update that reaches it to observe.
func ObserveMiddleware(observe UpdateObserver) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		if observe == nil {
			return next
		}
		return func(c tele.Context) error {
			start := time.Now()
			err := next(c)
			observe(UpdateKind(c.Update()), time.Since(start), err)
			return err
		}
	}
}

// UpdateKind names the payload of upd as used by rate limit exclusions:
// callback or message. Anything else is "other".
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return coreconfig.UpdateCallback
	case upd.Message != nil:
		return coreconfig.UpdateMessage
	}
	return "other"
}
