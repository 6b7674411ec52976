package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/tempmailbot/core/config"
	"github.com/m3rciful/tempmailbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MiddlewareHooks lets the application observe the shared chain.
type MiddlewareHooks struct {
	// OnLimited runs for updates dropped by the rate limiter.
	OnLimited tele.HandlerFunc
	// OnUpdate sees every update that passed the rate limiter.
	OnUpdate middleware.UpdateObserver
}

// DefaultMiddlewares builds the shared middleware chain for bots:
// recover, rate_limit (when configured), observe, logger.
func DefaultMiddlewares(cfg *coreconfig.Config, hooks MiddlewareHooks) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.RateLimit.IntervalMS > 0 {
		ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
		for _, t := range cfg.RateLimit.ExcludeUpdates {
			ex[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
		mws = append(mws, Middleware{
			Name: "rate_limit",
			Use: middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
				Exclude:   ex,
				OnLimited: hooks.OnLimited,
			}),
		})
	}

	if hooks.OnUpdate != nil {
		mws = append(mws, Middleware{Name: "observe", Use: middleware.ObserveMiddleware(hooks.OnUpdate)})
	}

	return append(mws, Middleware{Name: "logger", Use: middleware.LoggerMiddleware})
}
