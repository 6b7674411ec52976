package helpers

import (
	"context"

	"github.com/m3rciful/tempmailbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// contextKey is the tele.Context slot holding the per-update context.
const contextKey = "logger_ctx"

// StoreContext caches ctx on c so later helpers share the same metadata.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// ContextFrom returns the context cached by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// CallerID is the id of the user behind the update, or 0 for channel posts
// and other senderless updates.
func CallerID(c tele.Context) int64 {
	if c == nil {
		return 0
	}
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// BuildContext returns the per-update context carrying the request id and
// update, user and chat ids for logging. The first call caches it on c.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	userID := CallerID(c)
	updateID := c.Update().ID

	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the per-update context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
