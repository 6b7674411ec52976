package middleware

import (
	"log/slog"
	"strconv"

	"github.com/m3rciful/tempmailbot/core/logger"
	tghelpers "github.com/m3rciful/tempmailbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
// AdminID is the admin's numeric user id in decimal form; when empty every
// caller is rejected.
type AdminOptions struct {
	AdminID  string
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether userID matches the configured admin id string.
func IsAdmin(adminID string, userID int64) bool {
	return adminID != "" && strconv.FormatInt(userID, 10) == adminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			var userID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			if !IsAdmin(opts.AdminID, userID) {
				logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject",
					slog.String("status", "denied"),
					slog.Int64("user_id", userID),
				)
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
