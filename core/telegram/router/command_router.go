package router

import (
	"log/slog"

	"github.com/m3rciful/tempmailbot/core/logger"
	tg "github.com/m3rciful/tempmailbot/core/telegram"
	"github.com/m3rciful/tempmailbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures admin gating for registered commands.
type CommandRouteOptions struct {
	AdminID       string
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns registered commands into routes. Admin-only commands
// are gated; each invocation ends with a single handler summary log line.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		inner := def.Handler
		if def.AdminOnly {
			inner = adminOnly(inner)
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler: func(c tele.Context) error {
				return handleWithSummary(c, name, "", func() error {
					return inner(c)
				}, slog.String("command", name))
			},
		})
	}

	logger.Info(logger.Background(), "tg.wire", "complete",
		slog.Int("count", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
