// Package app wires the temp-mail domain onto the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tempmailbot/core/bootstrap"
	coreconfig "github.com/m3rciful/tempmailbot/core/config"
	"github.com/m3rciful/tempmailbot/core/logger"
	tg "github.com/m3rciful/tempmailbot/core/telegram"
	"github.com/m3rciful/tempmailbot/core/telegram/router"
	tgsender "github.com/m3rciful/tempmailbot/core/telegram/sender"
	"github.com/m3rciful/tempmailbot/core/telegram/ui"
	"github.com/m3rciful/tempmailbot/internal/broadcast"
	"github.com/m3rciful/tempmailbot/internal/dispatcher"
	"github.com/m3rciful/tempmailbot/internal/gate"
	"github.com/m3rciful/tempmailbot/internal/journal"
	"github.com/m3rciful/tempmailbot/internal/mailtm"
	"github.com/m3rciful/tempmailbot/internal/metrics"
	"github.com/m3rciful/tempmailbot/internal/ops"
	"github.com/m3rciful/tempmailbot/internal/session"
)

// App owns the bot's domain services.
type App struct {
	cfg   *coreconfig.Config
	infra *bootstrap.Result

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	store     *session.Store
	transport *Transport
	journal   journal.Journal

	dispatcher *dispatcher.Dispatcher
	ops        *ops.Server
}

// New builds the application from configuration and bootstrapped
// infrastructure. infra may be nil when no journal is configured.
func New(cfg *coreconfig.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		j      journal.Journal = journal.Noop{}
		pinger ops.Pinger
	)
	if infra != nil && infra.DB != nil {
		pg := journal.NewPostgres(infra.DB)
		j, pinger = pg, pg
	}

	store := session.NewStore()
	transport := &Transport{}

	provider := mailtm.NewClient(cfg.Mail.BaseURL,
		mailtm.WithTimeout(time.Duration(cfg.Mail.TimeoutSeconds)*time.Second),
		mailtm.WithObserver(m.ObserveProviderCall),
	)

	caster := broadcast.New(store, transport, broadcast.Options{
		PerSecond: cfg.Broadcast.PerSecond,
		Burst:     cfg.Broadcast.Burst,
		OnSend:    func(_ int64, err error) { m.ObserveBroadcastSend(err) },
	})

	disp, err := dispatcher.New(dispatcher.Options{
		Store:       store,
		Gate:        gate.New(store, transport, cfg.Telegram.Channel),
		Provider:    provider,
		Broadcaster: caster,
		Journal:     j,
		Metrics:     m,
		Channel:     cfg.Telegram.Channel,
		AdminID:     cfg.Telegram.AdminID,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	opsOpts := ops.Options{Listen: cfg.Ops.Listen, Registry: reg}
	if pinger != nil {
		opsOpts.Journal = pinger
	}

	return &App{
		cfg:        cfg,
		infra:      infra,
		registry:   reg,
		metrics:    m,
		store:      store,
		transport:  transport,
		journal:    j,
		dispatcher: disp,
		ops:        ops.New(opsOpts),
	}, nil
}

// TelegramRunOptions assembles middlewares, routes and lifecycle hooks.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.registerHandlers(reg); err != nil {
		return tg.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	textOpts, cbOpts := ui.RouterOptions(a)
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: a.commandHandler(dispatcher.CmdBroadcast),
	})
	routes = append(routes, router.TextRoute(textOpts))
	routes = append(routes, router.CallbackRoute(reg, cbOpts))

	return tg.RunOptions{
		Config:   a.cfg,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			OnResult:   a.metrics.ObserveTelegramSend,
		},
		Middlewares: tg.DefaultMiddlewares(a.cfg, tg.MiddlewareHooks{
			OnLimited: func(tele.Context) error {
				a.metrics.IncRateLimited()
				return nil
			},
			OnUpdate: a.metrics.ObserveUpdate,
		}),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.transport.Attach(rt.Bot, rt.Dispatcher)
			logger.Info(ctx, "app", "transport.attached",
				slog.String("channel", a.cfg.Telegram.Channel),
				slog.Bool("journal", a.infra != nil && a.infra.DB != nil),
			)
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			logger.Info(ctx, "app", "sessions.dropped", slog.Int("count", a.store.Len()))
			return nil
		},
	}, nil
}

// RunBackground serves the ops endpoints until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	return a.ops.Run(ctx)
}

// Close releases the journal connection.
func (a *App) Close() error {
	return a.infra.Close()
}
