package telegram

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/tempmailbot/core/logger"
	"github.com/m3rciful/tempmailbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry holds bot commands, keyed "/name", and callback handlers keyed by
// their unique part. It is filled before the bot starts and read afterwards.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]commands.Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
}

// NewRegistry creates an empty Registry whose callback fallback answers
// "Unsupported action".
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
			return nil
		},
	}
}

// RegisterCommand adds cmd under name, which must start with '/'.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	var cause string
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		cause = "invalid"
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		cause = "no_slash_prefix"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists && cause == "" {
		cause = "duplicate"
	}
	if cause != "" {
		logger.Warn(logger.Background(), "tg.wire", "register.command.skip",
			slog.String("command", name),
			slog.String("cause", cause),
		)
		return fmt.Errorf("register command %q: %s", name, cause)
	}
	r.commands[name] = cmd
	return nil
}

// ListCommands returns the commands sorted by name. visibleOnly leaves out
// hidden and admin-only ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []tele.Command
	for name, meta := range r.commands {
		if visibleOnly && (meta.Hidden || meta.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name, with or without the leading slash.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return name, cmd, ok
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback adds a callback handler mapped to its key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cause string
	switch _, exists := r.callbacks[key]; {
	case key == "" || handler == nil:
		cause = "invalid"
	case exists:
		cause = "duplicate"
	}
	if cause != "" {
		logger.Warn(logger.Background(), "tg.wire", "register.callback.skip",
			slog.String("cb_key", key),
			slog.String("cause", cause),
		)
		return fmt.Errorf("register callback %q: %s", key, cause)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler registered for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CallbackNotFound returns the fallback for callbacks with no handler.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	return r.callbackNotFound
}

// BotAPI is the part of *tele.Bot used to publish the command menu.
type BotAPI interface {
	SetCommands(opts ...any) error
}

// SetupCommands publishes the visible commands as the bot's command menu.
// Hidden and admin-only commands stay out of the menu but remain routable.
func SetupCommands(bot BotAPI, reg *Registry) {
	if bot == nil || reg == nil {
		return
	}
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(logger.Background(), "tg.wire", "register.commands.set_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(logger.Background(), "tg.wire", "register.commands.set",
		slog.String("status", "ok"),
		slog.Int("count", len(list)),
	)
}
