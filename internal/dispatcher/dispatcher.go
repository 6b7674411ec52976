// Package dispatcher maps bot commands onto the session store, the
// membership gate, the mail provider and the broadcaster, and renders every
// outcome as a plain-text reply.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tempmailbot/core/logger"
	"github.com/m3rciful/tempmailbot/internal/broadcast"
	"github.com/m3rciful/tempmailbot/internal/gate"
	"github.com/m3rciful/tempmailbot/internal/journal"
	"github.com/m3rciful/tempmailbot/internal/mailtm"
	"github.com/m3rciful/tempmailbot/internal/metrics"
	"github.com/m3rciful/tempmailbot/internal/session"
)

// Command names.
const (
	CmdStart     = "start"
	CmdVerify    = "verify"
	CmdNew       = "new"
	CmdCheck     = "check"
	CmdDelete    = "delete"
	CmdBroadcast = "broadcast"
)

// DefaultInboxPreview is how many messages /check lists.
const DefaultInboxPreview = 5

// Command is one user request.
type Command struct {
	Name     string
	Args     string
	CallerID int64
}

// Action is a transport-neutral button. Either Command or URL is set.
type Action struct {
	Label   string
	Command string
	URL     string
}

// Reply is the answer to a Command.
type Reply struct {
	Text    string
	Actions []Action
}

// MailProvider is the subset of the mail client used by commands.
type MailProvider interface {
	ListDomains(ctx context.Context) ([]string, error)
	CreateAccount(ctx context.Context, creds mailtm.Credentials) (mailtm.Account, error)
	IssueToken(ctx context.Context, creds mailtm.Credentials) (string, error)
	ListMessages(ctx context.Context, token string) ([]mailtm.Message, error)
	DeleteAccount(ctx context.Context, address, token string) error
}

// Verifier is the membership gate.
type Verifier interface {
	CheckAndMarkVerified(ctx context.Context, userID int64) (gate.Result, error)
	IsVerified(userID int64) bool
}

// Broadcaster delivers a text to every known user.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) (broadcast.Result, error)
}

// Options wires a Dispatcher. Store, Gate, Provider and Broadcaster are
// required.
type Options struct {
	Store       *session.Store
	Gate        Verifier
	Provider    MailProvider
	Broadcaster Broadcaster
	Journal     journal.Journal
	Metrics     *metrics.Metrics

	Channel string
	// AdminID is compared with the decimal caller id; empty denies everyone.
	AdminID      string
	InboxPreview int
	Now          func() time.Time
}

// Dispatcher executes commands.
type Dispatcher struct {
	store       *session.Store
	gate        Verifier
	provider    MailProvider
	broadcaster Broadcaster
	journal     journal.Journal
	metrics     *metrics.Metrics

	channel      string
	adminID      string
	inboxPreview int
	now          func() time.Time
}

// New validates opts and builds a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("dispatcher: store is required")
	case opts.Gate == nil:
		return nil, errors.New("dispatcher: gate is required")
	case opts.Provider == nil:
		return nil, errors.New("dispatcher: mail provider is required")
	case opts.Broadcaster == nil:
		return nil, errors.New("dispatcher: broadcaster is required")
	}
	if opts.Journal == nil {
		opts.Journal = journal.Noop{}
	}
	if opts.InboxPreview <= 0 {
		opts.InboxPreview = DefaultInboxPreview
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		store:        opts.Store,
		gate:         opts.Gate,
		provider:     opts.Provider,
		broadcaster:  opts.Broadcaster,
		journal:      opts.Journal,
		metrics:      opts.Metrics,
		channel:      opts.Channel,
		adminID:      strings.TrimSpace(opts.AdminID),
		inboxPreview: opts.InboxPreview,
		now:          opts.Now,
	}, nil
}

// Commands lists the handled command names in menu order.
func Commands() []string {
	return []string{CmdStart, CmdVerify, CmdNew, CmdCheck, CmdDelete, CmdBroadcast}
}

// NormalizeName strips the slash and any @botname suffix and lower-cases name.
func NormalizeName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Dispatch runs cmd and always returns a reply; failures are logged and
// rendered as text. Any command, known or not, registers the caller as a
// broadcast recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Reply {
	name := NormalizeName(cmd.Name)
	start := time.Now()
	if cmd.CallerID != 0 {
		d.store.GetOrCreate(cmd.CallerID)
	}

	reply, err := d.run(ctx, name, cmd)
	if err != nil {
		reply = Reply{Text: d.render(name, err)}
	}
	elapsed := time.Since(start)

	label := name
	if errors.Is(err, ErrUnknownCommand) {
		label = "unknown"
	}
	d.metrics.ObserveCommand(label, outcome(err), elapsed)
	d.metrics.SetKnownUsers(d.store.Len())
	d.logResult(ctx, label, cmd.CallerID, elapsed, err)
	return reply
}

func (d *Dispatcher) run(ctx context.Context, name string, cmd Command) (Reply, error) {
	switch name {
	case CmdStart:
		return d.start(cmd.CallerID), nil
	case CmdVerify:
		return d.withUserLock(cmd.CallerID, func() (Reply, error) { return d.verify(ctx, cmd.CallerID) })
	case CmdNew:
		return d.withUserLock(cmd.CallerID, func() (Reply, error) { return d.newMailbox(ctx, cmd.CallerID) })
	case CmdCheck:
		return d.withUserLock(cmd.CallerID, func() (Reply, error) { return d.checkInbox(ctx, cmd.CallerID) })
	case CmdDelete:
		return d.withUserLock(cmd.CallerID, func() (Reply, error) { return d.deleteMailbox(ctx, cmd.CallerID) })
	case CmdBroadcast:
		return d.broadcast(ctx, cmd.CallerID, cmd.Args)
	}
	return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

func (d *Dispatcher) withUserLock(userID int64, fn func() (Reply, error)) (Reply, error) {
	unlock := d.store.Lock(userID)
	defer unlock()
	return fn()
}

func (d *Dispatcher) logResult(ctx context.Context, command string, userID int64, elapsed time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("command", command),
		slog.Int64("user_id", userID),
		slog.String("outcome", outcome(err)),
		slog.Duration("duration", elapsed),
	}
	if err == nil {
		logger.Debug(ctx, "dispatcher", "command.result", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("err", err.Error()),
		slog.String("err_code", errorCode(err)),
	)
	var (
		te *TransportError
		pe *mailtm.ProviderError
	)
	if errors.As(err, &te) || errors.As(err, &pe) {
		logger.Warn(ctx, "dispatcher", "command.result", attrs...)
		return
	}
	logger.Info(ctx, "dispatcher", "command.result", attrs...)
}

// record writes a journal event; failures never reach the user.
func (d *Dispatcher) record(ctx context.Context, ev journal.Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = d.now()
	}
	if err := d.journal.Record(ctx, ev); err != nil {
		logger.Warn(ctx, "dispatcher", "journal.skip",
			slog.String("status", "fail"),
			slog.String("op", string(ev.Kind)),
			slog.Int64("user_id", ev.UserID),
			slog.String("err", err.Error()),
		)
	}
}
