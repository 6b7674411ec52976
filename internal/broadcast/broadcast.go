// Package broadcast delivers one text to every known user.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/tempmailbot/core/logger"
)

// Sender delivers a text to a single user.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Audience supplies the recipients. UserIDs must return a snapshot the
// caller may keep.
type Audience interface {
	UserIDs() []int64
}

// Result counts deliveries of one broadcast.
type Result struct {
	Sent   int
	Failed int
}

// Options tune delivery pacing.
type Options struct {
	// PerSecond caps deliveries per second; 0 disables pacing.
	PerSecond float64
	Burst     int
	// OnSend observes each delivery attempt.
	OnSend func(userID int64, err error)
}

// Broadcaster sends a text to every user of an audience snapshot.
type Broadcaster struct {
	audience Audience
	sender   Sender
	opts     Options
}

// New creates a Broadcaster.
func New(audience Audience, sender Sender, opts Options) *Broadcaster {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Broadcaster{audience: audience, sender: sender, opts: opts}
}

func (b *Broadcaster) limiter() *rate.Limiter {
	if b.opts.PerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, b.opts.Burst)
	}
	return rate.NewLimiter(rate.Limit(b.opts.PerSecond), b.opts.Burst)
}

// Broadcast sends text to each user known when the call starts. Individual
// failures are logged and counted. The returned error is non-nil only when
// ctx ends before every user was tried.
func (b *Broadcaster) Broadcast(ctx context.Context, text string) (Result, error) {
	targets := b.audience.UserIDs()
	lim := b.limiter()
	start := time.Now()

	var res Result
	for _, id := range targets {
		if err := lim.Wait(ctx); err != nil {
			b.logDone(ctx, res, len(targets), start, err)
			return res, err
		}
		err := b.sender.Send(ctx, id, text)
		if b.opts.OnSend != nil {
			b.opts.OnSend(id, err)
		}
		if err != nil {
			res.Failed++
			logger.Warn(ctx, "broadcast", "broadcast.send",
				slog.String("status", "fail"),
				slog.Int64("target", id),
				slog.String("err", err.Error()),
			)
			continue
		}
		res.Sent++
	}
	b.logDone(ctx, res, len(targets), start, nil)
	return res, nil
}

func (b *Broadcaster) logDone(ctx context.Context, res Result, targets int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int("targets", targets),
		slog.Int("sent", res.Sent),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs[0] = slog.String("status", "cancelled")
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, "broadcast", "broadcast.done", attrs...)
		return
	}
	logger.Info(ctx, "broadcast", "broadcast.done", attrs...)
}
