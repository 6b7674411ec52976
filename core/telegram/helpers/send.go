package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/tempmailbot/core/logger"
	"github.com/m3rciful/tempmailbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	repliesKey  = "replies"
	keyboardKey = "kb"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// ReplyCounters reports how many replies the handler handed off for c and
// whether any of them carried an inline keyboard. Queued replies count once
// accepted, not once delivered.
func ReplyCounters(c tele.Context) (int, bool) {
	if c == nil {
		return 0, false
	}
	n, _ := c.Get(repliesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return n, kb
}

func countReply(c tele.Context, hasKB bool) {
	n, _ := c.Get(repliesKey).(int)
	c.Set(repliesKey, n+1)
	if hasKB {
		c.Set(keyboardKey, true)
	}
}

func sendAsync(c tele.Context, action string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	err := disp.Enqueue(ctx, action, "sendMessage", run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// SendText sends raw text (no parse mode) to the current recipient through
// the async dispatcher when one is installed.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	hasKB := sendOpts != nil && sendOpts.ReplyMarkup != nil

	err := sendAsync(c, "send.text", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
	if err == nil {
		countReply(c, hasKB)
	}
	return err
}
