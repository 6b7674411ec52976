package app

import (
	"context"
	"errors"
	"sync"

	tele "gopkg.in/telebot.v4"

	tgsender "github.com/m3rciful/tempmailbot/core/telegram/sender"
	"github.com/m3rciful/tempmailbot/internal/gate"
)

var errNotAttached = errors.New("telegram transport: bot not attached")

// botAPI is the part of *tele.Bot the transport needs.
type botAPI interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// channelRecipient addresses a public channel by its @username.
type channelRecipient string

func (r channelRecipient) Recipient() string { return string(r) }

// Transport adapts the running bot to the membership gate and the
// broadcaster. It is usable once Attach has been called.
type Transport struct {
	mu     sync.RWMutex
	bot    botAPI
	sender *tgsender.Dispatcher
}

// Attach binds the live bot and its outbound dispatcher.
func (t *Transport) Attach(bot botAPI, sender *tgsender.Dispatcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bot = bot
	t.sender = sender
}

func (t *Transport) current() (botAPI, *tgsender.Dispatcher, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, nil, errNotAttached
	}
	return t.bot, t.sender, nil
}

// MemberStatus implements gate.MembershipChecker.
func (t *Transport) MemberStatus(_ context.Context, channel string, userID int64) (gate.MemberStatus, error) {
	bot, _, err := t.current()
	if err != nil {
		return "", err
	}
	member, err := bot.ChatMemberOf(channelRecipient(channel), &tele.User{ID: userID})
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", errors.New("telegram transport: empty chat member")
	}
	return gate.MemberStatus(member.Role), nil
}

// Send implements broadcast.Sender. Delivery goes through the outbound
// dispatcher when one is attached so it shares its logging and metrics.
func (t *Transport) Send(ctx context.Context, userID int64, text string) error {
	bot, sender, err := t.current()
	if err != nil {
		return err
	}
	run := func() error {
		_, err := bot.Send(tele.ChatID(userID), text)
		return err
	}
	if sender == nil {
		return run()
	}
	return sender.Do(ctx, "broadcast.send", "sendMessage", run)
}
