package helpers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tempmailbot/core/telegram/sender"
)

type stubContext struct {
	tele.Context
	mu    sync.Mutex
	store map[string]any
	sent  []string
	done  chan struct{}
}

func newStubContext() *stubContext {
	return &stubContext{store: map[string]any{}, done: make(chan struct{}, 4)}
}

func (c *stubContext) Update() tele.Update { return tele.Update{ID: 7} }
func (c *stubContext) Sender() *tele.User  { return &tele.User{ID: 42} }
func (c *stubContext) Chat() *tele.Chat    { return &tele.Chat{ID: 42} }
func (c *stubContext) Get(key string) any  { return c.store[key] }
func (c *stubContext) Set(key string, v any) {
	c.store[key] = v
}

func (c *stubContext) Send(what any, _ ...any) error {
	c.mu.Lock()
	c.sent = append(c.sent, what.(string))
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func TestSendTextCountsReplies(t *testing.T) {
	SetDispatcher(nil)
	c := newStubContext()

	require.NoError(t, SendText(c, "plain"))
	n, kb := ReplyCounters(c)
	assert.Equal(t, 1, n)
	assert.False(t, kb)

	markup := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{{Text: "Check", Unique: "cmd", Data: "check"}}}}
	require.NoError(t, SendText(c, "buttons", &tele.SendOptions{ReplyMarkup: markup}))
	n, kb = ReplyCounters(c)
	assert.Equal(t, 2, n)
	assert.True(t, kb)
	assert.Equal(t, []string{"plain", "buttons"}, c.sent)
}

func TestSendTextCountsAtEnqueue(t *testing.T) {
	d := sender.NewDispatcher(sender.Options{Workers: 1})
	SetDispatcher(d)
	t.Cleanup(func() {
		SetDispatcher(nil)
		d.Close()
	})

	c := newStubContext()
	require.NoError(t, SendText(c, "queued"))

	n, _ := ReplyCounters(c)
	assert.Equal(t, 1, n)
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []string{"queued"}, c.sent)
}

func TestBuildContextCachesMetadata(t *testing.T) {
	c := newStubContext()
	ctx := BuildContext(c)

	cached, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, ctx, cached)
	assert.Equal(t, int64(42), CallerID(c))
	assert.NotEqual(t, context.Background(), ctx)
}
