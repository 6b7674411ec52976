package telegram

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/tempmailbot/core/telegram/commands"
)

func noop(tele.Context) error { return nil }

type fakeMenu struct {
	got []tele.Command
	err error
}

func (f *fakeMenu) SetCommands(opts ...any) error {
	if len(opts) > 0 {
		f.got, _ = opts[0].([]tele.Command)
	}
	return f.err
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start"}))
	require.NoError(t, reg.RegisterCommand("/new", commands.Command{Handler: noop, Description: "New mailbox"}))
	require.NoError(t, reg.RegisterCommand("/broadcast", commands.Command{Handler: noop, Description: "Broadcast", AdminOnly: true, Hidden: true}))
	assert.ErrorContains(t, reg.RegisterCommand("check", commands.Command{Handler: noop, Description: "missing slash"}), "no_slash_prefix")
	assert.ErrorContains(t, reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "again"}), "duplicate")
	assert.ErrorContains(t, reg.RegisterCommand("/delete", commands.Command{Description: "no handler"}), "invalid")

	assert.Len(t, reg.Commands(), 3)

	key, cmd, ok := reg.LookupCommand("new")
	require.True(t, ok)
	assert.Equal(t, "/new", key)
	assert.Equal(t, "New mailbox", cmd.Description)

	_, _, ok = reg.LookupCommand("/check")
	assert.False(t, ok)

	menu := &fakeMenu{}
	SetupCommands(menu, reg)
	assert.Equal(t, []tele.Command{
		{Text: "new", Description: "New mailbox"},
		{Text: "start", Description: "Start"},
	}, menu.got)

	assert.NotPanics(t, func() { SetupCommands(&fakeMenu{err: errors.New("401")}, reg) })
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("cmd", noop))
	assert.Error(t, reg.RegisterCallback("cmd", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	h, ok := reg.GetCallback("cmd")
	assert.True(t, ok)
	assert.NotNil(t, h)
	assert.Equal(t, []string{"cmd"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}
