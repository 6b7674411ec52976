package app

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/tempmailbot/core/telegram"
	"github.com/m3rciful/tempmailbot/core/telegram/callbacks"
	"github.com/m3rciful/tempmailbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/tempmailbot/core/telegram/helpers"
	"github.com/m3rciful/tempmailbot/core/telegram/keyboard"
	"github.com/m3rciful/tempmailbot/internal/dispatcher"
)

// callbackCommand is the callback unique key of command buttons; the
// payload is the command name.
const callbackCommand = "cmd"

var commandDescriptions = map[string]string{
	dispatcher.CmdStart:     "Show welcome and instructions",
	dispatcher.CmdVerify:    "Verify channel membership",
	dispatcher.CmdNew:       "Create a new temporary email",
	dispatcher.CmdCheck:     "Check your inbox",
	dispatcher.CmdDelete:    "Delete your temporary email",
	dispatcher.CmdBroadcast: "Send a message to all users",
}

func (a *App) registerHandlers(reg *tg.Registry) error {
	for _, name := range dispatcher.Commands() {
		admin := name == dispatcher.CmdBroadcast
		err := reg.RegisterCommand("/"+name, commands.Command{
			Handler:     a.commandHandler(name),
			Description: commandDescriptions[name],
			AdminOnly:   admin,
			Hidden:      admin,
			Button:      !admin,
		})
		if err != nil {
			return err
		}
	}
	return reg.RegisterCallback(callbackCommand, a.buttonHandler(reg))
}

func (a *App) commandHandler(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		var args string
		if m := c.Message(); m != nil {
			args = m.Payload
		}
		return a.dispatch(c, name, args)
	}
}

// buttonHandler runs the command named by the button payload when the
// registry allows it from a button.
func (a *App) buttonHandler(reg *tg.Registry) tele.HandlerFunc {
	return func(c tele.Context) error {
		name := dispatcher.NormalizeName(callbacks.CallbackPayload(c))
		if _, cmd, ok := reg.LookupCommand(name); !ok || !cmd.Button {
			return a.UnknownCallback()(c)
		}
		return a.dispatch(c, name, "")
	}
}

func (a *App) dispatch(c tele.Context, name, args string) error {
	ctx := tghelpers.WithHandler(c, name)
	reply := a.dispatcher.Dispatch(ctx, dispatcher.Command{
		Name:     name,
		Args:     args,
		CallerID: tghelpers.CallerID(c),
	})
	return sendReply(c, reply)
}

func sendReply(c tele.Context, reply dispatcher.Reply) error {
	if len(reply.Actions) == 0 {
		return tghelpers.SendText(c, reply.Text)
	}
	return tghelpers.SendText(c, reply.Text, &tele.SendOptions{ReplyMarkup: actionsMarkup(reply.Actions)})
}

// actionsMarkup renders actions as a two-column inline keyboard.
func actionsMarkup(actions []dispatcher.Action) *tele.ReplyMarkup {
	buttons := make([]keyboard.InlineBtn, 0, len(actions))
	for _, act := range actions {
		btn := keyboard.InlineBtn{Text: act.Label, URL: act.URL}
		if act.URL == "" {
			btn.Unique = callbackCommand
			btn.Data = act.Command
		}
		buttons = append(buttons, btn)
	}
	return keyboard.InlineButtonsNPerRow(buttons, 2)
}

// UnknownText answers unregistered slash commands with a hint and ignores
// other chatter.
func (a *App) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		text := strings.TrimSpace(c.Text())
		if !strings.HasPrefix(text, "/") {
			return nil
		}
		name, args, _ := strings.Cut(text, " ")
		return a.dispatch(c, name, args)
	}
}

// UnknownCallback drops stale or foreign buttons; the callback router has
// already answered the query.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(tele.Context) error { return nil }
}
