package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are wrapped in the admin check and kept out of the menu.
	AdminOnly bool
	Hidden    bool
	// Button marks commands that inline keyboard buttons may trigger.
	Button bool
}
