package dispatcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/tempmailbot/internal/mailtm"
)

const (
	textStart = "Welcome to Temp Mail Bot! 📧\n" +
		"Please join our channel %s to use the bot.\n" +
		"After joining, use /verify to activate the bot.\n" +
		"Commands: /new, /check, /delete"
	textVerified      = "Verification successful! 🎉\nYou can now use: /new, /check, /delete"
	textNotMember     = "Please join %s first, then use /verify again."
	textVerifyFailed  = "Error: Could not verify. Ensure you joined %s and try again."
	textNotVerified   = "Please join %s and use /verify to activate the bot."
	textNoMailbox     = "No email found. Use /new to create one."
	textNewMailbox    = "Your new temporary email is: %s"
	textNoDomains     = "Error: No domains available."
	textCreateFailed  = "Error: Could not create email."
	textAuthFailed    = "Error: Could not authenticate email."
	textNewFailed     = "Error: Something went wrong. Try again."
	textInboxEmpty    = "Your inbox is empty."
	textInboxHeader   = "Inbox:\n"
	textInboxEntry    = "From: %s\nSubject: %s\n\n"
	textCheckFailed   = "Error: Could not check inbox."
	textDeleted       = "Email deleted successfully."
	textDeleteFailed  = "Error: Could not delete email."
	textDeleteBroken  = "Error: Something went wrong."
	textUnauthorized  = "You are not authorized to use this command."
	textBroadcastHelp = "Please provide a message to broadcast. Usage: /broadcast <message>"
	textBroadcastDone = "Broadcast sent to %d users."
	textUnknown       = "Unknown command. Use /start to see what this bot can do."
	textInternal      = "Error: Something went wrong."

	broadcastPrefix = "Admin Broadcast: "
)

// render turns a command failure into the reply text shown to the user.
func (d *Dispatcher) render(command string, err error) string {
	switch {
	case errors.Is(err, ErrNotVerified):
		return fmt.Sprintf(textNotVerified, d.channel)
	case errors.Is(err, ErrNoMailbox):
		return textNoMailbox
	case errors.Is(err, ErrUnauthorized):
		return textUnauthorized
	case errors.Is(err, ErrEmptyBroadcast):
		return textBroadcastHelp
	case errors.Is(err, ErrUnknownCommand):
		return textUnknown
	}

	var te *TransportError
	if errors.As(err, &te) && command == CmdVerify {
		return fmt.Sprintf(textVerifyFailed, d.channel)
	}

	var pe *mailtm.ProviderError
	isProvider := errors.As(err, &pe)
	switch command {
	case CmdNew:
		switch {
		case errors.Is(err, mailtm.ErrNoDomains):
			return textNoDomains
		case !isProvider || pe.Transport():
			return textNewFailed
		case pe.Op == mailtm.OpCreateAccount:
			return textCreateFailed
		case pe.Op == mailtm.OpIssueToken:
			return textAuthFailed
		}
		return textNewFailed
	case CmdCheck:
		return textCheckFailed
	case CmdDelete:
		if isProvider && !pe.Transport() {
			return textDeleteFailed
		}
		return textDeleteBroken
	}
	return textInternal
}

func renderInbox(msgs []mailtm.Message, limit int) string {
	if len(msgs) == 0 {
		return textInboxEmpty
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	var b strings.Builder
	b.WriteString(textInboxHeader)
	for _, m := range msgs {
		fmt.Fprintf(&b, textInboxEntry, m.From, m.Subject)
	}
	return b.String()
}
