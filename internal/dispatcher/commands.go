package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/tempmailbot/internal/gate"
	"github.com/m3rciful/tempmailbot/internal/journal"
	"github.com/m3rciful/tempmailbot/internal/mailtm"
)

func (d *Dispatcher) start(userID int64) Reply {
	d.store.GetOrCreate(userID)
	return Reply{
		Text: fmt.Sprintf(textStart, d.channel),
		Actions: []Action{
			{Label: "Join channel", URL: channelURL(d.channel)},
			{Label: "Verify", Command: CmdVerify},
		},
	}
}

func channelURL(channel string) string {
	name := strings.TrimPrefix(strings.TrimSpace(channel), "@")
	if name == "" {
		return ""
	}
	return "https://t.me/" + name
}

func (d *Dispatcher) verify(ctx context.Context, userID int64) (Reply, error) {
	wasVerified := d.gate.IsVerified(userID)
	res, err := d.gate.CheckAndMarkVerified(ctx, userID)
	if err != nil {
		return Reply{}, &TransportError{Op: "get_chat_member", Err: err}
	}
	switch res {
	case gate.Verified:
		if !wasVerified {
			d.record(ctx, journal.Event{Kind: journal.KindUserVerified, UserID: userID})
		}
		return Reply{Text: textVerified}, nil
	case gate.NotMember:
		return Reply{Text: fmt.Sprintf(textNotMember, d.channel)}, nil
	}
	return Reply{}, &TransportError{Op: "get_chat_member", Err: fmt.Errorf("membership result %s", res)}
}

func (d *Dispatcher) requireVerified(userID int64) error {
	if !d.gate.IsVerified(userID) {
		return ErrNotVerified
	}
	return nil
}

func (d *Dispatcher) requireMailbox(userID int64) (address, token string, err error) {
	if err := d.requireVerified(userID); err != nil {
		return "", "", err
	}
	s := d.store.GetOrCreate(userID)
	if !s.HasMailbox() {
		return "", "", ErrNoMailbox
	}
	return s.MailboxAddress, s.MailboxToken, nil
}

// newMailbox provisions a mailbox on the first offered domain. The session
// is only updated after both account creation and token issue succeed.
func (d *Dispatcher) newMailbox(ctx context.Context, userID int64) (Reply, error) {
	if err := d.requireVerified(userID); err != nil {
		return Reply{}, err
	}

	domains, err := d.provider.ListDomains(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("list domains: %w", err)
	}
	if len(domains) == 0 {
		return Reply{}, fmt.Errorf("list domains: %w", mailtm.ErrNoDomains)
	}

	creds := mailtm.NewCredentials(domains[0], d.now())
	if _, err := d.provider.CreateAccount(ctx, creds); err != nil {
		return Reply{}, fmt.Errorf("create account: %w", err)
	}
	token, err := d.provider.IssueToken(ctx, creds)
	if err != nil {
		return Reply{}, fmt.Errorf("issue token: %w", err)
	}

	prev := d.store.GetOrCreate(userID)
	d.store.SetMailbox(userID, creds.Address, token)

	if prev.HasMailbox() {
		d.record(ctx, journal.Event{
			Kind:    journal.KindMailboxReplaced,
			UserID:  userID,
			Address: prev.MailboxAddress,
			Detail:  "replaced by " + creds.Address,
		})
	}
	d.record(ctx, journal.Event{Kind: journal.KindMailboxCreated, UserID: userID, Address: creds.Address})

	return Reply{
		Text: fmt.Sprintf(textNewMailbox, creds.Address),
		Actions: []Action{
			{Label: "Check inbox", Command: CmdCheck},
			{Label: "Delete", Command: CmdDelete},
		},
	}, nil
}

func (d *Dispatcher) checkInbox(ctx context.Context, userID int64) (Reply, error) {
	_, token, err := d.requireMailbox(userID)
	if err != nil {
		return Reply{}, err
	}
	msgs, err := d.provider.ListMessages(ctx, token)
	if err != nil {
		return Reply{}, fmt.Errorf("list messages: %w", err)
	}
	return Reply{Text: renderInbox(msgs, d.inboxPreview)}, nil
}

func (d *Dispatcher) deleteMailbox(ctx context.Context, userID int64) (Reply, error) {
	address, token, err := d.requireMailbox(userID)
	if err != nil {
		return Reply{}, err
	}
	if err := d.provider.DeleteAccount(ctx, address, token); err != nil {
		return Reply{}, fmt.Errorf("delete account: %w", err)
	}
	d.store.ClearMailbox(userID)
	d.record(ctx, journal.Event{Kind: journal.KindMailboxDeleted, UserID: userID, Address: address})
	return Reply{Text: textDeleted}, nil
}

// IsAdmin reports whether userID matches the configured admin id.
func (d *Dispatcher) IsAdmin(userID int64) bool {
	return d.adminID != "" && d.adminID == strconv.FormatInt(userID, 10)
}

func (d *Dispatcher) broadcast(ctx context.Context, userID int64, args string) (Reply, error) {
	if !d.IsAdmin(userID) {
		return Reply{}, ErrUnauthorized
	}
	text := strings.Join(strings.Fields(args), " ")
	if text == "" {
		return Reply{}, ErrEmptyBroadcast
	}

	// a cancelled broadcast still reports what was delivered
	res, _ := d.broadcaster.Broadcast(ctx, broadcastPrefix+text)
	d.record(ctx, journal.Event{
		Kind:   journal.KindBroadcastSent,
		UserID: userID,
		Detail: fmt.Sprintf("sent=%d failed=%d", res.Sent, res.Failed),
	})
	return Reply{Text: fmt.Sprintf(textBroadcastDone, res.Sent)}, nil
}
