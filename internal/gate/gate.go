// Package gate unlocks mailbox commands for users who joined the required channel.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/tempmailbot/core/logger"
	"github.com/m3rciful/tempmailbot/internal/session"
)

// MemberStatus is the membership status reported by the messaging platform.
type MemberStatus string

// Statuses that count as membership.
const (
	StatusCreator       MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
)

// IsMember reports whether s grants access.
func (s MemberStatus) IsMember() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	}
	return false
}

// MembershipChecker looks up a user's status in a channel.
type MembershipChecker interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (MemberStatus, error)
}

// Result is the outcome of a verification attempt.
type Result int

const (
	// Verified means the user is a member and is now marked verified.
	Verified Result = iota
	// NotMember means the status lookup worked but the user has not joined.
	NotMember
	// QueryFailed means the status lookup itself failed.
	QueryFailed
)

func (r Result) String() string {
	switch r {
	case Verified:
		return "verified"
	case NotMember:
		return "not_member"
	case QueryFailed:
		return "query_failed"
	}
	return "unknown"
}

// QueryError wraps a failed membership lookup.
type QueryError struct {
	Channel string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("membership query for %s: %v", e.Channel, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Code implements the err_code convention of the handler logs.
func (e *QueryError) Code() string { return "membership_query" }

// Gate checks channel membership and records verification in the store.
type Gate struct {
	store   *session.Store
	checker MembershipChecker
	channel string
}

// New returns a Gate for the given channel (e.g. "@news").
func New(store *session.Store, checker MembershipChecker, channel string) *Gate {
	return &Gate{store: store, checker: checker, channel: channel}
}

// Channel returns the channel users must join.
func (g *Gate) Channel() string {
	return g.channel
}

// CheckAndMarkVerified queries the user's membership and marks the session
// verified when the user is a member. The session is left untouched on
// NotMember and QueryFailed; the latter also returns a *QueryError.
func (g *Gate) CheckAndMarkVerified(ctx context.Context, userID int64) (Result, error) {
	g.store.GetOrCreate(userID)

	status, err := g.checker.MemberStatus(ctx, g.channel, userID)
	if err != nil {
		logger.Warn(ctx, "gate", "verify.query",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("channel", g.channel),
			slog.String("err", err.Error()),
		)
		return QueryFailed, &QueryError{Channel: g.channel, Err: err}
	}

	if !status.IsMember() {
		logger.Info(ctx, "gate", "verify.check",
			slog.String("status", "denied"),
			slog.Int64("user_id", userID),
			slog.String("member_status", string(status)),
		)
		return NotMember, nil
	}

	g.store.SetVerified(userID)
	logger.Info(ctx, "gate", "verify.check",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("member_status", string(status)),
	)
	return Verified, nil
}

// IsVerified reports whether the user has ever passed verification.
func (g *Gate) IsVerified(userID int64) bool {
	return g.store.GetOrCreate(userID).Verified
}
