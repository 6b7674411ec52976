package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/tempmailbot/internal/broadcast"
	"github.com/m3rciful/tempmailbot/internal/gate"
	"github.com/m3rciful/tempmailbot/internal/journal"
	"github.com/m3rciful/tempmailbot/internal/mailtm"
	"github.com/m3rciful/tempmailbot/internal/metrics"
	"github.com/m3rciful/tempmailbot/internal/session"
)

const (
	testChannel = "@tmchan"
	testAdmin   = "1000"
	userID      = int64(42)
)

var fixedNow = time.Unix(1700000000, 0)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ListDomains(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	domains, _ := args.Get(0).([]string)
	return domains, args.Error(1)
}

func (m *mockProvider) CreateAccount(ctx context.Context, creds mailtm.Credentials) (mailtm.Account, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(mailtm.Account), args.Error(1)
}

func (m *mockProvider) IssueToken(ctx context.Context, creds mailtm.Credentials) (string, error) {
	args := m.Called(ctx, creds)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) ListMessages(ctx context.Context, token string) ([]mailtm.Message, error) {
	args := m.Called(ctx, token)
	msgs, _ := args.Get(0).([]mailtm.Message)
	return msgs, args.Error(1)
}

func (m *mockProvider) DeleteAccount(ctx context.Context, address, token string) error {
	return m.Called(ctx, address, token).Error(0)
}

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) MemberStatus(ctx context.Context, channel string, userID int64) (gate.MemberStatus, error) {
	args := m.Called(ctx, channel, userID)
	return args.Get(0).(gate.MemberStatus), args.Error(1)
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, text string) (broadcast.Result, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(broadcast.Result), args.Error(1)
}

type recordingJournal struct {
	mu     sync.Mutex
	events []journal.Event
	err    error
}

func (j *recordingJournal) Record(_ context.Context, ev journal.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return j.err
}

func (j *recordingJournal) Ping(context.Context) error { return nil }

func (j *recordingJournal) kinds() []journal.Kind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]journal.Kind, 0, len(j.events))
	for _, ev := range j.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	d           *Dispatcher
	store       *session.Store
	provider    *mockProvider
	checker     *mockChecker
	broadcaster *mockBroadcaster
	journal     *recordingJournal
	metrics     *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       session.NewStore(),
		provider:    new(mockProvider),
		checker:     new(mockChecker),
		broadcaster: new(mockBroadcaster),
		journal:     &recordingJournal{},
		metrics:     metrics.New(prometheus.NewRegistry()),
	}
	d, err := New(Options{
		Store:       f.store,
		Gate:        gate.New(f.store, f.checker, testChannel),
		Provider:    f.provider,
		Broadcaster: f.broadcaster,
		Journal:     f.journal,
		Metrics:     f.metrics,
		Channel:     testChannel,
		AdminID:     testAdmin,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.d = d
	return f
}

func (f *fixture) dispatch(name, args string, caller int64) Reply {
	return f.d.Dispatch(context.Background(), Command{Name: name, Args: args, CallerID: caller})
}

func (f *fixture) verified(id int64) {
	f.store.GetOrCreate(id)
	f.store.SetVerified(id)
}

func providerErr(op string, status int, err error) error {
	return &mailtm.ProviderError{Op: op, Status: status, Err: err}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestStart(t *testing.T) {
	f := newFixture(t)
	reply := f.dispatch("/start", "", userID)

	assert.Equal(t, "Welcome to Temp Mail Bot! 📧\n"+
		"Please join our channel @tmchan to use the bot.\n"+
		"After joining, use /verify to activate the bot.\n"+
		"Commands: /new, /check, /delete", reply.Text)
	assert.Equal(t, []Action{
		{Label: "Join channel", URL: "https://t.me/tmchan"},
		{Label: "Verify", Command: CmdVerify},
	}, reply.Actions)

	s, ok := f.store.Get(userID)
	require.True(t, ok)
	assert.False(t, s.Verified)
	assert.False(t, s.HasMailbox())
}

func TestVerify(t *testing.T) {
	t.Run("member", func(t *testing.T) {
		f := newFixture(t)
		f.checker.On("MemberStatus", mock.Anything, testChannel, userID).Return(gate.StatusMember, nil)

		assert.Equal(t, "Verification successful! 🎉\nYou can now use: /new, /check, /delete", f.dispatch("verify", "", userID).Text)
		f.dispatch("verify", "", userID)

		assert.True(t, f.store.GetOrCreate(userID).Verified)
		assert.Equal(t, []journal.Kind{journal.KindUserVerified}, f.journal.kinds())
	})
	t.Run("not member", func(t *testing.T) {
		f := newFixture(t)
		f.checker.On("MemberStatus", mock.Anything, testChannel, userID).Return(gate.MemberStatus("left"), nil)

		assert.Equal(t, "Please join @tmchan first, then use /verify again.", f.dispatch("verify", "", userID).Text)
		assert.False(t, f.store.GetOrCreate(userID).Verified)
	})
	t.Run("query failed", func(t *testing.T) {
		f := newFixture(t)
		f.checker.On("MemberStatus", mock.Anything, testChannel, userID).Return(gate.MemberStatus(""), errors.New("chat not found"))

		assert.Equal(t, "Error: Could not verify. Ensure you joined @tmchan and try again.", f.dispatch("verify", "", userID).Text)
		assert.False(t, f.store.GetOrCreate(userID).Verified)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("verify", "transport_error")))
	})
}

func TestMailboxCommandsRequireVerification(t *testing.T) {
	for _, name := range []string{CmdNew, CmdCheck, CmdDelete} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			assert.Equal(t, "Please join @tmchan and use /verify to activate the bot.", f.dispatch(name, "", userID).Text)
			f.provider.AssertNotCalled(t, "ListDomains", mock.Anything)
			f.provider.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
			f.provider.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestNewMailbox(t *testing.T) {
	f := newFixture(t)
	f.verified(userID)
	creds := mock.MatchedBy(func(c mailtm.Credentials) bool {
		return c.Address == "user1700000000@example.com" && len(c.Password) == 36
	})
	f.provider.On("ListDomains", mock.Anything).Return([]string{"example.com", "example.org"}, nil)
	f.provider.On("CreateAccount", mock.Anything, creds).Return(mailtm.Account{ID: "a1", Address: "user1700000000@example.com"}, nil)
	f.provider.On("IssueToken", mock.Anything, creds).Return("tok-1", nil)

	reply := f.dispatch("new", "", userID)

	assert.Equal(t, "Your new temporary email is: user1700000000@example.com", reply.Text)
	assert.Equal(t, []Action{
		{Label: "Check inbox", Command: CmdCheck},
		{Label: "Delete", Command: CmdDelete},
	}, reply.Actions)
	s := f.store.GetOrCreate(userID)
	assert.Equal(t, "user1700000000@example.com", s.MailboxAddress)
	assert.Equal(t, "tok-1", s.MailboxToken)
	assert.Equal(t, []journal.Kind{journal.KindMailboxCreated}, f.journal.kinds())
	f.provider.AssertExpectations(t)

	// the password used for the token matches the one used for the account
	createCreds := f.provider.Calls[1].Arguments.Get(1).(mailtm.Credentials)
	tokenCreds := f.provider.Calls[2].Arguments.Get(1).(mailtm.Credentials)
	assert.Equal(t, createCreds, tokenCreds)
}

func TestNewMailboxReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	f.verified(userID)
	f.store.SetMailbox(userID, "old@example.com", "old-token")
	f.provider.On("ListDomains", mock.Anything).Return([]string{"example.com"}, nil)
	f.provider.On("CreateAccount", mock.Anything, mock.Anything).Return(mailtm.Account{}, nil)
	f.provider.On("IssueToken", mock.Anything, mock.Anything).Return("new-token", nil)

	f.dispatch("new", "", userID)

	assert.Equal(t, "new-token", f.store.GetOrCreate(userID).MailboxToken)
	require.Equal(t, []journal.Kind{journal.KindMailboxReplaced, journal.KindMailboxCreated}, f.journal.kinds())
	assert.Equal(t, "old@example.com", f.journal.events[0].Address)
	f.provider.AssertNotCalled(t, "DeleteAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewMailboxFailures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(p *mockProvider)
		want  string
	}{
		{
			name: "no domains",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return(nil, providerErr(mailtm.OpListDomains, http.StatusOK, mailtm.ErrNoDomains))
			},
			want: "Error: No domains available.",
		},
		{
			name: "empty domain list",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return([]string{}, nil)
			},
			want: "Error: No domains available.",
		},
		{
			name: "domains unreachable",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return(nil, providerErr(mailtm.OpListDomains, 0, errors.New("dial tcp: refused")))
			},
			want: "Error: Something went wrong. Try again.",
		},
		{
			name: "create rejected",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return([]string{"example.com"}, nil)
				p.On("CreateAccount", mock.Anything, mock.Anything).Return(mailtm.Account{}, providerErr(mailtm.OpCreateAccount, 422, mailtm.ErrUnexpectedStatus))
			},
			want: "Error: Could not create email.",
		},
		{
			name: "token rejected",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return([]string{"example.com"}, nil)
				p.On("CreateAccount", mock.Anything, mock.Anything).Return(mailtm.Account{}, nil)
				p.On("IssueToken", mock.Anything, mock.Anything).Return("", providerErr(mailtm.OpIssueToken, 401, mailtm.ErrUnexpectedStatus))
			},
			want: "Error: Could not authenticate email.",
		},
		{
			name: "token transport failure",
			setup: func(p *mockProvider) {
				p.On("ListDomains", mock.Anything).Return([]string{"example.com"}, nil)
				p.On("CreateAccount", mock.Anything, mock.Anything).Return(mailtm.Account{}, nil)
				p.On("IssueToken", mock.Anything, mock.Anything).Return("", providerErr(mailtm.OpIssueToken, 0, context.DeadlineExceeded))
			},
			want: "Error: Something went wrong. Try again.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.verified(userID)
			f.store.SetMailbox(userID, "keep@example.com", "keep-token")
			tc.setup(f.provider)

			assert.Equal(t, tc.want, f.dispatch("new", "", userID).Text)

			s := f.store.GetOrCreate(userID)
			assert.Equal(t, "keep@example.com", s.MailboxAddress)
			assert.Equal(t, "keep-token", s.MailboxToken)
			assert.Empty(t, f.journal.kinds())
		})
	}
}

func TestCheckInbox(t *testing.T) {
	t.Run("no mailbox", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		assert.Equal(t, "No email found. Use /new to create one.", f.dispatch("check", "", userID).Text)
	})
	t.Run("empty", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		f.provider.On("ListMessages", mock.Anything, "tok").Return([]mailtm.Message{}, nil)
		assert.Equal(t, "Your inbox is empty.", f.dispatch("check", "", userID).Text)
	})
	t.Run("first five", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		var msgs []mailtm.Message
		for i := 1; i <= 7; i++ {
			msgs = append(msgs, mailtm.Message{From: fmt.Sprintf("s%d@x.io", i), Subject: fmt.Sprintf("subject %d", i)})
		}
		f.provider.On("ListMessages", mock.Anything, "tok").Return(msgs, nil)

		want := "Inbox:\n"
		for i := 1; i <= 5; i++ {
			want += fmt.Sprintf("From: s%d@x.io\nSubject: subject %d\n\n", i, i)
		}
		assert.Equal(t, want, f.dispatch("check", "", userID).Text)
	})
	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		f.provider.On("ListMessages", mock.Anything, "tok").Return(nil, providerErr(mailtm.OpListMessages, 401, mailtm.ErrUnexpectedStatus))
		assert.Equal(t, "Error: Could not check inbox.", f.dispatch("check", "", userID).Text)
		assert.True(t, f.store.GetOrCreate(userID).HasMailbox())
	})
}

func TestDeleteMailbox(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		f.provider.On("DeleteAccount", mock.Anything, "a@x.io", "tok").Return(nil)

		assert.Equal(t, "Email deleted successfully.", f.dispatch("delete", "", userID).Text)
		assert.False(t, f.store.GetOrCreate(userID).HasMailbox())
		assert.Equal(t, []journal.Kind{journal.KindMailboxDeleted}, f.journal.kinds())
		assert.Equal(t, "No email found. Use /new to create one.", f.dispatch("delete", "", userID).Text)
	})
	t.Run("rejected", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		f.provider.On("DeleteAccount", mock.Anything, "a@x.io", "tok").Return(providerErr(mailtm.OpDeleteAccount, 404, mailtm.ErrUnexpectedStatus))

		assert.Equal(t, "Error: Could not delete email.", f.dispatch("delete", "", userID).Text)
		assert.True(t, f.store.GetOrCreate(userID).HasMailbox())
	})
	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t)
		f.verified(userID)
		f.store.SetMailbox(userID, "a@x.io", "tok")
		f.provider.On("DeleteAccount", mock.Anything, "a@x.io", "tok").Return(providerErr(mailtm.OpDeleteAccount, 0, errors.New("EOF")))

		assert.Equal(t, "Error: Something went wrong.", f.dispatch("delete", "", userID).Text)
		assert.True(t, f.store.GetOrCreate(userID).HasMailbox())
	})
}

func TestBroadcast(t *testing.T) {
	t.Run("non admin is rejected before args are checked", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "You are not authorized to use this command.", f.dispatch("broadcast", "", userID).Text)
		assert.Equal(t, "You are not authorized to use this command.", f.dispatch("broadcast", "hi", userID).Text)
		f.broadcaster.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	})
	t.Run("usage", func(t *testing.T) {
		f := newFixture(t)
		assert.Equal(t, "Please provide a message to broadcast. Usage: /broadcast <message>", f.dispatch("broadcast", "   ", 1000).Text)
	})
	t.Run("sent", func(t *testing.T) {
		f := newFixture(t)
		f.broadcaster.On("Broadcast", mock.Anything, "Admin Broadcast: hello world").Return(broadcast.Result{Sent: 3, Failed: 1}, nil)

		assert.Equal(t, "Broadcast sent to 3 users.", f.dispatch("broadcast", " hello   world ", 1000).Text)
		f.broadcaster.AssertNumberOfCalls(t, "Broadcast", 1)
		require.Equal(t, []journal.Kind{journal.KindBroadcastSent}, f.journal.kinds())
		assert.Equal(t, "sent=3 failed=1", f.journal.events[0].Detail)
	})
	t.Run("cancelled reports partial count", func(t *testing.T) {
		f := newFixture(t)
		f.broadcaster.On("Broadcast", mock.Anything, "Admin Broadcast: x").Return(broadcast.Result{Sent: 1}, context.Canceled)
		assert.Equal(t, "Broadcast sent to 1 users.", f.dispatch("broadcast", "x", 1000).Text)
	})
	t.Run("empty admin id denies everyone", func(t *testing.T) {
		f := newFixture(t)
		f.d.adminID = ""
		assert.Equal(t, "You are not authorized to use this command.", f.dispatch("broadcast", "x", 0).Text)
		assert.False(t, f.d.IsAdmin(0))
	})
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Unknown command. Use /start to see what this bot can do.", f.dispatch("/help", "", userID).Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("unknown", "unknown")))
}

func TestEveryCommandCreatesSession(t *testing.T) {
	f := newFixture(t)
	f.broadcaster.On("Broadcast", mock.Anything, "Admin Broadcast: hi").Return(broadcast.Result{}, nil)

	f.dispatch("broadcast", "hi", 99)
	f.dispatch("foo", "", 98)
	f.dispatch("broadcast", "hi", 1000)

	for _, id := range []int64{99, 98, 1000} {
		_, ok := f.store.Get(id)
		assert.True(t, ok, "user %d", id)
	}
	assert.Equal(t, []int64{98, 99, 1000}, f.store.UserIDs())
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.KnownUsers))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "new", NormalizeName("/New@TempMailBot"))
	assert.Equal(t, "check", NormalizeName(" check "))
	assert.Equal(t, "", NormalizeName("/"))
}

func TestJournalFailureDoesNotChangeReply(t *testing.T) {
	f := newFixture(t)
	f.journal.err = errors.New("db down")
	f.verified(userID)
	f.store.SetMailbox(userID, "a@x.io", "tok")
	f.provider.On("DeleteAccount", mock.Anything, "a@x.io", "tok").Return(nil)

	assert.Equal(t, "Email deleted successfully.", f.dispatch("delete", "", userID).Text)
}

// slowProvider tracks how many inbox reads run at once.
type slowProvider struct {
	mockProvider
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *slowProvider) ListMessages(context.Context, string) ([]mailtm.Message, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return nil, nil
}

func TestMailboxCommandsAreSerializedPerUser(t *testing.T) {
	f := newFixture(t)
	p := &slowProvider{}
	f.d.provider = p
	f.verified(userID)
	f.store.SetMailbox(userID, "a@x.io", "tok")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.dispatch("check", "", userID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), p.peak.Load())
}
