// Package mailtm is a small client for the mail.tm disposable mailbox API.
// Every call is a single HTTP request; nothing is retried.
package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/tempmailbot/core/logger"
	"github.com/m3rciful/tempmailbot/core/netutil"
)

// Operation names used in errors, logs and metrics.
const (
	OpListDomains   = "list_domains"
	OpCreateAccount = "create_account"
	OpIssueToken    = "issue_token"
	OpListMessages  = "list_messages"
	OpDeleteAccount = "delete_account"
)

const maxBodyBytes = 1 << 20

// Observer receives the outcome of every provider call. status is 0 when no
// response was received.
type Observer func(op string, status int, elapsed time.Duration, err error)

// Client talks to a mail.tm compatible API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithObserver installs a per-call observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client for baseURL, e.g. https://api.mail.tm.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: netutil.NewTransport(netutil.TransportOptions{}),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type hydraList[T any] struct {
	Members []T `json:"hydra:member"`
}

type domainItem struct {
	Domain string `json:"domain"`
}

type messageItem struct {
	ID   string `json:"id"`
	From struct {
		Address string `json:"address"`
	} `json:"from"`
	Subject string `json:"subject"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// ListDomains returns the domains new accounts can be created on.
// An empty list, a non-2xx status or an unreadable body yield a
// *ProviderError wrapping ErrNoDomains.
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	var out hydraList[domainItem]
	status, err := c.do(ctx, OpListDomains, http.MethodGet, "/domains", "", nil, &out)
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) && pe.Status != 0 {
			pe.Err = fmt.Errorf("%w: %v", ErrNoDomains, pe.Err)
		}
		return nil, err
	}
	domains := make([]string, 0, len(out.Members))
	for _, d := range out.Members {
		if d.Domain != "" {
			domains = append(domains, d.Domain)
		}
	}
	if len(domains) == 0 {
		return nil, &ProviderError{Op: OpListDomains, Status: status, Err: ErrNoDomains}
	}
	return domains, nil
}

// CreateAccount registers a mailbox. Only 201 Created counts as success.
func (c *Client) CreateAccount(ctx context.Context, creds Credentials) (Account, error) {
	var acc Account
	status, err := c.do(ctx, OpCreateAccount, http.MethodPost, "/accounts", "", creds, &acc)
	if err != nil {
		return Account{}, err
	}
	if status != http.StatusCreated {
		return Account{}, &ProviderError{Op: OpCreateAccount, Status: status, Err: ErrUnexpectedStatus}
	}
	if acc.Address == "" {
		acc.Address = creds.Address
	}
	return acc, nil
}

// IssueToken exchanges credentials for a bearer token. Only 200 OK with a
// non-empty token counts as success.
func (c *Client) IssueToken(ctx context.Context, creds Credentials) (string, error) {
	var out tokenResponse
	status, err := c.do(ctx, OpIssueToken, http.MethodPost, "/token", "", creds, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ProviderError{Op: OpIssueToken, Status: status, Err: ErrUnexpectedStatus}
	}
	if out.Token == "" {
		return "", &ProviderError{Op: OpIssueToken, Status: status, Err: ErrMissingToken}
	}
	return out.Token, nil
}

// ListMessages returns the inbox of the mailbox owning token, newest first as
// ordered by the provider.
func (c *Client) ListMessages(ctx context.Context, token string) ([]Message, error) {
	var out hydraList[messageItem]
	if _, err := c.do(ctx, OpListMessages, http.MethodGet, "/messages", token, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(out.Members))
	for _, m := range out.Members {
		msgs = append(msgs, Message{ID: m.ID, From: m.From.Address, Subject: m.Subject})
	}
	return msgs, nil
}

// DeleteAccount removes the mailbox. Only 204 No Content counts as success.
func (c *Client) DeleteAccount(ctx context.Context, address, token string) error {
	status, err := c.do(ctx, OpDeleteAccount, http.MethodDelete, "/accounts/"+url.PathEscape(address), token, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return &ProviderError{Op: OpDeleteAccount, Status: status, Err: ErrUnexpectedStatus}
	}
	return nil
}

// do performs one request. Transport failures come back as a *ProviderError
// with Status 0. For GET requests a non-2xx status or an undecodable body is
// also an error; for other methods the caller judges the status itself and
// decoding is best effort.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, result any) (status int, err error) {
	start := time.Now()
	defer func() {
		c.observe(ctx, op, status, time.Since(start), err)
	}()

	var reader io.Reader
	if body != nil {
		data, mErr := json.Marshal(body)
		if mErr != nil {
			return 0, &ProviderError{Op: op, Err: fmt.Errorf("marshal request: %w", mErr)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, &ProviderError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/ld+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, &ProviderError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	status = resp.StatusCode

	strict := method == http.MethodGet
	if strict && (status < 200 || status >= 300) {
		return status, &ProviderError{Op: op, Status: status, Err: ErrUnexpectedStatus}
	}
	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		if strict && result != nil {
			return status, &ProviderError{Op: op, Status: status, Err: ErrMalformedResponse}
		}
		return status, nil
	}
	if uErr := json.Unmarshal(data, result); uErr != nil && strict {
		return status, &ProviderError{Op: op, Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, uErr)}
	}
	return status, nil
}

func (c *Client) observe(ctx context.Context, op string, status int, elapsed time.Duration, err error) {
	if c.observer != nil {
		c.observer(op, status, elapsed, err)
	}
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("op", op),
		slog.Int("http_code", status),
		slog.Duration("duration", elapsed),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, "mailtm", "provider.call", attrs...)
		return
	}
	logger.Debug(ctx, "mailtm", "provider.call", attrs...)
}
