package mailtm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoDomains means the provider offered no usable domain.
	ErrNoDomains = errors.New("no domains available")
	// ErrUnexpectedStatus means the provider answered with a status other than the expected one.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMissingToken means the token endpoint answered 200 without a token.
	ErrMissingToken = errors.New("token missing from response")
	// ErrMalformedResponse means the response body could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// ProviderError describes a failed provider call. Status is the HTTP status,
// or 0 when no response was received.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("mailtm %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mailtm %s: status %d: %v", e.Op, e.Status, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Code implements the err_code convention of the handler logs.
func (e *ProviderError) Code() string { return "provider_" + e.Op }

// Transport reports whether the request failed before a response arrived.
func (e *ProviderError) Transport() bool { return e.Status == 0 }

// Credentials is the address/password pair used to create a mailbox and to
// obtain its token.
type Credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

// NewCredentials builds credentials on domain. The address keeps the
// user<unix seconds>@domain shape; the password wraps a random (v4) UUID,
// 122 bits of entropy.
func NewCredentials(domain string, now time.Time) Credentials {
	return Credentials{
		Address:  "user" + strconv.FormatInt(now.Unix(), 10) + "@" + domain,
		Password: "pass" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// Account is the provider's view of a created mailbox.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Message is an inbox entry summary.
type Message struct {
	ID      string
	From    string
	Subject string
}
