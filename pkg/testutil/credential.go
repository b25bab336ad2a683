// Package testutil provides shared test doubles.
//
// Doubles return canned results without Azure or Fabric connectivity and
// record calls for assertions.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// ErrMockAuthFailed is returned when the mock is configured to fail.
var ErrMockAuthFailed = errors.New("mock authentication failed")

// MockCredential implements azcore.TokenCredential with fake tokens.
// Thread-safe; records every GetToken call.
type MockCredential struct {
	mu sync.Mutex

	token      string
	shouldFail bool
	calls      []TokenCall
}

// TokenCall records a single GetToken invocation.
type TokenCall struct {
	Scopes    []string
	Timestamp time.Time
}

// NewMockCredential creates a credential issuing the given token value.
func NewMockCredential(token string) *MockCredential {
	return &MockCredential{token: token}
}

// Fail configures all subsequent GetToken calls to fail.
func (c *MockCredential) Fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldFail = true
}

// Calls returns a copy of the recorded GetToken invocations.
func (c *MockCredential) Calls() []TokenCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TokenCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// GetToken implements azcore.TokenCredential.
func (c *MockCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, TokenCall{
		Scopes:    append([]string(nil), opts.Scopes...),
		Timestamp: time.Now(),
	})

	if c.shouldFail {
		return azcore.AccessToken{}, ErrMockAuthFailed
	}

	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(time.Hour),
	}, nil
}
