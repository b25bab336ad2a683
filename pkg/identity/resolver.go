// Package identity resolves the caller's authentication mode.
//
// The mode decides which credential flags are forwarded to the
// provisioning backend and which token credential talks to the Fabric
// control plane:
//   - an interactive user authenticates through the Azure CLI
//   - a CI agent with an assigned managed identity uses MSI
//   - anything else is treated as a service principal
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Mode is the resolved authentication mode for the run.
type Mode string

const (
	// ModeUser is an interactive user authenticated via the Azure CLI.
	ModeUser Mode = "user"
	// ModeManagedIdentity is a managed identity assigned to the host.
	ModeManagedIdentity Mode = "managedIdentity"
	// ModeServicePrincipal is a service principal with client credentials.
	ModeServicePrincipal Mode = "servicePrincipal"
)

// Valid checks if the mode is valid.
func (m Mode) Valid() bool {
	switch m {
	case ModeUser, ModeManagedIdentity, ModeServicePrincipal:
		return true
	}
	return false
}

// UseCLI reports whether the provisioning backend should authenticate
// through the Azure CLI.
func (m Mode) UseCLI() bool {
	return m == ModeUser
}

// UseMSI reports whether the provisioning backend should authenticate
// through the managed identity endpoint.
func (m Mode) UseMSI() bool {
	return m == ModeManagedIdentity
}

// Errors.
var (
	ErrPrincipalQueryFailed = errors.New("failed to query current principal")
	ErrNoActiveAccount      = errors.New("no active account - run az login first")
)

// principalTypeUser is the account type reported for interactive users.
const principalTypeUser = "user"

// Principal describes the currently authenticated identity as reported
// by the identity provider.
type Principal struct {
	// Name is the signed-in principal name (UPN or client ID).
	Name string `json:"name"`
	// Type is the principal type ("user" or "servicePrincipal").
	Type string `json:"type"`
	// AssignedIdentityInfo is non-empty when the principal is a
	// managed identity (e.g. "MSI" or "MSIClient-<id>").
	AssignedIdentityInfo string `json:"assignedIdentityInfo"`
}

// ResolveMode derives the authentication mode from a principal.
// Pure function of (type, assigned-identity info presence).
func ResolveMode(p Principal) Mode {
	if strings.EqualFold(p.Type, principalTypeUser) {
		return ModeUser
	}
	if p.AssignedIdentityInfo != "" {
		return ModeManagedIdentity
	}
	return ModeServicePrincipal
}

// PrincipalSource queries the active principal from the identity provider.
type PrincipalSource interface {
	CurrentPrincipal(ctx context.Context) (Principal, error)
}

// AzureCLISource reads the active principal from the Azure CLI.
type AzureCLISource struct{}

// accountShow mirrors the relevant part of `az account show` output.
type accountShow struct {
	User Principal `json:"user"`
}

// CurrentPrincipal shells out to `az account show`. A failure here means
// there is no usable login, which is fatal for the whole run.
func (AzureCLISource) CurrentPrincipal(ctx context.Context) (Principal, error) {
	cmd := exec.CommandContext(ctx, "az", "account", "show", "--output", "json")
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return Principal{}, fmt.Errorf("%w: %v", ErrPrincipalQueryFailed, err)
		}
		return Principal{}, fmt.Errorf("%w: %s", ErrPrincipalQueryFailed, detail)
	}

	var account accountShow
	if err := json.Unmarshal(stdout.Bytes(), &account); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrPrincipalQueryFailed, err)
	}

	if account.User.Type == "" {
		return Principal{}, ErrNoActiveAccount
	}

	return account.User, nil
}

// Resolver determines the run's authentication mode.
type Resolver struct {
	source PrincipalSource
	logger *zap.Logger
}

// NewResolver creates a resolver backed by the given principal source.
// A nil source defaults to the Azure CLI.
func NewResolver(source PrincipalSource, logger *zap.Logger) *Resolver {
	if source == nil {
		source = AzureCLISource{}
	}
	return &Resolver{
		source: source,
		logger: logger,
	}
}

// Resolve queries the active principal and derives the mode.
// Query failures are propagated; there is no fallback mode.
func (r *Resolver) Resolve(ctx context.Context) (Mode, error) {
	principal, err := r.source.CurrentPrincipal(ctx)
	if err != nil {
		return "", err
	}

	mode := ResolveMode(principal)

	r.logger.Info("Resolved authentication mode",
		zap.String("principal_type", principal.Type),
		zap.String("mode", string(mode)),
		zap.Bool("use_cli", mode.UseCLI()),
		zap.Bool("use_msi", mode.UseMSI()),
	)

	return mode, nil
}
