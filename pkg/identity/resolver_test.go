package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		want      Mode
	}{
		{
			name:      "interactive user",
			principal: Principal{Type: "user", Name: "alice@contoso.com"},
			want:      ModeUser,
		},
		{
			name:      "user type is case insensitive",
			principal: Principal{Type: "User"},
			want:      ModeUser,
		},
		{
			name:      "managed identity",
			principal: Principal{Type: "servicePrincipal", AssignedIdentityInfo: "MSIClient-1234"},
			want:      ModeManagedIdentity,
		},
		{
			name:      "system assigned managed identity",
			principal: Principal{Type: "servicePrincipal", AssignedIdentityInfo: "MSI"},
			want:      ModeManagedIdentity,
		},
		{
			name:      "service principal without identity info",
			principal: Principal{Type: "servicePrincipal"},
			want:      ModeServicePrincipal,
		},
		{
			name:      "user with identity info still resolves to user",
			principal: Principal{Type: "user", AssignedIdentityInfo: "MSI"},
			want:      ModeUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMode(tt.principal))
		})
	}
}

func TestModeFlags(t *testing.T) {
	assert.True(t, ModeUser.UseCLI())
	assert.False(t, ModeUser.UseMSI())

	assert.False(t, ModeManagedIdentity.UseCLI())
	assert.True(t, ModeManagedIdentity.UseMSI())

	assert.False(t, ModeServicePrincipal.UseCLI())
	assert.False(t, ModeServicePrincipal.UseMSI())
}

func TestModeValid(t *testing.T) {
	assert.True(t, ModeUser.Valid())
	assert.True(t, ModeManagedIdentity.Valid())
	assert.True(t, ModeServicePrincipal.Valid())
	assert.False(t, Mode("interactive").Valid())
	assert.False(t, Mode("").Valid())
}

// stubSource is a PrincipalSource returning a canned result.
type stubSource struct {
	principal Principal
	err       error
}

func (s stubSource) CurrentPrincipal(context.Context) (Principal, error) {
	return s.principal, s.err
}

func TestResolverResolve(t *testing.T) {
	r := NewResolver(stubSource{principal: Principal{Type: "user"}}, zap.NewNop())

	mode, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeUser, mode)
}

func TestResolverResolvePropagatesQueryFailure(t *testing.T) {
	queryErr := errors.New("az exploded")
	r := NewResolver(stubSource{err: queryErr}, zap.NewNop())

	_, err := r.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, queryErr)
}

func TestNewResolverDefaultsToAzureCLI(t *testing.T) {
	r := NewResolver(nil, zap.NewNop())
	assert.IsType(t, AzureCLISource{}, r.source)
}

func TestNewCredentialServicePrincipalRequiresSecret(t *testing.T) {
	_, err := NewCredential(ModeServicePrincipal, CredentialOptions{
		TenantID: "00000000-0000-0000-0000-000000000001",
		ClientID: "client-only",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingClientSecret)
}

func TestNewCredentialUnknownMode(t *testing.T) {
	_, err := NewCredential(Mode("bogus"), CredentialOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown authentication mode")
}

func TestMaskID(t *testing.T) {
	assert.Equal(t, "00000000...", MaskID("00000000-0000-0000-0000-000000000001"))
	assert.Equal(t, "****", MaskID("short"))
	assert.Equal(t, "****", MaskID(""))
}
