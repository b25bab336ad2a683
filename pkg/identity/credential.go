package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"go.uber.org/zap"
)

// ErrMissingClientSecret indicates service principal mode without credentials.
var ErrMissingClientSecret = errors.New("service principal mode requires APP_CLIENT_ID and APP_CLIENT_SECRET")

// CredentialOptions carries the inputs for credential construction.
type CredentialOptions struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// NewCredential builds the token credential matching the resolved mode.
//
// The credential is an explicit object handed to every control-plane
// call; token caching and expiry are the SDK's concern.
func NewCredential(mode Mode, opts CredentialOptions) (azcore.TokenCredential, error) {
	switch mode {
	case ModeUser:
		cred, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
			TenantID: opts.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create azure cli credential: %w", err)
		}
		return cred, nil

	case ModeManagedIdentity:
		cred, err := azidentity.NewManagedIdentityCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", err)
		}
		return cred, nil

	case ModeServicePrincipal:
		if opts.ClientID == "" || opts.ClientSecret == "" {
			return nil, ErrMissingClientSecret
		}
		cred, err := azidentity.NewClientSecretCredential(opts.TenantID, opts.ClientID, opts.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client secret credential: %w", err)
		}
		return cred, nil

	default:
		return nil, fmt.Errorf("unknown authentication mode: %q", mode)
	}
}

// DescribeManagedIdentity logs the user-assigned identities present in the
// resource group so the operator can see which identity performs the
// destroy. Best-effort: every failure is swallowed after a debug log.
func DescribeManagedIdentity(ctx context.Context, cred azcore.TokenCredential, subscriptionID, resourceGroup string, logger *zap.Logger) {
	client, err := armmsi.NewUserAssignedIdentitiesClient(subscriptionID, cred, nil)
	if err != nil {
		logger.Debug("Managed identity lookup unavailable", zap.Error(err))
		return
	}

	pager := client.NewListByResourceGroupPager(resourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			logger.Debug("Managed identity lookup failed", zap.Error(err))
			return
		}
		for _, id := range page.Value {
			if id == nil || id.Name == nil {
				continue
			}
			clientID := ""
			if id.Properties != nil && id.Properties.ClientID != nil {
				clientID = MaskID(*id.Properties.ClientID)
			}
			logger.Info("User-assigned identity in scope",
				zap.String("identity", *id.Name),
				zap.String("client_id", clientID),
			)
		}
	}
}

// MaskID masks a client ID or GUID for logging.
func MaskID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:8] + "..."
}
