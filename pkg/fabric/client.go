// Package fabric provides a minimal Microsoft Fabric control-plane client.
//
// Teardown only needs the connections surface: list all connections
// visible to the caller, match one by display name, delete it. Lookup is
// by name rather than a persisted identifier so a re-run after lost state
// still finds (or cleanly misses) the connection.
package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"go.uber.org/zap"
)

// Constants for the Fabric REST API.
const (
	// DefaultBaseURL is the Fabric control-plane endpoint.
	DefaultBaseURL = "https://api.fabric.microsoft.com/v1"
	// TokenScope is the audience for control-plane tokens.
	TokenScope = "https://api.fabric.microsoft.com/.default"
	// RequestTimeout bounds a single API call.
	RequestTimeout = 60 * time.Second
	// MaxListPages bounds the connections listing against a control
	// plane that keeps handing out continuation pages.
	MaxListPages = 100
)

// Errors.
var (
	ErrAuthFailed     = errors.New("control-plane authentication failed")
	ErrListFailed     = errors.New("failed to list connections")
	ErrDeleteFailed   = errors.New("failed to delete connection")
	ErrDeleteRejected = errors.New("connection delete rejected by control plane")
)

// Connection is a connection record as returned by the control plane.
type Connection struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// connectionPage is one page of the connections listing.
type connectionPage struct {
	Value           []Connection `json:"value"`
	ContinuationURI string       `json:"continuationUri"`
}

// Client calls the Fabric control-plane REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cred       azcore.TokenCredential
	logger     *zap.Logger
}

// Options configures the client. Zero value uses production defaults.
type Options struct {
	// BaseURL overrides the control-plane endpoint.
	BaseURL string
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// NewClient creates a Fabric client using the given credential.
func NewClient(cred azcore.TokenCredential, logger *zap.Logger, opts *Options) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: RequestTimeout},
		cred:       cred,
		logger:     logger,
	}
	if opts != nil {
		if opts.BaseURL != "" {
			c.baseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
	}
	return c
}

// token acquires a bearer token for the control-plane audience. The token
// is requested per call; caching and refresh are the credential's concern.
func (c *Client) token(ctx context.Context) (string, error) {
	tk, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{TokenScope},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return tk.Token, nil
}

// ListConnections returns every connection visible to the caller,
// following continuation pages. A repeated continuation URI or more than
// MaxListPages pages is treated as a listing failure.
func (c *Client) ListConnections(ctx context.Context) ([]Connection, error) {
	var all []Connection

	seen := make(map[string]bool)
	url := c.baseURL + "/connections"
	for url != "" {
		if seen[url] {
			return nil, fmt.Errorf("%w: continuation loop at %s", ErrListFailed, url)
		}
		if len(seen) >= MaxListPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrListFailed, MaxListPages)
		}
		seen[url] = true

		page, err := c.listPage(ctx, url)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Value...)
		url = page.ContinuationURI
	}

	c.logger.Debug("Listed connections", zap.Int("count", len(all)))
	return all, nil
}

// listPage fetches a single page of the connections listing.
func (c *Client) listPage(ctx context.Context, url string) (*connectionPage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrListFailed, resp.StatusCode, truncate(body))
	}

	var page connectionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	return &page, nil
}

// FindConnectionIDByName returns the id of the first connection whose
// display name matches exactly, or empty string when there is no match.
// Zero matches is not an error; it means there is nothing to delete.
func (c *Client) FindConnectionIDByName(ctx context.Context, name string) (string, error) {
	connections, err := c.ListConnections(ctx)
	if err != nil {
		return "", err
	}

	for _, conn := range connections {
		if conn.DisplayName == name {
			return conn.ID, nil
		}
	}

	return "", nil
}

// DeleteConnection deletes the connection with the given id. The control
// plane returns an empty body on success; any non-empty body is treated
// as a rejection and surfaced as ErrDeleteRejected.
func (c *Client) DeleteConnection(ctx context.Context, id string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	url := c.baseURL + "/connections/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	if len(body) > 0 {
		return fmt.Errorf("%w: %s", ErrDeleteRejected, truncate(body))
	}

	c.logger.Info("Deleted connection", zap.String("connection_id", id))
	return nil
}

// truncate bounds response bodies embedded in error messages.
func truncate(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
