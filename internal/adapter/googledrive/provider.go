package googledrive

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/jun/drivegate/internal/adapter"
)

// AccessTokens returns a usable access token for a user, refreshing it
// first when needed.
type AccessTokens interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// Provider implements adapter.DriveProvider for Google Drive.
type Provider struct {
	tokens    AccessTokens
	endpoint  string
	uploadURL string
	base      *http.Client
}

var _ adapter.DriveProvider = (*Provider)(nil)

// NewProvider creates a Provider. endpoint and uploadURL may be empty to
// use Google's public endpoints; base may be nil to use the default client.
func NewProvider(tokens AccessTokens, endpoint, uploadURL string, base *http.Client) *Provider {
	return &Provider{tokens: tokens, endpoint: endpoint, uploadURL: uploadURL, base: base}
}

// ForUser returns a DriveAdapter authorised as userID.
func (p *Provider) ForUser(ctx context.Context, userID string) (adapter.DriveAdapter, error) {
	token, err := p.tokens.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	if p.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))

	d, err := NewDriveAdapter(ctx, client, p.endpoint, p.uploadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive adapter: %w", err)
	}
	return d, nil
}
