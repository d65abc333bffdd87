// Package rest provides an accountsync.IdentityProvider backed by the
// admin REST API of an external identity service.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

const defaultHTTPTimeout = 10 * time.Second

// Config holds the identity service connection configuration.
type Config struct {
	// BaseURL is the root of the admin API, e.g. "https://id.example.com/admin".
	BaseURL string

	// APIKey authenticates admin calls as a bearer token.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client
}

// Provider implements accountsync.IdentityProvider over the admin API.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new REST identity provider.
func New(config Config) (*Provider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Provider{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(config.APIKey),
		httpClient: httpClient,
	}, nil
}

type userPayload struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"metadata"`
}

type userListPayload struct {
	Users []userPayload `json:"users"`
}

// GetUserByEmail implements accountsync.IdentityProvider.
func (p *Provider) GetUserByEmail(ctx context.Context, email string) (*accountsync.Identity, error) {
	email = accountsync.NormalizeEmail(email)
	endpoint := fmt.Sprintf("%s/users?email=%s", p.baseURL, url.QueryEscape(email))

	body, status, err := p.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, accountsync.ErrIdentityNotFound
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d", accountsync.ErrIdentityUnavailable, status)
	}

	var list userListPayload
	if err := json.Unmarshal(body, &list); err != nil {
		// Some deployments return a single object instead of a list.
		var single userPayload
		if err := json.Unmarshal(body, &single); err != nil || single.ID == "" {
			return nil, fmt.Errorf("%w: unexpected lookup response", accountsync.ErrIdentityUnavailable)
		}
		return toIdentity(single), nil
	}

	for _, user := range list.Users {
		if accountsync.NormalizeEmail(user.Email) == email {
			return toIdentity(user), nil
		}
	}
	return nil, accountsync.ErrIdentityNotFound
}

// CreateUser implements accountsync.IdentityProvider.
func (p *Provider) CreateUser(ctx context.Context, email string, metadata map[string]interface{}) (*accountsync.Identity, error) {
	payload := map[string]interface{}{
		"email":         accountsync.NormalizeEmail(email),
		"email_confirm": true,
		"metadata":      metadata,
	}

	body, status, err := p.do(ctx, http.MethodPost, p.baseURL+"/users", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusConflict || status == http.StatusUnprocessableEntity {
		return nil, accountsync.ErrIdentityExists
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d", accountsync.ErrIdentityUnavailable, status)
	}

	var user userPayload
	if err := json.Unmarshal(body, &user); err != nil || user.ID == "" {
		return nil, fmt.Errorf("%w: unexpected create response", accountsync.ErrIdentityUnavailable)
	}
	return toIdentity(user), nil
}

// UpdateUserMetadata implements accountsync.IdentityProvider.
func (p *Provider) UpdateUserMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	endpoint := fmt.Sprintf("%s/users/%s", p.baseURL, url.PathEscape(id))
	payload := map[string]interface{}{"metadata": metadata}

	_, status, err := p.do(ctx, http.MethodPut, endpoint, payload)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return accountsync.ErrIdentityNotFound
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status %d", accountsync.ErrIdentityUnavailable, status)
	}
	return nil
}

// InviteByEmail implements accountsync.IdentityProvider.
func (p *Provider) InviteByEmail(ctx context.Context, email string, opts accountsync.InviteOptions) error {
	payload := map[string]interface{}{
		"email": accountsync.NormalizeEmail(email),
	}
	if opts.RedirectTo != "" {
		payload["redirect_to"] = opts.RedirectTo
	}
	if len(opts.Data) > 0 {
		payload["data"] = opts.Data
	}

	_, status, err := p.do(ctx, http.MethodPost, p.baseURL+"/invite", payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status %d", accountsync.ErrIdentityUnavailable, status)
	}
	return nil
}

// do executes one admin API round-trip and returns the response body and
// status. Transport failures map onto ErrIdentityUnavailable.
func (p *Provider) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, int, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", accountsync.ErrIdentityUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", accountsync.ErrIdentityUnavailable, err)
	}
	return body, res.StatusCode, nil
}

func toIdentity(user userPayload) *accountsync.Identity {
	return &accountsync.Identity{
		ID:       user.ID,
		Email:    accountsync.NormalizeEmail(user.Email),
		Metadata: user.Metadata,
	}
}
