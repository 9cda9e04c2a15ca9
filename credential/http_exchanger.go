package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-gateway/core"
)

const (
	defaultExchangeTimeout = 15 * time.Second
	maxExchangeBodyBytes   = 1 << 20
)

// HTTPExchanger performs an OAuth2 client-credentials exchange against the
// configured token endpoint.
type HTTPExchanger struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	DefaultTTL   time.Duration
	Client       *http.Client
	Now          func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func NewHTTPExchanger(cfg core.CredentialConfig) (*HTTPExchanger, error) {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		return nil, fmt.Errorf("credential: token_url is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("credential: client_id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("credential: client_secret is required")
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &HTTPExchanger{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		DefaultTTL:   ttl,
		Client:       &http.Client{Timeout: defaultExchangeTimeout},
		Now:          time.Now,
	}, nil
}

func (e *HTTPExchanger) Exchange(ctx context.Context) (core.Lease, error) {
	if e == nil {
		return core.Lease{}, fmt.Errorf("credential: exchanger is nil")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", e.ClientID)
	form.Set("client_secret", e.ClientSecret)
	if len(e.Scopes) > 0 {
		form.Set("scope", strings.Join(e.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.Lease{}, fmt.Errorf("credential: token request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: defaultExchangeTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return core.Lease{}, fmt.Errorf("credential: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExchangeBodyBytes))
	if err != nil {
		return core.Lease{}, fmt.Errorf("credential: token response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.Lease{}, fmt.Errorf("credential: token endpoint returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return core.Lease{}, fmt.Errorf("credential: token response decode failed: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.Lease{}, fmt.Errorf("credential: token response has no access token")
	}

	now := e.now()
	ttl := e.DefaultTTL
	if token.ExpiresIn > 0 {
		ttl = time.Duration(token.ExpiresIn) * time.Second
	}
	return core.Lease{
		Token:     token.AccessToken,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

func (e *HTTPExchanger) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

var _ Exchanger = (*HTTPExchanger)(nil)
