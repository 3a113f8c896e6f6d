// Package ims talks to the identity provider: bearer-token validation for
// inbound requests and minting of the registry's own service token for
// console API calls.
package ims

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "stencil/internal/pkg/errors"
)

// Claims describes a validated token. IsService marks client-credentials
// tokens, which carry no user behind them and bypass ownership checks.
type Claims struct {
	UserID    string
	ClientID  string
	IsService bool
}

// Verifier validates a bearer token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Client validates tokens against the identity provider's introspection
// endpoint.
type Client struct {
	issuerURL string
	clientID  string
	http      *http.Client
}

func NewClient(issuerURL, clientID string) *Client {
	return &Client{
		issuerURL: issuerURL,
		clientID:  clientID,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

type validateResponse struct {
	Valid bool `json:"valid"`
	Token struct {
		UserID   string `json:"user_id"`
		ClientID string `json:"client_id"`
	} `json:"token"`
}

// Verify introspects the token. It returns an unauthorized error for
// invalid or expired tokens and an unavailable error when the identity
// provider cannot be reached.
func (c *Client) Verify(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "missing bearer token")
	}

	u := fmt.Sprintf("%s/validate_token/v1?client_id=%s&type=access_token",
		c.issuerURL, url.QueryEscape(c.clientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "ims.verify", "build validate request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "ims.verify", "identity provider unreachable")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "ims.verify", "read validate response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.CodeUnauthorized, "token validation failed: http %d", res.StatusCode)
	}

	var vr validateResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, apperrors.Wrap(err, "ims.verify", "decode validate response")
	}
	if !vr.Valid {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid token")
	}

	return &Claims{
		UserID:    vr.Token.UserID,
		ClientID:  vr.Token.ClientID,
		IsService: vr.Token.UserID == "",
	}, nil
}

// ServiceTokenSource mints tokens for the registry's own identity via the
// client-credentials grant. The returned source caches and refreshes
// tokens automatically.
func ServiceTokenSource(ctx context.Context, issuerURL, clientID, clientSecret string, scopes []string) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     issuerURL + "/token/v4",
		Scopes:       scopes,
	}
	return cfg.TokenSource(ctx)
}
