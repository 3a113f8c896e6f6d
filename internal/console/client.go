// Package console is the developer-console API client: the entitlement
// services catalog, pending access requests, and project creation for
// template installs.
package console

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"stencil/internal/entitlement"
	"stencil/internal/models"
	apperrors "stencil/internal/pkg/errors"
)

// Client calls the console API. Catalog reads authenticate with the
// registry's own service token; pending-request lookups and project
// creation act on the caller's behalf with the caller's token.
type Client struct {
	baseURL string
	apiKey  string
	token   oauth2.TokenSource
	http    *http.Client
}

func New(baseURL, apiKey string, token oauth2.TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Services fetches the entitlement state of the comma-joined codes for an
// organization in one call. A payload that does not decode to a services
// array is a provider error carrying the raw body for diagnosis.
func (c *Client) Services(ctx context.Context, orgID, codes string) (*entitlement.ServicesResponse, error) {
	u := fmt.Sprintf("%s/orgs/%s/services?serviceCodes=%s",
		c.baseURL, url.PathEscape(orgID), url.QueryEscape(codes))

	body, err := c.do(ctx, http.MethodGet, u, "", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Services []entitlement.Service `json:"services"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.New(apperrors.CodeProvider, "entitlement provider returned malformed services payload").
			WithField("payload", string(body))
	}
	return &entitlement.ServicesResponse{Services: payload.Services, Raw: body}, nil
}

// PendingAppIDs returns the application ids with a PENDING access request
// for the calling user's organization.
func (c *Client) PendingAppIDs(ctx context.Context, userToken, orgID string) (map[string]struct{}, error) {
	u := fmt.Sprintf("%s/orgs/%s/access-requests?status=PENDING", c.baseURL, url.PathEscape(orgID))

	body, err := c.do(ctx, http.MethodGet, u, userToken, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		AccessRequests []struct {
			AppID  string `json:"appId"`
			Status string `json:"status"`
		} `json:"accessRequests"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.Wrap(err, "console.pending", "decode access requests")
	}

	ids := make(map[string]struct{}, len(payload.AccessRequests))
	for _, ar := range payload.AccessRequests {
		if ar.Status == "PENDING" {
			ids[ar.AppID] = struct{}{}
		}
	}
	return ids, nil
}

// ProjectRequest describes the developer-console project to create from a
// template during install.
type ProjectRequest struct {
	Name        string               `json:"name"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Credentials []models.Credential  `json:"credentials,omitempty"`
	APIs        []models.TemplateAPI `json:"apis,omitempty"`
}

// Project is the created developer-console project.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	OrgID string `json:"orgId"`
}

// CreateProject creates a console project wired with the template's
// credentials and required APIs, on the caller's behalf.
func (c *Client) CreateProject(ctx context.Context, userToken, orgID string, req ProjectRequest) (*Project, error) {
	u := fmt.Sprintf("%s/orgs/%s/projects", c.baseURL, url.PathEscape(orgID))

	body, err := c.do(ctx, http.MethodPost, u, userToken, req)
	if err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, apperrors.Wrap(err, "console.install", "decode created project")
	}
	if p.OrgID == "" {
		p.OrgID = orgID
	}
	return &p, nil
}

// do sends one request. An empty userToken means the registry's own
// service token is used instead.
func (c *Client) do(ctx context.Context, method, u, userToken string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, apperrors.Wrap(err, "console.do", "encode request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, apperrors.Wrap(err, "console.do", "build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", c.apiKey)

	bearer := userToken
	if bearer == "" {
		tok, err := c.token.Token()
		if err != nil {
			return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "console.do", "mint service token")
		}
		bearer = tok.AccessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "console.do", "console unreachable")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "console.do", "read response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, apperrors.Newf(apperrors.CodeProvider, "console http %d", res.StatusCode).
			WithField("payload", string(body))
	}
	return body, nil
}
