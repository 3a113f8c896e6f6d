// Package review manages template review issues on the registry's issue
// tracker. Every new submission gets an open issue; the issue closing is
// how a human reviewer approves or rejects the template.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "stencil/internal/pkg/errors"
)

const reviewLabel = "template-review"

// Issue is the subset of the tracker's issue shape the registry reads.
type Issue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
}

// Client talks to the GitHub issues API for one repository.
type Client struct {
	apiURL string
	repo   string
	token  string
	cache  *Cache
	http   *http.Client
}

// NewClient creates a review client for the "owner/name" repo. cache may
// be nil, in which case every open-issue lookup hits the tracker.
func NewClient(apiURL, repo, token string, cache *Cache) *Client {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &Client{
		apiURL: apiURL,
		repo:   repo,
		token:  token,
		cache:  cache,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

func issueTitle(templateName string) string {
	return "Template review request: " + templateName
}

// CreateIssue opens a review issue for a newly submitted template.
func (c *Client) CreateIssue(ctx context.Context, templateName, repoURL string) (*Issue, error) {
	payload := map[string]any{
		"title":  issueTitle(templateName),
		"body":   fmt.Sprintf("Review requested for template `%s`.\n\nSource: %s", templateName, repoURL),
		"labels": []string{reviewLabel},
	}
	b, _ := json.Marshal(payload)

	u := fmt.Sprintf("%s/repos/%s/issues", c.apiURL, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, apperrors.Wrap(err, "review.create", "build issue request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "review.create", "issue tracker unreachable")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "review.create", "read issue response")
	}
	if res.StatusCode != http.StatusCreated {
		return nil, apperrors.Newf(apperrors.CodeUnavailable, "issue tracker http %d", res.StatusCode).
			WithField("payload", string(body))
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, apperrors.Wrap(err, "review.create", "decode issue")
	}
	return &issue, nil
}

// OpenIssue returns the open review issue for a template, or nil when the
// template has none.
func (c *Client) OpenIssue(ctx context.Context, templateName string) (*Issue, error) {
	issues, err := c.openIssues(ctx)
	if err != nil {
		return nil, err
	}
	want := issueTitle(templateName)
	for i := range issues {
		if issues[i].Title == want {
			return &issues[i], nil
		}
	}
	return nil, nil
}

func (c *Client) openIssues(ctx context.Context) ([]Issue, error) {
	if c.cache != nil {
		if issues, ok := c.cache.Get(ctx); ok {
			return issues, nil
		}
	}

	u := fmt.Sprintf("%s/repos/%s/issues?state=open&labels=%s&per_page=100", c.apiURL, c.repo, reviewLabel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, "review.list", "build list request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "review.list", "issue tracker unreachable")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "review.list", "read list response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.CodeUnavailable, "issue tracker http %d", res.StatusCode).
			WithField("payload", string(body))
	}

	var issues []Issue
	if err := json.Unmarshal(body, &issues); err != nil {
		return nil, apperrors.Wrap(err, "review.list", "decode issues")
	}

	if c.cache != nil {
		c.cache.Put(ctx, issues)
	}
	return issues, nil
}
