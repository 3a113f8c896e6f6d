package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Issue{Number: 12, Title: gotPayload["title"].(string), HTMLURL: "https://github.com/acme/reviews/issues/12"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/reviews", "gh-token", nil)
	issue, err := c.CreateIssue(context.Background(), "org1/starter", "https://github.com/org1/starter")
	require.NoError(t, err)

	assert.Equal(t, "/repos/acme/reviews/issues", gotPath)
	assert.Equal(t, "Bearer gh-token", gotAuth)
	assert.Equal(t, "Template review request: org1/starter", gotPayload["title"])
	assert.Contains(t, gotPayload["body"], "https://github.com/org1/starter")
	assert.Equal(t, 12, issue.Number)
	assert.Equal(t, "https://github.com/acme/reviews/issues/12", issue.HTMLURL)
}

func TestCreateIssueTrackerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/reviews", "gh-token", nil)
	_, err := c.CreateIssue(context.Background(), "x", "https://github.com/x/y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestOpenIssueMatchesByTitle(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, reviewLabel, r.URL.Query().Get("labels"))
		json.NewEncoder(w).Encode([]Issue{
			{Number: 1, Title: "Template review request: other", HTMLURL: "https://x/1"},
			{Number: 2, Title: "Template review request: org1/starter", HTMLURL: "https://x/2"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/reviews", "", nil)

	issue, err := c.OpenIssue(context.Background(), "org1/starter")
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, 2, issue.Number)

	issue, err = c.OpenIssue(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, issue)

	// Without a cache every lookup hits the tracker.
	assert.Equal(t, 2, calls)
}

func TestOpenIssueTrackerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "acme/reviews", "", nil)
	_, err := c.OpenIssue(context.Background(), "x")
	assert.Error(t, err)
}
