// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"repo-trend-tracker/internal/model"
)

// DocumentStatus is the outcome of a conditional README fetch.
type DocumentStatus int

const (
	// DocumentUpdated means a fresh payload was returned.
	DocumentUpdated DocumentStatus = iota
	// DocumentNotModified means the stored validator still matches.
	DocumentNotModified
	// DocumentNotFound means the repository has no README.
	DocumentNotFound
	// DocumentUnavailable covers every other outcome (network, 5xx, rate limit).
	DocumentUnavailable
)

func (s DocumentStatus) String() string {
	switch s {
	case DocumentUpdated:
		return "updated"
	case DocumentNotModified:
		return "not_modified"
	case DocumentNotFound:
		return "not_found"
	default:
		return "unavailable"
	}
}

// SearchQuery describes one repository search request.
type SearchQuery struct {
	Query   string
	Page    int
	PerPage int
}

// SearchItem is a single search hit.
type SearchItem struct {
	ID       int64
	FullName string
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// NewClientWithHTTP builds a Client on top of an existing http.Client, without authentication.
func NewClientWithHTTP(hc *http.Client, logger *slog.Logger) *Client {
	return &Client{
		gh:     github.NewClient(hc),
		logger: logger,
	}
}

// SetBaseURL points the client at a different API root (GitHub Enterprise, test servers).
func (c *Client) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid GitHub API URL %q: %w", raw, err)
	}
	c.gh.BaseURL = u
	return nil
}

// SearchRepositories fetches one page of repository search results sorted by stars, descending.
func (c *Client) SearchRepositories(ctx context.Context, q SearchQuery) ([]SearchItem, error) {
	c.logger.Debug("Searching repositories", "query", q.Query, "page", q.Page)

	opts := &github.SearchOptions{
		Sort:  "stars",
		Order: "desc",
		ListOptions: github.ListOptions{
			Page:    q.Page,
			PerPage: q.PerPage,
		},
	}
	result, _, err := c.gh.Search.Repositories(ctx, q.Query, opts)
	if err != nil {
		return nil, err
	}

	items := make([]SearchItem, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		items = append(items, SearchItem{ID: r.GetID(), FullName: r.GetFullName()})
	}
	return items, nil
}

// GetRepository fetches repository details and translates them to our internal model.
// A response without a repository id is reported as nil metadata.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RepoMetadata, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if repo == nil || repo.GetID() == 0 {
		return nil, nil
	}
	return toRepoMetadata(repo), nil
}

// GetReadme conditionally fetches the repository README. When etag is non-empty it is
// sent as If-None-Match. The returned error is only informational: callers act on the status.
func (c *Client) GetReadme(ctx context.Context, owner, name, etag string) (*model.Document, DocumentStatus, error) {
	req, err := c.gh.NewRequest(http.MethodGet, fmt.Sprintf("repos/%v/%v/readme", owner, name), nil)
	if err != nil {
		return nil, DocumentUnavailable, err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	content := new(github.RepositoryContent)
	resp, err := c.gh.Do(ctx, req, content)
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotModified:
			return nil, DocumentNotModified, nil
		case http.StatusNotFound:
			return nil, DocumentNotFound, nil
		}
	}
	if err != nil {
		return nil, DocumentUnavailable, err
	}

	raw := ""
	if content.Content != nil {
		raw = *content.Content
	}
	return &model.Document{
		Content:  raw,
		Encoding: content.GetEncoding(),
		SHA:      content.GetSHA(),
		ETag:     resp.Header.Get("ETag"),
	}, DocumentUpdated, nil
}

// toRepoMetadata translates a github.Repository object to our internal model.RepoMetadata.
func toRepoMetadata(r *github.Repository) *model.RepoMetadata {
	return &model.RepoMetadata{
		ID:          r.GetID(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		OwnerLogin:  r.GetOwner().GetLogin(),
		URL:         r.GetHTMLURL(),
		Description: r.GetDescription(),
		Language:    r.GetLanguage(),
		StarCount:   r.GetStargazersCount(),
		CreatedAt:   timestampPtr(r.CreatedAt),
		PushedAt:    timestampPtr(r.PushedAt),
		UpdatedAt:   timestampPtr(r.UpdatedAt),
	}
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
