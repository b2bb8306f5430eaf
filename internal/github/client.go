// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// MaxPerPage is the largest page size the GitHub REST API accepts.
	MaxPerPage = 100

	defaultTimeout = 30 * time.Second
)

// PageRequest selects one page of a list endpoint. Page is 1-based.
type PageRequest struct {
	Page    int
	PerPage int
}

// Page is one page of results. The API signals the last page only by returning
// fewer items than requested, so EndOfStream compares against the request.
type Page[T any] struct {
	Items   []T
	Request PageRequest
}

// EndOfStream reports whether no further pages exist.
func (p Page[T]) EndOfStream() bool {
	return len(p.Items) < p.Request.PerPage
}

// Client is a wrapper around the go-github client bound to one access token.
type Client struct {
	gh      *github.Client
	logger  *slog.Logger
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL points the client at a GitHub Enterprise or test server instead of api.github.com.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		c.gh.BaseURL = u
		return nil
	}
}

// WithRateLimit throttles outgoing requests to rps per second. Zero or less disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) error {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
		return nil
	}
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = defaultTimeout

	c := &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetUser fetches the profile of the authenticated user.
func (c *Client) GetUser(ctx context.Context) (*github.User, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, classify("get user", err)
	}
	return user, nil
}

// ListUserOrgs lists one page of the authenticated user's organizations.
func (c *Client) ListUserOrgs(ctx context.Context, req PageRequest) (Page[*github.Organization], error) {
	return list(ctx, c, "list user orgs", req, func(opts github.ListOptions) ([]*github.Organization, *github.Response, error) {
		return c.gh.Organizations.List(ctx, "", &opts)
	})
}

// ListOrgRepos lists one page of an organization's repositories.
func (c *Client) ListOrgRepos(ctx context.Context, org string, req PageRequest) (Page[*github.Repository], error) {
	return list(ctx, c, "list org repos", req, func(opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return c.gh.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{ListOptions: opts})
	})
}

// ListUserRepos lists one page of the repositories the authenticated user can access.
func (c *Client) ListUserRepos(ctx context.Context, req PageRequest) (Page[*github.Repository], error) {
	return list(ctx, c, "list user repos", req, func(opts github.ListOptions) ([]*github.Repository, *github.Response, error) {
		return c.gh.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{ListOptions: opts})
	})
}

// ListOrgMembers lists one page of an organization's members.
func (c *Client) ListOrgMembers(ctx context.Context, org string, req PageRequest) (Page[*github.User], error) {
	return list(ctx, c, "list org members", req, func(opts github.ListOptions) ([]*github.User, *github.Response, error) {
		return c.gh.Organizations.ListMembers(ctx, org, &github.ListMembersOptions{ListOptions: opts})
	})
}

// ListCommits lists one page of a repository's commits.
func (c *Client) ListCommits(ctx context.Context, owner, repo string, req PageRequest) (Page[*github.RepositoryCommit], error) {
	return list(ctx, c, "list commits", req, func(opts github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
		return c.gh.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{ListOptions: opts})
	})
}

// ListPulls lists one page of a repository's pull requests in every state.
func (c *Client) ListPulls(ctx context.Context, owner, repo string, req PageRequest) (Page[*github.PullRequest], error) {
	return list(ctx, c, "list pulls", req, func(opts github.ListOptions) ([]*github.PullRequest, *github.Response, error) {
		return c.gh.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{State: "all", ListOptions: opts})
	})
}

// ListIssues lists one page of a repository's issues in every state.
// The API includes pull requests in this listing; callers filter them.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, req PageRequest) (Page[*github.Issue], error) {
	return list(ctx, c, "list issues", req, func(opts github.ListOptions) ([]*github.Issue, *github.Response, error) {
		return c.gh.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{State: "all", ListOptions: opts})
	})
}

// ListIssueEvents lists one page of a repository's issue events.
func (c *Client) ListIssueEvents(ctx context.Context, owner, repo string, req PageRequest) (Page[*github.IssueEvent], error) {
	return list(ctx, c, "list issue events", req, func(opts github.ListOptions) ([]*github.IssueEvent, *github.Response, error) {
		return c.gh.Issues.ListRepositoryEvents(ctx, owner, repo, &opts)
	})
}

func list[T any](ctx context.Context, c *Client, op string, req PageRequest, call func(github.ListOptions) ([]T, *github.Response, error)) (Page[T], error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PerPage < 1 || req.PerPage > MaxPerPage {
		req.PerPage = MaxPerPage
	}
	if err := c.wait(ctx); err != nil {
		return Page[T]{Request: req}, err
	}

	c.logger.Debug("Fetching page", "op", op, "page", req.Page, "per_page", req.PerPage)
	items, _, err := call(github.ListOptions{Page: req.Page, PerPage: req.PerPage})
	if err != nil {
		return Page[T]{Request: req}, classify(op, err)
	}
	return Page[T]{Items: items, Request: req}, nil
}
