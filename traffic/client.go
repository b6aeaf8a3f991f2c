// Package traffic fetches daily clone and view statistics from the GitHub
// traffic API, one repository at a time with a per-repository token.
package traffic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// Config carries the client's operational knobs.
type Config struct {
	// APIBaseURL overrides the public GitHub API endpoint. Empty selects
	// the default.
	APIBaseURL string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// MaxAttempts is the total attempt budget per call for transient
	// failures, including the first try.
	MaxAttempts int
	// RetryBaseDelay is the backoff before the first retry; it doubles on
	// each subsequent one.
	RetryBaseDelay time.Duration
}

// Client fetches traffic series. Tokens differ per repository, so the
// authenticated transport is assembled per call on top of a shared
// rate-limit-aware base transport.
type Client struct {
	baseURL        *url.URL
	timeout        time.Duration
	maxAttempts    int
	retryBaseDelay time.Duration
	transport      http.RoundTripper
}

// New creates a traffic client. Zero config fields fall back to defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}

	var baseURL *url.URL
	if cfg.APIBaseURL != "" {
		u, err := url.Parse(cfg.APIBaseURL)
		if err != nil {
			return nil, models.NewError(models.KindConfiguration, "parse API base URL", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		baseURL = u
	}

	// The waiter sleeps through secondary rate limits; the cap keeps a
	// single sleep well inside the invocation timeout.
	waiter, err := github_ratelimit.NewRateLimitWaiter(nil,
		github_ratelimit.WithSingleSleepLimit(time.Minute, nil))
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "create rate limit waiter", err)
	}

	logger.Info("Initializing traffic client",
		zap.String("base_url", cfg.APIBaseURL),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_attempts", cfg.MaxAttempts))

	return &Client{
		baseURL:        baseURL,
		timeout:        cfg.Timeout,
		maxAttempts:    cfg.MaxAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		transport:      waiter,
	}, nil
}

// FetchTraffic retrieves the clones and views series for repo, issuing one
// call per metric kind with the given token.
func (c *Client) FetchTraffic(ctx context.Context, repo models.RepositoryRef, token string) (*models.TrafficStats, error) {
	gh := c.clientFor(token)

	clones, err := c.fetchClones(ctx, gh, repo)
	if err != nil {
		return nil, err
	}
	views, err := c.fetchViews(ctx, gh, repo)
	if err != nil {
		return nil, err
	}

	logger.Info("Fetched traffic series",
		zap.String("repository", repo.String()),
		zap.Int("clone_days", len(clones.Points)),
		zap.Int("view_days", len(views.Points)))

	return &models.TrafficStats{Clones: clones, Views: views}, nil
}

// clientFor builds a go-github client authenticated for one repository's token.
func (c *Client) clientFor(token string) *github.Client {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Base:   c.transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		},
	}
	gh := github.NewClient(httpClient)
	if c.baseURL != nil {
		gh.BaseURL = c.baseURL
	}
	return gh
}

func (c *Client) fetchClones(ctx context.Context, gh *github.Client, repo models.RepositoryRef) (models.TrafficSeries, error) {
	op := "fetch clones for " + repo.String()
	var series models.TrafficSeries
	err := c.withRetry(ctx, op, func() error {
		clones, _, err := gh.Repositories.ListTrafficClones(ctx, repo.Owner, repo.Name,
			&github.TrafficBreakdownOptions{Per: "day"})
		if err != nil {
			return classify(op, err)
		}
		series = newSeries(models.MetricClones, clones.Clones, clones)
		return nil
	})
	return series, err
}

func (c *Client) fetchViews(ctx context.Context, gh *github.Client, repo models.RepositoryRef) (models.TrafficSeries, error) {
	op := "fetch views for " + repo.String()
	var series models.TrafficSeries
	err := c.withRetry(ctx, op, func() error {
		views, _, err := gh.Repositories.ListTrafficViews(ctx, repo.Owner, repo.Name,
			&github.TrafficBreakdownOptions{Per: "day"})
		if err != nil {
			return classify(op, err)
		}
		series = newSeries(models.MetricViews, views.Views, views)
		return nil
	})
	return series, err
}

// newSeries converts the platform's daily breakdown into a series, keeping
// the re-encoded response payload for the audit trail.
func newSeries(kind models.MetricKind, data []*github.TrafficData, payload any) models.TrafficSeries {
	points := make([]models.TrafficPoint, 0, len(data))
	for _, d := range data {
		points = append(points, models.TrafficPoint{
			Date:    d.GetTimestamp().Time,
			Count:   d.GetCount(),
			Uniques: d.GetUniques(),
		})
	}
	raw, _ := json.Marshal(payload)
	return models.TrafficSeries{Kind: kind, Points: points, Raw: raw}
}

// classify maps a fetch failure onto the error kinds the orchestrator
// dispatches on. Rate limits are throttling, not denials, so they stay
// retryable even though the platform reports them as 403.
func classify(op string, err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return models.NewError(models.KindTransient, op, err)
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch code := ghErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
			return models.NewError(models.KindAccess, op, err)
		case code == http.StatusTooManyRequests || code >= 500:
			return models.NewError(models.KindTransient, op, err)
		default:
			return models.NewError(models.KindProtocol, op, err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewError(models.KindTransient, op, err)
	}

	// Anything left is a response go-github could not make sense of,
	// typically a malformed body.
	return models.NewError(models.KindProtocol, op, err)
}
