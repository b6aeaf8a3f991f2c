// Package service orchestrates a traffic collection run: load the repository
// list and credential bundle, process every repository independently, and
// fold the outcomes into one operator-facing summary.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carlos-aws/repo-traffic-tracker/config"
	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
	"github.com/carlos-aws/repo-traffic-tracker/publisher"
	"github.com/carlos-aws/repo-traffic-tracker/store"
	"github.com/carlos-aws/repo-traffic-tracker/traffic"
)

// RepositorySource abstracts where the tracked repository list comes from
// (for testability)
type RepositorySource interface {
	List(ctx context.Context) ([]models.RepositoryRef, error)
}

// CredentialSource abstracts where the credential bundle comes from
// (for testability)
type CredentialSource interface {
	Load(ctx context.Context) (*models.CredentialBundle, error)
}

// TrafficFetcher abstracts the traffic API client operations needed by the
// run (for testability)
type TrafficFetcher interface {
	FetchTraffic(ctx context.Context, repo models.RepositoryRef, token string) (*models.TrafficStats, error)
}

// TrafficPublisher abstracts the downstream sinks. Records and the raw
// payload for one metric kind are published together.
type TrafficPublisher interface {
	Publish(ctx context.Context, repo models.RepositoryRef, kind models.MetricKind, records []models.TrafficRecord, raw json.RawMessage) (int, error)
}

// Service represents one configured collection pipeline.
type Service struct {
	repos       RepositorySource
	creds       CredentialSource
	fetcher     TrafficFetcher
	publisher   TrafficPublisher
	concurrency int
}

// Option adjusts a Service at construction time.
type Option func(*Service)

// WithConcurrency bounds how many repositories are processed at once.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}

// WithRepositorySource replaces the repository list source.
func WithRepositorySource(src RepositorySource) Option {
	return func(s *Service) { s.repos = src }
}

// WithCredentialSource replaces the credential bundle source.
func WithCredentialSource(src CredentialSource) Option {
	return func(s *Service) { s.creds = src }
}

// WithPublisher replaces the downstream publisher.
func WithPublisher(pub TrafficPublisher) Option {
	return func(s *Service) { s.publisher = pub }
}

// New creates a service over explicit collaborators.
func New(repos RepositorySource, creds CredentialSource, fetcher TrafficFetcher, pub TrafficPublisher, opts ...Option) *Service {
	s := &Service{
		repos:       repos,
		creds:       creds,
		fetcher:     fetcher,
		publisher:   pub,
		concurrency: 1,
	}
	s.apply(opts)
	return s
}

// NewFromConfig wires the service against the platform backends: parameter
// store, secret store, traffic API and the metrics/log sinks.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "load AWS configuration", err)
	}

	client, err := traffic.New(traffic.Config{
		APIBaseURL:     cfg.GitHubAPIURL,
		Timeout:        cfg.HTTPTimeout,
		MaxAttempts:    cfg.RetryMaxAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		repos:   store.NewRepositories(ssm.NewFromConfig(awsCfg), cfg.RepositoriesParameter),
		creds:   store.NewCredentials(secretsmanager.NewFromConfig(awsCfg), cfg.CredentialsSecret),
		fetcher: client,
		publisher: publisher.NewCloudWatch(
			cloudwatch.NewFromConfig(awsCfg),
			cloudwatchlogs.NewFromConfig(awsCfg),
			cfg.MetricNamespace,
			cfg.TrafficLogGroup,
		),
		concurrency: cfg.WorkerCount,
	}
	s.apply(opts)

	logger.Info("Service initialized",
		zap.String("repositories_parameter", cfg.RepositoriesParameter),
		zap.String("credentials_secret", cfg.CredentialsSecret),
		zap.String("metric_namespace", cfg.MetricNamespace),
		zap.Int("worker_count", s.concurrency))

	return s, nil
}

func (s *Service) apply(opts []Option) {
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
}

// Run executes one collection pass and returns the operator-facing summary.
// Only a configuration-load failure returns an error; every per-repository
// failure is folded into the summary and the run completes.
func (s *Service) Run(ctx context.Context) (models.RunSummary, error) {
	start := time.Now()

	repos, err := s.repos.List(ctx)
	if err != nil {
		logger.Error("Failed to load repository list", zap.Error(err))
		return models.RunSummary{}, err
	}
	if len(repos) == 0 {
		logger.Info("No repositories configured, nothing to do")
		return models.Summarize(nil), nil
	}

	bundle, err := s.creds.Load(ctx)
	if err != nil {
		logger.Error("Failed to load credential bundle", zap.Error(err))
		return models.RunSummary{}, err
	}

	logger.Info("Starting traffic collection",
		zap.Int("repository_count", len(repos)),
		zap.Int("concurrency", s.concurrency))

	// One result slot per list entry keeps the summary in configured order
	// regardless of worker scheduling.
	results := make([]models.RunResult, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, repo := range repos {
		// Per-iteration copies: with the go directive below 1.22 the range
		// variables are shared across iterations, and the closure must not
		// observe later values.
		i, repo := i, repo
		g.Go(func() error {
			results[i] = processRepository(gctx, s.fetcher, s.publisher, bundle, repo)
			return nil
		})
	}
	// Workers never return errors; failures live in their result slots.
	_ = g.Wait()

	summary := models.Summarize(results)
	failures := make([]string, 0, summary.Failed)
	for _, r := range summary.Results {
		if !r.Succeeded {
			failures = append(failures, r.Repository+": "+string(r.ErrorKind))
		}
	}
	logger.Info("Traffic collection run completed",
		zap.Int("total_repositories", summary.Total),
		zap.Int("successful_repositories", summary.Succeeded),
		zap.Int("failed_repositories", summary.Failed),
		zap.Strings("failures", failures),
		zap.Duration("elapsed", time.Since(start)))

	return summary, nil
}

// processRepository handles the pipeline for a single repository: resolve a
// token, fetch both series, then normalize and publish each kind. The first
// failure stops the pipeline; records already accepted stay counted.
func processRepository(ctx context.Context, fetcher TrafficFetcher, pub TrafficPublisher, bundle *models.CredentialBundle, repo models.RepositoryRef) models.RunResult {
	result := models.RunResult{Repository: repo.String()}

	if ctx.Err() != nil {
		return failed(result, models.NewError(models.KindTransient, "process "+repo.String(),
			fmt.Errorf("not attempted: %w", ctx.Err())))
	}

	token, err := bundle.Resolve(repo)
	if err != nil {
		return failed(result, err)
	}

	stats, err := fetcher.FetchTraffic(ctx, repo, token)
	if err != nil {
		return failed(result, err)
	}

	for _, series := range []models.TrafficSeries{stats.Clones, stats.Views} {
		records, anomalies := models.Normalize(repo, series)
		if len(records) == 0 {
			logger.Warn("No traffic data found",
				zap.String("repository", repo.String()),
				zap.String("metric", string(series.Kind)))
		}
		for _, anomaly := range anomalies {
			logger.Warn("Suspicious traffic data point", zap.String("anomaly", anomaly.String()))
			result.Anomalies = append(result.Anomalies, anomaly.String())
		}

		published, err := pub.Publish(ctx, repo, series.Kind, records, series.Raw)
		result.RecordsPublished += published
		if err != nil {
			return failed(result, err)
		}
	}

	result.Succeeded = true
	logger.Info("Successfully processed repository",
		zap.String("repository", repo.String()),
		zap.Int("records_published", result.RecordsPublished))
	return result
}

func failed(result models.RunResult, err error) models.RunResult {
	result.Succeeded = false
	result.ErrorKind = models.KindOf(err)
	result.Error = err.Error()
	logger.Error("Repository processing failed",
		zap.String("repository", result.Repository),
		zap.String("error_kind", string(result.ErrorKind)),
		zap.Error(err))
	return result
}
