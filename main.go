package main

import (
	"context"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/carlos-aws/repo-traffic-tracker/cmd"
	"github.com/carlos-aws/repo-traffic-tracker/config"
	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
	"github.com/carlos-aws/repo-traffic-tracker/service"
)

// response is the invocation envelope returned to the scheduler.
type response struct {
	Message string            `json:"message"`
	Summary models.RunSummary `json:"summary"`
}

var (
	wireOnce sync.Once
	svc      *service.Service
	initErr  error
)

// wire builds the service once per container so warm invocations reuse the
// SDK clients and the HTTP transport.
func wire(ctx context.Context) (*service.Service, error) {
	wireOnce.Do(func() {
		cfg := config.NewConfig()
		if initErr = cfg.Load(); initErr != nil {
			return
		}
		if initErr = logger.Initialize(cfg.LogLevel); initErr != nil {
			return
		}
		svc, initErr = service.NewFromConfig(ctx, cfg)
	})
	return svc, initErr
}

// handler runs one collection pass per invocation. Configuration failures
// fail the invocation; repository-level failures are reported in the
// summary and the invocation succeeds.
func handler(ctx context.Context) (response, error) {
	s, err := wire(ctx)
	if err != nil {
		return response{}, err
	}
	defer logger.Sync()

	summary, err := s.Run(ctx)
	if err != nil {
		return response{}, err
	}
	return response{
		Message: "GitHub traffic data processing completed",
		Summary: summary,
	}, nil
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(handler)
		return
	}
	cmd.Execute()
}
