// Package store reads run configuration from the platform's parameter and
// secret stores. Failures here are fatal for the run: without the repository
// list or the credential bundle there is nothing to process.
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// ParameterAPI abstracts the parameter store operations needed by the
// repository source (for testability)
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Repositories reads the tracked repository list from one parameter.
type Repositories struct {
	client    ParameterAPI
	parameter string
}

// NewRepositories creates a repository source backed by the given parameter.
func NewRepositories(client ParameterAPI, parameter string) *Repositories {
	return &Repositories{client: client, parameter: parameter}
}

// List fetches and parses the configured repository list. An empty parameter
// value yields an empty list, not an error.
func (r *Repositories) List(ctx context.Context) ([]models.RepositoryRef, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(r.parameter),
	})
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "read repository list parameter "+r.parameter, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, models.NewError(models.KindConfiguration, "read repository list parameter "+r.parameter,
			fmt.Errorf("parameter has no value"))
	}

	refs, err := models.ParseRepositoryList(*out.Parameter.Value)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded repository list",
		zap.String("parameter", r.parameter),
		zap.Int("repository_count", len(refs)))

	return refs, nil
}
