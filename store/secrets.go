package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// SecretAPI abstracts the secret store operations needed by the credential
// source (for testability)
type SecretAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Credentials reads the credential bundle from one secret.
type Credentials struct {
	client   SecretAPI
	secretID string
}

// NewCredentials creates a credential source backed by the given secret.
func NewCredentials(client SecretAPI, secretID string) *Credentials {
	return &Credentials{client: client, secretID: secretID}
}

// Load fetches and parses the credential bundle. Token values never reach
// the logs.
func (c *Credentials) Load(ctx context.Context) (*models.CredentialBundle, error) {
	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.secretID),
	})
	if err != nil {
		return nil, models.NewError(models.KindConfiguration, "read credential secret "+c.secretID, err)
	}
	if out.SecretString == nil {
		return nil, models.NewError(models.KindConfiguration, "read credential secret "+c.secretID,
			fmt.Errorf("secret has no string value"))
	}

	bundle, err := models.ParseCredentialBundle([]byte(*out.SecretString))
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded credential bundle",
		zap.String("secret", c.secretID),
		zap.Int("override_count", len(bundle.Overrides)),
		zap.Bool("has_default_token", bundle.DefaultToken != ""))

	return bundle, nil
}
