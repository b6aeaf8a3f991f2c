// Package publisher emits normalized traffic records to the metrics backend
// and mirrors the raw payloads to a dedicated audit log stream, separate
// from the run's own operational log.
package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// MetricsAPI abstracts the metrics backend operations needed by the
// publisher (for testability)
type MetricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// LogsAPI abstracts the audit log backend operations needed by the
// publisher (for testability)
type LogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatch publishes records as dimensioned measurements and writes the
// audit trail stream per repository and metric kind.
type CloudWatch struct {
	metrics   MetricsAPI
	logs      LogsAPI
	namespace string
	logGroup  string
	now       func() time.Time
}

// NewCloudWatch creates a publisher over the given backend clients.
func NewCloudWatch(metrics MetricsAPI, logs LogsAPI, namespace, logGroup string) *CloudWatch {
	return &CloudWatch{
		metrics:   metrics,
		logs:      logs,
		namespace: namespace,
		logGroup:  logGroup,
		now:       time.Now,
	}
}

// Publish writes the audit trail first, then the measurements, and returns
// how many records the metrics backend accepted. The audit log is the
// fallback record of what was fetched, so it goes first: a metrics failure
// must not lose the payload.
func (p *CloudWatch) Publish(ctx context.Context, repo models.RepositoryRef, kind models.MetricKind, records []models.TrafficRecord, raw json.RawMessage) (int, error) {
	if err := p.writeAudit(ctx, repo, kind, records, raw); err != nil {
		return 0, err
	}

	published, err := p.putMetrics(ctx, repo, kind, records)
	if err != nil {
		return published, err
	}

	logger.Info("Published traffic records",
		zap.String("repository", repo.String()),
		zap.String("metric", string(kind)),
		zap.Int("records_published", published))

	return published, nil
}
