package publisher

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// Discard counts records without sending them anywhere. It backs dry runs,
// where the pipeline should execute end to end with no backend writes.
type Discard struct{}

// Publish logs what would have been written and reports it all as published.
func (Discard) Publish(ctx context.Context, repo models.RepositoryRef, kind models.MetricKind, records []models.TrafficRecord, raw json.RawMessage) (int, error) {
	logger.Info("Dry run, discarding records",
		zap.String("repository", repo.String()),
		zap.String("metric", string(kind)),
		zap.Int("record_count", len(records)))
	return len(records), nil
}
