package publisher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// writeAudit appends the raw response payload and every normalized record to
// the repository's audit stream. Append-only: a rerun over the same day
// duplicates lines, which is accepted for an audit trail.
func (p *CloudWatch) writeAudit(ctx context.Context, repo models.RepositoryRef, kind models.MetricKind, records []models.TrafficRecord, raw json.RawMessage) error {
	stream := repo.String() + "/" + string(kind)
	if err := p.ensureStream(ctx, stream); err != nil {
		return err
	}

	timestamp := p.now().UnixMilli()
	events := make([]types.InputLogEvent, 0, len(records)+1)
	if len(raw) > 0 {
		events = append(events, types.InputLogEvent{
			Message:   aws.String(string(raw)),
			Timestamp: aws.Int64(timestamp),
		})
	}
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return models.NewError(models.KindPublish, "encode audit record for "+stream, err)
		}
		events = append(events, types.InputLogEvent{
			Message:   aws.String(string(line)),
			Timestamp: aws.Int64(timestamp),
		})
	}
	if len(events) == 0 {
		return nil
	}

	_, err := p.logs.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(p.logGroup),
		LogStreamName: aws.String(stream),
		LogEvents:     events,
	})
	if err != nil {
		return models.NewError(models.KindPublish, "write audit log for "+stream, err)
	}
	return nil
}

// ensureStream creates the audit log group and stream, tolerating both
// already existing.
func (p *CloudWatch) ensureStream(ctx context.Context, stream string) error {
	var exists *types.ResourceAlreadyExistsException

	_, err := p.logs.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroup),
	})
	if err != nil && !errors.As(err, &exists) {
		return models.NewError(models.KindPublish, "create log group "+p.logGroup, err)
	}

	_, err = p.logs.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroup),
		LogStreamName: aws.String(stream),
	})
	if err != nil && !errors.As(err, &exists) {
		return models.NewError(models.KindPublish, "create log stream "+stream, err)
	}

	return nil
}
