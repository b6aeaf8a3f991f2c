package publisher

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
)

const (
	// metricBatchSize caps datums per PutMetricData call.
	metricBatchSize = 20
	// datumsPerRecord: each record becomes a count and a uniques datum.
	datumsPerRecord = 2
	// publishHorizon is the oldest timestamp the metrics backend accepts.
	publishHorizon = 14 * 24 * time.Hour
)

// putMetrics emits the records as dimensioned measurements, batched and in
// order. Records older than the backend's horizon are skipped with a warning
// rather than failing the call. On a rejected batch it returns how many
// records were already accepted.
func (p *CloudWatch) putMetrics(ctx context.Context, repo models.RepositoryRef, kind models.MetricKind, records []models.TrafficRecord) (int, error) {
	cutoff := p.now().Add(-publishHorizon)
	keep := make([]models.TrafficRecord, 0, len(records))
	for _, rec := range records {
		if rec.Date.Before(cutoff) {
			logger.Warn("Skipping record outside publish horizon",
				zap.String("repository", repo.String()),
				zap.String("metric", string(kind)),
				zap.String("date", rec.Date.Format(models.DateLayout)))
			continue
		}
		keep = append(keep, rec)
	}

	recordsPerCall := metricBatchSize / datumsPerRecord
	for start := 0; start < len(keep); start += recordsPerCall {
		end := min(start+recordsPerCall, len(keep))
		data := make([]types.MetricDatum, 0, datumsPerRecord*(end-start))
		for _, rec := range keep[start:end] {
			data = append(data, datumsFor(rec)...)
		}
		_, err := p.metrics.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err != nil {
			return start, models.NewError(models.KindPublish,
				"put metric data for "+repo.String()+"/"+string(kind), err)
		}
	}

	return len(keep), nil
}

// datumsFor renders one record as its count and uniques measurements. The
// dimension pair {type, repository} is the identity the backend overwrites
// by, together with the timestamp.
func datumsFor(rec models.TrafficRecord) []types.MetricDatum {
	dimensions := func(valueType string) []types.Dimension {
		return []types.Dimension{
			{Name: aws.String("type"), Value: aws.String(valueType)},
			{Name: aws.String("repository"), Value: aws.String(rec.Repository.String())},
		}
	}
	return []types.MetricDatum{
		{
			MetricName: aws.String(string(rec.Kind)),
			Dimensions: dimensions("count"),
			Timestamp:  aws.Time(rec.Date),
			Value:      aws.Float64(float64(rec.Count)),
			Unit:       types.StandardUnitCount,
		},
		{
			MetricName: aws.String(string(rec.Kind)),
			Dimensions: dimensions("uniques"),
			Timestamp:  aws.Time(rec.Date),
			Value:      aws.Float64(float64(rec.Uniques)),
			Unit:       types.StandardUnitCount,
		},
	}
}
