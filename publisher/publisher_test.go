package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carlos-aws/repo-traffic-tracker/models"
)

// MockMetricsAPI is a mock implementation of the metrics backend interface
type MockMetricsAPI struct {
	mock.Mock
}

func (m *MockMetricsAPI) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cloudwatch.PutMetricDataOutput), args.Error(1)
}

// MockLogsAPI is a mock implementation of the audit log backend interface
type MockLogsAPI struct {
	mock.Mock
}

func (m *MockLogsAPI) CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cloudwatchlogs.CreateLogGroupOutput), args.Error(1)
}

func (m *MockLogsAPI) CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cloudwatchlogs.CreateLogStreamOutput), args.Error(1)
}

func (m *MockLogsAPI) PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cloudwatchlogs.PutLogEventsOutput), args.Error(1)
}

var testNow = time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

func testRepo() models.RepositoryRef {
	return models.RepositoryRef{Owner: "acme", Name: "widgets"}
}

func testRecords(n int) []models.TrafficRecord {
	records := make([]models.TrafficRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.TrafficRecord{
			Repository: testRepo(),
			Kind:       models.MetricClones,
			Date:       testNow.AddDate(0, 0, -n+i+1).Truncate(24 * time.Hour),
			Count:      10 + i,
			Uniques:    3 + i,
		})
	}
	return records
}

func newTestPublisher(metrics *MockMetricsAPI, logs *MockLogsAPI) *CloudWatch {
	p := NewCloudWatch(metrics, logs, "GitHubTrafficTracker", "github-traffic-tracker")
	p.now = func() time.Time { return testNow }
	return p
}

func allowStreamSetup(logs *MockLogsAPI) {
	logs.On("CreateLogGroup", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.CreateLogGroupOutput{}, nil)
	logs.On("CreateLogStream", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.CreateLogStreamOutput{}, nil)
}

func TestPublish(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	raw := json.RawMessage(`{"count":19,"uniques":8,"clones":[]}`)
	records := testRecords(3)

	logs.On("CreateLogGroup", mock.Anything, mock.MatchedBy(func(in *cloudwatchlogs.CreateLogGroupInput) bool {
		return *in.LogGroupName == "github-traffic-tracker"
	})).Return(&cloudwatchlogs.CreateLogGroupOutput{}, nil)
	logs.On("CreateLogStream", mock.Anything, mock.MatchedBy(func(in *cloudwatchlogs.CreateLogStreamInput) bool {
		return *in.LogGroupName == "github-traffic-tracker" && *in.LogStreamName == "acme/widgets/clones"
	})).Return(&cloudwatchlogs.CreateLogStreamOutput{}, nil)
	logs.On("PutLogEvents", mock.Anything, mock.MatchedBy(func(in *cloudwatchlogs.PutLogEventsInput) bool {
		return *in.LogStreamName == "acme/widgets/clones" && len(in.LogEvents) == 4 &&
			*in.LogEvents[0].Message == string(raw)
	})).Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)
	metrics.On("PutMetricData", mock.Anything, mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		return *in.Namespace == "GitHubTrafficTracker" && len(in.MetricData) == 6
	})).Return(&cloudwatch.PutMetricDataOutput{}, nil)

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricClones, records, raw)

	require.NoError(t, err)
	assert.Equal(t, 3, published)
	metrics.AssertExpectations(t)
	logs.AssertExpectations(t)

	// The first datum pair carries the record's identity: metric name,
	// type and repository dimensions, and the record's own timestamp.
	input := metrics.Calls[0].Arguments.Get(1).(*cloudwatch.PutMetricDataInput)
	first := input.MetricData[0]
	assert.Equal(t, "clones", *first.MetricName)
	assert.Equal(t, cwtypes.StandardUnitCount, first.Unit)
	assert.Equal(t, records[0].Date, *first.Timestamp)
	assert.Equal(t, float64(records[0].Count), *first.Value)
	require.Len(t, first.Dimensions, 2)
	assert.Equal(t, "type", *first.Dimensions[0].Name)
	assert.Equal(t, "count", *first.Dimensions[0].Value)
	assert.Equal(t, "repository", *first.Dimensions[1].Name)
	assert.Equal(t, "acme/widgets", *first.Dimensions[1].Value)

	second := input.MetricData[1]
	assert.Equal(t, "uniques", *second.Dimensions[0].Value)
	assert.Equal(t, float64(records[0].Uniques), *second.Value)
}

func TestPublishToleratesExistingStream(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}

	logs.On("CreateLogGroup", mock.Anything, mock.Anything).
		Return(nil, &logtypes.ResourceAlreadyExistsException{Message: aws.String("group exists")})
	logs.On("CreateLogStream", mock.Anything, mock.Anything).
		Return(nil, &logtypes.ResourceAlreadyExistsException{Message: aws.String("stream exists")})
	logs.On("PutLogEvents", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)
	metrics.On("PutMetricData", mock.Anything, mock.Anything).
		Return(&cloudwatch.PutMetricDataOutput{}, nil)

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricViews,
		testRecords(2), json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.Equal(t, 2, published)
}

func TestPublishSkipsRecordsOutsideHorizon(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	allowStreamSetup(logs)
	logs.On("PutLogEvents", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)
	metrics.On("PutMetricData", mock.Anything, mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		return len(in.MetricData) == 2
	})).Return(&cloudwatch.PutMetricDataOutput{}, nil)

	stale := models.TrafficRecord{
		Repository: testRepo(),
		Kind:       models.MetricClones,
		Date:       testNow.AddDate(0, 0, -20),
		Count:      5,
		Uniques:    1,
	}
	fresh := models.TrafficRecord{
		Repository: testRepo(),
		Kind:       models.MetricClones,
		Date:       testNow.AddDate(0, 0, -2),
		Count:      7,
		Uniques:    2,
	}

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricClones,
		[]models.TrafficRecord{stale, fresh}, json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.Equal(t, 1, published)
	metrics.AssertExpectations(t)
}

func TestPublishBatchesMetricCalls(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	allowStreamSetup(logs)
	logs.On("PutLogEvents", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)
	metrics.On("PutMetricData", mock.Anything, mock.Anything).
		Return(&cloudwatch.PutMetricDataOutput{}, nil)

	// 13 records = 26 datums, so two calls at the 20-datum cap.
	records := testRecords(13)

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricClones,
		records, json.RawMessage(`{}`))

	require.NoError(t, err)
	assert.Equal(t, 13, published)
	require.Len(t, metrics.Calls, 2)

	var sizes []int
	for _, call := range metrics.Calls {
		input := call.Arguments.Get(1).(*cloudwatch.PutMetricDataInput)
		sizes = append(sizes, len(input.MetricData))
	}
	assert.Equal(t, []int{20, 6}, sizes)
}

func TestPublishMetricsRejected(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	allowStreamSetup(logs)
	logs.On("PutLogEvents", mock.Anything, mock.Anything).
		Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)
	metrics.On("PutMetricData", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricClones,
		testRecords(2), json.RawMessage(`{}`))

	assert.Error(t, err)
	assert.Equal(t, models.KindPublish, models.KindOf(err))
	assert.Equal(t, 0, published)
	// The audit trail was written before the rejected metric call.
	logs.AssertCalled(t, "PutLogEvents", mock.Anything, mock.Anything)
}

func TestPublishAuditRejected(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	allowStreamSetup(logs)
	logs.On("PutLogEvents", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricClones,
		testRecords(2), json.RawMessage(`{}`))

	assert.Error(t, err)
	assert.Equal(t, models.KindPublish, models.KindOf(err))
	assert.Equal(t, 0, published)
	metrics.AssertNotCalled(t, "PutMetricData", mock.Anything, mock.Anything)
}

func TestPublishEmptySeries(t *testing.T) {
	metrics := &MockMetricsAPI{}
	logs := &MockLogsAPI{}
	allowStreamSetup(logs)
	logs.On("PutLogEvents", mock.Anything, mock.MatchedBy(func(in *cloudwatchlogs.PutLogEventsInput) bool {
		return len(in.LogEvents) == 1
	})).Return(&cloudwatchlogs.PutLogEventsOutput{}, nil)

	// No records, but the raw payload is still audited.
	p := newTestPublisher(metrics, logs)
	published, err := p.Publish(context.Background(), testRepo(), models.MetricViews,
		nil, json.RawMessage(`{"count":0,"uniques":0,"views":[]}`))

	require.NoError(t, err)
	assert.Equal(t, 0, published)
	metrics.AssertNotCalled(t, "PutMetricData", mock.Anything, mock.Anything)
	logs.AssertExpectations(t)
}

func TestDiscardPublish(t *testing.T) {
	records := testRecords(4)

	published, err := Discard{}.Publish(context.Background(), testRepo(),
		models.MetricClones, records, json.RawMessage(`{}`))

	assert.NoError(t, err)
	assert.Equal(t, 4, published)
}
