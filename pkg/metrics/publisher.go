package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchPublisher pushes a scenario's Summary to CloudWatch so
// successive scheduling runs can be compared on a dashboard instead of by
// re-reading CSV output. It is optional: callers that never construct one
// simply never publish.
type CloudWatchPublisher struct {
	client            *cloudwatch.Client
	namespace         string
	defaultDimensions []types.Dimension
}

// NewCloudWatchPublisher builds a publisher for the given AWS region.
func NewCloudWatchPublisher(region string) (*CloudWatchPublisher, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("metrics: failed to load AWS config: %w", err)
	}
	return &CloudWatchPublisher{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: "ProductionScheduler",
		defaultDimensions: []types.Dimension{
			{Name: aws.String("Region"), Value: aws.String(region)},
		},
	}, nil
}

// PublishSummary publishes one scenario's Summary as a batch of CloudWatch
// metric data points, dimensioned by scenario name.
func (p *CloudWatchPublisher) PublishSummary(ctx context.Context, scenario string, summary *Summary) error {
	dimensions := append(append([]types.Dimension{}, p.defaultDimensions...),
		types.Dimension{Name: aws.String("Scenario"), Value: aws.String(scenario)})

	timestamp := time.Now()
	data := []types.MetricDatum{
		{
			MetricName: aws.String("MakespanHours"),
			Value:      aws.Float64(summary.Makespan.Hours()),
			Unit:       types.StandardUnitNone,
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		},
		{
			MetricName: aws.String("MeanLatenessDays"),
			Value:      aws.Float64(summary.LatenessDays.Mean),
			Unit:       types.StandardUnitNone,
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		},
		{
			MetricName: aws.String("MeanSlackDays"),
			Value:      aws.Float64(summary.SlackDays.Mean),
			Unit:       types.StandardUnitNone,
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		},
		{
			MetricName: aws.String("UtilizationVariance"),
			Value:      aws.Float64(summary.UtilizationVariance),
			Unit:       types.StandardUnitNone,
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		},
		{
			MetricName: aws.String("UnscheduledCount"),
			Value:      aws.Float64(float64(summary.UnscheduledCount)),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(timestamp),
			Dimensions: dimensions,
		},
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("metrics: failed to publish to CloudWatch: %w", err)
	}
	return nil
}
