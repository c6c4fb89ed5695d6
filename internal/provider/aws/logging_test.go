package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	cttypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudTrailClient struct {
	DescribeTrailsFunc func(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
}

func (m *mockCloudTrailClient) DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error) {
	return m.DescribeTrailsFunc(ctx, params, optFns...)
}

type mockCloudWatchLogsClient struct {
	DescribeLogGroupsFunc func(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
}

func (m *mockCloudWatchLogsClient) DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
	return m.DescribeLogGroupsFunc(ctx, params, optFns...)
}

func TestListTrails_OnlyHomeRegion(t *testing.T) {
	mock := &mockCloudTrailClient{
		DescribeTrailsFunc: func(_ context.Context, params *cloudtrail.DescribeTrailsInput, _ ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error) {
			assert.False(t, aws.ToBool(params.IncludeShadowTrails))
			return &cloudtrail.DescribeTrailsOutput{TrailList: []cttypes.Trail{
				{
					Name:                     aws.String("org"),
					TrailARN:                 aws.String("arn:aws:cloudtrail:us-east-1:123456789012:trail/org"),
					HomeRegion:               aws.String("us-east-1"),
					LogFileValidationEnabled: aws.Bool(true),
					IsMultiRegionTrail:       aws.Bool(true),
				},
				{
					Name:       aws.String("elsewhere"),
					HomeRegion: aws.String("eu-west-1"),
				},
			}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", cloudtrail: mock})
	records, err := l.ListResources(context.Background(), "cloudtrail")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "org", records[0].Name)
	assert.Equal(t, "true", records[0].Attrs["log_file_validation"])
	assert.Equal(t, "true", records[0].Attrs["multi_region"])
}

func TestListLogGroups_RetentionAbsentWhenNeverExpires(t *testing.T) {
	mock := &mockCloudWatchLogsClient{
		DescribeLogGroupsFunc: func(_ context.Context, _ *cloudwatchlogs.DescribeLogGroupsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
			return &cloudwatchlogs.DescribeLogGroupsOutput{LogGroups: []cwltypes.LogGroup{
				{LogGroupName: aws.String("/app/api"), RetentionInDays: aws.Int32(30)},
				{LogGroupName: aws.String("/app/legacy")},
			}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", cloudwatchlogs: mock})
	records, err := l.ListResources(context.Background(), "cloudwatchlogs")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "30", records[0].Attrs["retention_days"])
	assert.Equal(t, "arn:aws:logs:us-east-1:123456789012:log-group:/app/api", records[0].ID)
	_, ok := records[1].Attr("retention_days")
	assert.False(t, ok)
}
