package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/yairfalse/warden/pkg/resource"
)

// listTrails lists trails whose home region is c.region, so multi-region
// trails appear once.
func (l *Lister) listTrails(ctx context.Context, c *clients) ([]resource.Record, error) {
	output, err := c.cloudtrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe trails: %w", err)
	}

	var records []resource.Record
	for _, trail := range output.TrailList {
		if home := aws.ToString(trail.HomeRegion); home != "" && home != c.region {
			continue
		}
		r := l.newRecord("cloudtrail", "trail", aws.ToString(trail.TrailARN), aws.ToString(trail.Name), c.region)
		r.Attrs["s3_bucket"] = aws.ToString(trail.S3BucketName)
		resource.FormatBool(r.Attrs, "log_file_validation", trail.LogFileValidationEnabled)
		resource.FormatBool(r.Attrs, "multi_region", trail.IsMultiRegionTrail)
		if trail.KmsKeyId != nil {
			r.Attrs["kms_key_id"] = aws.ToString(trail.KmsKeyId)
		}
		records = append(records, r)
	}
	return records, nil
}

// listLogGroups lists log groups. retention_days is absent for groups that
// never expire.
func (l *Lister) listLogGroups(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(c.cloudwatchlogs, &cloudwatchlogs.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe log groups: %w", err)
		}

		for _, lg := range output.LogGroups {
			name := aws.ToString(lg.LogGroupName)
			arn := aws.ToString(lg.Arn)
			if arn == "" {
				arn = l.arn("logs", c.region, "log-group:"+name)
			}
			r := l.newRecord("cloudwatchlogs", "log_group", arn, name, c.region)
			resource.FormatInt32(r.Attrs, "retention_days", lg.RetentionInDays)
			if lg.KmsKeyId != nil {
				r.Attrs["kms_key_id"] = aws.ToString(lg.KmsKeyId)
			}
			records = append(records, r)
		}
	}

	return records, nil
}
