package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/warden/pkg/resource"
)

// S3 error codes that mean "not configured" rather than failure.
const (
	codeNoPublicAccessBlock = "NoSuchPublicAccessBlockConfiguration"
	codeNoBucketPolicy      = "NoSuchBucketPolicy"
	codeAccessDenied        = "AccessDenied"
)

var publicGranteeURIs = map[string]bool{
	"http://acs.amazonaws.com/groups/global/AllUsers":           true,
	"http://acs.amazonaws.com/groups/global/AuthenticatedUsers": true,
}

// listS3Buckets lists buckets with their public exposure. S3 is global; each
// bucket is read through its own region.
func (l *Lister) listS3Buckets(ctx context.Context, c *clients) ([]resource.Record, error) {
	output, err := c.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	records := make([]resource.Record, 0, len(output.Buckets))
	for _, bucket := range output.Buckets {
		r, err := l.describeBucket(ctx, c, bucket)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

func (l *Lister) describeBucket(ctx context.Context, c *clients, bucket s3types.Bucket) (resource.Record, error) {
	name := aws.ToString(bucket.Name)

	region := "us-east-1"
	location, err := c.s3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket.Name})
	if err != nil {
		return resource.Record{}, fmt.Errorf("get bucket location %s: %w", name, err)
	}
	if location.LocationConstraint != "" {
		region = string(location.LocationConstraint)
	}
	inRegion := func(o *s3.Options) { o.Region = region }

	r := l.newRecord("s3", "bucket", "arn:aws:s3:::"+name, name, region)
	if bucket.CreationDate != nil {
		r.Attrs["created"] = bucket.CreationDate.Format("2006-01-02")
	}

	pab, err := c.s3.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: bucket.Name}, inRegion)
	switch {
	case err == nil:
		if cfg := pab.PublicAccessBlockConfiguration; cfg != nil {
			resource.FormatBool(r.Attrs, "block_public_acls", cfg.BlockPublicAcls)
			resource.FormatBool(r.Attrs, "ignore_public_acls", cfg.IgnorePublicAcls)
			resource.FormatBool(r.Attrs, "block_public_policy", cfg.BlockPublicPolicy)
			resource.FormatBool(r.Attrs, "restrict_public_buckets", cfg.RestrictPublicBuckets)
		}
	case errorCode(err) == codeNoPublicAccessBlock:
	case errorCode(err) == codeAccessDenied:
		log.Warn().Err(err).Str("bucket", name).Msg("public access block not readable")
	default:
		return resource.Record{}, fmt.Errorf("get public access block %s: %w", name, err)
	}

	status, err := c.s3.GetBucketPolicyStatus(ctx, &s3.GetBucketPolicyStatusInput{Bucket: bucket.Name}, inRegion)
	switch {
	case err == nil:
		if status.PolicyStatus != nil {
			resource.FormatBool(r.Attrs, "policy_public", status.PolicyStatus.IsPublic)
		}
	case errorCode(err) == codeNoBucketPolicy:
		r.Attrs["policy_public"] = "false"
	case errorCode(err) == codeAccessDenied:
		log.Warn().Err(err).Str("bucket", name).Msg("bucket policy status not readable")
	default:
		return resource.Record{}, fmt.Errorf("get bucket policy status %s: %w", name, err)
	}

	acl, err := c.s3.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: bucket.Name}, inRegion)
	switch {
	case err == nil:
		r.Attrs["acl_public"] = strconv.FormatBool(aclPublic(acl.Grants))
	case errorCode(err) == codeAccessDenied:
		log.Warn().Err(err).Str("bucket", name).Msg("bucket acl not readable")
	default:
		return resource.Record{}, fmt.Errorf("get bucket acl %s: %w", name, err)
	}

	if _, ok := r.Attr("acl_public"); ok {
		if _, ok := r.Attr("policy_public"); ok {
			r.Attrs["public"] = strconv.FormatBool(bucketPublic(r))
		}
	}
	return r, nil
}

func aclPublic(grants []s3types.Grant) bool {
	for _, g := range grants {
		if g.Grantee != nil && publicGranteeURIs[aws.ToString(g.Grantee.URI)] {
			return true
		}
	}
	return false
}

// bucketPublic combines the ACL and policy exposure with the bucket's public
// access block. A missing block setting does not restrict anything.
func bucketPublic(r resource.Record) bool {
	aclExposed := r.Bool("acl_public", false) && !r.Bool("ignore_public_acls", false)
	policyExposed := r.Bool("policy_public", false) && !r.Bool("restrict_public_buckets", false)
	return aclExposed || policyExposed
}

// listSQSQueues lists queues with their encryption settings.
func (l *Lister) listSQSQueues(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := sqs.NewListQueuesPaginator(c.sqs, &sqs.ListQueuesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list queues: %w", err)
		}

		for _, queueURL := range output.QueueUrls {
			attrs, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl:       aws.String(queueURL),
				AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
			})
			if err != nil {
				return nil, fmt.Errorf("get queue attributes %s: %w", queueURL, err)
			}
			records = append(records, l.convertQueue(queueURL, attrs.Attributes, c.region))
		}
	}

	return records, nil
}

func (l *Lister) convertQueue(queueURL string, attrs map[string]string, region string) resource.Record {
	name := queueURL[strings.LastIndex(queueURL, "/")+1:]
	arn := attrs["QueueArn"]
	if arn == "" {
		arn = l.arn("sqs", region, name)
	}
	r := l.newRecord("sqs", "queue", arn, name, region)
	r.Attrs["url"] = queueURL
	if key := attrs["KmsMasterKeyId"]; key != "" {
		r.Attrs["kms_master_key_id"] = key
	}
	if sse, ok := attrs["SqsManagedSseEnabled"]; ok {
		r.Attrs["sqs_managed_sse"] = sse
	}
	return r
}
