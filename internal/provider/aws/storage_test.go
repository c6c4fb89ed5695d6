package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ══════════════════════════════════════════════════════════════════════════════
// S3 Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockS3Client struct {
	ListBucketsFunc           func(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocationFunc     func(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetPublicAccessBlockFunc  func(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
	GetBucketPolicyStatusFunc func(ctx context.Context, params *s3.GetBucketPolicyStatusInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error)
	GetBucketAclFunc          func(ctx context.Context, params *s3.GetBucketAclInput, optFns ...func(*s3.Options)) (*s3.GetBucketAclOutput, error)
}

func (m *mockS3Client) ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return m.ListBucketsFunc(ctx, params, optFns...)
}

func (m *mockS3Client) GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	return m.GetBucketLocationFunc(ctx, params, optFns...)
}

func (m *mockS3Client) GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
	return m.GetPublicAccessBlockFunc(ctx, params, optFns...)
}

func (m *mockS3Client) GetBucketPolicyStatus(ctx context.Context, params *s3.GetBucketPolicyStatusInput, optFns ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error) {
	return m.GetBucketPolicyStatusFunc(ctx, params, optFns...)
}

func (m *mockS3Client) GetBucketAcl(ctx context.Context, params *s3.GetBucketAclInput, optFns ...func(*s3.Options)) (*s3.GetBucketAclOutput, error) {
	return m.GetBucketAclFunc(ctx, params, optFns...)
}

// bucketMock serves one bucket per entry of acls; buckets named "blocked"
// carry a restrictive public access block, the rest have none.
func bucketMock(acls map[string][]s3types.Grant) *mockS3Client {
	return &mockS3Client{
		ListBucketsFunc: func(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
			var buckets []s3types.Bucket
			for _, name := range []string{"assets", "blocked", "logs"} {
				if _, ok := acls[name]; ok {
					buckets = append(buckets, s3types.Bucket{Name: aws.String(name)})
				}
			}
			return &s3.ListBucketsOutput{Buckets: buckets}, nil
		},
		GetBucketLocationFunc: func(_ context.Context, params *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
			if aws.ToString(params.Bucket) == "logs" {
				return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraintEuWest1}, nil
			}
			return &s3.GetBucketLocationOutput{}, nil
		},
		GetPublicAccessBlockFunc: func(_ context.Context, params *s3.GetPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
			if aws.ToString(params.Bucket) != "blocked" {
				return nil, &smithy.GenericAPIError{Code: codeNoPublicAccessBlock, Message: "none"}
			}
			return &s3.GetPublicAccessBlockOutput{PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
				BlockPublicAcls:       aws.Bool(true),
				IgnorePublicAcls:      aws.Bool(true),
				BlockPublicPolicy:     aws.Bool(true),
				RestrictPublicBuckets: aws.Bool(true),
			}}, nil
		},
		GetBucketPolicyStatusFunc: func(_ context.Context, _ *s3.GetBucketPolicyStatusInput, _ ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error) {
			return nil, &smithy.GenericAPIError{Code: codeNoBucketPolicy, Message: "none"}
		},
		GetBucketAclFunc: func(_ context.Context, params *s3.GetBucketAclInput, _ ...func(*s3.Options)) (*s3.GetBucketAclOutput, error) {
			return &s3.GetBucketAclOutput{Grants: acls[aws.ToString(params.Bucket)]}, nil
		},
	}
}

var allUsersRead = []s3types.Grant{{
	Grantee:    &s3types.Grantee{Type: s3types.TypeGroup, URI: aws.String("http://acs.amazonaws.com/groups/global/AllUsers")},
	Permission: s3types.PermissionRead,
}}

func TestListS3Buckets_PublicExposure(t *testing.T) {
	mock := bucketMock(map[string][]s3types.Grant{
		"assets":  allUsersRead,
		"blocked": allUsersRead,
		"logs":    nil,
	})

	l := testLister(&clients{region: "us-east-1", s3: mock})
	records, err := l.ListResources(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assets, blocked, logs := records[0], records[1], records[2]

	assert.Equal(t, "arn:aws:s3:::assets", assets.ID)
	assert.Equal(t, "us-east-1", assets.Region)
	assert.Equal(t, "true", assets.Attrs["acl_public"])
	assert.Equal(t, "false", assets.Attrs["policy_public"])
	assert.Equal(t, "true", assets.Attrs["public"])
	_, hasBlock := assets.Attr("block_public_acls")
	assert.False(t, hasBlock)

	assert.Equal(t, "true", blocked.Attrs["acl_public"])
	assert.Equal(t, "true", blocked.Attrs["ignore_public_acls"])
	assert.Equal(t, "false", blocked.Attrs["public"])

	assert.Equal(t, "eu-west-1", logs.Region)
	assert.Equal(t, "false", logs.Attrs["public"])
}

func TestListS3Buckets_PolicyPublic(t *testing.T) {
	mock := bucketMock(map[string][]s3types.Grant{"assets": nil})
	mock.GetBucketPolicyStatusFunc = func(_ context.Context, _ *s3.GetBucketPolicyStatusInput, _ ...func(*s3.Options)) (*s3.GetBucketPolicyStatusOutput, error) {
		return &s3.GetBucketPolicyStatusOutput{PolicyStatus: &s3types.PolicyStatus{IsPublic: aws.Bool(true)}}, nil
	}

	l := testLister(&clients{region: "us-east-1", s3: mock})
	records, err := l.ListResources(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "true", records[0].Attrs["policy_public"])
	assert.Equal(t, "true", records[0].Attrs["public"])
}

func TestListS3Buckets_AccessDeniedLeavesExposureUnknown(t *testing.T) {
	mock := bucketMock(map[string][]s3types.Grant{"assets": nil})
	mock.GetBucketAclFunc = func(_ context.Context, _ *s3.GetBucketAclInput, _ ...func(*s3.Options)) (*s3.GetBucketAclOutput, error) {
		return nil, &smithy.GenericAPIError{Code: codeAccessDenied, Message: "denied"}
	}

	l := testLister(&clients{region: "us-east-1", s3: mock})
	records, err := l.ListResources(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, records, 1)
	_, known := records[0].Attr("public")
	assert.False(t, known)
}

func TestListS3Buckets_UnexpectedErrorFailsService(t *testing.T) {
	mock := bucketMock(map[string][]s3types.Grant{"assets": nil})
	mock.GetPublicAccessBlockFunc = func(_ context.Context, _ *s3.GetPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}
	}

	l := testLister(&clients{region: "us-east-1", s3: mock})
	_, err := l.ListResources(context.Background(), "s3")
	require.Error(t, err)
	assert.Equal(t, "SlowDown", errorCode(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// SQS Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockSQSClient struct {
	ListQueuesFunc         func(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	GetQueueAttributesFunc func(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

func (m *mockSQSClient) ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	return m.ListQueuesFunc(ctx, params, optFns...)
}

func (m *mockSQSClient) GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return m.GetQueueAttributesFunc(ctx, params, optFns...)
}

func TestListSQSQueues(t *testing.T) {
	mock := &mockSQSClient{
		ListQueuesFunc: func(_ context.Context, _ *sqs.ListQueuesInput, _ ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
			return &sqs.ListQueuesOutput{QueueUrls: []string{
				"https://sqs.us-east-1.amazonaws.com/123456789012/orders",
				"https://sqs.us-east-1.amazonaws.com/123456789012/plain",
			}}, nil
		},
		GetQueueAttributesFunc: func(_ context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
			if aws.ToString(params.QueueUrl) == "https://sqs.us-east-1.amazonaws.com/123456789012/orders" {
				return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{
					"QueueArn":       "arn:aws:sqs:us-east-1:123456789012:orders",
					"KmsMasterKeyId": "alias/orders",
				}}, nil
			}
			return &sqs.GetQueueAttributesOutput{Attributes: map[string]string{"SqsManagedSseEnabled": "false"}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", sqs: mock})
	records, err := l.ListResources(context.Background(), "sqs")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "arn:aws:sqs:us-east-1:123456789012:orders", records[0].ID)
	assert.Equal(t, "orders", records[0].Name)
	assert.Equal(t, "alias/orders", records[0].Attrs["kms_master_key_id"])

	assert.Equal(t, "arn:aws:sqs:us-east-1:123456789012:plain", records[1].ID)
	assert.Equal(t, "false", records[1].Attrs["sqs_managed_sse"])
	_, hasKey := records[1].Attr("kms_master_key_id")
	assert.False(t, hasKey)
}
