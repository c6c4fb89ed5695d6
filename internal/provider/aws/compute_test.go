package aws

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/warden/pkg/resource"
)

// ══════════════════════════════════════════════════════════════════════════════
// EKS Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockEKSClient struct {
	ListClustersFunc    func(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error)
	DescribeClusterFunc func(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

func (m *mockEKSClient) ListClusters(ctx context.Context, params *eks.ListClustersInput, optFns ...func(*eks.Options)) (*eks.ListClustersOutput, error) {
	return m.ListClustersFunc(ctx, params, optFns...)
}

func (m *mockEKSClient) DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
	return m.DescribeClusterFunc(ctx, params, optFns...)
}

func TestListEKSClusters(t *testing.T) {
	mock := &mockEKSClient{
		ListClustersFunc: func(_ context.Context, _ *eks.ListClustersInput, _ ...func(*eks.Options)) (*eks.ListClustersOutput, error) {
			return &eks.ListClustersOutput{Clusters: []string{"prod"}}, nil
		},
		DescribeClusterFunc: func(_ context.Context, params *eks.DescribeClusterInput, _ ...func(*eks.Options)) (*eks.DescribeClusterOutput, error) {
			return &eks.DescribeClusterOutput{Cluster: &ekstypes.Cluster{
				Name:    params.Name,
				Arn:     aws.String("arn:aws:eks:us-east-1:123456789012:cluster/prod"),
				Version: aws.String("1.30"),
				Tags:    map[string]string{"env": "prod"},
				ResourcesVpcConfig: &ekstypes.VpcConfigResponse{
					EndpointPublicAccess: true,
					PublicAccessCidrs:    []string{"0.0.0.0/0"},
				},
			}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", eks: mock})
	records, err := l.ListResources(context.Background(), "eks")
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "true", r.Attrs["endpoint_public_access"])
	assert.Equal(t, "false", r.Attrs["endpoint_private_access"])
	assert.Equal(t, "prod", r.Labels["env"])
	assert.Equal(t, []resource.Flag{{Name: "public_access_cidr", Value: "0.0.0.0/0"}}, r.Flags)
}

// ══════════════════════════════════════════════════════════════════════════════
// ECS Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockECSClient struct {
	ListClustersFunc     func(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error)
	DescribeClustersFunc func(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
}

func (m *mockECSClient) ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
	return m.ListClustersFunc(ctx, params, optFns...)
}

func (m *mockECSClient) DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error) {
	return m.DescribeClustersFunc(ctx, params, optFns...)
}

func TestListECSClusters_DescribesInBatches(t *testing.T) {
	var arns []string
	for i := range 150 {
		arns = append(arns, fmt.Sprintf("arn:aws:ecs:us-east-1:123456789012:cluster/c%03d", i))
	}
	var batches []int

	mock := &mockECSClient{
		ListClustersFunc: func(_ context.Context, _ *ecs.ListClustersInput, _ ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
			return &ecs.ListClustersOutput{ClusterArns: arns}, nil
		},
		DescribeClustersFunc: func(_ context.Context, params *ecs.DescribeClustersInput, _ ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error) {
			batches = append(batches, len(params.Clusters))
			assert.Equal(t, []ecstypes.ClusterField{ecstypes.ClusterFieldSettings}, params.Include)
			var out []ecstypes.Cluster
			for _, arn := range params.Clusters {
				out = append(out, ecstypes.Cluster{
					ClusterArn: aws.String(arn),
					Settings: []ecstypes.ClusterSetting{{
						Name:  ecstypes.ClusterSettingNameContainerInsights,
						Value: aws.String("enabled"),
					}},
				})
			}
			return &ecs.DescribeClustersOutput{Clusters: out}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", ecs: mock})
	records, err := l.ListResources(context.Background(), "ecs")
	require.NoError(t, err)
	assert.Len(t, records, 150)
	assert.Equal(t, []int{100, 50}, batches)
	assert.Equal(t, []resource.Flag{{Name: "containerInsights", Value: "enabled"}}, records[0].Flags)
}

// ══════════════════════════════════════════════════════════════════════════════
// Lambda Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockLambdaClient struct {
	ListFunctionsFunc func(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

func (m *mockLambdaClient) ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
	return m.ListFunctionsFunc(ctx, params, optFns...)
}

func TestListLambdaFunctions(t *testing.T) {
	mock := &mockLambdaClient{
		ListFunctionsFunc: func(_ context.Context, _ *lambda.ListFunctionsInput, _ ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error) {
			return &lambda.ListFunctionsOutput{Functions: []lambdatypes.FunctionConfiguration{
				{FunctionName: aws.String("resize"), Runtime: lambdatypes.RuntimePython39, PackageType: lambdatypes.PackageTypeZip},
				{FunctionName: aws.String("render"), PackageType: lambdatypes.PackageTypeImage},
			}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", lambda: mock})
	records, err := l.ListResources(context.Background(), "lambda")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "python3.9", records[0].Attrs["runtime"])
	_, ok := records[1].Attr("runtime")
	assert.False(t, ok)
}
