package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/warden/pkg/resource"
)

// ecsDescribeLimit is the most clusters DescribeClusters accepts per call.
const ecsDescribeLimit = 100

// listEKSClusters lists clusters with their endpoint access settings.
func (l *Lister) listEKSClusters(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := eks.NewListClustersPaginator(c.eks, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list eks clusters: %w", err)
		}

		for _, name := range output.Clusters {
			desc, err := c.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, fmt.Errorf("describe eks cluster %s: %w", name, err)
			}
			cluster := desc.Cluster
			if cluster == nil {
				continue
			}

			r := l.newRecord("eks", "cluster", aws.ToString(cluster.Arn), name, c.region)
			for k, v := range cluster.Tags {
				r.Labels[k] = v
			}
			r.Attrs["version"] = aws.ToString(cluster.Version)
			r.Attrs["status"] = string(cluster.Status)
			if vpc := cluster.ResourcesVpcConfig; vpc != nil {
				r.Attrs["endpoint_public_access"] = strconv.FormatBool(vpc.EndpointPublicAccess)
				r.Attrs["endpoint_private_access"] = strconv.FormatBool(vpc.EndpointPrivateAccess)
				for _, cidr := range vpc.PublicAccessCidrs {
					r.Flags = append(r.Flags, resource.Flag{Name: "public_access_cidr", Value: cidr})
				}
			}
			records = append(records, r)
		}
	}

	return records, nil
}

// listECRRepositories lists repositories with their image scanning setting.
func (l *Lister) listECRRepositories(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := ecr.NewDescribeRepositoriesPaginator(c.ecr, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe repositories: %w", err)
		}

		for _, repo := range output.Repositories {
			r := l.newRecord("ecr", "repository", aws.ToString(repo.RepositoryArn), aws.ToString(repo.RepositoryName), c.region)
			r.Attrs["tag_mutability"] = string(repo.ImageTagMutability)
			if repo.ImageScanningConfiguration != nil {
				r.Attrs["scan_on_push"] = strconv.FormatBool(repo.ImageScanningConfiguration.ScanOnPush)
			}
			records = append(records, r)
		}
	}

	return records, nil
}

// listECSClusters lists clusters with their settings as flags.
func (l *Lister) listECSClusters(ctx context.Context, c *clients) ([]resource.Record, error) {
	var arns []string

	paginator := ecs.NewListClustersPaginator(c.ecs, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list ecs clusters: %w", err)
		}
		arns = append(arns, output.ClusterArns...)
	}

	var records []resource.Record
	for start := 0; start < len(arns); start += ecsDescribeLimit {
		end := min(start+ecsDescribeLimit, len(arns))
		output, err := c.ecs.DescribeClusters(ctx, &ecs.DescribeClustersInput{
			Clusters: arns[start:end],
			Include:  []ecstypes.ClusterField{ecstypes.ClusterFieldSettings},
		})
		if err != nil {
			return nil, fmt.Errorf("describe ecs clusters: %w", err)
		}
		for _, cluster := range output.Clusters {
			r := l.newRecord("ecs", "cluster", aws.ToString(cluster.ClusterArn), aws.ToString(cluster.ClusterName), c.region)
			r.Attrs["status"] = aws.ToString(cluster.Status)
			for _, s := range cluster.Settings {
				r.Flags = append(r.Flags, resource.Flag{Name: string(s.Name), Value: aws.ToString(s.Value)})
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// listLambdaFunctions lists functions with their runtime. Container image
// functions have no runtime attribute.
func (l *Lister) listLambdaFunctions(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := lambda.NewListFunctionsPaginator(c.lambda, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		for _, fn := range output.Functions {
			r := l.newRecord("lambda", "function", aws.ToString(fn.FunctionArn), aws.ToString(fn.FunctionName), c.region)
			r.Attrs["package_type"] = string(fn.PackageType)
			if fn.PackageType != lambdatypes.PackageTypeImage && fn.Runtime != "" {
				r.Attrs["runtime"] = string(fn.Runtime)
			}
			records = append(records, r)
		}
	}

	return records, nil
}

// listAutoScalingGroups lists groups with their availability zones as flags.
func (l *Lister) listAutoScalingGroups(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(c.autoscaling, &autoscaling.DescribeAutoScalingGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe auto scaling groups: %w", err)
		}
		for _, group := range output.AutoScalingGroups {
			records = append(records, l.convertAutoScalingGroup(group, c.region))
		}
	}

	return records, nil
}

func (l *Lister) convertAutoScalingGroup(group asgtypes.AutoScalingGroup, region string) resource.Record {
	r := l.newRecord("autoscaling", "group", aws.ToString(group.AutoScalingGroupARN), aws.ToString(group.AutoScalingGroupName), region)
	for _, tag := range group.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	r.Attrs["availability_zones"] = strconv.Itoa(len(group.AvailabilityZones))
	for _, az := range group.AvailabilityZones {
		r.Flags = append(r.Flags, resource.Flag{Name: "availability_zone", Value: az})
	}
	return r
}
