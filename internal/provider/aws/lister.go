// Package aws enumerates AWS resources into inventory records.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	wardenconfig "github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/internal/provider"
	"github.com/yairfalse/warden/pkg/resource"
)

// ProviderName is the identifier of this provider.
const ProviderName = "aws"

// globalRegion labels records of services that are not regional.
const globalRegion = "global"

func init() {
	provider.Register(ProviderName, func(ctx context.Context, cfg wardenconfig.ProviderConfig) (inventory.Lister, error) {
		return New(ctx, Config{Regions: cfg.Regions, Profile: cfg.Profile})
	})
}

// Config holds AWS lister configuration.
type Config struct {
	// Regions to enumerate. The first one also serves global services.
	Regions []string
	Profile string
}

// clients holds the service clients of one region (interfaces for testability).
type clients struct {
	region string

	ec2            EC2API
	rds            RDSAPI
	s3             S3API
	iam            IAMAPI
	kms            KMSAPI
	cloudtrail     CloudTrailAPI
	cloudwatchlogs CloudWatchLogsAPI
	dynamodb       DynamoDBAPI
	eks            EKSAPI
	ecr            ECRAPI
	ecs            ECSAPI
	lambda         LambdaAPI
	elbv2          ELBAPI
	sqs            SQSAPI
	redshift       RedshiftAPI
	memorydb       MemoryDBAPI
	route53        Route53API
	autoscaling    AutoScalingAPI
}

// Lister implements inventory.Lister against the AWS APIs.
type Lister struct {
	accountID string
	regions   []*clients
	now       func() time.Time
}

// New loads AWS credentials and builds clients for every configured region.
func New(ctx context.Context, cfg Config) (*Lister, error) {
	if len(cfg.Regions) == 0 {
		return nil, errors.New("aws: at least one region is required")
	}

	l := &Lister{now: time.Now}
	for _, region := range cfg.Regions {
		opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if cfg.Profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config for %s: %w", region, err)
		}

		ec2Client := ec2.NewFromConfig(awsCfg)
		if l.accountID == "" {
			accountID, err := getAccountID(ctx, ec2Client)
			if err != nil {
				return nil, fmt.Errorf("get account id: %w", err)
			}
			l.accountID = accountID
		}

		l.regions = append(l.regions, &clients{
			region:         region,
			ec2:            ec2Client,
			rds:            rds.NewFromConfig(awsCfg),
			s3:             s3.NewFromConfig(awsCfg),
			iam:            iam.NewFromConfig(awsCfg),
			kms:            kms.NewFromConfig(awsCfg),
			cloudtrail:     cloudtrail.NewFromConfig(awsCfg),
			cloudwatchlogs: cloudwatchlogs.NewFromConfig(awsCfg),
			dynamodb:       dynamodb.NewFromConfig(awsCfg),
			eks:            eks.NewFromConfig(awsCfg),
			ecr:            ecr.NewFromConfig(awsCfg),
			ecs:            ecs.NewFromConfig(awsCfg),
			lambda:         lambda.NewFromConfig(awsCfg),
			elbv2:          elasticloadbalancingv2.NewFromConfig(awsCfg),
			sqs:            sqs.NewFromConfig(awsCfg),
			redshift:       redshift.NewFromConfig(awsCfg),
			memorydb:       memorydb.NewFromConfig(awsCfg),
			route53:        route53.NewFromConfig(awsCfg),
			autoscaling:    autoscaling.NewFromConfig(awsCfg),
		})
	}
	return l, nil
}

func getAccountID(ctx context.Context, client *ec2.Client) (string, error) {
	output, err := client.DescribeAccountAttributes(ctx, &ec2.DescribeAccountAttributesInput{})
	if err != nil {
		return "", err
	}

	for _, attr := range output.AccountAttributes {
		if aws.ToString(attr.AttributeName) == "account-id" && len(attr.AttributeValues) > 0 {
			return aws.ToString(attr.AttributeValues[0].AttributeValue), nil
		}
	}

	return "unknown", nil
}

type listFunc func(l *Lister, ctx context.Context, c *clients) ([]resource.Record, error)

type service struct {
	list listFunc
	// global services are enumerated once, through the first region.
	global bool
}

var services = map[string]service{
	"autoscaling":    {list: (*Lister).listAutoScalingGroups},
	"cloudtrail":     {list: (*Lister).listTrails},
	"cloudwatchlogs": {list: (*Lister).listLogGroups},
	"dynamodb":       {list: (*Lister).listDynamoDBTables},
	"ec2":            {list: (*Lister).listEC2},
	"ecr":            {list: (*Lister).listECRRepositories},
	"ecs":            {list: (*Lister).listECSClusters},
	"eks":            {list: (*Lister).listEKSClusters},
	"elbv2":          {list: (*Lister).listLoadBalancers},
	"iam":            {list: (*Lister).listIAMRoles, global: true},
	"kms":            {list: (*Lister).listKMSKeys},
	"lambda":         {list: (*Lister).listLambdaFunctions},
	"memorydb":       {list: (*Lister).listMemoryDBClusters},
	"rds":            {list: (*Lister).listRDSInstances},
	"redshift":       {list: (*Lister).listRedshiftClusters},
	"route53":        {list: (*Lister).listHostedZones, global: true},
	"s3":             {list: (*Lister).listS3Buckets, global: true},
	"sqs":            {list: (*Lister).listSQSQueues},
}

// Provider returns "aws".
func (l *Lister) Provider() string { return ProviderName }

// Services returns every service this lister can enumerate, sorted.
func (l *Lister) Services() []string {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListResources enumerates service in every configured region. A failure in
// any region fails the whole service.
func (l *Lister) ListResources(ctx context.Context, name string) ([]resource.Record, error) {
	svc, ok := services[name]
	if !ok {
		return nil, fmt.Errorf("aws %s: %w", name, inventory.ErrUnknownService)
	}
	if len(l.regions) == 0 {
		return nil, errors.New("aws: no regions configured")
	}

	regions := l.regions
	if svc.global {
		regions = regions[:1]
	}

	var records []resource.Record
	for _, c := range regions {
		start := time.Now()
		result, err := svc.list(l, ctx, c)
		if err != nil {
			return nil, fmt.Errorf("%s in %s: %w", name, c.region, err)
		}
		log.Debug().
			Str("service", name).
			Str("region", c.region).
			Int("count", len(result)).
			Dur("duration", time.Since(start)).
			Msg("listed resources")
		records = append(records, result...)
	}
	return records, nil
}

// newRecord creates a record with common fields.
func (l *Lister) newRecord(service, typ, id, name, region string) resource.Record {
	return resource.Record{
		ID:        id,
		Name:      name,
		Service:   service,
		Type:      typ,
		Provider:  ProviderName,
		Region:    region,
		Account:   l.accountID,
		Labels:    make(map[string]string),
		Attrs:     make(map[string]string),
		ScannedAt: l.now(),
	}
}

func (l *Lister) arn(service, region, resourcePath string) string {
	return fmt.Sprintf("arn:aws:%s:%s:%s:%s", service, region, l.accountID, resourcePath)
}

// errorCode returns the AWS API error code of err, or "".
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
