package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/warden/internal/inventory"
)

var scanTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLister(regions ...*clients) *Lister {
	return &Lister{
		accountID: "123456789012",
		regions:   regions,
		now:       func() time.Time { return scanTime },
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// Dispatch Tests
// ══════════════════════════════════════════════════════════════════════════════

func TestServices_Sorted(t *testing.T) {
	l := testLister()
	names := l.Services()

	assert.Len(t, names, 18)
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "rds")
	assert.Contains(t, names, "s3")
	assert.Equal(t, "aws", l.Provider())
}

func TestListResources_UnknownService(t *testing.T) {
	l := testLister(&clients{region: "us-east-1"})

	_, err := l.ListResources(context.Background(), "glacier")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrUnknownService)
}

func TestListResources_RegionalServiceCoversAllRegions(t *testing.T) {
	mockFor := func(id string) *mockRDSClient {
		return &mockRDSClient{
			DescribeDBInstancesFunc: func(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
				return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{{DBInstanceIdentifier: aws.String(id)}}}, nil
			},
		}
	}
	l := testLister(
		&clients{region: "us-east-1", rds: mockFor("east-db")},
		&clients{region: "eu-west-1", rds: mockFor("west-db")},
	)

	records, err := l.ListResources(context.Background(), "rds")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "us-east-1", records[0].Region)
	assert.Equal(t, "eu-west-1", records[1].Region)
	assert.Equal(t, "arn:aws:rds:eu-west-1:123456789012:db:west-db", records[1].ID)
}

func TestListResources_GlobalServiceUsesFirstRegion(t *testing.T) {
	calls := 0
	mock := &mockIAMClient{
		ListRolesFunc: func(_ context.Context, _ *iam.ListRolesInput, _ ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
			calls++
			return &iam.ListRolesOutput{Roles: []iamtypes.Role{{Arn: aws.String("arn:aws:iam::123456789012:role/admin"), RoleName: aws.String("admin")}}}, nil
		},
	}
	l := testLister(
		&clients{region: "us-east-1", iam: mock},
		&clients{region: "eu-west-1", iam: mock},
	)

	records, err := l.ListResources(context.Background(), "iam")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "global", records[0].Region)
}

func TestListResources_RegionErrorFailsService(t *testing.T) {
	ok := &mockRDSClient{
		DescribeDBInstancesFunc: func(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
			return &rds.DescribeDBInstancesOutput{}, nil
		},
	}
	broken := &mockRDSClient{
		DescribeDBInstancesFunc: func(_ context.Context, _ *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	l := testLister(&clients{region: "us-east-1", rds: ok}, &clients{region: "eu-west-1", rds: broken})

	records, err := l.ListResources(context.Background(), "rds")
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "eu-west-1")
	assert.Contains(t, err.Error(), "throttled")
}

func TestListResources_NoRegions(t *testing.T) {
	_, err := testLister().ListResources(context.Background(), "rds")
	require.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// EC2 Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockEC2Client struct {
	DescribeSecurityGroupsFunc func(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeVolumesFunc        func(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
}

func (m *mockEC2Client) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return m.DescribeSecurityGroupsFunc(ctx, params, optFns...)
}

func (m *mockEC2Client) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return m.DescribeVolumesFunc(ctx, params, optFns...)
}

func TestListEC2_SecurityGroupsAndVolumes(t *testing.T) {
	mock := &mockEC2Client{
		DescribeSecurityGroupsFunc: func(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
			return &ec2.DescribeSecurityGroupsOutput{
				SecurityGroups: []ec2types.SecurityGroup{{
					GroupId:   aws.String("sg-123"),
					GroupName: aws.String("web"),
					VpcId:     aws.String("vpc-1"),
					IpPermissions: []ec2types.IpPermission{
						{
							IpProtocol: aws.String("tcp"),
							FromPort:   aws.Int32(22),
							ToPort:     aws.Int32(22),
							IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}, {CidrIp: aws.String("10.0.0.0/8")}},
						},
						{
							IpProtocol: aws.String("-1"),
							Ipv6Ranges: []ec2types.Ipv6Range{{CidrIpv6: aws.String("::/0")}},
						},
					},
				}},
			}, nil
		},
		DescribeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			return &ec2.DescribeVolumesOutput{
				Volumes: []ec2types.Volume{
					{VolumeId: aws.String("vol-1"), Encrypted: aws.Bool(true), State: ec2types.VolumeStateInUse},
					{VolumeId: aws.String("vol-2"), Tags: []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String("scratch")}}},
				},
			}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", ec2: mock})
	records, err := l.ListResources(context.Background(), "ec2")
	require.NoError(t, err)
	require.Len(t, records, 3)

	sg := records[0]
	assert.Equal(t, "security_group", sg.Type)
	assert.Equal(t, "arn:aws:ec2:us-east-1:123456789012:security-group/sg-123", sg.ID)
	require.Len(t, sg.Flags, 2)
	assert.Equal(t, FlagOpenIngress, sg.Flags[0].Name)
	assert.Equal(t, "tcp/22-22 0.0.0.0/0", sg.Flags[0].Value)
	assert.Equal(t, "all ::/0", sg.Flags[1].Value)

	assert.Equal(t, "true", records[1].Attrs["encrypted"])
	assert.Equal(t, "vol-1", records[1].Name)

	_, reported := records[2].Attr("encrypted")
	assert.False(t, reported)
	assert.Equal(t, "scratch", records[2].Name)
	assert.Equal(t, scanTime, records[2].ScannedAt)
}

func TestListEC2_Error(t *testing.T) {
	mock := &mockEC2Client{
		DescribeSecurityGroupsFunc: func(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
			return nil, errors.New("UnauthorizedOperation")
		},
	}

	l := testLister(&clients{region: "us-east-1", ec2: mock})
	_, err := l.ListResources(context.Background(), "ec2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe security groups")
}

// ══════════════════════════════════════════════════════════════════════════════
// IAM Tests
// ══════════════════════════════════════════════════════════════════════════════

type mockIAMClient struct {
	ListRolesFunc func(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
}

func (m *mockIAMClient) ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
	return m.ListRolesFunc(ctx, params, optFns...)
}

func TestListIAMRoles_DecodesTrustPolicy(t *testing.T) {
	mock := &mockIAMClient{
		ListRolesFunc: func(_ context.Context, _ *iam.ListRolesInput, _ ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
			return &iam.ListRolesOutput{Roles: []iamtypes.Role{{
				Arn:                      aws.String("arn:aws:iam::123456789012:role/open"),
				RoleName:                 aws.String("open"),
				Path:                     aws.String("/"),
				AssumeRolePolicyDocument: aws.String("%7B%22Statement%22%3A%5B%7B%22Principal%22%3A%22%2A%22%7D%5D%7D"),
			}}}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", iam: mock})
	records, err := l.ListResources(context.Background(), "iam")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, `{"Statement":[{"Principal":"*"}]}`, records[0].Attrs["assume_role_policy"])
	assert.Equal(t, "false", records[0].Attrs["service_linked"])
}
