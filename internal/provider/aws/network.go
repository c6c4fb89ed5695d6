package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/yairfalse/warden/pkg/resource"
)

// FlagOpenIngress names the flags listing ingress rules open to the internet.
const FlagOpenIngress = "open_ingress"

// listEC2 lists security groups and EBS volumes.
func (l *Lister) listEC2(ctx context.Context, c *clients) ([]resource.Record, error) {
	groups, err := l.listSecurityGroups(ctx, c)
	if err != nil {
		return nil, err
	}
	volumes, err := l.listVolumes(ctx, c)
	if err != nil {
		return nil, err
	}
	return append(groups, volumes...), nil
}

func (l *Lister) listSecurityGroups(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := ec2.NewDescribeSecurityGroupsPaginator(c.ec2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups: %w", err)
		}
		for _, sg := range output.SecurityGroups {
			records = append(records, l.convertSecurityGroup(sg, c.region))
		}
	}

	return records, nil
}

func (l *Lister) convertSecurityGroup(sg ec2types.SecurityGroup, region string) resource.Record {
	id := aws.ToString(sg.GroupId)
	r := l.newRecord("ec2", "security_group", l.arn("ec2", region, "security-group/"+id), aws.ToString(sg.GroupName), region)
	for _, tag := range sg.Tags {
		r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	r.Attrs["group_id"] = id
	r.Attrs["vpc_id"] = aws.ToString(sg.VpcId)
	r.Attrs["inbound_rules"] = strconv.Itoa(len(sg.IpPermissions))

	for _, perm := range sg.IpPermissions {
		for _, cidr := range openCIDRs(perm) {
			r.Flags = append(r.Flags, resource.Flag{
				Name:  FlagOpenIngress,
				Value: portRange(perm) + " " + cidr,
			})
		}
	}
	return r
}

func openCIDRs(perm ec2types.IpPermission) []string {
	var open []string
	for _, ip := range perm.IpRanges {
		if aws.ToString(ip.CidrIp) == "0.0.0.0/0" {
			open = append(open, "0.0.0.0/0")
		}
	}
	for _, ip := range perm.Ipv6Ranges {
		if aws.ToString(ip.CidrIpv6) == "::/0" {
			open = append(open, "::/0")
		}
	}
	return open
}

// portRange renders a permission as "proto/from-to"; protocol -1 is "all".
func portRange(perm ec2types.IpPermission) string {
	proto := aws.ToString(perm.IpProtocol)
	if proto == "-1" {
		return "all"
	}
	if perm.FromPort == nil {
		return proto
	}
	return fmt.Sprintf("%s/%d-%d", proto, aws.ToInt32(perm.FromPort), aws.ToInt32(perm.ToPort))
}

func (l *Lister) listVolumes(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := ec2.NewDescribeVolumesPaginator(c.ec2, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe volumes: %w", err)
		}
		for _, vol := range output.Volumes {
			id := aws.ToString(vol.VolumeId)
			r := l.newRecord("ec2", "volume", l.arn("ec2", c.region, "volume/"+id), extractNameTag(vol.Tags, id), c.region)
			for _, tag := range vol.Tags {
				r.Labels[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
			}
			r.Attrs["state"] = string(vol.State)
			r.Attrs["az"] = aws.ToString(vol.AvailabilityZone)
			resource.FormatBool(r.Attrs, "encrypted", vol.Encrypted)
			records = append(records, r)
		}
	}

	return records, nil
}

func extractNameTag(tags []ec2types.Tag, fallback string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" && aws.ToString(tag.Value) != "" {
			return aws.ToString(tag.Value)
		}
	}
	return fallback
}

// listLoadBalancers lists ELBv2 load balancers with their attributes as flags.
func (l *Lister) listLoadBalancers(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(c.elbv2, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe load balancers: %w", err)
		}

		for _, lb := range output.LoadBalancers {
			r := l.convertLoadBalancer(lb, c.region)
			attrs, err := c.elbv2.DescribeLoadBalancerAttributes(ctx, &elasticloadbalancingv2.DescribeLoadBalancerAttributesInput{
				LoadBalancerArn: lb.LoadBalancerArn,
			})
			if err != nil {
				return nil, fmt.Errorf("describe load balancer attributes %s: %w", r.Name, err)
			}
			for _, a := range attrs.Attributes {
				r.Flags = append(r.Flags, resource.Flag{Name: aws.ToString(a.Key), Value: aws.ToString(a.Value)})
			}
			records = append(records, r)
		}
	}

	return records, nil
}

func (l *Lister) convertLoadBalancer(lb elbtypes.LoadBalancer, region string) resource.Record {
	r := l.newRecord("elbv2", "load_balancer", aws.ToString(lb.LoadBalancerArn), aws.ToString(lb.LoadBalancerName), region)
	r.Attrs["type"] = string(lb.Type)
	r.Attrs["scheme"] = string(lb.Scheme)
	r.Attrs["vpc_id"] = aws.ToString(lb.VpcId)
	if lb.State != nil {
		r.Attrs["state"] = string(lb.State.Code)
	}
	return r
}

// listHostedZones lists public and private hosted zones with their query
// logging status. Route53 is global.
func (l *Lister) listHostedZones(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := route53.NewListHostedZonesPaginator(c.route53, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list hosted zones: %w", err)
		}

		for _, zone := range output.HostedZones {
			r := l.convertHostedZone(zone)
			logging, err := c.route53.ListQueryLoggingConfigs(ctx, &route53.ListQueryLoggingConfigsInput{HostedZoneId: zone.Id})
			if err != nil {
				return nil, fmt.Errorf("list query logging configs %s: %w", r.Name, err)
			}
			r.Attrs["query_logging"] = strconv.FormatBool(len(logging.QueryLoggingConfigs) > 0)
			records = append(records, r)
		}
	}

	return records, nil
}

func (l *Lister) convertHostedZone(zone r53types.HostedZone) resource.Record {
	id := strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/")
	r := l.newRecord("route53", "hosted_zone", "arn:aws:route53:::hostedzone/"+id, strings.TrimSuffix(aws.ToString(zone.Name), "."), globalRegion)
	r.Attrs["zone_id"] = id
	if zone.Config != nil {
		r.Attrs["private_zone"] = strconv.FormatBool(zone.Config.PrivateZone)
	}
	return r
}
