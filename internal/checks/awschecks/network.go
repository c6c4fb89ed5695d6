package awschecks

import (
	"strconv"
	"strings"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// openIngressFlag names the lister's flags for ingress rules open to the
// internet. Values read "tcp/22-22 0.0.0.0/0" or "all ::/0".
const openIngressFlag = "open_ingress"

// adminPorts are remote administration ports: SSH and RDP.
var adminPorts = []int{22, 3389}

// EC2OpenAdminPorts fails security groups with an internet-open rule that
// covers an administration port. A group without open_ingress flags has no
// such rule. The first offending rule decides.
func EC2OpenAdminPorts() check.Check {
	md := metadata("ec2", "securitygroup_no_open_admin_ports", finding.SeverityHigh, "network", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Type != "security_group" {
			return finding.Draft{}, false
		}
		if f, ok := check.FirstFlag(r, openIngressFlag, exposesAdminPort); ok {
			return finding.Fail(r, "Security group %s allows %s.", r.DisplayName(), f.Value), true
		}
		return finding.Pass(r, "Security group %s does not open administration ports to the internet.", r.DisplayName()), true
	})
}

func exposesAdminPort(value string) bool {
	rule, _, _ := strings.Cut(value, " ")
	if rule == "all" {
		return true
	}
	proto, ports, ok := strings.Cut(rule, "/")
	if !ok || proto != "tcp" {
		return false
	}
	lo, hi, ok := strings.Cut(ports, "-")
	if !ok {
		return false
	}
	from, err := strconv.Atoi(lo)
	if err != nil {
		return false
	}
	to, err := strconv.Atoi(hi)
	if err != nil {
		return false
	}
	for _, p := range adminPorts {
		if from <= p && p <= to {
			return true
		}
	}
	return false
}

// EC2VolumeEncrypted fails unencrypted EBS volumes. encrypted defaults to
// false.
func EC2VolumeEncrypted() check.Check {
	md := metadata("ec2", "ebs_volume_encrypted", finding.SeverityMedium, "storage", "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Type != "volume" {
			return finding.Draft{}, false
		}
		if !r.Bool("encrypted", false) {
			return finding.Fail(r, "EBS volume %s is not encrypted.", r.DisplayName()), true
		}
		return finding.Pass(r, "EBS volume %s is encrypted.", r.DisplayName()), true
	})
}

// ELBDeletionProtection fails load balancers whose
// deletion_protection.enabled attribute is not on. A missing attribute is
// treated as off.
func ELBDeletionProtection() check.Check {
	md := metadata("elbv2", "load_balancer_deletion_protection", finding.SeverityMedium, "network", "resilience")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if _, ok := check.FirstFlag(r, "deletion_protection.enabled", check.Enabled); ok {
			return finding.Pass(r, "Load balancer %s has deletion protection enabled.", r.DisplayName()), true
		}
		return finding.Fail(r, "Load balancer %s does not have deletion protection enabled.", r.DisplayName()), true
	})
}

// Route53QueryLogging fails public hosted zones without query logging.
// private_zone and query_logging both default to false.
func Route53QueryLogging() check.Check {
	md := metadata("route53", "public_zone_query_logging", finding.SeverityLow, "network", "logging")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Bool("private_zone", false) {
			return finding.Draft{}, false
		}
		if !r.Bool("query_logging", false) {
			return finding.Fail(r, "Hosted zone %s does not log DNS queries.", r.DisplayName()), true
		}
		return finding.Pass(r, "Hosted zone %s logs DNS queries.", r.DisplayName()), true
	})
}
