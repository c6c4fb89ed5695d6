package awschecks

import (
	"strings"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// deprecatedRuntimes are Lambda runtimes past end of support.
var deprecatedRuntimes = map[string]bool{
	"python2.7":     true,
	"python3.6":     true,
	"python3.7":     true,
	"python3.8":     true,
	"nodejs":        true,
	"nodejs4.3":     true,
	"nodejs6.10":    true,
	"nodejs8.10":    true,
	"nodejs10.x":    true,
	"nodejs12.x":    true,
	"nodejs14.x":    true,
	"nodejs16.x":    true,
	"java8":         true,
	"dotnetcore1.0": true,
	"dotnetcore2.0": true,
	"dotnetcore2.1": true,
	"dotnetcore3.1": true,
	"dotnet6":       true,
	"ruby2.5":       true,
	"ruby2.7":       true,
	"go1.x":         true,
}

// EKSPublicEndpoint fails clusters whose API endpoint is open to the whole
// internet. EKS creates public endpoints open to 0.0.0.0/0 unless told
// otherwise, so endpoint_public_access defaults to true and a public
// endpoint without public_access_cidr flags counts as open. The first open
// CIDR decides.
func EKSPublicEndpoint() check.Check {
	md := metadata("eks", "cluster_endpoint_not_public", finding.SeverityHigh, "containers", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("endpoint_public_access", true) {
			return finding.Pass(r, "EKS cluster %s endpoint is private.", r.DisplayName()), true
		}
		if !check.HasFlag(r, "public_access_cidr") {
			return finding.Fail(r, "EKS cluster %s endpoint is public and unrestricted.", r.DisplayName()), true
		}
		if f, ok := check.FirstFlag(r, "public_access_cidr", isOpenCIDR); ok {
			return finding.Fail(r, "EKS cluster %s endpoint is public to %s.", r.DisplayName(), f.Value), true
		}
		return finding.Pass(r, "EKS cluster %s endpoint is public but restricted by CIDR.", r.DisplayName()), true
	})
}

func isOpenCIDR(cidr string) bool {
	return cidr == "0.0.0.0/0" || cidr == "::/0"
}

// ECRScanOnPush fails repositories that do not scan images on push.
// scan_on_push defaults to false.
func ECRScanOnPush() check.Check {
	md := metadata("ecr", "repository_scan_on_push", finding.SeverityMedium, "containers", "vulnerabilities")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("scan_on_push", false) {
			return finding.Fail(r, "ECR repository %s does not scan images on push.", r.DisplayName()), true
		}
		return finding.Pass(r, "ECR repository %s scans images on push.", r.DisplayName()), true
	})
}

// ECSContainerInsights fails clusters without Container Insights. A missing
// containerInsights setting means disabled.
func ECSContainerInsights() check.Check {
	md := metadata("ecs", "cluster_container_insights_enabled", finding.SeverityLow, "containers", "logging")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if f, ok := check.FirstFlag(r, "containerInsights", insightsOn); ok {
			return finding.Pass(r, "ECS cluster %s has Container Insights %s.", r.DisplayName(), f.Value), true
		}
		return finding.Fail(r, "ECS cluster %s does not have Container Insights enabled.", r.DisplayName()), true
	})
}

func insightsOn(value string) bool {
	return check.Enabled(value) || strings.EqualFold(value, "enhanced")
}

// LambdaSupportedRuntime fails functions on a deprecated runtime. Container
// image functions report no runtime and are skipped.
func LambdaSupportedRuntime() check.Check {
	md := metadata("lambda", "function_supported_runtime", finding.SeverityMedium, "serverless", "vulnerabilities")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		runtime, ok := r.Attr("runtime")
		if !ok || runtime == "" {
			return finding.Draft{}, false
		}
		if deprecatedRuntimes[runtime] {
			return finding.Fail(r, "Lambda function %s uses deprecated runtime %s.", r.DisplayName(), runtime), true
		}
		return finding.Pass(r, "Lambda function %s uses supported runtime %s.", r.DisplayName(), runtime), true
	})
}

// AutoScalingMultiAZ fails groups spread over fewer than two availability
// zones. availability_zones defaults to 0.
func AutoScalingMultiAZ() check.Check {
	md := metadata("autoscaling", "group_multiple_az", finding.SeverityMedium, "resilience")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		zones := r.Int("availability_zones", 0)
		if zones < 2 {
			return finding.Fail(r, "Auto Scaling group %s spans %d availability zone(s).", r.DisplayName(), zones), true
		}
		return finding.Pass(r, "Auto Scaling group %s spans %d availability zones.", r.DisplayName(), zones), true
	})
}
