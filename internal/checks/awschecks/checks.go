// Package awschecks holds the AWS check catalog.
//
// Every check reads the records its service lister caches and emits one
// draft per applicable resource. Attribute defaults are named next to each
// check; a check that looks at several values stops at the first violation.
package awschecks

import (
	_ "embed"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
)

// Namespace is the identifier prefix of every check in this package.
const Namespace = "aws"

//go:embed metadata.yaml
var manifest []byte

// Checks returns the catalog. Order is irrelevant; the registry sorts.
func Checks() []check.Check {
	return []check.Check{
		RDSSQLServerExternalScripts(),
		RDSNoPublicAccess(),
		RDSStorageEncrypted(),
		S3BucketPublicAccess(),
		EC2OpenAdminPorts(),
		EC2VolumeEncrypted(),
		IAMRoleTrustWildcard(),
		KMSKeyRotation(),
		CloudTrailLogValidation(),
		LogGroupRetention(),
		DynamoDBPITR(),
		EKSPublicEndpoint(),
		ECRScanOnPush(),
		ECSContainerInsights(),
		LambdaSupportedRuntime(),
		ELBDeletionProtection(),
		SQSEncryption(),
		RedshiftNoPublicAccess(),
		MemoryDBTLS(),
		Route53QueryLogging(),
		AutoScalingMultiAZ(),
	}
}

// Register adds the catalog to reg and attaches the embedded docs.
func Register(reg *check.Registry) error {
	if err := reg.RegisterAll(Checks()...); err != nil {
		return err
	}
	m, err := check.ParseManifest(manifest)
	if err != nil {
		return &check.DiscoveryError{CheckID: Namespace, Err: err}
	}
	return reg.Document(Namespace, m)
}

func metadata(service, name string, sev finding.Severity, tags ...string) check.Metadata {
	return check.Metadata{
		ID:       Namespace + "." + service + "." + name,
		Provider: Namespace,
		Service:  service,
		Severity: sev,
		Tags:     tags,
	}
}
