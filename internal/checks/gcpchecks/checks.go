// Package gcpchecks holds the GCP check catalog.
package gcpchecks

import (
	_ "embed"
	"strings"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// Namespace is the identifier prefix of every check in this package.
const Namespace = "gcp"

//go:embed metadata.yaml
var manifest []byte

// externalScriptsFlag lets SQL Server run R and Python scripts.
const externalScriptsFlag = "external scripts enabled"

// sslEnforcingModes are the Cloud SQL ssl_mode values that reject plain
// connections.
var sslEnforcingModes = map[string]bool{
	"ENCRYPTED_ONLY":                      true,
	"TRUSTED_CLIENT_CERTIFICATE_REQUIRED": true,
}

// Checks returns the catalog.
func Checks() []check.Check {
	return []check.Check{
		SQLServerExternalScripts(),
		SQLRequireSSL(),
		BucketPublicAccess(),
		BucketUniformAccess(),
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

// SQLServerExternalScripts fails SQL Server instances that set the
// "external scripts enabled" flag on. An absent flag keeps the engine
// default (off). The first enabling flag decides.
func SQLServerExternalScripts() check.Check {
	md := metadata("cloudsql", "instance_sqlserver_external_scripts_disabled", finding.SeverityMedium, "database", "hardening")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !strings.Contains(r.AttrOr("database_version", ""), "SQLSERVER") {
			return finding.Draft{}, false
		}
		if _, ok := check.FirstFlag(r, externalScriptsFlag, check.Enabled); ok {
			return finding.Fail(r, "SQL Server Instance %s does not have 'external scripts enabled' flag set to 'off'.", r.DisplayName()), true
		}
		return finding.Pass(r, "SQL Server Instance %s has 'external scripts enabled' flag set to 'off'.", r.DisplayName()), true
	})
}

// SQLRequireSSL fails instances that accept unencrypted connections.
// require_ssl defaults to false and ssl_mode to ALLOW_UNENCRYPTED_AND_ENCRYPTED.
func SQLRequireSSL() check.Check {
	md := metadata("cloudsql", "instance_ssl_connections", finding.SeverityHigh, "database", "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Bool("require_ssl", false) || sslEnforcingModes[r.AttrOr("ssl_mode", "ALLOW_UNENCRYPTED_AND_ENCRYPTED")] {
			return finding.Pass(r, "Database Instance %s requires SSL connections.", r.DisplayName()), true
		}
		return finding.Fail(r, "Database Instance %s does not require SSL connections.", r.DisplayName()), true
	})
}

// BucketPublicAccess fails buckets whose IAM policy grants allUsers or
// allAuthenticatedUsers. An absent "public" attribute means the policy was
// not readable and yields MANUAL.
func BucketPublicAccess() check.Check {
	md := metadata("cloudstorage", "bucket_public_access", finding.SeverityCritical, "storage", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if _, ok := r.Attr("public"); !ok {
			return finding.Manual(r, "Bucket %s exposure could not be determined.", r.DisplayName()), true
		}
		if r.Bool("public", false) {
			return finding.Fail(r, "Bucket %s is publicly accessible.", r.DisplayName()), true
		}
		return finding.Pass(r, "Bucket %s is not publicly accessible.", r.DisplayName()), true
	})
}

// BucketUniformAccess fails buckets still using object ACLs.
// uniform_access defaults to false.
func BucketUniformAccess() check.Check {
	md := metadata("cloudstorage", "bucket_uniform_bucket_level_access", finding.SeverityMedium, "storage", "identity")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("uniform_access", false) {
			return finding.Fail(r, "Bucket %s does not have uniform bucket-level access enabled.", r.DisplayName()), true
		}
		return finding.Pass(r, "Bucket %s has uniform bucket-level access enabled.", r.DisplayName()), true
	})
}
