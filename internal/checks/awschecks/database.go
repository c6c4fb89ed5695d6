package awschecks

import (
	"strings"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// externalScriptsParameter lets SQL Server run R and Python scripts.
const externalScriptsParameter = "external scripts enabled"

// RDSSQLServerExternalScripts fails SQL Server instances whose parameter
// group turns on external scripts. An absent parameter keeps the engine
// default (off). The first enabling entry decides.
func RDSSQLServerExternalScripts() check.Check {
	md := metadata("rds", "instance_sqlserver_external_scripts_disabled", finding.SeverityMedium, "database", "hardening")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !strings.HasPrefix(r.AttrOr("engine", ""), "sqlserver") {
			return finding.Draft{}, false
		}
		if f, ok := check.FirstFlag(r, externalScriptsParameter, check.Enabled); ok {
			return finding.Fail(r, "RDS instance %s has '%s' set to %s.", r.DisplayName(), f.Name, f.Value), true
		}
		return finding.Pass(r, "RDS instance %s has '%s' off.", r.DisplayName(), externalScriptsParameter), true
	})
}

// RDSNoPublicAccess fails instances reachable from the internet.
// publicly_accessible defaults to false.
func RDSNoPublicAccess() check.Check {
	md := metadata("rds", "instance_no_public_access", finding.SeverityHigh, "database", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Bool("publicly_accessible", false) {
			return finding.Fail(r, "RDS instance %s is publicly accessible.", r.DisplayName()), true
		}
		return finding.Pass(r, "RDS instance %s is not publicly accessible.", r.DisplayName()), true
	})
}

// RDSStorageEncrypted fails instances with unencrypted storage.
// storage_encrypted defaults to false.
func RDSStorageEncrypted() check.Check {
	md := metadata("rds", "instance_storage_encrypted", finding.SeverityMedium, "database", "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("storage_encrypted", false) {
			return finding.Fail(r, "RDS instance %s storage is not encrypted.", r.DisplayName()), true
		}
		return finding.Pass(r, "RDS instance %s storage is encrypted.", r.DisplayName()), true
	})
}

// DynamoDBPITR fails tables without point-in-time recovery.
// pitr_enabled defaults to false.
func DynamoDBPITR() check.Check {
	md := metadata("dynamodb", "table_pitr_enabled", finding.SeverityMedium, "database", "resilience")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("pitr_enabled", false) {
			return finding.Fail(r, "DynamoDB table %s does not have point-in-time recovery enabled.", r.DisplayName()), true
		}
		return finding.Pass(r, "DynamoDB table %s has point-in-time recovery enabled.", r.DisplayName()), true
	})
}

// RedshiftNoPublicAccess fails publicly accessible clusters.
// publicly_accessible defaults to false.
func RedshiftNoPublicAccess() check.Check {
	md := metadata("redshift", "cluster_no_public_access", finding.SeverityHigh, "database", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if r.Bool("publicly_accessible", false) {
			return finding.Fail(r, "Redshift cluster %s is publicly accessible.", r.DisplayName()), true
		}
		return finding.Pass(r, "Redshift cluster %s is not publicly accessible.", r.DisplayName()), true
	})
}

// MemoryDBTLS fails clusters without in-transit encryption. MemoryDB
// enables TLS unless told otherwise, so tls_enabled defaults to true.
func MemoryDBTLS() check.Check {
	md := metadata("memorydb", "cluster_tls_enabled", finding.SeverityHigh, "database", "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if !r.Bool("tls_enabled", true) {
			return finding.Fail(r, "MemoryDB cluster %s does not use TLS.", r.DisplayName()), true
		}
		return finding.Pass(r, "MemoryDB cluster %s uses TLS.", r.DisplayName()), true
	})
}
