package awschecks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/inventory"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// ═══════════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════════

func run(t *testing.T, c check.Check, records ...resource.Record) []finding.Draft {
	t.Helper()
	service := c.Metadata().Service
	l := &inventory.StaticLister{ProviderName: Namespace, Records: map[string][]resource.Record{service: records}}
	ctx := context.Background()
	clients, err := inventory.NewCache(ctx, l).Resolve(ctx, service)
	require.NoError(t, err)

	drafts, err := c.Execute(ctx, clients)
	require.NoError(t, err)
	return drafts
}

func statuses(drafts []finding.Draft) []finding.Status {
	out := make([]finding.Status, len(drafts))
	for i, d := range drafts {
		out[i] = d.Status
	}
	return out
}

func rec(id string, attrs map[string]string, flags ...resource.Flag) resource.Record {
	return resource.Record{ID: "arn:" + id, Name: id, Provider: Namespace, Attrs: attrs, Flags: flags}
}

var (
	pass   = finding.StatusPass
	fail   = finding.StatusFail
	manual = finding.StatusManual
)

// ═══════════════════════════════════════════════════════════════════════════
// Registration
// ═══════════════════════════════════════════════════════════════════════════

func TestRegister_EveryCheckDocumented(t *testing.T) {
	reg := check.NewRegistry()
	require.NoError(t, Register(reg))

	discovered := reg.Discover(Namespace)
	assert.Len(t, discovered, len(Checks()))
	for _, c := range discovered {
		doc, ok := reg.Doc(c.Metadata().ID)
		require.True(t, ok, c.Metadata().ID)
		assert.NotEmpty(t, doc.Title)
		assert.NotEmpty(t, doc.Remediation)
	}
}

func TestRegister_TwiceIsDiscoveryError(t *testing.T) {
	reg := check.NewRegistry()
	require.NoError(t, Register(reg))

	err := Register(reg)
	var de *check.DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, check.ErrDuplicateCheck)
}

func TestManifest_MatchesCatalog(t *testing.T) {
	m, err := check.ParseManifest(manifest)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, c := range Checks() {
		ids[c.Metadata().ID] = true
	}
	require.Len(t, m.Checks, len(ids))
	for _, d := range m.Checks {
		assert.True(t, ids[d.ID], d.ID)
	}
}

func TestChecks_NoRecordsNoDrafts(t *testing.T) {
	for _, c := range Checks() {
		assert.Empty(t, run(t, c), c.Metadata().ID)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Database
// ═══════════════════════════════════════════════════════════════════════════

func TestRDSSQLServerExternalScripts_AbsentOffOn(t *testing.T) {
	sqlserver := map[string]string{"engine": "sqlserver-se"}
	drafts := run(t, RDSSQLServerExternalScripts(),
		rec("db-absent", sqlserver),
		rec("db-off", sqlserver, resource.Flag{Name: externalScriptsParameter, Value: "0"}),
		rec("db-on", sqlserver, resource.Flag{Name: externalScriptsParameter, Value: "1"}),
	)

	assert.Equal(t, []finding.Status{pass, pass, fail}, statuses(drafts))
	assert.Equal(t, "arn:db-on", drafts[2].ResourceID)
	assert.Contains(t, drafts[2].StatusExtended, "db-on")
}

func TestRDSSQLServerExternalScripts_SkipsOtherEngines(t *testing.T) {
	drafts := run(t, RDSSQLServerExternalScripts(),
		rec("pg", map[string]string{"engine": "postgres"}, resource.Flag{Name: externalScriptsParameter, Value: "1"}),
		rec("no-engine", nil),
	)
	assert.Empty(t, drafts)
}

func TestRDSNoPublicAccess(t *testing.T) {
	drafts := run(t, RDSNoPublicAccess(),
		rec("public", map[string]string{"publicly_accessible": "true"}),
		rec("private", map[string]string{"publicly_accessible": "false"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{fail, pass, pass}, statuses(drafts))
}

func TestRDSStorageEncrypted_AbsentMeansUnencrypted(t *testing.T) {
	drafts := run(t, RDSStorageEncrypted(),
		rec("enc", map[string]string{"storage_encrypted": "true"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestDynamoDBPITR(t *testing.T) {
	drafts := run(t, DynamoDBPITR(),
		rec("on", map[string]string{"pitr_enabled": "true"}),
		rec("off", map[string]string{"pitr_enabled": "false"}),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestRedshiftNoPublicAccess(t *testing.T) {
	drafts := run(t, RedshiftNoPublicAccess(), rec("dw", map[string]string{"publicly_accessible": "true"}))
	assert.Equal(t, []finding.Status{fail}, statuses(drafts))
}

func TestMemoryDBTLS_AbsentMeansEnabled(t *testing.T) {
	drafts := run(t, MemoryDBTLS(),
		rec("unreported", nil),
		rec("plain", map[string]string{"tls_enabled": "false"}),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

// ═══════════════════════════════════════════════════════════════════════════
// Storage
// ═══════════════════════════════════════════════════════════════════════════

func TestS3BucketPublicAccess(t *testing.T) {
	drafts := run(t, S3BucketPublicAccess(),
		rec("private-bucket", map[string]string{"public": "false"}),
		rec("public-bucket", map[string]string{"public": "true"}),
		rec("denied-bucket", map[string]string{}),
	)

	assert.Equal(t, []finding.Status{pass, fail, manual}, statuses(drafts))
	assert.Equal(t, "public-bucket", drafts[1].ResourceName)
	assert.Contains(t, drafts[1].StatusExtended, "public-bucket")
}

func TestSQSEncryption(t *testing.T) {
	drafts := run(t, SQSEncryption(),
		rec("kms", map[string]string{"kms_master_key_id": "alias/aws/sqs"}),
		rec("sse", map[string]string{"sqs_managed_sse": "true"}),
		rec("plain", map[string]string{"sqs_managed_sse": "false"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, pass, fail, fail}, statuses(drafts))
	assert.Contains(t, drafts[0].StatusExtended, "alias/aws/sqs")
}

// ═══════════════════════════════════════════════════════════════════════════
// Network
// ═══════════════════════════════════════════════════════════════════════════

func TestEC2OpenAdminPorts(t *testing.T) {
	sg := func(id string, rules ...string) resource.Record {
		r := rec(id, nil)
		r.Type = "security_group"
		for _, rule := range rules {
			r.Flags = append(r.Flags, resource.Flag{Name: openIngressFlag, Value: rule})
		}
		return r
	}
	volume := rec("vol-1", nil)
	volume.Type = "volume"

	drafts := run(t, EC2OpenAdminPorts(),
		sg("closed"),
		sg("web", "tcp/443-443 0.0.0.0/0", "tcp/80-80 ::/0"),
		sg("ssh", "tcp/443-443 0.0.0.0/0", "tcp/22-22 0.0.0.0/0", "tcp/3389-3389 0.0.0.0/0"),
		sg("range", "tcp/1000-4000 ::/0"),
		sg("everything", "all 0.0.0.0/0"),
		sg("udp", "udp/22-22 0.0.0.0/0"),
		volume,
	)

	assert.Equal(t, []finding.Status{pass, pass, fail, fail, fail, pass}, statuses(drafts))
	assert.Contains(t, drafts[2].StatusExtended, "tcp/22-22 0.0.0.0/0")
}

func TestExposesAdminPort_Malformed(t *testing.T) {
	assert.False(t, exposesAdminPort("tcp"))
	assert.False(t, exposesAdminPort("tcp/x-22 0.0.0.0/0"))
	assert.False(t, exposesAdminPort("icmp 0.0.0.0/0"))
}

func TestEC2VolumeEncrypted(t *testing.T) {
	vol := func(id string, attrs map[string]string) resource.Record {
		r := rec(id, attrs)
		r.Type = "volume"
		return r
	}
	drafts := run(t, EC2VolumeEncrypted(),
		vol("enc", map[string]string{"encrypted": "true"}),
		vol("plain", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestELBDeletionProtection(t *testing.T) {
	drafts := run(t, ELBDeletionProtection(),
		rec("on", nil, resource.Flag{Name: "deletion_protection.enabled", Value: "true"}),
		rec("off", nil, resource.Flag{Name: "deletion_protection.enabled", Value: "false"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail, fail}, statuses(drafts))
}

func TestRoute53QueryLogging_SkipsPrivateZones(t *testing.T) {
	drafts := run(t, Route53QueryLogging(),
		rec("private", map[string]string{"private_zone": "true"}),
		rec("logged", map[string]string{"private_zone": "false", "query_logging": "true"}),
		rec("silent", map[string]string{"private_zone": "false"}),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
	assert.Equal(t, "arn:silent", drafts[1].ResourceID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity
// ═══════════════════════════════════════════════════════════════════════════

func TestIAMRoleTrustWildcard(t *testing.T) {
	role := func(id, policy string) resource.Record {
		return rec(id, map[string]string{"assume_role_policy": policy})
	}
	linked := rec("linked", map[string]string{"service_linked": "true"})

	drafts := run(t, IAMRoleTrustWildcard(),
		role("scoped", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::123456789012:root"},"Action":"sts:AssumeRole"}]}`),
		role("star", `{"Statement":[{"Effect":"Allow","Principal":"*","Action":"sts:AssumeRole"}]}`),
		role("aws-list", `{"Statement":{"Effect":"Allow","Principal":{"AWS":["arn:aws:iam::1:root","*"]}}}`),
		role("conditioned", `{"Statement":[{"Effect":"Allow","Principal":{"AWS":"*"},"Condition":{"StringEquals":{"sts:ExternalId":"x"}}}]}`),
		role("deny", `{"Statement":[{"Effect":"Deny","Principal":"*"}]}`),
		role("service", `{"Statement":[{"Effect":"Allow","Principal":{"Service":"ec2.amazonaws.com"}}]}`),
		role("broken", `{not json`),
		rec("unreported", nil),
		linked,
	)

	assert.Equal(t, []finding.Status{pass, fail, fail, pass, pass, pass, manual, manual}, statuses(drafts))
	assert.Contains(t, drafts[2].StatusExtended, "statement 1")
}

func TestKMSKeyRotation(t *testing.T) {
	key := func(id, state, spec, rotation string) resource.Record {
		attrs := map[string]string{"key_state": state, "key_spec": spec}
		if rotation != "" {
			attrs["rotation_enabled"] = rotation
		}
		return rec(id, attrs)
	}
	drafts := run(t, KMSKeyRotation(),
		key("rotating", "Enabled", "SYMMETRIC_DEFAULT", "true"),
		key("static", "Enabled", "SYMMETRIC_DEFAULT", "false"),
		key("disabled", "Disabled", "SYMMETRIC_DEFAULT", ""),
		key("rsa", "Enabled", "RSA_2048", ""),
		key("unreported", "Enabled", "SYMMETRIC_DEFAULT", ""),
	)
	assert.Equal(t, []finding.Status{pass, fail, fail}, statuses(drafts))
	assert.Equal(t, "arn:unreported", drafts[2].ResourceID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Logging
// ═══════════════════════════════════════════════════════════════════════════

func TestCloudTrailLogValidation(t *testing.T) {
	drafts := run(t, CloudTrailLogValidation(),
		rec("validated", map[string]string{"log_file_validation": "true"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestLogGroupRetention(t *testing.T) {
	drafts := run(t, LogGroupRetention(),
		rec("forever", nil),
		rec("year", map[string]string{"retention_days": "365"}),
		rec("week", map[string]string{"retention_days": "7"}),
	)
	assert.Equal(t, []finding.Status{pass, pass, fail}, statuses(drafts))
	assert.Contains(t, drafts[2].StatusExtended, "7 days")
}

// ═══════════════════════════════════════════════════════════════════════════
// Compute
// ═══════════════════════════════════════════════════════════════════════════

func TestEKSPublicEndpoint(t *testing.T) {
	cidr := func(v string) resource.Flag { return resource.Flag{Name: "public_access_cidr", Value: v} }
	drafts := run(t, EKSPublicEndpoint(),
		rec("private", map[string]string{"endpoint_public_access": "false"}),
		rec("restricted", map[string]string{"endpoint_public_access": "true"}, cidr("10.0.0.0/8")),
		rec("open", map[string]string{"endpoint_public_access": "true"}, cidr("10.0.0.0/8"), cidr("0.0.0.0/0")),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, pass, fail, fail}, statuses(drafts))
	assert.Contains(t, drafts[2].StatusExtended, "0.0.0.0/0")
}

func TestECRScanOnPush(t *testing.T) {
	drafts := run(t, ECRScanOnPush(),
		rec("scanned", map[string]string{"scan_on_push": "true"}),
		rec("unscanned", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestECSContainerInsights(t *testing.T) {
	insights := func(v string) resource.Flag { return resource.Flag{Name: "containerInsights", Value: v} }
	drafts := run(t, ECSContainerInsights(),
		rec("enabled", nil, insights("enabled")),
		rec("enhanced", nil, insights("enhanced")),
		rec("disabled", nil, insights("disabled")),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, pass, fail, fail}, statuses(drafts))
}

func TestLambdaSupportedRuntime(t *testing.T) {
	drafts := run(t, LambdaSupportedRuntime(),
		rec("current", map[string]string{"runtime": "python3.12"}),
		rec("old", map[string]string{"runtime": "nodejs12.x"}),
		rec("image", map[string]string{"package_type": "Image"}),
	)
	assert.Equal(t, []finding.Status{pass, fail}, statuses(drafts))
}

func TestAutoScalingMultiAZ(t *testing.T) {
	drafts := run(t, AutoScalingMultiAZ(),
		rec("spread", map[string]string{"availability_zones": "3"}),
		rec("single", map[string]string{"availability_zones": "1"}),
		rec("unreported", nil),
	)
	assert.Equal(t, []finding.Status{pass, fail, fail}, statuses(drafts))
}
