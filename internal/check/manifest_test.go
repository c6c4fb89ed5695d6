package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/warden/pkg/finding"
)

const testManifest = `
checks:
  - id: aws.s3.bucket_public_access
    title: Ensure S3 buckets are not publicly accessible
    description: Public buckets expose their objects to the internet.
    risk: Data exfiltration.
    remediation: Enable S3 Block Public Access.
    frameworks: [cis-3.0:2.1.4]
  - id: aws.rds.instance_public
    title: Ensure RDS instances are not publicly accessible
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)
	require.Len(t, m.Checks, 2)
	assert.Equal(t, "aws.s3.bucket_public_access", m.Checks[0].ID)
	assert.Equal(t, []string{"cis-3.0:2.1.4"}, m.Checks[0].Frameworks)
}

func TestParseManifest_MissingID(t *testing.T) {
	_, err := ParseManifest([]byte("checks:\n  - title: orphan\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'id'")
}

func TestParseManifest_MissingTitle(t *testing.T) {
	_, err := ParseManifest([]byte("checks:\n  - id: aws.s3.x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing 'title'")
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	_, err := ParseManifest([]byte("checks: [unterminated"))
	require.Error(t, err)
}

func TestDocument(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll(
		testCheck("aws.s3.bucket_public_access", "s3", finding.SeverityHigh),
		testCheck("aws.rds.instance_public", "rds", finding.SeverityHigh),
	))
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	require.NoError(t, r.Document("aws", m))

	d, ok := r.Doc("aws.s3.bucket_public_access")
	require.True(t, ok)
	assert.Equal(t, "Enable S3 Block Public Access.", d.Remediation)
}

func TestDocument_UnregisteredEntry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testCheck("aws.s3.bucket_public_access", "s3", finding.SeverityHigh)))
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	err = r.Document("aws", m)
	var de *DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "aws.rds.instance_public", de.CheckID)
}

func TestDocument_UndocumentedCheck(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll(
		testCheck("aws.s3.bucket_public_access", "s3", finding.SeverityHigh),
		testCheck("aws.rds.instance_public", "rds", finding.SeverityHigh),
		testCheck("aws.ec2.undocumented", "ec2", finding.SeverityLow),
	))
	m, err := ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	err = r.Document("aws", m)
	var de *DiscoveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "aws.ec2.undocumented", de.CheckID)
	assert.ErrorIs(t, err, ErrMalformedCheck)

	_, ok := r.Doc("aws.s3.bucket_public_access")
	assert.False(t, ok)
}

func TestDocument_DuplicateEntry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testCheck("aws.s3.bucket_public_access", "s3", finding.SeverityHigh)))
	m := Manifest{Checks: []Doc{
		{ID: "aws.s3.bucket_public_access", Title: "a"},
		{ID: "aws.s3.bucket_public_access", Title: "b"},
	}}

	err := r.Document("aws", m)
	assert.ErrorIs(t, err, ErrDuplicateCheck)
}
