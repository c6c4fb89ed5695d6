package awschecks

import (
	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/pkg/finding"
	"github.com/yairfalse/warden/pkg/resource"
)

// S3BucketPublicAccess fails buckets the lister found readable by anyone.
// An absent "public" attribute means the lister was denied a look, which
// yields MANUAL rather than a guess.
func S3BucketPublicAccess() check.Check {
	md := metadata("s3", "bucket_public_access", finding.SeverityCritical, "storage", "internet-exposed")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if _, ok := r.Attr("public"); !ok {
			return finding.Manual(r, "S3 bucket %s exposure could not be determined.", r.DisplayName()), true
		}
		if r.Bool("public", false) {
			return finding.Fail(r, "S3 bucket %s is publicly accessible.", r.DisplayName()), true
		}
		return finding.Pass(r, "S3 bucket %s is not publicly accessible.", r.DisplayName()), true
	})
}

// SQSEncryption fails queues with neither a KMS key nor SQS-managed SSE.
// sqs_managed_sse defaults to false.
func SQSEncryption() check.Check {
	md := metadata("sqs", "queue_encrypted", finding.SeverityMedium, "messaging", "encryption")
	return check.PerResource(md, func(r resource.Record) (finding.Draft, bool) {
		if key, ok := r.Attr("kms_master_key_id"); ok {
			return finding.Pass(r, "SQS queue %s is encrypted with KMS key %s.", r.DisplayName(), key), true
		}
		if r.Bool("sqs_managed_sse", false) {
			return finding.Pass(r, "SQS queue %s uses SQS-managed encryption.", r.DisplayName()), true
		}
		return finding.Fail(r, "SQS queue %s is not encrypted at rest.", r.DisplayName()), true
	})
}
