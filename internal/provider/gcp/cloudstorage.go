package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	storage "google.golang.org/api/storage/v1"

	"github.com/yairfalse/warden/pkg/resource"
)

// Members that make a bucket readable by anyone.
const (
	memberAllUsers              = "allUsers"
	memberAllAuthenticatedUsers = "allAuthenticatedUsers"
)

const publicAccessPreventionEnforced = "enforced"

// listBuckets lists buckets with their access settings and IAM exposure.
func (l *Lister) listBuckets(ctx context.Context) ([]resource.Record, error) {
	var records []resource.Record
	token := ""

	for {
		output, err := l.storage.ListBuckets(ctx, l.project, token)
		if err != nil {
			return nil, fmt.Errorf("list buckets: %w", err)
		}
		for _, bucket := range output.Items {
			if bucket == nil {
				continue
			}
			r, err := l.convertBucket(ctx, bucket)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}

		if output.NextPageToken == "" {
			break
		}
		token = output.NextPageToken
	}

	return records, nil
}

func (l *Lister) convertBucket(ctx context.Context, bucket *storage.Bucket) (resource.Record, error) {
	r := l.newRecord("cloudstorage", "bucket", bucket.Id, bucket.Name, bucket.Location)
	if r.ID == "" {
		r.ID = bucket.Name
	}
	for k, v := range bucket.Labels {
		r.Labels[k] = v
	}

	prevention := ""
	if iam := bucket.IamConfiguration; iam != nil {
		if ubla := iam.UniformBucketLevelAccess; ubla != nil {
			r.Attrs["uniform_access"] = strconv.FormatBool(ubla.Enabled)
		}
		prevention = iam.PublicAccessPrevention
		if prevention != "" {
			r.Attrs["public_access_prevention"] = prevention
		}
	}

	policy, err := l.storage.GetBucketIamPolicy(ctx, bucket.Name)
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusForbidden {
			log.Warn().Err(err).Str("bucket", bucket.Name).Msg("bucket iam policy not readable")
			return r, nil
		}
		return resource.Record{}, fmt.Errorf("get iam policy of %s: %w", bucket.Name, err)
	}

	public := policyPublic(policy) && prevention != publicAccessPreventionEnforced
	r.Attrs["public"] = strconv.FormatBool(public)
	return r, nil
}

func policyPublic(policy *storage.Policy) bool {
	if policy == nil {
		return false
	}
	for _, binding := range policy.Bindings {
		if binding == nil {
			continue
		}
		for _, member := range binding.Members {
			if member == memberAllUsers || member == memberAllAuthenticatedUsers {
				return true
			}
		}
	}
	return false
}
