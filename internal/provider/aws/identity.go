package aws

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/yairfalse/warden/pkg/resource"
)

// listIAMRoles lists roles with their decoded trust policy. IAM is global.
func (l *Lister) listIAMRoles(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := iam.NewListRolesPaginator(c.iam, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		for _, role := range output.Roles {
			r, err := l.convertIAMRole(role)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
	}

	return records, nil
}

func (l *Lister) convertIAMRole(role iamtypes.Role) (resource.Record, error) {
	r := l.newRecord("iam", "role", aws.ToString(role.Arn), aws.ToString(role.RoleName), globalRegion)
	r.Attrs["path"] = aws.ToString(role.Path)
	r.Attrs["service_linked"] = strconv.FormatBool(strings.HasPrefix(aws.ToString(role.Path), "/aws-service-role/"))

	if doc := aws.ToString(role.AssumeRolePolicyDocument); doc != "" {
		decoded, err := url.QueryUnescape(doc)
		if err != nil {
			return resource.Record{}, fmt.Errorf("decode trust policy of %s: %w", r.Name, err)
		}
		r.Attrs["assume_role_policy"] = decoded
	}
	return r, nil
}

// listKMSKeys lists customer managed keys with their rotation status. AWS
// managed keys are skipped.
func (l *Lister) listKMSKeys(ctx context.Context, c *clients) ([]resource.Record, error) {
	var records []resource.Record

	paginator := kms.NewListKeysPaginator(c.kms, &kms.ListKeysInput{})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}

		for _, key := range output.Keys {
			r, ok, err := l.describeKMSKey(ctx, c, key)
			if err != nil {
				return nil, err
			}
			if ok {
				records = append(records, r)
			}
		}
	}

	return records, nil
}

func (l *Lister) describeKMSKey(ctx context.Context, c *clients, key kmstypes.KeyListEntry) (resource.Record, bool, error) {
	keyID := aws.ToString(key.KeyId)
	info, err := c.kms.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: key.KeyId})
	if err != nil {
		return resource.Record{}, false, fmt.Errorf("describe key %s: %w", keyID, err)
	}
	md := info.KeyMetadata
	if md == nil || md.KeyManager == kmstypes.KeyManagerTypeAws {
		return resource.Record{}, false, nil
	}

	arn := aws.ToString(key.KeyArn)
	if arn == "" {
		arn = aws.ToString(md.Arn)
	}
	r := l.newRecord("kms", "key", arn, keyID, c.region)
	r.Attrs["key_state"] = string(md.KeyState)
	r.Attrs["key_spec"] = string(md.KeySpec)
	r.Attrs["key_manager"] = string(md.KeyManager)

	// Rotation only exists for enabled symmetric keys.
	if md.KeyState == kmstypes.KeyStateEnabled && md.KeySpec == kmstypes.KeySpecSymmetricDefault {
		rotation, err := c.kms.GetKeyRotationStatus(ctx, &kms.GetKeyRotationStatusInput{KeyId: key.KeyId})
		if err != nil {
			return resource.Record{}, false, fmt.Errorf("get key rotation status %s: %w", keyID, err)
		}
		r.Attrs["rotation_enabled"] = strconv.FormatBool(rotation.KeyRotationEnabled)
	}
	return r, true, nil
}
