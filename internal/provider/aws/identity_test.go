package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKMSClient struct {
	ListKeysFunc             func(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
	DescribeKeyFunc          func(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	GetKeyRotationStatusFunc func(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error)
}

func (m *mockKMSClient) ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error) {
	return m.ListKeysFunc(ctx, params, optFns...)
}

func (m *mockKMSClient) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	return m.DescribeKeyFunc(ctx, params, optFns...)
}

func (m *mockKMSClient) GetKeyRotationStatus(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error) {
	return m.GetKeyRotationStatusFunc(ctx, params, optFns...)
}

func TestListKMSKeys(t *testing.T) {
	keys := map[string]kmstypes.KeyMetadata{
		"aws-managed": {KeyManager: kmstypes.KeyManagerTypeAws, KeyState: kmstypes.KeyStateEnabled, KeySpec: kmstypes.KeySpecSymmetricDefault},
		"rotated":     {KeyManager: kmstypes.KeyManagerTypeCustomer, KeyState: kmstypes.KeyStateEnabled, KeySpec: kmstypes.KeySpecSymmetricDefault},
		"signing":     {KeyManager: kmstypes.KeyManagerTypeCustomer, KeyState: kmstypes.KeyStateEnabled, KeySpec: kmstypes.KeySpecEccNistP256},
	}
	var rotationCalls []string

	mock := &mockKMSClient{
		ListKeysFunc: func(_ context.Context, _ *kms.ListKeysInput, _ ...func(*kms.Options)) (*kms.ListKeysOutput, error) {
			var entries []kmstypes.KeyListEntry
			for _, id := range []string{"aws-managed", "rotated", "signing"} {
				entries = append(entries, kmstypes.KeyListEntry{
					KeyId:  aws.String(id),
					KeyArn: aws.String("arn:aws:kms:us-east-1:123456789012:key/" + id),
				})
			}
			return &kms.ListKeysOutput{Keys: entries}, nil
		},
		DescribeKeyFunc: func(_ context.Context, params *kms.DescribeKeyInput, _ ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
			md := keys[aws.ToString(params.KeyId)]
			return &kms.DescribeKeyOutput{KeyMetadata: &md}, nil
		},
		GetKeyRotationStatusFunc: func(_ context.Context, params *kms.GetKeyRotationStatusInput, _ ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error) {
			rotationCalls = append(rotationCalls, aws.ToString(params.KeyId))
			return &kms.GetKeyRotationStatusOutput{KeyRotationEnabled: true}, nil
		},
	}

	l := testLister(&clients{region: "us-east-1", kms: mock})
	records, err := l.ListResources(context.Background(), "kms")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "rotated", records[0].Name)
	assert.Equal(t, "true", records[0].Attrs["rotation_enabled"])

	assert.Equal(t, "signing", records[1].Name)
	_, hasRotation := records[1].Attr("rotation_enabled")
	assert.False(t, hasRotation)

	assert.Equal(t, []string{"rotated"}, rotationCalls)
}
