package gcp

import (
	"context"

	sqladmin "google.golang.org/api/sqladmin/v1beta4"
	storage "google.golang.org/api/storage/v1"
)

// SQLAdminAPI defines the Cloud SQL Admin operations used by the lister.
type SQLAdminAPI interface {
	ListInstances(ctx context.Context, project, pageToken string) (*sqladmin.InstancesListResponse, error)
}

// StorageAPI defines the Cloud Storage operations used by the lister.
type StorageAPI interface {
	ListBuckets(ctx context.Context, project, pageToken string) (*storage.Buckets, error)
	GetBucketIamPolicy(ctx context.Context, bucket string) (*storage.Policy, error)
}

type sqlAdminService struct {
	svc *sqladmin.Service
}

func (s *sqlAdminService) ListInstances(ctx context.Context, project, pageToken string) (*sqladmin.InstancesListResponse, error) {
	call := s.svc.Instances.List(project).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

type storageService struct {
	svc *storage.Service
}

func (s *storageService) ListBuckets(ctx context.Context, project, pageToken string) (*storage.Buckets, error) {
	call := s.svc.Buckets.List(project).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (s *storageService) GetBucketIamPolicy(ctx context.Context, bucket string) (*storage.Policy, error) {
	return s.svc.Buckets.GetIamPolicy(bucket).Context(ctx).Do()
}
