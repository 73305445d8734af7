package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"genstudio/internal/infra"
)

// FromConfig builds the blob store selected by cfg.StorageDriver. The
// returned FileStore is non-nil only for the fs driver, where the API serves
// the signed files itself.
func FromConfig(ctx context.Context, cfg *infra.Config) (BlobStore, *FileStore, error) {
	switch cfg.StorageDriver {
	case infra.StorageDriverMinio:
		store, err := NewMinioStore(
			WithEndpoint(cfg.MinioEndpoint),
			WithAccessKey(cfg.MinioAccessKey),
			WithSecretKey(cfg.MinioSecretKey),
			WithSSL(cfg.MinioUseSSL),
		)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBuckets(ctx, cfg.ArtifactBucket, cfg.MetadataBucket); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case infra.StorageDriverFS, "":
		path := cfg.StoragePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		store, err := NewFileStore(path, cfg.StorageBaseURL, cfg.StorageSigningKey)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
	}
}
