package app

import (
	"fmt"
	"log"
	"strings"

	"coverscope/internal/blobstore"
	"coverscope/internal/gateway/config"
	"coverscope/internal/importer"
	"coverscope/internal/registry"
)

type appStores struct {
	registry *registry.Store
	importer importer.Store
	blobs    blobstore.Store
}

func initStores(cfg *config.Config) (*appStores, error) {
	blobs, err := chooseBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		reg, err := registry.NewPostgres(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open project registry: %w", err)
		}
		imp, err := importer.OpenPostgresStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open tree importer: %w", err)
		}
		log.Printf("stores: postgres registry and importer")
		return &appStores{registry: reg, importer: imp, blobs: blobs}, nil
	}

	log.Printf("stores: in-memory registry and importer")
	return &appStores{
		registry: registry.NewMemory(),
		importer: importer.NewMemoryStore(),
		blobs:    blobs,
	}, nil
}

func chooseBlobStore(cfg *config.Config) (blobstore.Store, error) {
	if cfg.Artifact.CanUseS3() {
		s3, err := blobstore.NewS3Store(blobstore.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		log.Printf("artifact store: s3 bucket=%s endpoint=%s", cfg.Artifact.Bucket, cfg.Artifact.Endpoint)
		return s3, nil
	}
	if cfg.Artifact.Enabled {
		log.Printf("artifact store: using in-memory fallback (s3 config incomplete)")
	}
	return blobstore.NewMemoryStore(), nil
}
