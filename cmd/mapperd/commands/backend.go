package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/mapperd/pkg/blocker/devstore"
	"github.com/marmos91/mapperd/pkg/blocker/devstore/badgerblob"
	"github.com/marmos91/mapperd/pkg/blocker/devstore/memblob"
	"github.com/marmos91/mapperd/pkg/blocker/devstore/s3blob"
	"github.com/marmos91/mapperd/pkg/config"
	s3store "github.com/marmos91/mapperd/pkg/store/block/s3"
)

// newBlobStore builds the devstore.BlobStore backing one dev blocker from
// its configured backend type.
func newBlobStore(ctx context.Context, cfg config.BlockerBackendConfig) (devstore.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return memblob.New(), nil

	case "badger":
		store, err := badgerblob.Open(cfg.Badger.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger blob store at %s: %w", cfg.Badger.Dir, err)
		}
		return store, nil

	case "s3":
		return newS3BlobStore(ctx, cfg.S3)

	default:
		return nil, fmt.Errorf("unknown blocker backend type %q", cfg.Type)
	}
}

func newS3BlobStore(ctx context.Context, cfg config.S3BackendConfig) (devstore.BlobStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return s3blob.New(client, s3store.Config{Bucket: cfg.Bucket, KeyPrefix: cfg.KeyPrefix}), nil
}
