// Package s3 implements block.Store on Amazon S3 or an S3-compatible
// endpoint, filling the gap left by the retrieval pack (which carried only
// this package's integration test, not its implementation) following the
// client-construction conventions of the sibling content-store S3 adapter.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/mapperd/pkg/store/block"
)

// Config configures an S3-backed block store.
type Config struct {
	// Bucket is the S3 bucket name. Must already exist.
	Bucket string

	// KeyPrefix is prepended to every block key, e.g. "blocks/".
	KeyPrefix string
}

// Store implements block.Store against S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New wraps an already-configured S3 client as a block.Store.
func New(client *s3.Client, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}
}

// NewClientFromConfig builds an S3 client from explicit credentials,
// mirroring the content store's NewS3ClientFromConfig helper.
func NewClientFromConfig(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey string, forcePathStyle bool) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, secretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 block store: failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	}), nil
}

func (s *Store) key(blockKey string) string {
	return s.prefix + blockKey
}

// WriteBlock writes a single block to S3.
func (s *Store) WriteBlock(ctx context.Context, blockKey string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blockKey)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 block store: put %s: %w", blockKey, err)
	}
	return nil
}

// ReadBlock reads a complete block from S3.
func (s *Store) ReadBlock(ctx context.Context, blockKey string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blockKey)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, block.ErrBlockNotFound
		}
		return nil, fmt.Errorf("s3 block store: get %s: %w", blockKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 block store: read body %s: %w", blockKey, err)
	}
	return data, nil
}

// ReadBlockRange reads a byte range from a block via an HTTP Range request.
func (s *Store) ReadBlockRange(ctx context.Context, blockKey string, offset, length int64) ([]byte, error) {
	rng := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blockKey)),
		Range:  aws.String(rng),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, block.ErrBlockNotFound
		}
		return nil, fmt.Errorf("s3 block store: range get %s: %w", blockKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 block store: read range body %s: %w", blockKey, err)
	}
	return data, nil
}

// DeleteBlock removes a single block. Missing blocks are not an error, as
// with the other block.Store implementations.
func (s *Store) DeleteBlock(ctx context.Context, blockKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(blockKey)),
	})
	if err != nil {
		return fmt.Errorf("s3 block store: delete %s: %w", blockKey, err)
	}
	return nil
}

// DeleteByPrefix lists and batch-deletes every block whose key begins with
// prefix (relative to the store's own KeyPrefix).
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	objs := make([]types.ObjectIdentifier, len(keys))
	for i, k := range keys {
		objs[i] = types.ObjectIdentifier{Key: aws.String(s.key(k))}
	}

	_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objs},
	})
	if err != nil {
		return fmt.Errorf("s3 block store: delete by prefix %q: %w", prefix, err)
	}
	return nil
}

// ListByPrefix lists all block keys with the given prefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	return s.listKeys(ctx, prefix)
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 block store: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			keys = append(keys, strings.TrimPrefix(*obj.Key, s.prefix))
		}
	}
	return keys, nil
}

// Close is a no-op: the S3 client owns no per-store resources.
func (s *Store) Close() error { return nil }

// HealthCheck verifies the configured bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("s3 block store: bucket %q unreachable: %w", s.bucket, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

var _ block.Store = (*Store)(nil)
