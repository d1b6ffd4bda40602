// Package s3target implements a distribution target backed by an S3 bucket
// or any S3-compatible object store.
package s3target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/chainsnap/internal/logger"
	"github.com/marmos91/chainsnap/pkg/distribution"
)

const Kind = "s3"

// Config holds configuration for one bucket target.
type Config struct {
	Name string

	Bucket string

	// Prefix is the network-scoped key prefix, e.g. "snapshots/mainnet".
	Prefix string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// Static credentials. When empty the SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool
}

// API is the subset of the S3 client the target uses.
type API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Target is a distribution.Target over S3.
type Target struct {
	cfg      Config
	client   API
	uploader *manager.Uploader
}

var _ distribution.Target = (*Target)(nil)

// New creates a Target using an existing client. A nil client is created
// from cfg on Connect.
func New(cfg Config, client API) *Target {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Target{cfg: cfg, client: client}
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
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
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

func (t *Target) Name() string { return t.cfg.Name }
func (t *Target) Kind() string { return Kind }

// Connect checks that the bucket exists and the credentials can reach it.
func (t *Target) Connect(ctx context.Context) error {
	if t.client == nil {
		client, err := NewClient(ctx, t.cfg)
		if err != nil {
			return err
		}
		t.client = client
	}
	if _, err := t.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.cfg.Bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", t.cfg.Bucket, err)
	}
	t.uploader = manager.NewUploader(t.client)
	logger.DebugCtx(ctx, "s3 target connected", logger.KeyBucket, t.cfg.Bucket)
	return nil
}

func (t *Target) Close() error { return nil }

// EnsureDir is a no-op: object stores have no directories.
func (t *Target) EnsureDir(context.Context) error { return nil }

func (t *Target) key(name string) string {
	if t.cfg.Prefix == "" {
		return name
	}
	return path.Join(t.cfg.Prefix, name)
}

// List returns object names directly under the prefix.
func (t *Target) List(ctx context.Context) ([]string, error) {
	prefix := ""
	if t.cfg.Prefix != "" {
		prefix = t.cfg.Prefix + "/"
	}
	paginator := s3.NewListObjectsV2Paginator(t.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(t.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	var names []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" && !strings.Contains(name, "/") {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// ReadFile returns nil for missing objects.
func (t *Target) ReadFile(ctx context.Context, name string) ([]byte, error) {
	resp, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(t.key(name)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(resp.Body)
}

// Put uploads through the multipart manager; objects only become visible
// once the upload completes.
func (t *Target) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	if t.uploader == nil {
		return errors.New("s3 target not connected")
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(t.key(name)),
		Body:   r,
	}
	if ct := contentType(name); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := t.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3 upload %s: %w", name, err)
	}
	logger.DebugCtx(ctx, "s3 upload complete", logger.KeyBucket, t.cfg.Bucket, logger.KeyPath, t.key(name), logger.KeySize, size)
	return nil
}

func (t *Target) Remove(ctx context.Context, name string) error {
	_, err := t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.cfg.Bucket),
		Key:    aws.String(t.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

func (t *Target) FixOwnership(context.Context) error {
	return distribution.ErrUnsupported
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".tar.gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".sha256"), strings.HasSuffix(name, ".txt"):
		return "text/plain; charset=utf-8"
	}
	return ""
}

func isNotFoundError(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}
