package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// RemoteMirror ships a just-compacted generation off-box. It is entirely
// optional: Store.Compact works without one, and a failed upload never
// fails compaction itself — the local generation is already the source
// of truth.
type RemoteMirror interface {
	Upload(generationDir, generationID string) error
}

// S3Mirror uploads a generation's data.mdb to an S3-compatible bucket
// (Cloudflare R2 included, via a custom endpoint). One object per
// compaction, keyed by generation letter and timestamp, so a bucket
// retains a short history rather than a single overwritten blob.
type S3Mirror struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Mirror builds a mirror against an S3-compatible endpoint. endpoint
// may be empty to use AWS's default resolver; set it to an R2 account
// endpoint (https://<account>.r2.cloudflarestorage.com) to mirror to R2
// as the teacher's backup service does.
func NewS3Mirror(ctx context.Context, endpoint, region, accessKeyID, secretAccessKey, bucket, prefix string, log zerolog.Logger) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("store: remote mirror bucket must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithRegion(region),
	}
	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint, HostnameImmutable: true, SigningRegion: region}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	return &S3Mirror{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("component", "remote_mirror").Logger(),
	}, nil
}

func (m *S3Mirror) Upload(generationDir, generationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	path := filepath.Join(generationDir, generationID, "data.mdb")
	f, err := os.Open(path)
	if err != nil {
		return &IoError{Op: "open generation for mirror upload", Err: err}
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return &IoError{Op: "stat generation for mirror upload", Err: err}
	}

	key := fmt.Sprintf("%s/%s-%d.mdb", m.prefix, generationID, time.Now().UnixNano())
	m.log.Info().Str("key", key).Int64("size", stat.Size()).Msg("uploading compacted generation")

	_, err = m.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("store: remote mirror upload: %w", err)
	}
	return nil
}
