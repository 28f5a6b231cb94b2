package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/komojini/runpod-worker-comfy/pkg/types"
)

// S3Delivery uploads artifacts to S3/MinIO and returns presigned download
// URLs instead of inline payloads.
type S3Delivery struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	expiry    time.Duration
}

// S3Config holds S3/MinIO connection configuration.
type S3Config struct {
	// Endpoint for MinIO or an S3-compatible store.
	// Leave empty for AWS S3.
	Endpoint string

	// Bucket name. Defaults to the current month ("08-26") when empty.
	Bucket string

	// Region (required for AWS S3, optional for MinIO)
	Region string

	// Credentials
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL enables HTTPS for custom endpoints
	UseSSL bool

	// PresignExpiry controls how long download URLs stay valid (default: 7 days)
	PresignExpiry time.Duration
}

// NewS3Delivery creates a new S3/MinIO delivery backend.
func NewS3Delivery(cfg *S3Config) (*S3Delivery, error) {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = time.Now().UTC().Format("01-06")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1" // Default region for MinIO
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"", // session token (not used for MinIO)
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	presigner := s3.NewPresignClient(client)

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}

	return &S3Delivery{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		expiry:    expiry,
	}, nil
}

// objectKey builds a collision-free key scoped under the job ID.
func objectKey(jobID, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s/%s%s", jobID, uuid.NewString()[:8], ext)
}

func (d *S3Delivery) Deliver(ctx context.Context, jobID string, ref types.ArtifactRef, data []byte) (*types.EncodedArtifact, error) {
	key := objectKey(jobID, ref.Filename)
	contentType := MimeTypeFor(ref.Filename)

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	result, err := d.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(d.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	return &types.EncodedArtifact{
		Data:     result.URL,
		Encoding: "url",
		MimeType: contentType,
		Filename: ref.Filename,
	}, nil
}

func (d *S3Delivery) Name() string { return "s3" }

// Verify interface compliance
var _ Delivery = (*S3Delivery)(nil)
