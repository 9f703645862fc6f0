package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/google/uuid"
)

// SnapshotStore keeps export snapshots somewhere durable and hands back a
// download URL for them.
type SnapshotStore interface {
	Save(ctx context.Context, key string, body []byte) (string, error)
}

const snapshotLinkValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3SnapshotStore writes snapshots to an S3 compatible bucket (MinIO in
// development).
type S3SnapshotStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3SnapshotStore(ctx context.Context, cfg *sc.Config) (*S3SnapshotStore, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3SnapshotStore{
		client:  client,
		presign: newS3PresignClient(client),
		bucket:  cfg.S3Bucket,
	}, nil
}

// Save uploads body under key and returns a presigned GET URL for it.
func (s *S3SnapshotStore) Save(ctx context.Context, key string, body []byte) (string, error) {
	_, err := putObject(s.client, ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(snapshotLinkValidity))
	if err != nil {
		return "", fmt.Errorf("presign snapshot: %w", err)
	}

	return req.URL, nil
}

// SnapshotKey names a snapshot object after the day it was taken.
func SnapshotKey(t time.Time) string {
	return fmt.Sprintf("exports/%04d/%02d/%02d/%v.json", t.Year(), t.Month(), t.Day(), uuid.New())
}
