// Package storage publishes merged documents to S3.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// uploader is the part of manager.Uploader the publisher needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher uploads output documents under a key prefix.
type S3Publisher struct {
	up         uploader
	bucketName string
	prefix     string
}

// NewS3Publisher creates a publisher using the default AWS credential chain.
func NewS3Publisher(ctx context.Context, bucketName, prefix string) (*S3Publisher, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &S3Publisher{
		up:         manager.NewUploader(cli),
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

// Bucket returns the target bucket name.
func (p *S3Publisher) Bucket() string { return p.bucketName }

// Key returns the object key for a session's output file.
func (p *S3Publisher) Key(sessionID, localPath string) string {
	return path.Join(p.prefix, sessionID, filepath.Base(localPath))
}

// Publish uploads localPath and returns the object location.
func (p *S3Publisher) Publish(ctx context.Context, sessionID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	key := p.Key(sessionID, localPath)
	start := time.Now()
	out, err := p.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
		Metadata: map[string]string{
			"session-id": sessionID,
			"name":       filepath.Base(localPath),
		},
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("upload to S3 failed")
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	location := out.Location
	if location == "" {
		location = fmt.Sprintf("s3://%s/%s", p.bucketName, key)
	}
	log.Info().
		Str("session_id", sessionID).
		Str("key", key).
		Str("location", location).
		Dur("took", time.Since(start)).
		Msg("output published")
	return location, nil
}
