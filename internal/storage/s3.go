package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Bucket struct {
	client *s3.Client
	name   string
}

func (s *Store) openS3(_ context.Context, bucket string) (Bucket, error) {
	region := firstNonEmpty(s.opts.S3Region, os.Getenv("AWS_REGION"), "us-east-1")
	keyID := firstNonEmpty(s.opts.S3AccessKeyID, os.Getenv("AWS_ACCESS_KEY_ID"))
	secret := firstNonEmpty(s.opts.S3SecretAccessKey, os.Getenv("AWS_SECRET_ACCESS_KEY"))

	opts := s3.Options{
		Region:       region,
		UsePathStyle: s.opts.S3UsePathStyle,
	}
	if keyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(keyID, secret, os.Getenv("AWS_SESSION_TOKEN"))
	}
	if s.opts.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(s.opts.S3Endpoint)
	}
	return &s3Bucket{client: s3.New(opts), name: bucket}, nil
}

func (b *s3Bucket) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		if errors.As(err, &noKey) || errors.As(err, &noBucket) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *s3Bucket) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

func (b *s3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
