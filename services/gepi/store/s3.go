package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Options struct {
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyId     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	Key             string `json:"key"`
}

// S3 keeps the snapshot as one JSON object in a bucket, for deployments
// where the process has no durable disk of its own.
type S3 struct {
	client *s3.Client
	bucket string
	key    string
}

func NewS3(ctx context.Context, opts S3Options) (S3, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyId != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				opts.AccessKeyId, opts.SecretAccessKey, "",
			),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return S3{}, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return S3{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

func (s S3) Load(ctx context.Context) ([]Record, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	contents, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	var records []Record
	err = json.Unmarshal(contents, &records)
	if err != nil {
		return nil, fmt.Errorf(
			"corrupt session snapshot at s3://%s/%s: %w",
			s.bucket, s.key, err,
		)
	}
	return records, nil
}

func (s S3) Save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	contents, err := json.Marshal(records)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(contents),
		ContentType: aws.String("application/json"),
	})
	return err
}
