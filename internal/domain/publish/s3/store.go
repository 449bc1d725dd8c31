package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const modelContentType = "model/gltf-binary"

type Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
	Timeout      time.Duration
}

// API is the subset of the S3 client the store uses.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store publishes to a bucket. The object ETag is the version identifier and
// writes are conditional on it, so a concurrent writer causes a failure
// instead of a silent overwrite.
type Store struct {
	api    API
	bucket string
}

// New builds an S3 client from static credentials. An empty access key falls
// back to anonymous credentials, which suits local S3-compatible servers.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := s3.Options{
		Region:                     cfg.Region,
		UsePathStyle:               cfg.UsePathStyle,
		HTTPClient:                 &http.Client{Timeout: cfg.Timeout},
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
	}

	return NewWithAPI(s3.New(opts), cfg.Bucket), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

func (s *Store) ProviderName() string { return "s3" }

func key(path string) string {
	return strings.TrimLeft(path, "/")
}

func (s *Store) Lookup(ctx context.Context, path string) (string, bool, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("head s3://%s/%s: %s", s.bucket, key(path), describe(err))
	}
	return aws.ToString(out.ETag), true, nil
}

func (s *Store) Put(ctx context.Context, path string, content []byte, priorVersion string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key(path)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(modelContentType),
	}
	if priorVersion != "" {
		in.IfMatch = aws.String(priorVersion)
	} else {
		in.IfNoneMatch = aws.String("*")
	}

	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %s", s.bucket, key(path), describe(err))
	}
	return aws.ToString(out.ETag), nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return fmt.Sprintf("%s: %s", apiErr.ErrorCode(), msg)
		}
		return apiErr.ErrorCode()
	}
	return err.Error()
}
