// Package storage mirrors spreadsheet artifacts to S3 when a destination is
// written as s3://bucket/prefix.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/punchlist-monitor/internal/config"
)

// ErrNotS3 is returned by ParseURI for destinations that are not s3:// URIs.
var ErrNotS3 = errors.New("storage: not an s3 uri")

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Location is a parsed s3://bucket/prefix destination.
type Location struct {
	Bucket string
	Prefix string
}

// Key joins the prefix and a file name into an object key.
func (l Location) Key(name string) string {
	if l.Prefix == "" {
		return name
	}
	return path.Join(l.Prefix, name)
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Prefix
}

// IsS3 reports whether dest names an S3 destination.
func IsS3(dest string) bool {
	return strings.HasPrefix(strings.ToLower(dest), "s3://")
}

// ParseURI parses s3://bucket/optional/prefix.
func ParseURI(dest string) (Location, error) {
	if !IsS3(dest) {
		return Location{}, fmt.Errorf("%w: %q", ErrNotS3, dest)
	}
	u, err := url.Parse(dest)
	if err != nil {
		return Location{}, fmt.Errorf("parsing %q: %w", dest, err)
	}
	if u.Host == "" {
		return Location{}, fmt.Errorf("storage: missing bucket in %q", dest)
	}
	return Location{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/")}, nil
}

// S3Store writes and reads artifacts in S3.
type S3Store struct {
	client ObjectAPI
}

// NewS3Store wraps an existing client.
func NewS3Store(client ObjectAPI) *S3Store {
	return &S3Store{client: client}
}

// NewS3StoreFromConfig builds the S3 client from the default credential
// chain, optionally pinned to a shared profile.
func NewS3StoreFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if profile := cfg.GetAWSProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(awsCfg)), nil
}

// Put uploads data under name at the destination URI and returns the full
// object URI.
func (s *S3Store) Put(ctx context.Context, dest, name, contentType string, data []byte) (string, error) {
	loc, err := ParseURI(dest)
	if err != nil {
		return "", err
	}
	key := loc.Key(name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading s3://%s/%s: %w", loc.Bucket, key, err)
	}
	return "s3://" + loc.Bucket + "/" + key, nil
}

// Get downloads name from the destination URI.
func (s *S3Store) Get(ctx context.Context, dest, name string) ([]byte, error) {
	loc, err := ParseURI(dest)
	if err != nil {
		return nil, err
	}
	key := loc.Key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", loc.Bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
