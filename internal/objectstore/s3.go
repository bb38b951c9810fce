package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	// PublicBaseURL overrides the virtual-hosted bucket URL used for published links.
	PublicBaseURL string
}

// S3Store writes blobs to an S3 bucket with public-read URLs.
type S3Store struct {
	client s3iface.S3API
	cfg    S3Config
}

func NewS3Store(client s3iface.S3API, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

// DialS3 builds a client from the shared AWS config chain.
func DialS3(cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsCfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3Store(s3.New(sess), cfg), nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := ValidateKey(key); err != nil {
		return Object{}, err
	}
	if len(data) == 0 {
		return Object{}, fmt.Errorf("%w: empty payload", ErrInvalid)
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return Object{}, fmt.Errorf("put s3://%s/%s: %w", s.cfg.Bucket, key, classifyS3(err))
	}
	return Object{Key: key, URL: s.publicURL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("get s3://%s/%s: %w", s.cfg.Bucket, key, classifyS3(err))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return data, aws.StringValue(out.ContentType), nil
}

func (s *S3Store) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.cfg.Bucket, key)
}

func classifyS3(err error) error {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusForbidden, http.StatusUnauthorized:
			return errors.Join(ErrPermission, err)
		case http.StatusNotFound:
			if reqErr.Code() == s3.ErrCodeNoSuchKey {
				return errors.Join(ErrNotFound, err)
			}
			return errors.Join(ErrInvalid, err)
		case http.StatusBadRequest:
			return errors.Join(ErrInvalid, err)
		}
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Join(ErrPermission, err)
		case s3.ErrCodeNoSuchBucket, "InvalidBucketName", "InvalidArgument":
			return errors.Join(ErrInvalid, err)
		case s3.ErrCodeNoSuchKey:
			return errors.Join(ErrNotFound, err)
		}
	}
	return err
}
