package reports

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Archive stores generated reports and returns a download link.
type Archive interface {
	Store(ctx context.Context, key string, report *Report) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LinkExpiry      time.Duration
}

// S3Archive keeps reports in an S3 compatible bucket (AWS or R2).
type S3Archive struct {
	client    objectPutter
	presigner objectPresigner
	bucket    string
	expiry    time.Duration
	logger    *zap.Logger
}

func NewS3Archive(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else if logger != nil {
		logger.Warn("report archive using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archive(client, s3.NewPresignClient(client), cfg.Bucket, cfg.LinkExpiry, logger), nil
}

func newS3Archive(client objectPutter, presigner objectPresigner, bucket string, expiry time.Duration, logger *zap.Logger) *S3Archive {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Archive{client: client, presigner: presigner, bucket: bucket, expiry: expiry, logger: logger}
}

// Key places a report under reports/{event}/.
func Key(eventID uint, report *Report) string {
	return path.Join("reports", fmt.Sprint(eventID), report.Name)
}

func (a *S3Archive) Store(ctx context.Context, key string, report *Report) (string, error) {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(report.Data),
		ContentType: aws.String(report.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}

	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign report: %w", err)
	}
	a.logger.Info("report archived", zap.String("bucket", a.bucket), zap.String("key", key))
	return req.URL, nil
}
