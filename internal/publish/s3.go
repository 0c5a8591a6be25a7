package publish

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dashpull/dashpull/internal/http"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// S3Options configures an S3Publisher. Without static keys the default AWS
// credential chain is used.
type S3Options struct {
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string

	// Endpoint overrides the service endpoint (S3-compatible stores) and
	// switches to path-style addressing.
	Endpoint string
}

// S3Publisher uploads files to a bucket.
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
	retry  http.RetryConfig
}

// NewS3Publisher loads AWS configuration and creates the S3 client on httpClient.
func NewS3Publisher(ctx context.Context, opts S3Options, httpClient *nethttp.Client) (*S3Publisher, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if httpClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(awsHTTPClient{httpClient}))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Publisher{client: client, bucket: opts.Bucket, prefix: opts.Prefix, retry: http.DefaultRetryConfig()}, nil
}

// Name implements FilePublisher.
func (p *S3Publisher) Name() string { return "s3" }

// Upload puts localPath at prefix/runID/<base name>.
func (p *S3Publisher) Upload(ctx context.Context, runID, localPath string) (string, error) {
	key := ObjectKey(p.prefix, runID, localPath)

	err := http.ExecuteWithRetry(ctx, p.retry, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(info.Size()),
			ContentType:   aws.String(xlsxContentType),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", p.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
