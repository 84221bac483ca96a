package backend

import (
	"context"
	"fmt"

	// Packages
	aws "github.com/aws/aws-sdk-go-v2/aws"
	config "github.com/aws/aws-sdk-go-v2/config"
	credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3 "github.com/aws/aws-sdk-go-v2/service/s3"
	otelaws "go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	blob "gocloud.dev/blob"
	s3blob "gocloud.dev/blob/s3blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// LoadAWSConfig returns the default AWS configuration with the region,
// credentials and tracing applied from the options. It is shared by the S3
// backend and the SQS notifier.
func LoadAWSConfig(ctx context.Context, opts ...Opt) (aws.Config, error) {
	o, err := apply(nil, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	return o.loadAWSConfig(ctx)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (o *opt) loadAWSConfig(ctx context.Context) (aws.Config, error) {
	var cfg aws.Config
	if o.awsConfig != nil {
		cfg = o.awsConfig.Copy()
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if o.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(o.region))
		}
		switch {
		case o.anonymous:
			loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
		case o.accessKey != "":
			loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, "")))
		}
		if loaded, err := config.LoadDefaultConfig(ctx, loadOpts...); err != nil {
			return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
		} else {
			cfg = loaded
		}
	}

	// Inject tracing middleware only when tracing is enabled
	if o.tracer != nil {
		otelaws.AppendMiddlewares(&cfg.APIOptions)
	}

	// Return success
	return cfg, nil
}

func (b *blobbackend) openS3Bucket(ctx context.Context) (*blob.Bucket, error) {
	cfg, err := b.loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if b.endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(b.endpoint)
		}
		// Without a region an S3-compatible endpoint still needs a value
		if o.Region == "" {
			o.Region = "us-east-1"
		}
	})
	return s3blob.OpenBucket(ctx, client, b.url.Host, nil)
}
