package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gobeaver/beaver-kit/config"

	"github.com/gobeaver/assemblefs/storage"
)

// Config holds the bucket settings read from the environment
// (BEAVER_ASSEMBLEFS_S3_*).
type Config struct {
	Bucket          string `env:"ASSEMBLEFS_S3_BUCKET"`
	Region          string `env:"ASSEMBLEFS_S3_REGION,default:us-east-1"`
	Prefix          string `env:"ASSEMBLEFS_S3_PREFIX"`
	Endpoint        string `env:"ASSEMBLEFS_S3_ENDPOINT"`
	AccessKeyID     string `env:"ASSEMBLEFS_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"ASSEMBLEFS_S3_SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `env:"ASSEMBLEFS_S3_FORCE_PATH_STYLE,default:false"`
}

func init() {
	storage.RegisterDriver("s3", func(string) (storage.FileSystem, error) {
		cfg := &Config{}
		if err := config.Load(cfg); err != nil {
			return nil, err
		}
		return NewFromConfig(context.Background(), cfg)
	})
}

// NewFromConfig builds an adapter with a client from the default AWS
// credential chain, overridden by any explicit keys in cfg.
func NewFromConfig(ctx context.Context, cfg *Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return New(client, cfg.Bucket, WithPrefix(cfg.Prefix)), nil
}

func newClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}
