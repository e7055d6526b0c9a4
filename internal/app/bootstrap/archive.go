package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/crisos/crisos-core/internal/archive"
	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/pkg/logging"
)

// BuildArchiver returns the S3 archive for closed handoff requests, or nil
// when ARCHIVE_S3_BUCKET is unset.
func BuildArchiver(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*archive.Store, error) {
	if cfg == nil || cfg.ArchiveS3Bucket == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Info("handoff archive enabled", "bucket", cfg.ArchiveS3Bucket)
	return archive.NewStore(client, cfg.ArchiveS3Bucket, logger), nil
}
