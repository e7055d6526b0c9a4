package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/crisos/crisos-core/internal/config"
	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/internal/notify"
	"github.com/crisos/crisos-core/pkg/logging"
)

// LoadAWSConfig applies static credentials when both keys are set; otherwise
// the default chain is used.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

// BuildAlerter picks the operator alert transport from ALERT_EMAIL_PROVIDER.
// It returns nil when alerts are off or no recipient is configured.
func BuildAlerter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*notify.Alerter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(cfg.AlertEmailTo) == 0 {
		logger.Info("operator alerts disabled; no ALERT_EMAIL_TO")
		return nil, nil
	}

	var sender notify.EmailSender
	switch cfg.AlertEmailProvider {
	case "", "none":
		logger.Info("operator alerts disabled")
		return nil, nil
	case "log":
		sender = notify.NewStubEmailSender(logger)
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.AlertEmailFrom,
			FromName:  cfg.AlertEmailFromName,
		}, logger)
		if sg == nil {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY is required for sendgrid alerts")
		}
		sender = sg
	case "ses":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		sender = notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.AlertEmailFrom,
			FromName:  cfg.AlertEmailFromName,
		}, logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown ALERT_EMAIL_PROVIDER %q", cfg.AlertEmailProvider)
	}

	logger.Info("operator alerts enabled", "provider", cfg.AlertEmailProvider, "recipients", len(cfg.AlertEmailTo))
	return notify.NewAlerter(sender, cfg.AlertEmailTo, logger), nil
}

// BuildSQSClient honours AWS_ENDPOINT_OVERRIDE for LocalStack.
func BuildSQSClient(awsCfg aws.Config, cfg *appconfig.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// BuildAlertDispatch puts a queue in front of alerter. With ALERT_QUEUE_URL
// the alerts go to SQS and no worker is returned (cmd/alert-worker drains
// it); otherwise an in-process queue and a worker that the caller must start
// are returned.
func BuildAlertDispatch(ctx context.Context, cfg *appconfig.Config, alerter *notify.Alerter, logger *logging.Logger) (handoff.Alerter, *notify.AlertWorker, error) {
	if alerter == nil {
		return nil, nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.AlertQueueURL != "" {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		queue := notify.NewSQSQueue(BuildSQSClient(awsCfg, cfg), cfg.AlertQueueURL)
		logger.Info("operator alerts queued to SQS", "queue_url", cfg.AlertQueueURL)
		return notify.NewQueuedAlerter(queue, logger), nil, nil
	}
	queue := notify.NewMemoryQueue(0)
	worker := notify.NewAlertWorker(queue, alerter, logger,
		notify.WithWorkerCount(cfg.AlertWorkerCount),
		notify.WithReceiveWaitSeconds(1),
	)
	return notify.NewQueuedAlerter(queue, logger), worker, nil
}
