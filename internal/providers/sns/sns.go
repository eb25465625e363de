// Package sns adapts Amazon SNS HTTPS subscriptions: the
// SubscriptionConfirmation handshake, notification dispatch, and
// subscribe/unsubscribe lifecycle through the AWS SDK.
package sns

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "sns"

const messageTypeHeader = "X-Amz-Sns-Message-Type"

// API is the slice of the SNS client this adapter uses.
type API interface {
	Subscribe(ctx context.Context, params *awssns.SubscribeInput, optFns ...func(*awssns.Options)) (*awssns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, params *awssns.UnsubscribeInput, optFns ...func(*awssns.Options)) (*awssns.UnsubscribeOutput, error)
	ListTopics(ctx context.Context, params *awssns.ListTopicsInput, optFns ...func(*awssns.Options)) (*awssns.ListTopicsOutput, error)
}

// ClientFactory builds an SNS client from per-invocation credentials.
type ClientFactory func(ctx context.Context, creds trigger.Credentials) (API, error)

// DefaultClientFactory builds a real SNS client from an access key pair.
// The key ID rides in APIKey; the secret and region ride in Extra.
func DefaultClientFactory(ctx context.Context, creds trigger.Credentials) (API, error) {
	secret := creds.Extra["secret_access_key"]
	region := creds.Extra["region"]
	if creds.APIKey == "" || secret == "" || region == "" {
		return nil, apperrors.ValidationError("sns requires access key id, secret_access_key and region credentials")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(creds.APIKey, secret, "")),
	)
	if err != nil {
		return nil, apperrors.ConfigError("failed to assemble aws config: " + err.Error())
	}
	return awssns.NewFromConfig(cfg), nil
}

// Register installs the SNS dispatcher, lifecycle and projector.
func Register(reg *trigger.Registry, factory ClientFactory) error {
	if factory == nil {
		factory = DefaultClientFactory
	}
	if err := reg.RegisterProvider(Provider, NewDispatcher(nil), NewLifecycle(factory)); err != nil {
		return err
	}
	return reg.RegisterEvent(Provider, "sns_notification", trigger.ProjectorFunc(projectNotification))
}
