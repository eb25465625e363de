package sns

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
)

// Lifecycle manages SNS topic subscriptions through the AWS SDK.
type Lifecycle struct {
	factory ClientFactory
}

// NewLifecycle builds a lifecycle that constructs SNS clients per
// invocation from the supplied credentials.
func NewLifecycle(factory ClientFactory) *Lifecycle {
	return &Lifecycle{factory: factory}
}

// ValidateCredentials lists topics as a lightweight authenticated probe.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	client, err := l.factory(ctx, creds)
	if err != nil {
		return err
	}
	if _, err := client.ListTopics(ctx, &awssns.ListTopicsInput{}); err != nil {
		return apperrors.AuthError("aws rejected the credential: " + err.Error())
	}
	return nil
}

// CreateSubscription subscribes the endpoint to the configured topic. SNS
// completes the handshake asynchronously by POSTing a
// SubscriptionConfirmation to the endpoint, which the dispatcher confirms.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	topicArn, _ := parameters["topic_arn"].(string)
	if topicArn == "" {
		return nil, apperrors.ValidationError("parameter topic_arn is required")
	}

	client, err := l.factory(ctx, creds)
	if err != nil {
		return nil, err
	}

	out, err := client.Subscribe(ctx, &awssns.SubscribeInput{
		TopicArn:              aws.String(topicArn),
		Protocol:              aws.String("https"),
		Endpoint:              aws.String(endpoint),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return nil, apperrors.SubscriptionError("sns subscribe failed: "+err.Error(), "create_failed")
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  trigger.NeverExpires,
		Parameters: parameters,
		Properties: map[string]string{
			"topic_arn":        topicArn,
			"subscription_arn": aws.ToString(out.SubscriptionArn),
		},
	}, nil
}

// RefreshSubscription is a no-op: SNS subscriptions do not expire.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	return sub, nil
}

// DeleteSubscription unsubscribes from the topic. A subscription that SNS
// no longer knows counts as success.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	arn := sub.Properties["subscription_arn"]
	if arn == "" || strings.EqualFold(arn, "pending confirmation") {
		return &trigger.UnsubscribeResult{Success: true, Message: "subscription was never confirmed"}, nil
	}

	client, err := l.factory(ctx, creds)
	if err != nil {
		return nil, err
	}

	if _, err := client.Unsubscribe(ctx, &awssns.UnsubscribeInput{SubscriptionArn: aws.String(arn)}); err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return &trigger.UnsubscribeResult{Success: true, Message: "subscription already removed"}, nil
		}
		return &trigger.UnsubscribeResult{
			Success: false,
			Message: "sns unsubscribe failed: " + err.Error(),
		}, nil
	}
	return &trigger.UnsubscribeResult{Success: true, Message: "unsubscribed"}, nil
}

// FetchParameterOptions lists topic ARNs, following pagination tokens until
// exhausted.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	if parameter != "topic_arn" {
		return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
	}

	client, err := l.factory(ctx, creds)
	if err != nil {
		return nil, err
	}

	var options []trigger.ParameterOption
	var nextToken *string
	for {
		out, err := client.ListTopics(ctx, &awssns.ListTopicsInput{NextToken: nextToken})
		if err != nil {
			return nil, apperrors.SubscriptionError("topic listing failed: "+err.Error(), "options_failed")
		}
		for _, topic := range out.Topics {
			arn := aws.ToString(topic.TopicArn)
			options = append(options, trigger.ParameterOption{Value: arn, Label: topicLabel(arn)})
		}
		nextToken = out.NextToken
		if nextToken == nil {
			return options, nil
		}
	}
}

func topicLabel(arn string) string {
	if i := strings.LastIndex(arn, ":"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
