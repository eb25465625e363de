package gmail

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "triggerhub/internal/common/errors"
)

// PushAuth configures OIDC authentication on a push subscription: Pub/Sub
// mints identity tokens as ServiceAccount with Audience on every delivery.
// A zero value leaves the push unauthenticated.
type PushAuth struct {
	ServiceAccount string
	Audience       string
}

// TopicProvisioner manages the Pub/Sub resources behind a Gmail watch: the
// shared notification topic and one push subscription per trigger
// subscription.
type TopicProvisioner interface {
	// EnsureTopic creates the topic if absent and returns its fully
	// qualified name for users.watch.
	EnsureTopic(ctx context.Context, topicID string) (string, error)
	// EnsurePushSubscription points a push subscription at the endpoint,
	// with OIDC delivery tokens when auth is configured.
	EnsurePushSubscription(ctx context.Context, topicID, subID, endpoint string, auth PushAuth) error
	// RemovePushSubscription deletes a push subscription; absent is fine.
	RemovePushSubscription(ctx context.Context, subID string) error
	// RemoveTopicIfUnused deletes the topic when no subscriptions remain.
	RemoveTopicIfUnused(ctx context.Context, topicID string) error
}

// PubSubProvisioner implements TopicProvisioner on a real Pub/Sub client.
type PubSubProvisioner struct {
	client    *pubsub.Client
	projectID string
}

// NewPubSubProvisioner connects to Pub/Sub in the given project.
func NewPubSubProvisioner(ctx context.Context, projectID string, opts ...option.ClientOption) (*PubSubProvisioner, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, apperrors.SubscriptionError("failed to connect to pub/sub: "+err.Error(), "pubsub_failed")
	}
	return &PubSubProvisioner{client: client, projectID: projectID}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *PubSubProvisioner) EnsureTopic(ctx context.Context, topicID string) (string, error) {
	topic := p.client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return "", apperrors.SubscriptionError("failed to check topic: "+err.Error(), "pubsub_failed")
	}
	if !exists {
		if _, err := p.client.CreateTopic(ctx, topicID); err != nil {
			return "", apperrors.SubscriptionError("failed to create topic: "+err.Error(), "pubsub_failed")
		}
	}
	return fmt.Sprintf("projects/%s/topics/%s", p.projectID, topicID), nil
}

// EnsurePushSubscription creates the push subscription if it does not exist
// yet.
func (p *PubSubProvisioner) EnsurePushSubscription(ctx context.Context, topicID, subID, endpoint string, auth PushAuth) error {
	sub := p.client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return apperrors.SubscriptionError("failed to check subscription: "+err.Error(), "pubsub_failed")
	}
	if exists {
		return nil
	}
	push := pubsub.PushConfig{Endpoint: endpoint}
	if auth.ServiceAccount != "" {
		push.AuthenticationMethod = &pubsub.OIDCToken{
			ServiceAccountEmail: auth.ServiceAccount,
			Audience:            auth.Audience,
		}
	}
	_, err = p.client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{
		Topic:      p.client.Topic(topicID),
		PushConfig: push,
	})
	if err != nil {
		return apperrors.SubscriptionError("failed to create push subscription: "+err.Error(), "pubsub_failed")
	}
	return nil
}

// RemovePushSubscription deletes the push subscription if present.
func (p *PubSubProvisioner) RemovePushSubscription(ctx context.Context, subID string) error {
	sub := p.client.Subscription(subID)
	exists, err := sub.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	return sub.Delete(ctx)
}

// RemoveTopicIfUnused deletes the topic when nothing subscribes to it.
func (p *PubSubProvisioner) RemoveTopicIfUnused(ctx context.Context, topicID string) error {
	topic := p.client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil || !exists {
		return err
	}
	it := topic.Subscriptions(ctx)
	switch _, err := it.Next(); {
	case err == nil:
		// Still in use.
		return nil
	case errors.Is(err, iterator.Done):
		return topic.Delete(ctx)
	default:
		return err
	}
}

// Close releases the underlying client.
func (p *PubSubProvisioner) Close() error {
	return p.client.Close()
}
