package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/retroquest/storefront-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "retroquest-prod"}

	assert.Equal(t, "projects/retroquest-prod/topics/rq-order-events", c.topicResourceName("rq-order-events"))
	assert.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	assert.Empty(t, c.topicResourceName("  "))
	assert.Empty(t, (&Client{}).topicResourceName("orders"))
}

func TestSubscriptionResourceName(t *testing.T) {
	c := &Client{projectID: "retroquest-prod"}

	assert.Equal(t, "projects/retroquest-prod/subscriptions/rq-order-events-notifications", c.subscriptionResourceName("rq-order-events-notifications"))
	assert.Equal(t, "projects/other/subscriptions/x", c.subscriptionResourceName("projects/other/subscriptions/x"))
	assert.Empty(t, c.subscriptionResourceName(""))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "orders"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("orders"))
	assert.Nil(t, c.Subscriber("notifications"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestNewClientRequiresTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "retroquest-dev"}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errNoTopic)
}

func TestNilClientCannotCheckSubscription(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.CheckSubscription(context.Background(), "notifications"), errNotInitialized)
	assert.ErrorIs(t, (&Client{projectID: "p"}).CheckSubscription(context.Background(), "n"), errNotInitialized)
}

func TestDescribeLookupNamesMissingResource(t *testing.T) {
	err := describeLookup(subscriptions, "projects/p/subscriptions/n", status.Error(codes.NotFound, "nope"))
	assert.EqualError(t, err, "subscription projects/p/subscriptions/n does not exist")
	assert.NoError(t, describeLookup(topics, "projects/p/topics/t", nil))
}
