package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub orders topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type resourceKind string

const (
	topics        resourceKind = "topics"
	subscriptions resourceKind = "subscriptions"
)

// Client wraps the Pub/Sub v2 client for the orders topic and the
// notifications subscription. Short ids are expanded against the project.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and fails fast when the orders topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.OrdersTopic) == "" {
		return nil, errNoTopic
	}
	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topic": cfg.OrdersTopic}), "pubsub connected")
	}
	return c, nil
}

func (c *Client) resourceName(kind resourceKind, name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + string(kind) + "/" + name
}

func (c *Client) topicResourceName(name string) string {
	return c.resourceName(topics, name)
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resourceName(subscriptions, name)
}

// Publisher returns a handle for topic, or nil when it cannot be resolved.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	full := c.topicResourceName(topic)
	if full == "" || c.client == nil {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) OrdersPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.OrdersTopic)
}

// Subscriber returns a handle for subscription with flow control applied.
func (c *Client) Subscriber(subscription string) *pubsub.Subscriber {
	full := c.subscriptionResourceName(subscription)
	if full == "" || c.client == nil {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstandingMessages
	}
	return sub
}

func (c *Client) NotificationsSubscriber() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.NotificationsSubscription)
}

// Ping confirms the orders topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	full := c.topicResourceName(c.cfg.OrdersTopic)
	if full == "" {
		return errNoTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	return describeLookup(topics, full, err)
}

// CheckSubscription confirms subscription exists, for workers to call before receiving.
func (c *Client) CheckSubscription(ctx context.Context, subscription string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	full := c.subscriptionResourceName(subscription)
	if full == "" {
		return fmt.Errorf("subscription %q cannot be resolved", subscription)
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	return describeLookup(subscriptions, full, err)
}

func describeLookup(kind resourceKind, full string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", strings.TrimSuffix(string(kind), "s"), full)
	default:
		return fmt.Errorf("look up %s: %w", full, err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
