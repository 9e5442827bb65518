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
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/bukkus/bukkus-backend/pkg/config"
	"github.com/bukkus/bukkus-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client owns the domain-events topic and the two fan-out subscriptions
// (notifications and analytics) hanging off it.
type Client struct {
	client  *pubsub.Client
	project string
	cfg     config.PubSubConfig
	logg    *logger.Logger
}

// NewClient connects and verifies the subscriptions exist. With AutoCreate a
// missing topic or subscription is provisioned instead.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: ps, project: project, cfg: cfg, logg: logg}

	if cfg.AutoCreate {
		err = c.provision(ctx)
	} else {
		err = c.verify(ctx)
	}
	if err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project", project), "pubsub.connected")
	}
	return c, nil
}

func (c *Client) subscriptionIDs() []string {
	ids := make([]string, 0, 2)
	for _, id := range []string{c.cfg.NotificationSubscription, c.cfg.AnalyticsSubscription} {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Client) verify(ctx context.Context) error {
	ids := c.subscriptionIDs()
	if len(ids) == 0 {
		return errNoSubscriptions
	}
	for _, id := range ids {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resource("subscriptions", id),
		})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("subscription %q does not exist", id)
		case err != nil:
			return fmt.Errorf("checking subscription %q: %w", id, err)
		}
	}
	return nil
}

// provision creates the domain topic and its subscriptions when they are
// missing. Existing resources are left untouched.
func (c *Client) provision(ctx context.Context) error {
	topic := c.resource("topics", c.cfg.DomainTopic)
	if topic == "" {
		return errors.New("pubsub domain topic is required")
	}
	_, err := c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %q: %w", c.cfg.DomainTopic, err)
	}

	ids := c.subscriptionIDs()
	if len(ids) == 0 {
		return errNoSubscriptions
	}
	for _, id := range ids {
		sub := &pubsubpb.Subscription{
			Name:                  c.resource("subscriptions", id),
			Topic:                 topic,
			AckDeadlineSeconds:    int32(c.cfg.AckDeadline.Seconds()),
			RetryPolicy:           &pubsubpb.RetryPolicy{MinimumBackoff: durationpb.New(c.cfg.AckDeadline / 3)},
			EnableMessageOrdering: true,
		}
		_, err := c.client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("creating subscription %q: %w", id, err)
		}
	}
	return nil
}

// Subscription returns a receiver for a subscription id or full resource name.
func (c *Client) Subscription(id string) *pubsub.Subscriber {
	name := c.resource("subscriptions", id)
	if name == "" || c.client == nil {
		return nil
	}
	return c.client.Subscriber(name)
}

func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns a publisher for a topic id or full resource name. The
// outbox publisher sets an ordering key per aggregate, so ordering is enabled.
func (c *Client) Publisher(id string) *pubsub.Publisher {
	name := c.resource("topics", id)
	if name == "" || c.client == nil {
		return nil
	}
	p := c.client.Publisher(name)
	p.EnableMessageOrdering = true
	return p
}

// Ping re-checks the subscriptions.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resource expands an id to projects/<project>/<kind>/<id>. Names that are
// already fully qualified are returned as is.
func (c *Client) resource(kind, id string) string {
	if c == nil {
		return ""
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + kind + "/" + id
}
