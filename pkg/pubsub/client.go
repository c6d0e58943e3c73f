package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotConnected      = errors.New("pubsub client not initialized")
)

type topicAdmin interface {
	GetTopic(ctx context.Context, req *pubsubpb.GetTopicRequest, opts ...gax.CallOption) (*pubsubpb.Topic, error)
}

// Client hands out one long-lived publisher per topic. Topics are never
// created here; provisioning owns them and a missing topic is a startup error.
type Client struct {
	ps      *pubsub.Client
	admin   topicAdmin
	project string
	topics  []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := newClient(ps, ps.TopicAdminClient, project, cfg)
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", c.topics), "pubsub client initialized")
	}
	return c, nil
}

func newClient(ps *pubsub.Client, admin topicAdmin, project string, cfg config.PubSubConfig) *Client {
	var topics []string
	for _, name := range []string{cfg.PaymentsTopic} {
		if name = strings.TrimSpace(name); name != "" {
			topics = append(topics, resourceName(project, name))
		}
	}
	return &Client{
		ps:         ps,
		admin:      admin,
		project:    project,
		topics:     topics,
		publishers: map[string]*pubsub.Publisher{},
	}
}

// Ping confirms every configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotConnected
	}
	if len(c.topics) == 0 {
		return errNoTopics
	}
	for _, topic := range c.topics {
		if _, err := c.admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("topic %s does not exist", topic)
			}
			return fmt.Errorf("checking topic %s: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns the cached publisher for a short topic id or a full
// resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.ps == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	full := resourceName(c.project, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.ps.Publisher(full)
	c.publishers[full] = pub
	return pub
}

// Close flushes outstanding publishes before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.ps.Close()
}

func resourceName(project, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	return "projects/" + project + "/topics/" + name
}
