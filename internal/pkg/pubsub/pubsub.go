package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog/log"
)

// Publishable is any message that knows the topic it belongs to.
type Publishable interface {
	GetEventTopicName() string
}

type SubscriptionHandler struct {
	SubscriptionId string
	Handler        func(ctx context.Context, message *pubsub.Message)
}

// Orderable messages sharing a key are delivered in publish order.
type Orderable interface {
	GetOrderingKey() string
}

const topicLookupTimeout = 10 * time.Second

type Client struct {
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewClient(ctx context.Context, projectID string) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("pub sub missing projectID to initialize")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("initializing pub sub connection: %w", err)
	}
	log.Info().Str("projectId", projectID).Msg("Successful pubsub init")
	return newClient(client), nil
}

func newClient(client *pubsub.Client) *Client {
	return &Client{client: client, topics: make(map[string]*pubsub.Topic)}
}

// Subscribe blocks receiving messages until ctx is done.
func (c *Client) Subscribe(ctx context.Context, subscriptionHandler SubscriptionHandler) {
	sub := c.client.Subscription(subscriptionHandler.SubscriptionId)
	err := sub.Receive(ctx, subscriptionHandler.Handler)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Subscriber error for sub id %s", subscriptionHandler.SubscriptionId))
	}
}

// Publish queues message on its topic and returns without waiting for the
// server. Calls for the same ordering key keep their order.
func (c *Client) Publish(ctx context.Context, message Publishable) {
	topicName := message.GetEventTopicName()
	t := c.getTopic(ctx, topicName)
	if t == nil {
		return
	}

	data, err := encodeMessage(message)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Failed to encode message for %s", topicName))
		return
	}

	msg := &pubsub.Message{Data: data}
	if o, ok := message.(Orderable); ok {
		msg.OrderingKey = o.GetOrderingKey()
	}

	result := t.Publish(ctx, msg)
	go func() {
		if _, err := result.Get(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("orderingKey", msg.OrderingKey).Msg(fmt.Sprintf("Failed to publish message for %s", topicName))
			if msg.OrderingKey != "" {
				t.ResumePublish(msg.OrderingKey)
			}
		}
	}()
}

func (c *Client) Close() error {
	c.mu.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.topics = make(map[string]*pubsub.Topic)
	c.mu.Unlock()

	return c.client.Close()
}

func (c *Client) getTopic(ctx context.Context, topicName string) *pubsub.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.topics[topicName]; ok {
		return t
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), topicLookupTimeout)
	defer cancel()

	t := c.client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Cant check topic %s", topicName))
		return nil
	}
	if !exists {
		log.Info().Msg(fmt.Sprintf("Topic %s does not exist. Creating new", topicName))
		t, err = c.client.CreateTopic(ctx, topicName)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Cant create topic %s", topicName))
			return nil
		}
	}

	t.EnableMessageOrdering = true
	c.topics[topicName] = t
	return t
}

func encodeMessage(message any) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	default:
		return json.Marshal(message)
	}
}
