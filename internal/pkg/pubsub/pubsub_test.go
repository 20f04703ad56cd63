package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type testEvent struct {
	Id string `json:"id"`
}

func (testEvent) GetEventTopicName() string { return "test.events" }

type orderedEvent struct {
	Id  string `json:"id"`
	Seq int    `json:"seq"`
}

func (orderedEvent) GetEventTopicName() string { return "test.ordered" }

func (e orderedEvent) GetOrderingKey() string { return e.Id }

func newTestClient(t *testing.T) (*Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(context.Background(), "escrow-test",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	require.NoError(t, err)

	c := newClient(client)
	t.Cleanup(func() { _ = c.Close() })
	return c, srv
}

func TestEncodeMessage(t *testing.T) {
	data, err := encodeMessage(testEvent{Id: "g1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"g1"}`, string(data))

	data, err = encodeMessage("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", string(data))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestPublishKeepsOrderPerKey(t *testing.T) {
	c, srv := newTestClient(t)

	const events = 5
	for i := 0; i < events; i++ {
		c.Publish(context.Background(), orderedEvent{Id: "g1", Seq: i})
	}

	require.Eventually(t, func() bool { return len(srv.Messages()) == events }, 5*time.Second, 10*time.Millisecond)

	for i, m := range srv.Messages() {
		var e orderedEvent
		require.NoError(t, json.Unmarshal(m.Data, &e))
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, "g1", m.OrderingKey)
	}
}

func TestPublishReusesTopic(t *testing.T) {
	c, srv := newTestClient(t)

	c.Publish(context.Background(), testEvent{Id: "g1"})
	c.Publish(context.Background(), testEvent{Id: "g2"})

	require.Eventually(t, func() bool { return len(srv.Messages()) == 2 }, 5*time.Second, 10*time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.topics, 1)
	for _, m := range srv.Messages() {
		assert.Empty(t, m.OrderingKey)
	}
}
