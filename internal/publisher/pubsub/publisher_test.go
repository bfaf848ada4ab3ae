package pubsub_test

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

	publisher "github.com/JakeFAU/weblog-normalizer/internal/publisher/pubsub"
)

func fakeClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishDeliversJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := fakeClient(t)
	topic, err := client.CreateTopic(ctx, "runs")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "runs-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := publisher.New(client, nil)
	id, err := p.Publish(ctx, "runs", map[string]any{"status": "success", "rows": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got := make(chan *pubsub.Message, 1)
	rctx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case got <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-got:
		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "application/json", msg.Attributes["content-type"])
	case <-ctx.Done():
		t.Fatal("message not received")
	}
	require.NoError(t, p.Close())
}

func TestPublishRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	p := publisher.New(fakeClient(t), nil)

	_, err := p.Publish(ctx, "", "x")
	require.Error(t, err)
	_, err = p.Publish(ctx, "runs", func() {})
	require.ErrorContains(t, err, "marshal payload")

	var nilPub *publisher.Publisher
	_, err = nilPub.Publish(ctx, "runs", "x")
	require.Error(t, err)
}
