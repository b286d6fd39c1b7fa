package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-tenancy-api/pkg/metrics"
)

func newTestConsumer(t *testing.T, stream Stream) (*Consumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewConsumer(client, ConsumerConfig{Stream: stream, Group: "test-group", ConsumerName: "worker-1"}), mr
}

func TestConsumer_MoveToDLQ(t *testing.T) {
	c, mr := newTestConsumer(t, "stream:test:dlq")
	ctx := context.Background()

	c.moveToDLQ(ctx, &Message{ID: "m1", Type: MessageTypeAuditEvent}, errors.New("kafka unavailable"))

	entries, err := mr.Stream("dlq:stream:test:dlq")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var dlq struct {
		OriginalStream string  `json:"original_stream"`
		Data           Message `json:"data"`
		Error          string  `json:"error"`
	}
	require.Equal(t, "data", entries[0].Values[0])
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values[1]), &dlq))
	assert.Equal(t, "stream:test:dlq", dlq.OriginalStream)
	assert.Equal(t, "m1", dlq.Data.ID)
	assert.Equal(t, "kafka unavailable", dlq.Error)
}

func TestConsumer_RecordDLQDepth(t *testing.T) {
	stream := Stream("stream:test:depth")
	c, mr := newTestConsumer(t, stream)
	ctx := context.Background()
	gauge := metrics.RedisStreamDLQDepth.WithLabelValues(string(stream))

	n, err := c.DLQLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	c.recordDLQDepth(ctx)
	assert.Zero(t, testutil.ToFloat64(gauge))

	for _, id := range []string{"m1", "m2"} {
		c.moveToDLQ(ctx, &Message{ID: id, Type: MessageTypeAuditEvent}, errors.New("handler failed"))
	}
	n, err = c.DLQLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	c.recordDLQDepth(ctx)
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	// Redis 不可用时保留上一次的读数
	mr.Close()
	c.recordDLQDepth(ctx)
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))
}
