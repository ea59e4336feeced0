package payment_test

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"eventpass/internal/payment"
)

// TestRedisEventCacheIntegration runs the dedup cache against a real Redis
// container. Skipped in short mode.
func TestRedisEventCacheIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	cache := payment.NewRedisEventCache(client)

	seen, err := cache.Processed(ctx, "evt_integration_1")
	require.NoError(t, err)
	assert.False(t, seen, "unrecorded event must not read as processed")

	first, err := cache.MarkProcessed(ctx, "evt_integration_1")
	require.NoError(t, err)
	assert.True(t, first, "first record must win the SETNX")

	seen, err = cache.Processed(ctx, "evt_integration_1")
	require.NoError(t, err)
	assert.True(t, seen, "recorded event must read as processed")

	again, err := cache.MarkProcessed(ctx, "evt_integration_1")
	require.NoError(t, err)
	assert.False(t, again, "duplicate record must be recognized")

	other, err := cache.Processed(ctx, "evt_integration_2")
	require.NoError(t, err)
	assert.False(t, other, "distinct event IDs do not collide")

	ttl, err := client.TTL(ctx, "webhook_event:evt_integration_1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl.Seconds(), 0.0, "dedup entries must expire")
}
