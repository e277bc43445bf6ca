package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderLockIsExclusive(t *testing.T) {
	// Integration test - requires a local redis.
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	acquired, err := client.AcquireOrderLock(ctx, "ORD-IT-1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	again, err := client.AcquireOrderLock(ctx, "ORD-IT-1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, again, "second acquire must fail while the lock is held")

	require.NoError(t, client.ReleaseOrderLock(ctx, "ORD-IT-1"))
	released, err := client.AcquireOrderLock(ctx, "ORD-IT-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestIdempotencyKeyRoundTrip(t *testing.T) {
	t.Skip("Integration test - requires redis")

	client, err := NewClient("localhost:6379", "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	missing, err := client.GetIdempotencyKey(ctx, "cancel:ORD-IT-1:req-1")
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, client.SetIdempotencyKey(ctx,
		"cancel:ORD-IT-1:req-1", `{"settlement":null}`, time.Minute))

	stored, err := client.GetIdempotencyKey(ctx, "cancel:ORD-IT-1:req-1")
	require.NoError(t, err)
	assert.Equal(t, `{"settlement":null}`, stored)
}
