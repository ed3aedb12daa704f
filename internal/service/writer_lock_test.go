package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admission-ledger-api/internal/models"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisWriterLockExcludesSecondWriter(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ctx := context.Background()

	first := NewRedisWriterLock(client, "ledger:writer", time.Second, 0)
	second := NewRedisWriterLock(client, "ledger:writer", time.Second, 60*time.Millisecond)

	release, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("ledger:writer"))

	_, err = second.Acquire(ctx)
	require.ErrorIs(t, err, ErrConcurrentModification)

	release()
	require.False(t, mr.Exists("ledger:writer"))

	releaseSecond, err := second.Acquire(ctx)
	require.NoError(t, err)
	releaseSecond()
}

func TestRedisWriterLockReleaseKeepsForeignHolder(t *testing.T) {
	mr, client := newMiniredisClient(t)

	lock := NewRedisWriterLock(client, "ledger:writer", 50*time.Millisecond, 0)
	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)

	// The ttl lapses and another process takes the key.
	mr.FastForward(time.Second)
	require.NoError(t, mr.Set("ledger:writer", "someone-else"))

	release()
	value, err := mr.Get("ledger:writer")
	require.NoError(t, err)
	require.Equal(t, "someone-else", value)
}

func TestAdmissionServiceUsesWriterLock(t *testing.T) {
	mr, client := newMiniredisClient(t)
	store := &memoryLedgerStore{}
	svc := newTestLedger(t, store, nil)
	svc.lock = NewRedisWriterLock(client, "ledger:writer", time.Second, 0)

	require.NoError(t, mr.Set("ledger:writer", "other-process"))
	_, err := svc.Admit(context.Background(), anuRequest())
	require.ErrorIs(t, err, ErrConcurrentModification)
	require.Empty(t, store.roster)

	mr.Del("ledger:writer")
	record, err := svc.Admit(context.Background(), anuRequest())
	require.NoError(t, err)
	require.Equal(t, models.StreamBIO, record.Stream)
	require.False(t, mr.Exists("ledger:writer"))
}
