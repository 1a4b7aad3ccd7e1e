package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server: REDIS_TEST_URL=redis://localhost:6379/15
func TestKVStore_Integration(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	ctx := context.Background()
	client, err := Open(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	ns := "dosebot-test-" + uuid.NewString() + ":"
	s := NewKVStore(client, ns)

	v, err := s.Get(ctx, "reminder:preferences")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "reminder:triggers:a", []byte("[1]")))
	require.NoError(t, s.Set(ctx, "reminder:triggers:b", []byte("[2]")))
	require.NoError(t, s.Set(ctx, "reminder:preferences", []byte("{}")))

	v, err = s.Get(ctx, "reminder:triggers:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("[1]"), v)

	keys, err := s.Keys(ctx, "reminder:triggers:")
	require.NoError(t, err)
	assert.Equal(t, []string{"reminder:triggers:a", "reminder:triggers:b"}, keys)

	for _, k := range []string{"reminder:triggers:a", "reminder:triggers:b", "reminder:preferences"} {
		require.NoError(t, s.Delete(ctx, k))
	}
	keys, err = s.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "not-a-url://")
	assert.Error(t, err)
}
