package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when PARLEY_REDIS_URL points at a reachable server.
func TestStore(t *testing.T) {
	url := os.Getenv("PARLEY_REDIS_URL")
	if url == "" {
		t.Skip("PARLEY_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := New(ctx, url, "parley:test:"+uuid.NewString()+":")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, "nonce", time.Minute))

	ok, err := s.Exists(ctx, "nonce")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Take(ctx, "nonce")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Take(ctx, "nonce")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(context.Background(), "not a url", "x:")
	assert.Error(t, err)
}
