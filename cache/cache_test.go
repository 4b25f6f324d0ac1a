package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(time.Hour, nil)

	_, err := s.Get(ctx, KindData, "c1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, KindData, "c1", []byte("payload")))
	b, err := s.Get(ctx, KindData, "c1")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), b)

	// Kinds are separate namespaces for the same id.
	_, err = s.Get(ctx, KindStatus, "c1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreTTL(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(time.Minute, nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Put(ctx, KindStatus, "c1", []byte("pending")))
	_, err := s.Get(ctx, KindStatus, "c1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, KindStatus, "c1")
	require.ErrorIs(t, err, ErrNotFound)

	// A rewrite refreshes the expiry.
	require.NoError(t, s.Put(ctx, KindStatus, "c1", []byte("success")))
	b, err := s.Get(ctx, KindStatus, "c1")
	require.NoError(t, err)
	require.Equal(t, []byte("success"), b)
}

func TestLocalStoreCopiesBytes(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(time.Hour, nil)
	b := []byte("abc")
	require.NoError(t, s.Put(ctx, KindConfig, "c1", b))
	b[0] = 'x'
	got, err := s.Get(ctx, KindConfig, "c1")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestKeyLayout(t *testing.T) {
	require.Equal(t, "pivot:data:abc", key("pivot", KindData, "abc"))
}
