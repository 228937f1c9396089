package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func TestKey(t *testing.T) {
	assert.Equal(t, "7203|prices|2025-01-01|2025-06-02", Key("7203", "prices", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), t0))
}

func TestMemory_ConcurrentReadersAndWriters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Put(ctx, Entry{Key: "k", Payload: []byte(fmt.Sprintf("v%d", i))}))
		}(i)
		go func() {
			defer wg.Done()
			if e, ok, err := m.Get(ctx, "k"); assert.NoError(t, err) && ok {
				assert.Regexp(t, `^v\d+$`, string(e.Payload))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Len())
}

func TestMemory_PutCopiesPayload(t *testing.T) {
	m := NewMemory()
	payload := []byte("abc")
	require.NoError(t, m.Put(context.Background(), Entry{Key: "k", Payload: payload}))
	payload[0] = 'x'
	e, ok, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(e.Payload))
}

func TestSQLite_RoundTripUpsertAndPurge(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, Entry{Key: "k", Kind: "prices", FetchedAt: t0, Payload: []byte("one")}))
	require.NoError(t, s.Put(ctx, Entry{Key: "k", Kind: "prices", FetchedAt: t0.Add(time.Hour), Payload: []byte("two")}))

	e, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(e.Payload))
	assert.Equal(t, t0.Add(time.Hour).Unix(), e.FetchedAt.Unix())

	n, err := s.Purge(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLayered_PromotesBackHits(t *testing.T) {
	front, back := NewMemory(), NewMemory()
	l := Layered{Front: front, Back: back}
	ctx := context.Background()
	require.NoError(t, back.Put(ctx, Entry{Key: "k", Payload: []byte("v")}))

	e, ok, err := l.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(e.Payload))
	assert.Equal(t, 1, front.Len())
}
