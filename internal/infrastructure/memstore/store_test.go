package memstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestStore_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := New(WithClock(clk.Now))

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	require.NoError(t, s.Expire(ctx, "k", 2*time.Second))
	clk.Advance(3 * time.Second)

	exists, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	v, ok, err := s.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = s.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", "123456", time.Minute))

	ok, err := s.CompareAndDelete(ctx, "k", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, _ := s.Get(ctx, "k")
	assert.True(t, found)
	assert.Equal(t, "123456", v)

	ok, err = s.CompareAndDelete(ctx, "k", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k"))
}

func TestStore_CompareAndDelete_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, "k", "123456", time.Minute))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.CompareAndDelete(ctx, "k", "123456"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
