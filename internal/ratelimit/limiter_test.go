package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, ErrStoreUnavailable
}

func (failingStore) Count(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, ErrStoreUnavailable
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(zap.NewNop(), 0)
	l, err := NewLimiter(store, cfg, zap.NewNop())
	require.NoError(t, err)
	return l, store
}

func TestLimiter_EleventhRequestDenied(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)

	for i := 1; i <= 10; i++ {
		res := l.Allow(context.Background(), "203.0.113.7", "contact", "", now.Add(time.Duration(i)*time.Second))
		require.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, int64(i), res.Count)
	}

	res := l.Allow(context.Background(), "203.0.113.7", "contact", "", now.Add(11*time.Second))
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(11), res.Count)
	assert.Equal(t, int64(10), res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, 15*time.Minute)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, DefaultConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(context.Background(), "198.51.100.1", "contact", "", now).Allowed)
	}
	assert.False(t, l.Allow(context.Background(), "198.51.100.1", "contact", "", now).Allowed)
	assert.True(t, l.Allow(context.Background(), "198.51.100.2", "contact", "", now).Allowed)
	assert.True(t, l.Allow(context.Background(), "198.51.100.1", "newsletter", "", now).Allowed)
}

func TestLimiter_WindowRollover(t *testing.T) {
	cfg := Config{Strategy: StrategyFixed, FailOpen: true, Rules: []Rule{{Scope: ScopeIP, Limit: 2, Window: time.Minute}}}
	l, _ := newTestLimiter(t, cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow(context.Background(), "192.0.2.1", "", "", base.Add(58*time.Second)).Allowed)
	assert.True(t, l.Allow(context.Background(), "192.0.2.1", "", "", base.Add(59*time.Second)).Allowed)
	assert.False(t, l.Allow(context.Background(), "192.0.2.1", "", "", base.Add(59*time.Second+500*time.Millisecond)).Allowed)

	// a request at the boundary belongs to the next window only
	res := l.Allow(context.Background(), "192.0.2.1", "", "", base.Add(time.Minute))
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Count)
}

func TestLimiter_SlidingWeightsPreviousWindow(t *testing.T) {
	cfg := Config{Strategy: StrategySliding, FailOpen: true, Rules: []Rule{{Scope: ScopeIP, Limit: 4, Window: time.Minute}}}
	l, _ := newTestLimiter(t, cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.True(t, l.Allow(context.Background(), "192.0.2.9", "", "", base.Add(50*time.Second)).Allowed)
	}

	// 15s into the next window the previous 4 still weigh 3
	res := l.Allow(context.Background(), "192.0.2.9", "", "", base.Add(75*time.Second))
	assert.True(t, res.Allowed)
	res = l.Allow(context.Background(), "192.0.2.9", "", "", base.Add(75*time.Second))
	assert.False(t, res.Allowed)

	// the fixed strategy would have allowed it
	fixed, _ := newTestLimiter(t, Config{Strategy: StrategyFixed, Rules: cfg.Rules})
	for i := 0; i < 4; i++ {
		fixed.Allow(context.Background(), "192.0.2.9", "", "", base.Add(50*time.Second))
	}
	fixed.Allow(context.Background(), "192.0.2.9", "", "", base.Add(75*time.Second))
	assert.True(t, fixed.Allow(context.Background(), "192.0.2.9", "", "", base.Add(75*time.Second)).Allowed)
}

func TestLimiter_ConcurrentIncrementsAreCounted(t *testing.T) {
	cfg := Config{Rules: []Rule{{Scope: ScopeIP, Limit: 50, Window: time.Hour}}}
	l, store := newTestLimiter(t, cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow(context.Background(), "10.1.1.1", "", "", now).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
	count, err := store.Count(context.Background(), "ip:10.1.1.1", now.Truncate(time.Hour), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(200), count)
}

func TestLimiter_StoreFailure(t *testing.T) {
	rules := []Rule{{Scope: ScopeIP, Limit: 1, Window: time.Minute}}

	open, err := NewLimiter(failingStore{}, Config{FailOpen: true, Rules: rules}, zap.NewNop())
	require.NoError(t, err)
	res := open.Allow(context.Background(), "10.0.0.1", "", "", time.Now())
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)

	closed, err := NewLimiter(failingStore{}, Config{FailOpen: false, Rules: rules}, zap.NewNop())
	require.NoError(t, err)
	res = closed.Allow(context.Background(), "10.0.0.1", "", "", time.Now())
	assert.False(t, res.Allowed)
	assert.True(t, res.Degraded)
}

func TestLimiter_UnreachableRedisFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	store := NewRedisStore(client, "test")
	defer store.Stop()

	l, err := NewLimiter(store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res := l.Allow(ctx, "10.0.0.1", "contact", "", time.Now())
	assert.True(t, res.Allowed)
	assert.True(t, res.Degraded)

	_, err = store.Increment(ctx, "k", time.Now(), time.Minute)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestRule_Key(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
	}{
		{ScopeIP, "ip:1.2.3.4"},
		{ScopeForm, "form:contact"},
		{ScopeIPForm, "ip_form:1.2.3.4|contact"},
		{ScopeAccessKey, "access_key:ak_1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			assert.Equal(t, tt.want, Rule{Scope: tt.scope}.Key("1.2.3.4", "contact", "ak_1"))
		})
	}
	assert.Empty(t, Rule{Scope: ScopeAccessKey}.Key("1.2.3.4", "contact", ""))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Strategy: "leaky"}.Validate())
	assert.Error(t, Config{Rules: []Rule{{Scope: ScopeIP, Limit: 0, Window: time.Minute}}}.Validate())
	assert.Error(t, Config{Rules: []Rule{{Scope: ScopeIP, Limit: 1}}}.Validate())

	_, err := ParseScope("IP_FORM")
	assert.NoError(t, err)
	_, err = ParseScope("country")
	assert.Error(t, err)
}

func TestMemoryStore_Evict(t *testing.T) {
	store := NewMemoryStore(zap.NewNop(), 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _ = store.Increment(context.Background(), "a", base, time.Minute)
	_, _ = store.Increment(context.Background(), "b", base.Add(time.Minute), time.Minute)
	require.Equal(t, 2, store.Len())

	assert.Equal(t, 0, store.Evict(base.Add(90*time.Second)))
	assert.Equal(t, 1, store.Evict(base.Add(2*time.Minute)))
	assert.Equal(t, 1, store.Len())
}
