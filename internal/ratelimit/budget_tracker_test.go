package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 250*int(time.Millisecond), time.UTC)

func newTestBudget(t *testing.T, total, reserved int) (*CallBudget, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	budget, err := NewCallBudget(&CallBudgetConfig{
		Redis:          client,
		TotalBudget:    total,
		ReservedBudget: reserved,
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return budget, mr
}

func TestNewCallBudget_Validation(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	tests := []struct {
		name    string
		cfg     *CallBudgetConfig
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "missing redis", cfg: &CallBudgetConfig{}, wantErr: true},
		{name: "negative total", cfg: &CallBudgetConfig{Redis: client, TotalBudget: -1}, wantErr: true},
		{name: "reserved above total", cfg: &CallBudgetConfig{Redis: client, TotalBudget: 10, ReservedBudget: 11}, wantErr: true},
		{name: "defaults", cfg: &CallBudgetConfig{Redis: client}},
		{name: "small total clamps default reserve", cfg: &CallBudgetConfig{Redis: client, TotalBudget: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewCallBudget(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.LessOrEqual(t, b.ReservedBudget(), b.reservedBudget+b.sharedBudget)
		})
	}
}

func TestCallBudget_DefaultSplit(t *testing.T) {
	b, _ := newTestBudget(t, 0, 0)
	assert.Equal(t, DefaultReservedBudget, b.ReservedBudget())
	assert.Equal(t, DefaultTotalBudget-DefaultReservedBudget, b.SharedBudget())
}

func TestCallBudget_PoolsAreSeparate(t *testing.T) {
	b, _ := newTestBudget(t, 10, 6)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, _ := b.TryConsume(ctx, "ERC-20", 1, PriorityBackground)
		require.True(t, ok, "background call %d", i)
	}
	ok, wait := b.TryConsume(ctx, "ERC-20", 1, PriorityBackground)
	assert.False(t, ok)
	assert.Equal(t, 750*time.Millisecond+time.Millisecond, wait)

	// Background exhaustion leaves the reserved pool untouched
	for i := 0; i < 6; i++ {
		ok, _ := b.TryConsume(ctx, "ERC-20", 1, PriorityInteractive)
		require.True(t, ok, "interactive call %d", i)
	}
	ok, _ = b.TryConsume(ctx, "ERC-20", 1, PriorityInteractive)
	assert.False(t, ok)

	usage, err := b.Usage(ctx, "ERC-20")
	require.NoError(t, err)
	assert.Equal(t, 10, usage.TotalUsed)
	assert.Equal(t, 6, usage.ReservedUsed)
	assert.Equal(t, 4, usage.SharedUsed)
	assert.Equal(t, fixedNow.Truncate(time.Second).UnixMilli(), usage.WindowStart.UnixMilli())
}

func TestCallBudget_ScopesAreIndependent(t *testing.T) {
	b, _ := newTestBudget(t, 2, 1)
	ctx := context.Background()

	ok, _ := b.TryConsume(ctx, "ERC-20", 1, PriorityBackground)
	require.True(t, ok)
	ok, _ = b.TryConsume(ctx, "ERC-20", 1, PriorityBackground)
	assert.False(t, ok)

	ok, _ = b.TryConsume(ctx, "TRC-20", 1, PriorityBackground)
	assert.True(t, ok)
}

func TestCallBudget_CostLargerThanPool(t *testing.T) {
	b, _ := newTestBudget(t, 10, 6)
	ctx := context.Background()

	ok, _ := b.TryConsume(ctx, "BEP-20", 5, PriorityBackground)
	assert.False(t, ok)

	ok, _ = b.TryConsume(ctx, "BEP-20", 0, PriorityBackground)
	assert.True(t, ok)

	usage, err := b.Usage(ctx, "BEP-20")
	require.NoError(t, err)
	assert.Zero(t, usage.TotalUsed)
}

func TestCallBudget_ConcurrentConsumersNeverOverdraw(t *testing.T) {
	b, _ := newTestBudget(t, 20, 10)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := b.TryConsume(ctx, "ERC-20", 1, PriorityBackground); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)
}

func TestCallBudget_CountersExpire(t *testing.T) {
	b, mr := newTestBudget(t, 2, 1)
	ctx := context.Background()

	ok, _ := b.TryConsume(ctx, "ERC-20", 1, PriorityBackground)
	require.True(t, ok)

	mr.FastForward(3 * time.Second)

	usage, err := b.Usage(ctx, "ERC-20")
	require.NoError(t, err)
	assert.Zero(t, usage.SharedUsed)
}

func TestCallBudget_WaitGivesUpAfterMaxWait(t *testing.T) {
	b, _ := newTestBudget(t, 2, 1)
	ctx := context.Background()

	require.NoError(t, b.Wait(ctx, "ERC-20", 1, PriorityInteractive, 0))

	err := b.Wait(ctx, "ERC-20", 1, PriorityInteractive, 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExhausted))
	assert.Contains(t, err.Error(), "interactive")
}

func TestCallBudget_RedisDownRefuses(t *testing.T) {
	b, mr := newTestBudget(t, 10, 5)
	mr.Close()

	ok, wait := b.TryConsume(context.Background(), "ERC-20", 1, PriorityInteractive)
	assert.False(t, ok)
	assert.Positive(t, wait)
}

func TestPriorityFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, PriorityInteractive, PriorityFromContext(ctx))

	ctx = WithPriority(ctx, PriorityBackground)
	assert.Equal(t, PriorityBackground, PriorityFromContext(ctx))
	assert.Equal(t, "background", PriorityBackground.String())
	assert.Equal(t, "unknown", Priority(9).String())
}

func TestCostRegistry(t *testing.T) {
	r := NewCostRegistry(map[string]int{OpAllowance: 3, OpDecimals: 0})

	assert.Equal(t, 3, r.Cost(OpAllowance))
	assert.Equal(t, 1, r.Cost(OpDecimals))
	assert.Equal(t, CostExecuteRelayedTransfer, r.Cost(OpExecuteRelayedTransfer))
	assert.Equal(t, DefaultCallCost, r.Cost("Unknown"))

	r.SetCost(OpDecimals, 2)
	r.SetCost(OpAllowance, -1)
	assert.Equal(t, 2, r.Cost(OpDecimals))
	assert.Equal(t, 3, r.Cost(OpAllowance))
}
