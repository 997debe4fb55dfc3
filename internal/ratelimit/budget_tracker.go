// Package ratelimit coordinates the chain RPC call budget across the API
// server and the allowance watcher using Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultTotalBudget    = 50              // calls per window
	DefaultReservedBudget = 30              // kept for interactive requests
	DefaultWindowSize     = time.Second     // fixed window
	DefaultKeyTTL         = 2 * time.Second // window + buffer
)

// KeyPrefix namespaces every budget counter in Redis.
const KeyPrefix = "rpc:budget:"

// ErrBudgetExhausted is returned by Wait when no budget frees up in time.
var ErrBudgetExhausted = errors.New("rpc call budget exhausted")

// Priority selects the pool a call is charged to.
type Priority int

const (
	// PriorityInteractive is for admin requests and payouts (reserved pool).
	PriorityInteractive Priority = iota
	// PriorityBackground is for watcher sweeps (shared pool).
	PriorityBackground
)

// String returns a string representation of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBackground:
		return "background"
	default:
		return "unknown"
	}
}

type priorityKey struct{}

// WithPriority marks every chain call made under ctx with a priority.
func WithPriority(ctx context.Context, p Priority) context.Context {
	return context.WithValue(ctx, priorityKey{}, p)
}

// PriorityFromContext returns the priority set on ctx, defaulting to
// PriorityInteractive.
func PriorityFromContext(ctx context.Context) Priority {
	if p, ok := ctx.Value(priorityKey{}).(Priority); ok {
		return p
	}
	return PriorityInteractive
}

// consumeScript checks both the total and the pool counter before charging
// either, so concurrent callers never overdraw.
var consumeScript = redis.NewScript(`
	local totalKey = KEYS[1]
	local poolKey = KEYS[2]
	local cost = tonumber(ARGV[1])
	local totalBudget = tonumber(ARGV[2])
	local poolBudget = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local totalUsed = tonumber(redis.call('GET', totalKey) or '0')
	local poolUsed = tonumber(redis.call('GET', poolKey) or '0')

	if totalUsed + cost > totalBudget then
		return {0, totalUsed, poolUsed}
	end
	if poolUsed + cost > poolBudget then
		return {0, totalUsed, poolUsed}
	end

	redis.call('INCRBY', totalKey, cost)
	redis.call('EXPIRE', totalKey, ttl)
	redis.call('INCRBY', poolKey, cost)
	redis.call('EXPIRE', poolKey, ttl)

	return {1, totalUsed + cost, poolUsed + cost}
`)

// CallBudget is a fixed-window call budget per scope (one scope per
// network), split into a reserved pool for interactive calls and a shared
// pool for background calls.
type CallBudget struct {
	redis          redis.Cmdable
	totalBudget    int
	reservedBudget int
	sharedBudget   int
	windowSize     time.Duration
	keyTTL         time.Duration
	now            func() time.Time
}

// CallBudgetConfig holds configuration for the call budget.
type CallBudgetConfig struct {
	// Redis is required; the budget is shared between processes.
	Redis redis.Cmdable

	TotalBudget    int
	ReservedBudget int
	WindowSize     time.Duration
	KeyTTL         time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Usage reports consumption in the current window of one scope.
type Usage struct {
	TotalUsed      int
	ReservedUsed   int
	SharedUsed     int
	TotalBudget    int
	ReservedBudget int
	SharedBudget   int
	WindowStart    time.Time
}

// Validate checks if the configuration is valid.
func (c *CallBudgetConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.TotalBudget < 0 {
		return errors.New("total budget cannot be negative")
	}
	if c.ReservedBudget < 0 {
		return errors.New("reserved budget cannot be negative")
	}

	total, reserved := c.budgets()
	if reserved > total {
		return fmt.Errorf("reserved budget (%d) cannot exceed total budget (%d)", reserved, total)
	}
	return nil
}

func (c *CallBudgetConfig) budgets() (total, reserved int) {
	total = c.TotalBudget
	if total == 0 {
		total = DefaultTotalBudget
	}
	reserved = c.ReservedBudget
	if reserved == 0 {
		reserved = DefaultReservedBudget
		if reserved > total {
			reserved = total
		}
	}
	return total, reserved
}

// NewCallBudget creates a call budget with the given configuration.
func NewCallBudget(cfg *CallBudgetConfig) (*CallBudget, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	total, reserved := cfg.budgets()

	windowSize := cfg.WindowSize
	if windowSize == 0 {
		windowSize = DefaultWindowSize
	}
	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &CallBudget{
		redis:          cfg.Redis,
		totalBudget:    total,
		reservedBudget: reserved,
		sharedBudget:   total - reserved,
		windowSize:     windowSize,
		keyTTL:         keyTTL,
		now:            now,
	}, nil
}

func (b *CallBudget) windowStart() int64 {
	return b.now().Truncate(b.windowSize).UnixMilli()
}

func (b *CallBudget) keys(scope string, windowTS int64) (totalKey, reservedKey, sharedKey string) {
	base := KeyPrefix + scope + ":"
	ts := strconv.FormatInt(windowTS, 10)
	return base + "total:" + ts, base + "reserved:" + ts, base + "shared:" + ts
}

// TryConsume charges cost to the pool matching priority. When refused it
// returns the time left until the next window.
func (b *CallBudget) TryConsume(ctx context.Context, scope string, cost int, priority Priority) (bool, time.Duration) {
	if cost <= 0 {
		return true, 0
	}

	windowTS := b.windowStart()
	totalKey, reservedKey, sharedKey := b.keys(scope, windowTS)

	poolKey, poolBudget := reservedKey, b.reservedBudget
	if priority == PriorityBackground {
		poolKey, poolBudget = sharedKey, b.sharedBudget
	}

	ttlSeconds := int(b.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := consumeScript.Run(ctx, b.redis, []string{totalKey, poolKey},
		cost, b.totalBudget, poolBudget, ttlSeconds).Int64Slice()
	if err != nil || len(result) == 0 || result[0] != 1 {
		return false, b.untilNextWindow(windowTS)
	}
	return true, 0
}

// Wait blocks until cost can be charged, ctx ends, or maxWait elapses.
func (b *CallBudget) Wait(ctx context.Context, scope string, cost int, priority Priority, maxWait time.Duration) error {
	deadline := b.now().Add(maxWait)
	for {
		allowed, wait := b.TryConsume(ctx, scope, cost, priority)
		if allowed {
			return nil
		}
		if b.now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: %s %s pool", ErrBudgetExhausted, scope, priority)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *CallBudget) untilNextWindow(windowTS int64) time.Duration {
	end := time.UnixMilli(windowTS).Add(b.windowSize)
	wait := end.Sub(b.now())
	if wait < 0 {
		wait = 0
	}
	return wait + time.Millisecond
}

// Usage returns consumption in the current window of scope. Missing
// counters read as zero.
func (b *CallBudget) Usage(ctx context.Context, scope string) (*Usage, error) {
	windowTS := b.windowStart()
	totalKey, reservedKey, sharedKey := b.keys(scope, windowTS)

	pipe := b.redis.Pipeline()
	totalCmd := pipe.Get(ctx, totalKey)
	reservedCmd := pipe.Get(ctx, reservedKey)
	sharedCmd := pipe.Get(ctx, sharedKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	return &Usage{
		TotalUsed:      parseIntOrZero(totalCmd),
		ReservedUsed:   parseIntOrZero(reservedCmd),
		SharedUsed:     parseIntOrZero(sharedCmd),
		TotalBudget:    b.totalBudget,
		ReservedBudget: b.reservedBudget,
		SharedBudget:   b.sharedBudget,
		WindowStart:    time.UnixMilli(windowTS),
	}, nil
}

func parseIntOrZero(cmd *redis.StringCmd) int {
	val, err := cmd.Int()
	if err != nil {
		return 0
	}
	return val
}

// SharedBudget returns the per-window budget of background calls.
func (b *CallBudget) SharedBudget() int {
	return b.sharedBudget
}

// ReservedBudget returns the per-window budget of interactive calls.
func (b *CallBudget) ReservedBudget() int {
	return b.reservedBudget
}
