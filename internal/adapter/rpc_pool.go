package adapter

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/usdt-market/internal/logging"
)

// RPCPool manages several RPC endpoints for one EVM network.
// Strategy: stick to the current endpoint until it fails, then switch to the next.
type RPCPool struct {
	name         string
	endpoints    []string
	clients      []*ethclient.Client
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time
	cooldownTime time.Duration
}

// NewRPCPoolFromURLs creates a pool from a comma-separated endpoint list.
// Only the first endpoint is dialed eagerly.
func NewRPCPoolFromURLs(name, urls string, cooldown time.Duration) (*RPCPool, error) {
	var endpoints []string
	for _, ep := range strings.Split(urls, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}
	if cooldown == 0 {
		cooldown = 60 * time.Second
	}

	client, err := ethclient.Dial(endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary RPC endpoint: %w", err)
	}

	pool := &RPCPool{
		name:         name,
		endpoints:    endpoints,
		clients:      make([]*ethclient.Client, len(endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldown,
	}
	pool.clients[0] = client
	return pool, nil
}

// Client returns the current active client
func (p *RPCPool) Client() *ethclient.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[p.currentIndex]
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// Failover marks the current endpoint as cooling down and switches to the
// next endpoint that is not. It returns an error when none is available.
func (p *RPCPool) Failover() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 1 {
		return fmt.Errorf("no alternate RPC endpoint for %s", p.name)
	}

	p.cooldowns[p.currentIndex] = time.Now()
	from := p.currentIndex

	for i := 1; i < len(p.endpoints); i++ {
		next := (from + i) % len(p.endpoints)
		if since, ok := p.cooldowns[next]; ok {
			if time.Since(since) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, next)
		}
		if p.clients[next] == nil {
			client, err := ethclient.Dial(p.endpoints[next])
			if err != nil {
				logging.WithFields(map[string]interface{}{
					"pool":     p.name,
					"endpoint": next,
				}).WithError(err).Warn("RPC endpoint dial failed")
				continue
			}
			p.clients[next] = client
		}
		p.currentIndex = next
		logging.WithFields(map[string]interface{}{
			"pool": p.name,
			"from": from,
			"to":   next,
		}).Warn("Switched RPC endpoint")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints for %s are cooling down", len(p.endpoints), p.name)
}

// Close closes all client connections
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if client != nil {
			client.Close()
			p.clients[i] = nil
		}
	}
}

// isTransportError reports whether err looks like an endpoint problem
// rather than a contract level answer
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests", "throttl",
		"connection refused", "connection reset", "no such host", "eof",
		"timeout", "deadline exceeded", "502", "503", "504",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
