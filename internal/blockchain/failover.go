package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	unhealthyDuration = 5 * time.Minute // Cooldown before retry
	probeTimeout      = 5 * time.Second
)

// ErrNoEndpoint is returned when every RPC endpoint is unhealthy
var ErrNoEndpoint = errors.New("no healthy RPC endpoints available")

type endpoint struct {
	url       string
	client    *ethclient.Client
	healthy   bool
	lastError error
	failedAt  time.Time
}

// Failover rotates over several RPC endpoints, parking failing ones for a
// cooldown before probing them again
type Failover struct {
	mu        sync.Mutex
	endpoints []*endpoint
	current   int
	now       func() time.Time
}

// NewFailover dials every url. At least one endpoint must answer.
func NewFailover(ctx context.Context, urls []string) (*Failover, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	f := &Failover{
		endpoints: make([]*endpoint, 0, len(urls)),
		now:       time.Now,
	}

	healthy := 0
	for _, url := range urls {
		client, err := dial(ctx, url)
		ep := &endpoint{url: url, client: client, healthy: err == nil, lastError: err}
		if err != nil {
			ep.failedAt = f.now()
			slog.Warn("Failed to connect to RPC endpoint, will retry later", "url", url, "error", err)
		} else {
			healthy++
			slog.Info("Connected to RPC endpoint", "url", url)
		}
		f.endpoints = append(f.endpoints, ep)
	}

	if healthy == 0 {
		f.Close()
		return nil, ErrNoEndpoint
	}
	return f, nil
}

// dial connects to url and checks it answers eth_chainId
func dial(ctx context.Context, url string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id probe: %w", err)
	}
	return client, nil
}

// Client returns a healthy client, reconnecting parked endpoints whose
// cooldown expired
func (f *Failover) Client(ctx context.Context) (*ethclient.Client, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.endpoints {
		idx := (f.current + i) % len(f.endpoints)
		ep := f.endpoints[idx]

		if ep.healthy && ep.client != nil {
			f.current = idx
			return ep.client, ep.url, nil
		}

		if f.now().Sub(ep.failedAt) <= unhealthyDuration {
			continue
		}

		client, err := dial(ctx, ep.url)
		if err != nil {
			ep.lastError = err
			ep.failedAt = f.now()
			continue
		}
		ep.client = client
		ep.healthy = true
		ep.lastError = nil
		f.current = idx
		slog.Info("Reconnected to RPC endpoint", "url", ep.url)
		return client, ep.url, nil
	}

	return nil, "", ErrNoEndpoint
}

// MarkUnhealthy parks url and closes its connection
func (f *Failover) MarkUnhealthy(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ep := range f.endpoints {
		if ep.url != url {
			continue
		}
		ep.healthy = false
		ep.lastError = err
		ep.failedAt = f.now()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		slog.Warn("Marked RPC endpoint as unhealthy, will retry after cooldown",
			"url", url,
			"error", err,
			"retry_after", unhealthyDuration)
		return
	}
}

// Health reports the state of every endpoint by url
func (f *Failover) Health() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]bool, len(f.endpoints))
	for _, ep := range f.endpoints {
		out[ep.url] = ep.healthy
	}
	return out
}

// Close closes all endpoint connections
func (f *Failover) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ep := range f.endpoints {
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
	}
}
