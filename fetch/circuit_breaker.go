package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

const (
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultBreakerMaxWait   = 5 * time.Minute
)

// BreakerState is the state of one host's circuit.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// CircuitBreakerFetcher wraps a Downloader with one circuit breaker per
// snapshot host. A missing snapshot does not count against the host.
type CircuitBreakerFetcher struct {
	next      Downloader
	threshold int64
	cooldown  time.Duration
	maxWait   time.Duration

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
}

// BreakerOption configures a CircuitBreakerFetcher.
type BreakerOption func(*CircuitBreakerFetcher)

// WithThreshold sets how many consecutive failures open a host's circuit.
func WithThreshold(n int) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		if n > 0 {
			c.threshold = int64(n)
		}
	}
}

// WithCooldown sets the first wait before a tripped circuit is retried and
// the cap the wait doubles up to.
func WithCooldown(initial, limit time.Duration) BreakerOption {
	return func(c *CircuitBreakerFetcher) {
		if initial > 0 {
			c.cooldown = initial
		}
		if limit >= c.cooldown {
			c.maxWait = limit
		}
	}
}

// NewCircuitBreakerFetcher wraps d.
func NewCircuitBreakerFetcher(d Downloader, opts ...BreakerOption) *CircuitBreakerFetcher {
	c := &CircuitBreakerFetcher{
		next:      d,
		threshold: DefaultBreakerThreshold,
		cooldown:  DefaultBreakerCooldown,
		maxWait:   DefaultBreakerMaxWait,
		breakers:  make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxWait < c.cooldown {
		c.maxWait = c.cooldown
	}
	return c
}

func (c *CircuitBreakerFetcher) breaker(host string) *circuit.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}
	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = c.cooldown
	wait.MaxInterval = c.maxWait
	wait.MaxElapsedTime = 0
	wait.Reset()

	b := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    wait,
		ShouldTrip: circuit.ThresholdTripFunc(c.threshold),
	})
	c.breakers[host] = b
	return b
}

// guard runs fn through the breaker for rawURL's host.
func (c *CircuitBreakerFetcher) guard(rawURL string, fn func() error) error {
	host := hostOf(rawURL)
	b := c.breaker(host)
	if !b.Ready() {
		return fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var notFound error
	err := b.Call(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	}, 0)
	if notFound != nil {
		return notFound
	}
	return err
}

// Fetch downloads fetchURL unless its host's circuit is open.
func (c *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Snapshot, error) {
	var snap *Snapshot
	err := c.guard(fetchURL, func() error {
		var err error
		snap, err = c.next.Fetch(ctx, fetchURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Head checks headURL unless its host's circuit is open.
func (c *CircuitBreakerFetcher) Head(ctx context.Context, headURL string) (int64, string, error) {
	var (
		size        int64
		contentType string
	)
	err := c.guard(headURL, func() error {
		var err error
		size, contentType, err = c.next.Head(ctx, headURL)
		return err
	})
	return size, contentType, err
}

// BreakerStates reports the circuit state of every host seen so far.
func (c *CircuitBreakerFetcher) BreakerStates() map[string]BreakerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	states := make(map[string]BreakerState, len(c.breakers))
	for host, b := range c.breakers {
		states[host] = BreakerClosed
		if b.Tripped() {
			states[host] = BreakerOpen
		}
	}
	return states
}

// hostOf returns the host of rawURL, or rawURL itself (truncated) when it has
// none.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Host != "" {
		return u.Host
	}
	if len(rawURL) > 50 {
		return rawURL[:50]
	}
	return rawURL
}
