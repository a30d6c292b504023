package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	minReconnectBackoff = time.Second
	maxReconnectBackoff = 30 * time.Second
)

// ConnPool maintains a small, fixed number of connections per endpoint
// (keyed by node/wallet URI) and hands them out round-robin. This replaces
// opening one client per chain per leg (three clients per chain) with a
// shared pool sized by configuration, while preserving
// single-in-flight-per-connection: each *Conn still serializes its own
// Call()s via its own mutex, a pool slot is just a shared handle to one.
type ConnPool struct {
	size    int
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	conns map[string][]*Conn
	next  map[string]int
}

// NewConnPool creates a pool that opens up to size connections per distinct
// endpoint, lazily on first checkout.
func NewConnPool(size int, timeout time.Duration, logger *slog.Logger) *ConnPool {
	return &ConnPool{
		size:    size,
		timeout: timeout,
		logger:  logger,
		conns:   make(map[string][]*Conn),
		next:    make(map[string]int),
	}
}

// Checkout returns a connection to endpoint, dialing one (with backoff) if
// the pool for that endpoint has not yet reached its configured size, or
// round-robining across existing connections otherwise.
func (p *ConnPool) Checkout(ctx context.Context, endpoint string) (*Conn, error) {
	p.mu.Lock()
	conns := p.conns[endpoint]
	if len(conns) < p.size {
		p.mu.Unlock()
		conn, err := p.dialWithBackoff(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.conns[endpoint] = append(p.conns[endpoint], conn)
		conns = p.conns[endpoint]
		p.mu.Unlock()
		return conns[len(conns)-1], nil
	}

	idx := p.next[endpoint] % len(conns)
	p.next[endpoint] = idx + 1
	conn := conns[idx]
	p.mu.Unlock()

	if conn.ws == nil {
		return p.redial(ctx, endpoint, idx)
	}
	return conn, nil
}

func (p *ConnPool) redial(ctx context.Context, endpoint string, idx int) (*Conn, error) {
	conn, err := p.dialWithBackoff(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.conns[endpoint][idx] = conn
	p.mu.Unlock()
	return conn, nil
}

// dialWithBackoff retries the initial dial with exponential backoff
// (1s -> 30s cap), the same schedule the teacher's WSFeed uses for
// reconnects, bounded to a handful of attempts so a genuinely dead endpoint
// surfaces as ErrClientConnectionError rather than hanging forever.
func (p *ConnPool) dialWithBackoff(ctx context.Context, endpoint string) (*Conn, error) {
	backoff := minReconnectBackoff
	var lastErr error

	for attempt := 0; attempt < 5; attempt++ {
		conn, err := dialConn(ctx, endpoint, p.timeout)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if p.logger != nil {
			p.logger.Warn("dial failed, retrying", "endpoint", endpoint, "attempt", attempt, "backoff", backoff, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrClientConnectionError, lastErr)
}

// Rebuild closes every connection the pool holds. The orchestrator calls
// this after observing ErrClientConnectionError and sleeping
// time_to_reconnect, so the next cycle's Checkout calls dial fresh
// connections.
func (p *ConnPool) Rebuild() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for endpoint, conns := range p.conns {
		for _, c := range conns {
			c.Close()
		}
		delete(p.conns, endpoint)
		delete(p.next, endpoint)
	}
}

// Close shuts down every connection in the pool permanently.
func (p *ConnPool) Close() {
	p.Rebuild()
}
