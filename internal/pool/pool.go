// Package pool implements a bounded min/max connection pool over an
// adapter.Adapter, using a weighted semaphore to cap concurrent checkouts
// and an exponential backoff retry while waiting for a free slot.
package pool

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/beccauwu/bones-api/internal/adapter"
	"github.com/beccauwu/bones-api/internal/errs"
)

// Options configures a Pool.
type Options struct {
	Min        int
	Max        int
	WaitTimeout time.Duration
}

// Pool bounds the number of concurrently checked-out adapter.Connections.
type Pool struct {
	adapter adapter.Adapter
	sem     *semaphore.Weighted
	opts    Options

	warm []adapter.Connection
}

// New creates a Pool over a backing Adapter. It eagerly opens Min
// connections.
func New(ctx context.Context, a adapter.Adapter, opts Options) (*Pool, error) {
	if opts.Max <= 0 {
		opts.Max = 1
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 5 * time.Second
	}
	p := &Pool{adapter: a, sem: semaphore.NewWeighted(int64(opts.Max)), opts: opts}
	for i := 0; i < opts.Min; i++ {
		conn, err := a.CreateConnection(ctx)
		if err != nil {
			return nil, err
		}
		p.warm = append(p.warm, conn)
	}
	return p, nil
}

// Checkout reserves a pool slot and returns a connection, retrying with
// exponential backoff until WaitTimeout elapses if the pool is saturated.
func (p *Pool) Checkout(ctx context.Context) (adapter.Connection, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.opts.WaitTimeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewExponentialBackOff(), waitCtx)
	var conn adapter.Connection
	err := backoff.Retry(func() error {
		if !p.sem.TryAcquire(1) {
			return errs.PoolTimeout()
		}
		if len(p.warm) > 0 {
			conn, p.warm = p.warm[len(p.warm)-1], p.warm[:len(p.warm)-1]
			return nil
		}
		created, err := p.adapter.CreateConnection(ctx)
		if err != nil {
			p.sem.Release(1)
			return backoff.Permanent(err)
		}
		conn = created
		return nil
	}, b)

	if err != nil {
		if waitCtx.Err() != nil {
			return nil, errs.PoolTimeout()
		}
		return nil, err
	}
	return conn, nil
}

// Release returns conn to the pool for reuse, or closes it if it's no
// longer valid.
func (p *Pool) Release(ctx context.Context, conn adapter.Connection) {
	defer p.sem.Release(1)
	if !p.adapter.IsValid(ctx, conn) {
		_ = p.adapter.CloseConnection(ctx, conn)
		return
	}
	p.warm = append(p.warm, conn)
}

// Close closes every idle connection currently held by the pool.
func (p *Pool) Close(ctx context.Context) error {
	var firstErr error
	for _, conn := range p.warm {
		if err := p.adapter.CloseConnection(ctx, conn); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.warm = nil
	return firstErr
}
