/*
 * MIT License
 *
 * Copyright (c) 2024 The HTTP Proxy Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package pool is the upstream connection pool component (D): connections
// are keyed by (host, port, tls), capped per key, evicted after sitting
// idle past a configured TTL, and limited to MaxPerKey checked-out
// connections per key, so a burst of requests to the same origin waits for
// a free slot instead of opening an unbounded number of fresh dials.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github/sabouaram/httpmitm/conn"
	liberr "github/sabouaram/httpmitm/errors"
)

// Key identifies one upstream pool bucket.
type Key struct {
	Host string
	Port int
	TLS  bool
}

func (k Key) String() string {
	scheme := "tcp"
	if k.TLS {
		scheme = "tls"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, k.Host, k.Port)
}

// DialFunc opens a fresh connection for key; the pool calls it at most
// MaxPerKey times concurrently for any one key.
type DialFunc func(ctx context.Context, key Key) (net.Conn, error)

// Options configures a Pool.
type Options struct {
	// MaxPerKey caps concurrent connections (idle + active) per Key.
	// <= 0 means unbounded.
	MaxPerKey int

	// IdleTTL is how long an idle connection may sit in the pool before
	// a sweep closes it. <= 0 disables idle eviction.
	IdleTTL time.Duration

	Dial DialFunc
}

type bucket struct {
	idle    []*conn.Conn
	tickets chan struct{} // capacity gate; nil when unbounded
}

// Pool is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[Key]*bucket
	opt     Options

	closeOnce sync.Once
	stop      chan struct{}
}

// New builds a Pool and starts its idle-eviction sweeper.
func New(opt Options) *Pool {
	p := &Pool{
		buckets: make(map[Key]*bucket),
		opt:     opt,
		stop:    make(chan struct{}),
	}
	if opt.IdleTTL > 0 {
		go p.sweepLoop()
	}
	return p
}

func (p *Pool) bucketFor(key Key) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{}
		if p.opt.MaxPerKey > 0 {
			b.tickets = make(chan struct{}, p.opt.MaxPerKey)
			for i := 0; i < p.opt.MaxPerKey; i++ {
				b.tickets <- struct{}{}
			}
		}
		p.buckets[key] = b
	}
	return b
}

// Acquire returns a connection for key: a pooled idle one if a live one is
// available, otherwise a freshly dialed one. When MaxPerKey is set,
// Acquire blocks until a ticket frees up or ctx is done.
func (p *Pool) Acquire(ctx context.Context, key Key) (*conn.Conn, error) {
	b := p.bucketFor(key)

	if b.tickets != nil {
		select {
		case <-b.tickets:
		case <-ctx.Done():
			return nil, liberr.CodeTimeoutError.Errorf("acquire %s: %v", key, ctx.Err())
		}
	}

	if c := p.popIdle(b); c != nil {
		c.SetPoolState(conn.PoolActive)
		return c, nil
	}

	nc, err := p.opt.Dial(ctx, key)
	if err != nil {
		if b.tickets != nil {
			b.tickets <- struct{}{}
		}
		return nil, liberr.CodeUpstreamConnectError.Error(err)
	}

	c := conn.New(nc, conn.RoleServer)
	c.SetPoolState(conn.PoolActive)
	return c, nil
}

func (p *Pool) popIdle(b *bucket) *conn.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(b.idle) > 0 {
		n := len(b.idle) - 1
		c := b.idle[n]
		b.idle = b.idle[:n]

		if p.opt.IdleTTL > 0 && c.IdleFor() > p.opt.IdleTTL {
			_ = c.Close()
			continue
		}
		return c
	}
	return nil
}

// Release returns c to the pool for key. When reusable is false (the
// caller detected the connection is no longer usable — a protocol error,
// a half-close, Connection: close), the connection is closed and its
// ticket freed instead of being pooled.
func (p *Pool) Release(key Key, c *conn.Conn, reusable bool) {
	b := p.bucketFor(key)

	if !reusable {
		_ = c.Close()
		if b.tickets != nil {
			b.tickets <- struct{}{}
		}
		return
	}

	c.SetPoolState(conn.PoolIdle)

	p.mu.Lock()
	b.idle = append(b.idle, c)
	p.mu.Unlock()

	if b.tickets != nil {
		b.tickets <- struct{}{}
	}
}

// Len reports the number of idle connections held for key, for tests and
// metrics.
func (p *Pool) Len(key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets[key]; ok {
		return len(b.idle)
	}
	return 0
}

func (p *Pool) sweepLoop() {
	t := time.NewTicker(p.opt.IdleTTL / 2)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.sweepOnce()
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) sweepOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, b := range p.buckets {
		kept := b.idle[:0]
		for _, c := range b.idle {
			if c.IdleFor() > p.opt.IdleTTL {
				_ = c.Close()
				continue
			}
			kept = append(kept, c)
		}
		b.idle = kept
	}
}

// Close stops the eviction sweeper and closes every idle connection. It
// does not touch connections currently Acquire'd out.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		for _, c := range b.idle {
			_ = c.Close()
		}
		b.idle = nil
	}
}
