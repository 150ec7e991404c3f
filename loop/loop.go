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

// Package loop is the acceptor/worker event loop (component E): a fixed
// pool of worker goroutines, each draining its own bounded handoff
// channel of accepted connections one at a time. A worker never runs two
// connections concurrently (the "single-threaded cooperative" guarantee),
// and a full handoff channel stops the acceptor from registering another
// Accept until a worker frees a slot, giving the same backpressure the
// level-triggered-readiness model describes without a hand-rolled
// epoll/kqueue poll loop — Go's netpoller already multiplexes blocking
// I/O across goroutines for free.
package loop

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github/sabouaram/httpmitm/conn"
	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/logger"
	"github/sabouaram/httpmitm/monitor"
)

// Config sizes the worker pool, per spec.md §6's "workers" option.
type Config struct {
	// Workers is the number of worker goroutines; each handles one
	// connection to completion before taking its next one.
	Workers int

	// QueueDepth bounds each worker's handoff channel. A worker busy with
	// a long-lived connection lets at most QueueDepth more connections
	// queue behind it before the acceptor itself blocks.
	QueueDepth int
}

// DefaultConfig returns sane defaults; callers override via config.
func DefaultConfig() Config {
	return Config{Workers: 4, QueueDepth: 1}
}

// Loop owns a listener and dispatches accepted connections to a fixed
// pool of workers.
type Loop struct {
	ln   net.Listener
	cfg  Config
	deps handler.Deps
	mon  *monitor.Monitor
	log  logger.Logger

	queues []chan net.Conn
}

// New builds a Loop listening on ln. deps is the handler.Deps each
// accepted connection's Session is constructed with.
func New(ln net.Listener, cfg Config, deps handler.Deps, mon *monitor.Monitor, log logger.Logger) *Loop {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}

	queues := make([]chan net.Conn, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan net.Conn, cfg.QueueDepth)
	}

	return &Loop{ln: ln, cfg: cfg, deps: deps, mon: mon, log: log, queues: queues}
}

// Run starts the worker pool and the accept loop, and blocks until ctx is
// cancelled or the listener fails. On return, every worker has finished
// its in-flight connection.
func (l *Loop) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i, q := range l.queues {
		i, q := i, q
		g.Go(func() error {
			l.runWorker(gctx, i, q)
			return nil
		})
	}

	g.Go(func() error {
		return l.accept(gctx)
	})

	<-gctx.Done()
	_ = l.ln.Close()
	for _, q := range l.queues {
		close(q)
	}

	return g.Wait()
}

// accept registers readiness for the next connection, round-robins it
// onto a worker's queue, and blocks (stopping further Accept calls) while
// that worker's queue is full, even if other queues have room — the event
// loop's backpressure rule.
func (l *Loop) accept(ctx context.Context) error {
	next := 0
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if l.log != nil {
				l.log.ErrorE("accept failed", err)
			}
			return err
		}

		if l.mon != nil {
			l.mon.Emit(monitor.Event{Kind: monitor.KindAccept})
		}

		select {
		case l.queues[next] <- nc:
		case <-ctx.Done():
			_ = nc.Close()
			return nil
		}
		next = (next + 1) % len(l.queues)
	}
}

// runWorker drains q one connection at a time, running each to
// completion before accepting its next assignment.
func (l *Loop) runWorker(ctx context.Context, id int, q chan net.Conn) {
	if l.log != nil {
		l.log.WithFields(logger.Fields{"worker": id}).Debug("worker started")
	}
	for nc := range q {
		c := conn.New(nc, conn.RoleClient)
		s := handler.NewSession(c, l.deps)
		s.Run(ctx)
	}
}
