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

// Package conn is the connection wrapper component (C): a non-blocking
// socket with a write queue and a close latch, driven cooperatively by a
// worker goroutine rather than an OS-level readiness API. Non-blocking
// behavior is approximated with per-call deadlines: Recv reads with an
// already-expired deadline, RecvTimeout waits at most its argument, and
// Flush allows each write attempt 50ms before reporting FlushWouldBlock.
package conn

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github/sabouaram/httpmitm/netbuf"
)

// Role distinguishes the client-facing leg of a connection from the
// upstream-facing one; handlers use it to pick which side's framing rules
// (e.g. "CONNECT only valid on the client leg") apply.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// PoolState is a connection's lifecycle phase from the pool's point of
// view — distinct from Role, which never changes for a connection's
// lifetime. Only upstream connections cycle through PoolState.
type PoolState int32

const (
	PoolIdle PoolState = iota
	PoolActive
	PoolClosing
)

// RecvStatus tags the outcome of a Recv call.
type RecvStatus int

const (
	RecvData RecvStatus = iota
	RecvWouldBlock
	RecvEOF
	RecvError
)

// FlushStatus tags the outcome of a Flush call.
type FlushStatus int

const (
	FlushOK FlushStatus = iota
	FlushWouldBlock
	FlushError
)

// recvBufSize is the chunk size used for one non-blocking read attempt.
const recvBufSize = 64 * 1024

// Conn wraps a net.Conn with a write queue and a close latch, per spec.md
// §4.2: once Close is observed, Recv and Flush become no-ops and
// HasPending reports false.
type Conn struct {
	net.Conn

	role Role

	writeMu sync.Mutex
	writeQ  netbuf.Buffer

	closed atomic.Bool

	poolState atomic.Int32
	createdAt time.Time
	lastUsed  time.Time
}

// New wraps nc for the given role.
func New(nc net.Conn, role Role) *Conn {
	c := &Conn{Conn: nc, role: role, createdAt: time.Now(), lastUsed: time.Now()}
	c.poolState.Store(int32(PoolIdle))
	return c
}

// Role reports which leg of the proxy this connection represents.
func (c *Conn) Role() Role {
	return c.role
}

// Recv attempts one non-blocking read. A successful read of zero bytes
// never occurs; io.EOF is reported as RecvEOF and a timeout (our stand-in
// for "no data yet") as RecvWouldBlock.
func (c *Conn) Recv() ([]byte, RecvStatus) {
	if c.closed.Load() {
		return nil, RecvEOF
	}

	if err := c.Conn.SetReadDeadline(time.Now()); err != nil {
		return nil, RecvError
	}

	buf := make([]byte, recvBufSize)
	n, err := c.Conn.Read(buf)
	if n > 0 {
		return buf[:n], RecvData
	}
	if err == nil {
		return nil, RecvWouldBlock
	}
	if errors.Is(err, io.EOF) {
		return nil, RecvEOF
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, RecvWouldBlock
	}
	return nil, RecvError
}

// RecvTimeout is Recv with a bounded blocking wait instead of an
// immediate one, for callers (the handler's per-connection goroutine)
// that want the runtime's netpoller to park the goroutine until either
// data arrives or the idle budget elapses, rather than busy-polling.
// A timeout past d with no data is reported as RecvWouldBlock, letting
// the caller distinguish "still idle" from a genuine error or EOF.
func (c *Conn) RecvTimeout(d time.Duration) ([]byte, RecvStatus) {
	if c.closed.Load() {
		return nil, RecvEOF
	}

	if err := c.Conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, RecvError
	}

	buf := make([]byte, recvBufSize)
	n, err := c.Conn.Read(buf)
	if n > 0 {
		return buf[:n], RecvData
	}
	if err == nil {
		return nil, RecvWouldBlock
	}
	if errors.Is(err, io.EOF) {
		return nil, RecvEOF
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, RecvWouldBlock
	}
	return nil, RecvError
}

// Queue appends p to the write queue; it is not sent until Flush.
func (c *Conn) Queue(p []byte) {
	if c.closed.Load() || len(p) == 0 {
		return
	}
	c.writeMu.Lock()
	c.writeQ.Append(p)
	c.writeMu.Unlock()
}

// Flush writes as much of the queued bytes as the kernel will accept
// right now, leaving any remainder at the head of the queue for the next
// Flush call.
func (c *Conn) Flush() (int, FlushStatus) {
	if c.closed.Load() {
		return 0, FlushOK
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeQ.Len() == 0 {
		return 0, FlushOK
	}

	if err := c.Conn.SetWriteDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return 0, FlushError
	}

	n, err := c.Conn.Write(c.writeQ.Bytes())
	if n > 0 {
		c.writeQ.Consume(n)
	}
	if err == nil {
		return n, FlushOK
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, FlushWouldBlock
	}
	return n, FlushError
}

// HasPending reports whether bytes remain queued for Flush; always false
// once closed.
func (c *Conn) HasPending() bool {
	if c.closed.Load() {
		return false
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeQ.Len() > 0
}

// Close closes the underlying socket exactly once; further Recv/Flush
// calls become no-ops per spec.md §4.2's invariant.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	c.writeQ.Reset()
	c.writeMu.Unlock()
	return c.Conn.Close()
}

// Closed reports whether Close has already run.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// PoolState returns the connection's current pool lifecycle phase.
func (c *Conn) PoolState() PoolState {
	return PoolState(c.poolState.Load())
}

// SetPoolState updates the pool lifecycle phase, stamping the idle-since
// time when transitioning to PoolIdle.
func (c *Conn) SetPoolState(s PoolState) {
	c.poolState.Store(int32(s))
	if s == PoolIdle {
		c.lastUsed = time.Now()
	}
}

// IdleFor reports how long the connection has sat idle in the pool.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(c.lastUsed)
}

// Age reports how long ago the connection was established.
func (c *Conn) Age() time.Duration {
	return time.Since(c.createdAt)
}
