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

package conn

import (
	"net"
	"testing"
	"time"
)

func TestRecvWouldBlockThenData(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := New(server, RoleClient)
	defer c.Close()

	if _, status := c.Recv(); status != RecvWouldBlock {
		t.Fatalf("expected RecvWouldBlock on empty pipe, got %v", status)
	}

	go func() { _, _ = client.Write([]byte("hello")) }()

	data, status := c.RecvTimeout(time.Second)
	if status != RecvData || string(data) != "hello" {
		t.Fatalf("expected RecvData %q, got %v %q", "hello", status, data)
	}
}

func TestQueueFlushHasPending(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	c := New(server, RoleServer)
	defer c.Close()

	c.Queue([]byte("payload"))
	if !c.HasPending() {
		t.Fatal("expected pending bytes after Queue")
	}

	buf := make([]byte, 16)
	done := make(chan struct{})
	go func() {
		n, _ := client.Read(buf)
		buf = buf[:n]
		close(done)
	}()

	for c.HasPending() {
		if _, status := c.Flush(); status == FlushError {
			t.Fatalf("unexpected flush error")
		}
	}
	<-done

	if string(buf) != "payload" {
		t.Fatalf("expected %q, got %q", "payload", buf)
	}
}

func TestCloseIsIdempotentAndLatchesRecv(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := New(server, RoleClient)

	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	if _, status := c.Recv(); status != RecvEOF {
		t.Fatalf("expected RecvEOF after close, got %v", status)
	}
	if c.HasPending() {
		t.Fatal("expected no pending bytes after close")
	}
}

func TestPoolStateTransitions(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := New(server, RoleServer)
	defer c.Close()

	if c.PoolState() != PoolIdle {
		t.Fatalf("expected PoolIdle initially, got %v", c.PoolState())
	}

	c.SetPoolState(PoolActive)
	if c.PoolState() != PoolActive {
		t.Fatalf("expected PoolActive, got %v", c.PoolState())
	}

	c.SetPoolState(PoolIdle)
	if c.IdleFor() > time.Second {
		t.Fatalf("expected IdleFor near zero right after transition, got %v", c.IdleFor())
	}
}
