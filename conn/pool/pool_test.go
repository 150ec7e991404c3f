package pool

import (
	"context"
	"net"
	"testing"
	"time"
)

func pipeDialer(t *testing.T, dials *int) DialFunc {
	return func(ctx context.Context, key Key) (net.Conn, error) {
		*dials++
		client, server := net.Pipe()
		go func() {
			// Keep the server side drained so writes on client don't block
			// forever in a test.
			buf := make([]byte, 1024)
			for {
				if _, err := server.Read(buf); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

func TestPoolAcquireDialsWhenEmpty(t *testing.T) {
	dials := 0
	p := New(Options{Dial: pipeDialer(t, &dials)})
	defer p.Close()

	key := Key{Host: "example.com", Port: 443, TLS: true}
	c, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected 1 dial, got %d", dials)
	}
	p.Release(key, c, true)
}

func TestPoolReuseAfterRelease(t *testing.T) {
	dials := 0
	p := New(Options{Dial: pipeDialer(t, &dials)})
	defer p.Close()

	key := Key{Host: "example.com", Port: 80}
	c1, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(key, c1, true)

	c2, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected reuse (1 dial total), got %d dials", dials)
	}
	if c2 != c1 {
		t.Fatalf("expected the same pooled connection back")
	}
	p.Release(key, c2, false)

	c3, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected a fresh dial after non-reusable release, got %d dials", dials)
	}
	p.Release(key, c3, false)
}

func TestPoolMaxPerKeyBlocksUntilRelease(t *testing.T) {
	dials := 0
	p := New(Options{Dial: pipeDialer(t, &dials), MaxPerKey: 1})
	defer p.Close()

	key := Key{Host: "example.com", Port: 80}
	c1, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, key); err == nil {
		t.Fatalf("expected second Acquire to block/time out while at capacity")
	}

	p.Release(key, c1, false)

	c2, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	p.Release(key, c2, false)
}

func TestPoolIdleTTLEviction(t *testing.T) {
	dials := 0
	p := New(Options{Dial: pipeDialer(t, &dials), IdleTTL: 20 * time.Millisecond})
	defer p.Close()

	key := Key{Host: "example.com", Port: 80}
	c1, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(key, c1, true)

	time.Sleep(80 * time.Millisecond)

	c2, err := p.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if dials != 2 {
		t.Fatalf("expected idle connection to be evicted and a fresh dial made, got %d dials", dials)
	}
	p.Release(key, c2, false)
}
