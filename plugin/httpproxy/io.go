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

package httpproxy

import (
	"context"
	"time"

	"github/sabouaram/httpmitm/conn"
	"github/sabouaram/httpmitm/httpmsg"
)

// writeAll queues and flushes p in full against c, honoring the same
// Flush-retry-while-WouldBlock pattern as handler.Session.WriteRaw, bounded
// overall by deadline (zero means no bound beyond Flush's own retries).
func writeAll(c *conn.Conn, p []byte, deadline time.Duration) error {
	c.Queue(p)

	var cutoff time.Time
	if deadline > 0 {
		cutoff = time.Now().Add(deadline)
	}

	for c.HasPending() {
		if c.Closed() {
			return errClosed
		}
		if !cutoff.IsZero() && time.Now().After(cutoff) {
			return errWriteTimeout
		}
		_, status := c.Flush()
		if status == conn.FlushError {
			return errFlushFailed
		}
	}
	return nil
}

// readMessage reads and parses one message of the given kind off c,
// mirroring handler.Session.readRequest's RecvTimeout+Feed loop. noBody
// tells the parser the message carries no body regardless of framing
// headers — set it true when reading the response to a HEAD request,
// per RFC 7230 §3.3.3.
func readMessage(ctx context.Context, c *conn.Conn, kind httpmsg.Kind, maxHeaderBytes int, idle time.Duration, noBody bool) (*httpmsg.Message, bool) {
	p := httpmsg.NewParser(kind, maxHeaderBytes)
	p.SetNoBody(noBody)

	for {
		if ctx.Err() != nil {
			return nil, false
		}

		data, status := c.RecvTimeout(idle)
		switch status {
		case conn.RecvEOF:
			if outcome := p.FeedEOF(); outcome.Complete {
				return p.Message(), true
			}
			return nil, false
		case conn.RecvError:
			return nil, false
		case conn.RecvWouldBlock:
			return nil, false
		}

		outcome, err := p.Feed(data)
		if err != nil || outcome.Failed {
			return nil, false
		}
		if outcome.Complete {
			return p.Message(), true
		}
	}
}

type ioError string

func (e ioError) Error() string { return string(e) }

const (
	errFlushFailed  = ioError("upstream flush failed")
	errClosed       = ioError("upstream connection closed")
	errWriteTimeout = ioError("upstream write deadline exceeded")
)
