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

package handler

import (
	"context"

	"github.com/google/uuid"

	"github/sabouaram/httpmitm/conn"
	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/monitor"
)

// Phase is the handler's lifecycle position, per spec.md §3's
// "Protocol-handler state" record.
type Phase int

const (
	PhaseReadingRequest Phase = iota
	PhaseDispatched
	PhaseTunneling
	PhaseWritingResponse
	PhaseClosing
	PhaseDone
)

// Session owns exactly one client connection and runs its full lifecycle
// across as many keep-alive requests as the peer and the outer plugin
// allow. A Session runs to completion on the loop worker goroutine that
// took its connection; that worker starts no other Session meanwhile.
type Session struct {
	Client *conn.Conn
	Deps   Deps
	ID     uuid.UUID

	phase Phase
}

// NewSession wraps an accepted client connection for a fresh exchange. ID
// identifies this connection across its logged/emitted events, letting an
// operator correlate every request on one keep-alive connection without
// a connection-level trace header.
func NewSession(client *conn.Conn, deps Deps) *Session {
	return &Session{Client: client, Deps: deps, ID: uuid.New(), phase: PhaseReadingRequest}
}

// Phase returns the session's current lifecycle position.
func (s *Session) Phase() Phase { return s.phase }

// Run drives the session until the connection closes, the peer signals
// it will not keep the connection alive, or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown("client disconnect")

	for {
		if ctx.Err() != nil {
			return
		}

		req, ok := s.readRequest(ctx)
		if !ok {
			return
		}

		s.phase = PhaseDispatched
		s.emit(monitor.KindRequestComplete, "", req.Method, req.Target)

		outer := s.selectOuter(req)
		if outer == nil {
			// Unreachable by construction (spec.md §4.5) unless no
			// outer plugins were registered at all.
			s.writeAndClose(httpmsg.NewResponse(500, "Internal Server Error"))
			return
		}

		keepAlive := outer.Serve(ctx, s, req)
		s.emit(monitor.KindResponseComplete, "", req.Method, req.Target)

		if !keepAlive || s.Client.Closed() {
			return
		}
		s.phase = PhaseReadingRequest
	}
}

// selectOuter finds the outer plugin claiming req, per spec.md §4.5.
func (s *Session) selectOuter(req *httpmsg.Message) Outer {
	for _, o := range s.Deps.Outers {
		if o.Matches(req.Method, req.TargetForm) {
			return o
		}
	}
	return nil
}

// readRequest reads and parses one request off the client connection,
// answering 400 and closing on malformed input or TOO_LARGE headers, per
// spec.md §4.1/§7.
func (s *Session) readRequest(ctx context.Context) (*httpmsg.Message, bool) {
	p := httpmsg.NewParser(httpmsg.Request, s.Deps.Config.MaxHeaderBytes)

	for {
		if ctx.Err() != nil {
			return nil, false
		}

		data, status := s.Client.RecvTimeout(s.Deps.Config.IdleTimeout)
		switch status {
		case conn.RecvEOF, conn.RecvError:
			return nil, false
		case conn.RecvWouldBlock:
			// Idle timeout elapsed with nothing read; spec.md §5
			// transitions the handler to CLOSING.
			s.emit(monitor.KindTeardown, "idle_timeout")
			return nil, false
		}

		outcome, err := p.Feed(data)
		if err != nil || outcome.Failed {
			s.writeAndClose(httpmsg.NewResponse(400, "Bad Request"))
			return nil, false
		}
		if outcome.Complete {
			return p.Message(), true
		}
	}
}

// WriteMessage encodes msg and flushes it fully to the client, retrying
// Flush while the socket reports WouldBlock.
func (s *Session) WriteMessage(msg *httpmsg.Message) error {
	return s.WriteRaw(httpmsg.Encode(msg))
}

// WriteRaw queues and flushes p in full.
func (s *Session) WriteRaw(p []byte) error {
	s.Client.Queue(p)
	for s.Client.HasPending() {
		if s.Client.Closed() {
			return nil
		}
		_, status := s.Client.Flush()
		if status == conn.FlushError {
			return errFlushFailed
		}
	}
	return nil
}

func (s *Session) writeAndClose(msg *httpmsg.Message) {
	msg.Header.Set("Connection", "close")
	_ = s.WriteMessage(msg)
}

func (s *Session) emit(kind monitor.Kind, reason string, fields ...string) {
	if s.Deps.Mon == nil {
		return
	}
	f := map[string]interface{}{"session_id": s.ID.String()}
	if len(fields) >= 2 {
		f["method"] = fields[0]
		f["target"] = fields[1]
	}
	s.Deps.Mon.Emit(monitor.Event{Kind: kind, Reason: reason, Fields: f})
}

func (s *Session) teardown(reason string) {
	if s.phase == PhaseDone {
		return
	}
	s.phase = PhaseClosing
	_ = s.Client.Close()
	s.emit(monitor.KindTeardown, reason)
	s.phase = PhaseDone
}

type flushError string

func (e flushError) Error() string { return string(e) }

const errFlushFailed = flushError("flush failed")
