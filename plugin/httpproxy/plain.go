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
	"strings"

	"github/sabouaram/httpmitm/conn"
	"github/sabouaram/httpmitm/conn/pool"
	liberr "github/sabouaram/httpmitm/errors"
	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/monitor"
)

// servePlain implements spec.md §4.6's "plain forward proxy" path.
func (p *Plugin) servePlain(ctx context.Context, s *handler.Session, req *httpmsg.Message) bool {
	t, err := parseAbsoluteTarget(req.Target)
	if err != nil {
		_ = s.WriteMessage(errorResponse(liberr.CodeClientProtocolError, "Bad Request"))
		return false
	}

	if resp, cont := p.runSubPlugins(req); !cont {
		if resp == nil {
			return false
		}
		_ = s.WriteMessage(resp)
		return !hasConnectionClose(resp)
	}

	rewriteForUpstream(req, t)

	key := pool.Key{Host: t.Host, Port: t.Port, TLS: false}
	upstream, err := p.cfg.Pool.Acquire(ctx, key)
	if err != nil {
		p.emit(monitor.KindUpstreamConnectErr, err.Error())
		_ = s.WriteMessage(errorResponse(liberr.CodeUpstreamConnectError, "Bad Gateway"))
		return false
	}

	reusable := p.forward(ctx, s, req, upstream)
	p.cfg.Pool.Release(key, upstream, reusable)
	return reusable && !hasConnectionClose(req)
}

// forward writes req to upstream, reads the response, and relays it back
// to the client. It returns whether upstream signaled it may be reused.
func (p *Plugin) forward(ctx context.Context, s *handler.Session, req *httpmsg.Message, upstream *conn.Conn) bool {
	if err := writeAll(upstream, httpmsg.Encode(req), p.cfg.ConnectTimeout); err != nil {
		_ = s.WriteMessage(errorResponse(liberr.CodeUpstreamConnectError, "Bad Gateway"))
		return false
	}

	resp, ok := readMessage(ctx, upstream, httpmsg.Response, s.Deps.Config.MaxHeaderBytes, s.Deps.Config.IdleTimeout, req.Method == "HEAD")
	if !ok {
		_ = s.WriteMessage(errorResponse(liberr.CodeUpstreamProtocolError, "Bad Gateway"))
		return false
	}

	if err := s.WriteMessage(resp); err != nil {
		return false
	}

	return !hasConnectionClose(resp)
}

func hasConnectionClose(msg *httpmsg.Message) bool {
	v, ok := msg.Header.Get("Connection")
	if !ok {
		return msg.ProtoMajor == 1 && msg.ProtoMinor == 0
	}
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "close") {
			return true
		}
	}
	return false
}
