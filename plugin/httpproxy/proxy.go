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

// Package httpproxy is the HTTP proxy protocol-handler plugin (component
// G): plain forward proxying, CONNECT passthrough, and optional TLS
// interception with per-host leaf certificate synthesis.
package httpproxy

import (
	"context"
	"net"
	"time"

	"github/sabouaram/httpmitm/certificates"
	"github/sabouaram/httpmitm/conn"
	"github/sabouaram/httpmitm/conn/pool"
	liberr "github/sabouaram/httpmitm/errors"
	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/monitor"
	"github/sabouaram/httpmitm/plugin"
)

// Config configures the HTTP proxy plugin.
type Config struct {
	Pool           *pool.Pool
	ConnectTimeout time.Duration
	Intercept      bool
	CertStore      *certificates.Store
	Registry       *plugin.Registry
	Mon            *monitor.Monitor

	// Dial opens a raw TCP connection to host:port for CONNECT; nil
	// selects a net.Dialer with ConnectTimeout.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Plugin implements handler.Outer for CONNECT and absolute-form
// requests.
type Plugin struct {
	cfg Config
}

// New builds an HTTP proxy Plugin.
func New(cfg Config) *Plugin {
	if cfg.Dial == nil {
		d := &net.Dialer{Timeout: cfg.ConnectTimeout}
		cfg.Dial = d.DialContext
	}
	return &Plugin{cfg: cfg}
}

// Matches implements handler.Outer, per spec.md §4.5's selection rule.
func (p *Plugin) Matches(method string, form httpmsg.TargetForm) bool {
	return method == "CONNECT" || form == httpmsg.AbsoluteForm
}

// Serve implements handler.Outer.
func (p *Plugin) Serve(ctx context.Context, s *handler.Session, req *httpmsg.Message) bool {
	if req.Method == "CONNECT" {
		return p.serveConnect(ctx, s, req)
	}
	return p.servePlain(ctx, s, req)
}

func (p *Plugin) runSubPlugins(req *httpmsg.Message) (*httpmsg.Message, bool) {
	auth := p.cfg.Registry.NewChainFor(plugin.CategoryProxyAuth)
	defer auth.OnClose()
	if st, _ := auth.OnRequestHeaders(req); st == plugin.ResponseReady {
		return auth.ReadyResponse(), false
	} else if st == plugin.Close {
		return nil, false
	}

	general := p.cfg.Registry.NewChainFor(plugin.CategoryProxyGeneral)
	defer general.OnClose()
	if st, _ := general.OnRequestHeaders(req); st == plugin.ResponseReady {
		return general.ReadyResponse(), false
	} else if st == plugin.Close {
		return nil, false
	}

	return nil, true
}

func (p *Plugin) emit(kind monitor.Kind, reason string) {
	if p.cfg.Mon == nil {
		return
	}
	p.cfg.Mon.Emit(monitor.Event{Kind: kind, Reason: reason})
}

func errorResponse(code liberr.CodeError, reason string) *httpmsg.Message {
	status := int(code)
	if status == 0 {
		status = 500
	}
	resp := httpmsg.NewResponse(status, reason)
	resp.Header.Set("Connection", "close")
	resp.SetBody([]byte(reason + "\n"))
	return resp
}

// newUpstreamConn wraps a dialed net.Conn for use on the server leg.
func newUpstreamConn(nc net.Conn) *conn.Conn {
	return conn.New(nc, conn.RoleServer)
}
