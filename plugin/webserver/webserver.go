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

// Package webserver is the embedded web server protocol-handler plugin
// (component H): PAC file, static files with gzip, registered routes,
// and a default 404.
package webserver

import (
	"context"

	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/plugin"
)

// Route is a user-supplied sub-plugin: it claims requests whose path has
// its Prefix and answers them directly.
type Route interface {
	Prefix() string
	Handle(req *httpmsg.Message) *httpmsg.Message
}

// Config configures the web server plugin.
type Config struct {
	// PACPath is the request path that serves the PAC document;
	// defaults to "/".
	PACPath string
	// PACBody is the PAC document contents, loaded once at startup
	// from disk or an inline string (spec.md §4.7.1).
	PACBody []byte

	StaticEnabled bool
	StaticDir     string

	Routes []Route
}

// Plugin implements handler.Outer for every request the forward proxy
// doesn't claim: origin-form requests with no CONNECT and no
// absolute-form target.
type Plugin struct {
	cfg      Config
	registry *plugin.Registry
}

// New builds a web server Plugin.
func New(cfg Config, registry *plugin.Registry) *Plugin {
	return &Plugin{cfg: cfg, registry: registry}
}

// Matches implements handler.Outer: the web server takes anything the
// proxy plugin doesn't (origin-form requests), per spec.md §4.5.
func (p *Plugin) Matches(method string, form httpmsg.TargetForm) bool {
	return form == httpmsg.OriginForm || form == httpmsg.AsteriskForm
}

// Serve implements handler.Outer.
func (p *Plugin) Serve(ctx context.Context, s *handler.Session, req *httpmsg.Message) bool {
	chain := p.registry.NewChainFor(plugin.CategoryWebServer)
	defer chain.OnClose()

	if st, _ := chain.OnRequestHeaders(req); st != plugin.Continue {
		if st == plugin.ResponseReady {
			resp := chain.ReadyResponse()
			if resp == nil {
				resp = httpmsg.NewResponse(500, "Internal Server Error")
			}
			_ = s.WriteMessage(resp)
			return keepAliveFor(req, resp)
		}
		return false
	}

	resp := p.route(req)
	_ = s.WriteMessage(resp)
	return keepAliveFor(req, resp)
}

func (p *Plugin) route(req *httpmsg.Message) *httpmsg.Message {
	path := req.Target
	if path == "" {
		path = "/"
	}

	if p.cfg.PACBody != nil && path == pacPathOrDefault(p.cfg.PACPath) {
		return p.pacResponse()
	}

	if p.cfg.StaticEnabled {
		if resp, ok := p.staticResponse(req, path); ok {
			return resp
		}
	}

	for _, r := range p.cfg.Routes {
		if hasPrefix(path, r.Prefix()) {
			if resp := r.Handle(req); resp != nil {
				return resp
			}
		}
	}

	return notFoundResponse()
}

func pacPathOrDefault(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func hasPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

func notFoundResponse() *httpmsg.Message {
	resp := httpmsg.NewResponse(404, "NOT FOUND")
	resp.Header.Set("Connection", "close")
	resp.SetBody([]byte("404 Not Found\n"))
	return resp
}

// keepAliveFor decides persistence the way the rest of spec.md §4.7
// expects: the web server always answers Connection: close, so every
// exchange ends the connection.
func keepAliveFor(req, resp *httpmsg.Message) bool {
	if v, ok := resp.Header.Get("Connection"); ok && v == "close" {
		return false
	}
	return false
}
