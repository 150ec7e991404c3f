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

// Package handler is the protocol handler component (F): it owns exactly
// one client connection, drives the request parser, selects the outer
// plugin (forward proxy vs. web server) per spec.md §4.5's selection
// rule, and runs the request/response or tunnel lifecycle to completion.
package handler

import (
	"context"
	"time"

	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/logger"
	"github/sabouaram/httpmitm/monitor"
)

// Outer is an outer protocol-handler plugin: the forward proxy or the web
// server. Exactly one claims any given request, per spec.md §4.5
// ("Ties are impossible by construction").
type Outer interface {
	// Matches reports whether this outer plugin claims a request with
	// the given method and request-target form.
	Matches(method string, form httpmsg.TargetForm) bool

	// Serve drives the exchange to completion on s for the parsed
	// request req, returning whether the client connection may be
	// reused for a subsequent request.
	Serve(ctx context.Context, s *Session, req *httpmsg.Message) bool
}

// Config bounds the handler's timeouts and parser limits; it is built
// once from config.Config and shared read-only across every Session.
type Config struct {
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// DefaultConfig mirrors spec.md §5's default idle timeout.
func DefaultConfig() Config {
	return Config{IdleTimeout: 30 * time.Second, MaxHeaderBytes: httpmsg.DefaultMaxHeaderBytes}
}

// Deps bundles the shared, read-only collaborators every Session needs.
type Deps struct {
	Outers []Outer
	Config Config
	Mon    *monitor.Monitor
	Log    logger.Logger
}
