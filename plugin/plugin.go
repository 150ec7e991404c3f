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

// Package plugin is the shared contract component (I) between the
// protocol handler (F) and the two protocol-handler plugins plus any
// user sub-plugins. Dispatch is by interface method, never by reflection
// or a runtime class registry.
package plugin

import "github/sabouaram/httpmitm/httpmsg"

// Status is a plugin's verdict after inspecting a message's headers.
type Status int

const (
	// Continue lets the handler proceed with normal processing.
	Continue Status = iota
	// ResponseReady means the plugin built its own response; the
	// handler must stop header-phase processing for this message and
	// send that response instead of contacting any upstream.
	ResponseReady
	// Close means the plugin wants the connection torn down without a
	// response (e.g. a detected protocol violation worth dropping,
	// not answering).
	Close
)

// Instance is a per-connection plugin instance. Embed BaseInstance to get
// no-op defaults for every hook and override only what's needed.
type Instance interface {
	OnRequestHeaders(msg *httpmsg.Message) Status
	OnRequestChunk(chunk []byte) (out []byte, drop bool)
	OnResponseHeaders(msg *httpmsg.Message) Status
	OnResponseChunk(chunk []byte) (out []byte, drop bool)
	OnClientData(data []byte) []byte
	OnUpstreamData(data []byte) []byte
	OnClose()

	// Response is consulted by the handler immediately after a hook
	// returns ResponseReady, to obtain the message to send.
	Response() *httpmsg.Message
}

// BaseInstance implements Instance with pass-through defaults: headers
// continue unmodified, chunks pass through unchanged, raw-data hooks are
// identity, and Close is a no-op. Sub-plugins embed this and override
// only the hooks they care about.
type BaseInstance struct {
	resp *httpmsg.Message
}

func (b *BaseInstance) OnRequestHeaders(*httpmsg.Message) Status { return Continue }

func (b *BaseInstance) OnRequestChunk(chunk []byte) ([]byte, bool) { return chunk, false }

func (b *BaseInstance) OnResponseHeaders(*httpmsg.Message) Status { return Continue }

func (b *BaseInstance) OnResponseChunk(chunk []byte) ([]byte, bool) { return chunk, false }

func (b *BaseInstance) OnClientData(data []byte) []byte { return data }

func (b *BaseInstance) OnUpstreamData(data []byte) []byte { return data }

func (b *BaseInstance) OnClose() {}

func (b *BaseInstance) Response() *httpmsg.Message { return b.resp }

// SetResponse lets an overriding hook stash the short-circuit response it
// built before returning ResponseReady.
func (b *BaseInstance) SetResponse(msg *httpmsg.Message) { b.resp = msg }

// Factory builds a fresh Instance for one connection; sub-plugins are
// stateless at the factory level so one Factory can be reused for every
// connection the handler accepts.
type Factory func() Instance

// Chain runs an ordered list of plugin instances as one composite
// Instance, per spec.md §4.5 ("the first to return RESPONSE_READY
// terminates header-phase processing").
type Chain struct {
	instances []Instance
	ready     Instance
}

// NewChain builds a Chain from factories, instantiating one Instance per
// factory for this connection.
func NewChain(factories []Factory) *Chain {
	c := &Chain{}
	for _, f := range factories {
		c.instances = append(c.instances, f())
	}
	return c
}

// OnRequestHeaders runs every instance in order until one returns
// non-Continue.
func (c *Chain) OnRequestHeaders(msg *httpmsg.Message) (Status, Instance) {
	for _, inst := range c.instances {
		if st := inst.OnRequestHeaders(msg); st != Continue {
			if st == ResponseReady {
				c.ready = inst
			}
			return st, inst
		}
	}
	return Continue, nil
}

// OnResponseHeaders mirrors OnRequestHeaders for the response direction.
func (c *Chain) OnResponseHeaders(msg *httpmsg.Message) (Status, Instance) {
	for _, inst := range c.instances {
		if st := inst.OnResponseHeaders(msg); st != Continue {
			if st == ResponseReady {
				c.ready = inst
			}
			return st, inst
		}
	}
	return Continue, nil
}

// OnRequestChunk threads chunk through every instance's transform,
// in chain order; a drop by any instance ends the chain early.
func (c *Chain) OnRequestChunk(chunk []byte) ([]byte, bool) {
	for _, inst := range c.instances {
		out, drop := inst.OnRequestChunk(chunk)
		if drop {
			return nil, true
		}
		chunk = out
	}
	return chunk, false
}

// OnResponseChunk mirrors OnRequestChunk for the response direction.
func (c *Chain) OnResponseChunk(chunk []byte) ([]byte, bool) {
	for _, inst := range c.instances {
		out, drop := inst.OnResponseChunk(chunk)
		if drop {
			return nil, true
		}
		chunk = out
	}
	return chunk, false
}

// OnClose invokes every instance's teardown hook once, in registration
// order. The outer plugins that build a chain call this from a defer; a
// panic in one instance's hook is not recovered here.
func (c *Chain) OnClose() {
	for _, inst := range c.instances {
		inst.OnClose()
	}
}

// ReadyResponse returns the response the chain's short-circuiting
// instance built, if any.
func (c *Chain) ReadyResponse() *httpmsg.Message {
	if c.ready == nil {
		return nil
	}
	return c.ready.Response()
}
