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

// Package httpmsg is the incremental HTTP/1.x message parser (component B):
// a byte-at-a-time state machine over a netbuf.Buffer that never blocks and
// never assumes a message arrives in one read.
package httpmsg

// Kind distinguishes a request being parsed off a client socket from a
// response being parsed off an upstream socket; the two share header and
// body framing but differ in start line shape.
type Kind int

const (
	Request Kind = iota
	Response
)

// TargetForm is the request-target variant RFC 7230 §5.3 defines. The
// proxy plugin (component G) dispatches on this to tell a forward-proxy
// request ("GET http://host/path HTTP/1.1") from an origin-server one
// ("GET /path HTTP/1.1").
type TargetForm int

const (
	// OriginForm is "/path?query", valid for any server.
	OriginForm TargetForm = iota
	// AbsoluteForm is "http://host/path?query", required of proxies.
	AbsoluteForm
	// AuthorityForm is "host:port", used only with CONNECT.
	AuthorityForm
	// AsteriskForm is "*", used only with OPTIONS.
	AsteriskForm
)

// State is the parser's current phase, advancing monotonically and never
// regressing within one Message's lifetime.
type State int

const (
	Initialized State = iota
	LineReceived
	ReceivingHeaders
	HeadersComplete
	ReceivingBody
	Complete
)

// FailKind classifies why a Parser gave up, matching the two error
// conditions spec.md §4.1 names.
type FailKind int

const (
	Malformed FailKind = iota
	TooLarge
)

func (k FailKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case TooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// Outcome is the parser's tagged result for one Feed call: exactly one of
// NeedMore, Complete, or Failed is true.
type Outcome struct {
	NeedMore bool
	Complete bool
	Failed   bool
	FailKind FailKind
}

var (
	outcomeNeedMore = Outcome{NeedMore: true}
	outcomeComplete = Outcome{Complete: true}
)

func outcomeFailed(k FailKind) Outcome {
	return Outcome{Failed: true, FailKind: k}
}

// Message is the accumulated parse result: a request or a response,
// depending on Kind.
type Message struct {
	Kind Kind

	// Request-only fields.
	Method     string
	Target     string
	TargetForm TargetForm

	// Response-only fields.
	StatusCode int
	Reason     string

	ProtoMajor int
	ProtoMinor int

	Header Header
	Body   []byte

	// ContentLength is the declared body length, or -1 when the body
	// runs until EOF (responses with no Content-Length and no chunked
	// framing — RFC 7230 §3.3.3 case 7).
	ContentLength int64
	Chunked       bool

	// KeepAlive reflects the negotiated persistence, derived from the
	// HTTP version and any Connection header once headers complete.
	KeepAlive bool
}

// HeaderString is a convenience accessor mirroring net/http's Header.Get
// ergonomics for callers that only care about presence, not duplicates.
func (m *Message) HeaderString(name string) string {
	v, _ := m.Header.Get(name)
	return v
}
