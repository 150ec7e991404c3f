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

package httpmsg

import (
	"strconv"
	"strings"

	"github/sabouaram/httpmitm/netbuf"
)

// DefaultMaxHeaderBytes is the cap spec.md §4.1 names for the start line
// plus header block, past which a message fails with TooLarge rather than
// let a slow-loris peer grow the buffer unbounded.
const DefaultMaxHeaderBytes = 64 * 1024

// Parser is an incremental HTTP/1.x message parser. Feed is idempotent on
// empty input and tolerates the start line, headers, or body arriving
// split across any number of calls.
type Parser struct {
	kind           Kind
	maxHeaderBytes int

	buf   netbuf.Buffer
	msg   *Message
	state State

	headerBytes   int
	pendingName   string
	pendingValue  strings.Builder
	havePending   bool
	noBody        bool
	bodyRemaining int64

	chunkPhase     chunkPhase
	chunkRemaining int64
}

type chunkPhase int

const (
	chunkSize chunkPhase = iota
	chunkData
	chunkCRLF
	chunkTrailer
)

// NewParser builds a Parser for one message of the given Kind. A
// maxHeaderBytes of 0 selects DefaultMaxHeaderBytes.
func NewParser(kind Kind, maxHeaderBytes int) *Parser {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	p := &Parser{kind: kind, maxHeaderBytes: maxHeaderBytes}
	p.Reset(kind)
	return p
}

// Reset discards any partial message and prepares the parser for another
// message. NewParser calls it; the handler and the proxy plugin build a
// fresh Parser for every message they read.
func (p *Parser) Reset(kind Kind) {
	p.kind = kind
	p.state = Initialized
	p.msg = &Message{Kind: kind, ContentLength: -1}
	p.headerBytes = 0
	p.havePending = false
	p.pendingName = ""
	p.pendingValue.Reset()
	p.bodyRemaining = 0
	p.chunkPhase = chunkSize
	// p.noBody persists across Reset: it is set by SetNoBody (the proxy
	// plugin's readMessage does so before the first Feed) or by a
	// 1xx/204/304 status line.
}

// SetNoBody tells the parser the upcoming message has no body regardless
// of framing headers — responses to HEAD, 1xx/204/304 responses, and
// CONNECT's 200 per RFC 7230 §3.3.3.
func (p *Parser) SetNoBody(v bool) {
	p.noBody = v
}

// Message returns the message under construction; safe to call at any
// state, though fields populate progressively as parsing advances.
func (p *Parser) Message() *Message {
	return p.msg
}

// State reports the parser's current phase.
func (p *Parser) State() State {
	return p.state
}

// Feed appends data to the parser's internal buffer and advances the
// state machine as far as it will go. Callers should stop feeding a
// parser once it returns Complete or Failed.
func (p *Parser) Feed(data []byte) (Outcome, error) {
	if len(data) > 0 {
		p.buf.Append(data)
	}

	for {
		switch p.state {
		case Initialized, LineReceived:
			line, ok := p.buf.ConsumeLine()
			if !ok {
				if p.buf.Len() > p.maxHeaderBytes {
					return outcomeFailed(TooLarge), nil
				}
				return outcomeNeedMore, nil
			}
			p.headerBytes += len(line) + 2
			if p.headerBytes > p.maxHeaderBytes {
				return outcomeFailed(TooLarge), nil
			}
			if err := p.parseStartLine(line); err != nil {
				return outcomeFailed(Malformed), nil
			}
			p.state = ReceivingHeaders

		case ReceivingHeaders:
			line, ok := p.buf.ConsumeLine()
			if !ok {
				if p.buf.Len() > p.maxHeaderBytes {
					return outcomeFailed(TooLarge), nil
				}
				return outcomeNeedMore, nil
			}
			p.headerBytes += len(line) + 2
			if p.headerBytes > p.maxHeaderBytes {
				return outcomeFailed(TooLarge), nil
			}

			if len(line) == 0 {
				p.flushPendingHeader()
				if err := p.onHeadersComplete(); err != nil {
					return outcomeFailed(Malformed), nil
				}
				p.state = HeadersComplete
				continue
			}

			if line[0] == ' ' || line[0] == '\t' {
				if !p.havePending {
					return outcomeFailed(Malformed), nil
				}
				p.pendingValue.WriteByte(' ')
				p.pendingValue.WriteString(strings.TrimSpace(string(line)))
				continue
			}

			p.flushPendingHeader()

			name, value, err := splitHeaderLine(line)
			if err != nil {
				return outcomeFailed(Malformed), nil
			}
			p.pendingName = name
			p.pendingValue.Reset()
			p.pendingValue.WriteString(value)
			p.havePending = true

		case HeadersComplete:
			if p.noBody || (p.bodyRemaining == 0 && !p.msg.Chunked && p.msg.ContentLength <= 0) {
				p.state = Complete
				continue
			}
			p.state = ReceivingBody

		case ReceivingBody:
			if p.msg.Chunked {
				done, failed := p.feedChunked()
				if failed {
					return outcomeFailed(Malformed), nil
				}
				if !done {
					return outcomeNeedMore, nil
				}
				p.state = Complete
				continue
			}

			if p.bodyRemaining < 0 {
				// Until-EOF framing: the owning connection signals EOF by
				// calling FeedEOF rather than Feed, so here we just buffer
				// whatever is available and ask for more.
				if p.buf.Len() > 0 {
					p.msg.Body = append(p.msg.Body, p.buf.Bytes()...)
					p.buf.Consume(p.buf.Len())
				}
				return outcomeNeedMore, nil
			}

			if int64(p.buf.Len()) < p.bodyRemaining {
				p.msg.Body = append(p.msg.Body, p.buf.Bytes()...)
				p.bodyRemaining -= int64(p.buf.Len())
				p.buf.Consume(p.buf.Len())
				return outcomeNeedMore, nil
			}

			n := int(p.bodyRemaining)
			p.msg.Body = append(p.msg.Body, p.buf.Bytes()[:n]...)
			p.buf.Consume(n)
			p.bodyRemaining = 0
			p.state = Complete

		case Complete:
			return outcomeComplete, nil
		}
	}
}

// FeedEOF tells the parser the underlying connection closed. It is only
// meaningful while ReceivingBody with until-EOF framing (ContentLength <
// 0 and not chunked), in which case the buffered body becomes final.
func (p *Parser) FeedEOF() Outcome {
	if p.state == ReceivingBody && !p.msg.Chunked && p.bodyRemaining < 0 {
		if p.buf.Len() > 0 {
			p.msg.Body = append(p.msg.Body, p.buf.Bytes()...)
			p.buf.Consume(p.buf.Len())
		}
		p.state = Complete
		return outcomeComplete
	}
	return outcomeFailed(Malformed)
}

func (p *Parser) flushPendingHeader() {
	if !p.havePending {
		return
	}
	p.msg.Header.Add(p.pendingName, strings.TrimSpace(p.pendingValue.String()))
	p.havePending = false
	p.pendingName = ""
	p.pendingValue.Reset()
}

// onHeadersComplete resolves body framing per RFC 7230 §3.3.3: chunked
// Transfer-Encoding wins over Content-Length; a request with neither has
// no body; a response with neither runs until EOF.
func (p *Parser) onHeadersComplete() error {
	if cv, ok := p.msg.Header.Get("Connection"); ok {
		p.msg.KeepAlive = !containsToken(cv, "close")
	} else {
		p.msg.KeepAlive = p.msg.ProtoMajor > 1 || p.msg.ProtoMajor == 1 && p.msg.ProtoMinor >= 1
	}

	if te, ok := p.msg.Header.Get("Transfer-Encoding"); ok && containsToken(te, "chunked") {
		p.msg.Chunked = true
		p.chunkPhase = chunkSize
		return nil
	}

	if cl, ok := p.msg.Header.Get("Content-Length"); ok {
		for _, v := range p.msg.Header.Values("Content-Length") {
			if strings.TrimSpace(v) != strings.TrimSpace(cl) {
				return errMalformed("conflicting Content-Length values")
			}
		}
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return errMalformed("invalid Content-Length")
		}
		p.msg.ContentLength = n
		p.bodyRemaining = n
		return nil
	}

	if p.kind == Request {
		p.msg.ContentLength = 0
		p.bodyRemaining = 0
		return nil
	}

	p.msg.ContentLength = -1
	p.bodyRemaining = -1
	return nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

func errMalformed(reason string) error { return parseError(reason) }
