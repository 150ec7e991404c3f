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

// Package errors provides coded, chainable error values for the proxy core.
// Every error carries a CodeError (the HTTP-status-like code that the
// protocol handler should reply with, when a reply is still possible) and
// an optional chain of parent errors collected along the way.
package errors

import (
	"fmt"
	"strings"
)

// CodeError is a numeric error classification, deliberately mirroring HTTP
// status codes so a handler can go from "what broke" to "what to answer"
// without a lookup table.
type CodeError uint16

const (
	CodeUnknown               CodeError = 0
	CodeClientProtocolError   CodeError = 400
	CodeProxyAuthRequired     CodeError = 407
	CodeUpstreamConnectError  CodeError = 502
	CodeUpstreamProtocolError CodeError = 502
	CodeTimeoutError          CodeError = 504
	CodeTlsInterceptError     CodeError = 526
	CodeInternal              CodeError = 500
)

// Error is the chainable error value returned across the core. It behaves
// like a normal error (implements error, Unwrap) but additionally tracks a
// CodeError and a list of parents so a teardown path can report the full
// causal chain without losing the one code that matters for the reply.
type Error interface {
	error

	// Code returns the classification for this error.
	Code() CodeError

	// AddParent appends additional causes without changing this error's
	// own code or message.
	AddParent(parent ...error)

	// HasParent reports whether any parent causes were recorded.
	HasParent() bool

	// Is supports errors.Is by comparing message and code.
	Is(target error) bool

	// Unwrap supports errors.As/errors.Is traversal (Go 1.20+ multi-unwrap).
	Unwrap() []error
}

type coded struct {
	code CodeError
	msg  string
	p    []error
}

// New creates a new Error with the given code and message and optional
// parent causes.
func New(code CodeError, msg string, parents ...error) Error {
	e := &coded{code: code, msg: msg}
	e.AddParent(parents...)
	return e
}

// Newf is New with fmt.Sprintf-style formatting of msg.
func Newf(code CodeError, format string, args ...interface{}) Error {
	return New(code, fmt.Sprintf(format, args...))
}

func (c CodeError) Error(parents ...error) Error {
	return New(c, c.defaultMessage(), parents...)
}

func (c CodeError) Errorf(format string, args ...interface{}) Error {
	return Newf(c, format, args...)
}

func (c CodeError) defaultMessage() string {
	switch c {
	case CodeClientProtocolError:
		return "malformed client request"
	case CodeProxyAuthRequired:
		return "proxy authentication required"
	case CodeUpstreamConnectError:
		// CodeUpstreamProtocolError shares the 502 value, so both land here.
		return "upstream connect failed or returned malformed response"
	case CodeTimeoutError:
		return "operation timed out"
	case CodeTlsInterceptError:
		return "tls interception failed"
	case CodeInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

func (e *coded) Code() CodeError {
	return e.code
}

func (e *coded) AddParent(parents ...error) {
	for _, p := range parents {
		if p == nil {
			continue
		}
		e.p = append(e.p, p)
	}
}

func (e *coded) HasParent() bool {
	return len(e.p) > 0
}

func (e *coded) Error() string {
	if !e.HasParent() {
		return e.msg
	}

	var sb strings.Builder
	sb.WriteString(e.msg)
	for _, p := range e.p {
		sb.WriteString(": ")
		sb.WriteString(p.Error())
	}
	return sb.String()
}

func (e *coded) Is(target error) bool {
	if target == nil {
		return false
	}
	if o, ok := target.(*coded); ok {
		return o.code == e.code && strings.EqualFold(o.msg, e.msg)
	}
	return strings.EqualFold(target.Error(), e.msg)
}

func (e *coded) Unwrap() []error {
	return e.p
}
