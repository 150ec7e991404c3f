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
)

// NewResponse builds a minimal HTTP/1.1 response with no body yet.
func NewResponse(status int, reason string) *Message {
	return &Message{
		Kind:          Response,
		ProtoMajor:    1,
		ProtoMinor:    1,
		StatusCode:    status,
		Reason:        reason,
		ContentLength: -1,
	}
}

// SetBody sets m's body and stamps a matching Content-Length, replacing
// any chunked framing — callers building a short-circuit or static
// response always know the full body up front.
func (m *Message) SetBody(b []byte) {
	m.Body = b
	m.Chunked = false
	m.ContentLength = int64(len(b))
	m.Header.Set("Content-Length", strconv.Itoa(len(b)))
}

// Encode renders m as wire bytes: start line, headers, blank line, body.
// It does not re-chunk a chunked body; callers that set Chunked are
// expected to have already framed Body as chunks themselves (the proxy
// plugin relays chunked upstream bodies as received).
func Encode(m *Message) []byte {
	var sb strings.Builder

	if m.Kind == Request {
		sb.WriteString(m.Method)
		sb.WriteByte(' ')
		sb.WriteString(m.Target)
		sb.WriteByte(' ')
		sb.WriteString(versionString(m))
		sb.WriteString("\r\n")
	} else {
		sb.WriteString(versionString(m))
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(m.StatusCode))
		sb.WriteByte(' ')
		sb.WriteString(m.Reason)
		sb.WriteString("\r\n")
	}

	m.Header.Each(func(name, value string) {
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString("\r\n")
	})
	sb.WriteString("\r\n")

	out := make([]byte, 0, sb.Len()+len(m.Body))
	out = append(out, sb.String()...)
	out = append(out, m.Body...)
	return out
}

func versionString(m *Message) string {
	major, minor := m.ProtoMajor, m.ProtoMinor
	if major == 0 && minor == 0 {
		major, minor = 1, 1
	}
	return "HTTP/" + strconv.Itoa(major) + "." + strconv.Itoa(minor)
}
