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

// parseStartLine fills in Method/Target/TargetForm (request) or
// StatusCode/Reason (response) plus the shared ProtoMajor/ProtoMinor.
func (p *Parser) parseStartLine(line []byte) error {
	s := string(line)
	if p.kind == Request {
		return p.parseRequestLine(s)
	}
	return p.parseStatusLine(s)
}

func (p *Parser) parseRequestLine(s string) error {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) != 3 {
		return errMalformed("malformed request line")
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || target == "" {
		return errMalformed("empty method or target")
	}

	major, minor, err := parseHTTPVersion(proto)
	if err != nil {
		return err
	}

	p.msg.Method = method
	p.msg.Target = target
	p.msg.TargetForm = classifyTarget(method, target)
	p.msg.ProtoMajor = major
	p.msg.ProtoMinor = minor
	return nil
}

func (p *Parser) parseStatusLine(s string) error {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 {
		return errMalformed("malformed status line")
	}
	major, minor, err := parseHTTPVersion(parts[0])
	if err != nil {
		return err
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 599 {
		return errMalformed("invalid status code")
	}

	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}

	p.msg.ProtoMajor = major
	p.msg.ProtoMinor = minor
	p.msg.StatusCode = code
	p.msg.Reason = reason

	// 1xx, 204, and 304 never carry a body regardless of framing
	// headers (RFC 7230 §3.3.3 cases 1-2).
	if code < 200 || code == 204 || code == 304 {
		p.noBody = true
	}
	return nil
}

func parseHTTPVersion(s string) (major, minor int, err error) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(s, prefix) {
		return 0, 0, errMalformed("missing HTTP version")
	}
	v := strings.TrimPrefix(s, prefix)
	dot := strings.IndexByte(v, '.')
	if dot < 0 {
		return 0, 0, errMalformed("malformed HTTP version")
	}
	major, errM := strconv.Atoi(v[:dot])
	minor, errN := strconv.Atoi(v[dot+1:])
	if errM != nil || errN != nil {
		return 0, 0, errMalformed("non-numeric HTTP version")
	}
	return major, minor, nil
}

// classifyTarget implements RFC 7230 §5.3's four request-target forms.
// CONNECT always uses authority-form; OPTIONS may use asterisk-form; a
// target beginning with a scheme is absolute-form (what a forward proxy
// must receive); anything else is origin-form.
func classifyTarget(method, target string) TargetForm {
	if method == "CONNECT" {
		return AuthorityForm
	}
	if target == "*" && method == "OPTIONS" {
		return AsteriskForm
	}
	if i := strings.Index(target, "://"); i > 0 && isScheme(target[:i]) {
		return AbsoluteForm
	}
	return OriginForm
}

func isScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// splitHeaderLine parses one "Name: value" header field, per RFC 7230
// §3.2: no whitespace permitted between the field name and the colon.
func splitHeaderLine(line []byte) (name, value string, err error) {
	idx := -1
	for i, c := range line {
		if c == ':' {
			idx = i
			break
		}
		if c == ' ' || c == '\t' {
			return "", "", errMalformed("whitespace before colon in header")
		}
	}
	if idx <= 0 {
		return "", "", errMalformed("missing colon in header line")
	}
	name = string(line[:idx])
	value = strings.TrimSpace(string(line[idx+1:]))
	return name, value, nil
}
