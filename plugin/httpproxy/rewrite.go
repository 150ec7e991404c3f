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
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github/sabouaram/httpmitm/httpmsg"
)

// hopByHop is the fixed set of headers a forward proxy must strip, per
// spec.md §4.6, beyond whatever the Connection header itself names.
var hopByHop = []string{
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Keep-Alive",
	"Connection",
}

// target describes a request's authority, parsed from either an
// absolute-form request-target or a CONNECT authority-form one.
type target struct {
	Host string
	Port int
	TLS  bool
	Path string
}

// parseAbsoluteTarget parses "http://host[:port]/path?query" into its
// components, normalising the host to lowercase and filling the scheme's
// default port, per spec.md §4.1's request-target parsing rule.
func parseAbsoluteTarget(raw string) (target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, err
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return target{}, fmt.Errorf("absolute-form target missing host: %q", raw)
	}

	tls := u.Scheme == "https"
	port := 80
	if tls {
		port = 443
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return target{}, fmt.Errorf("invalid port in %q: %w", raw, err)
		}
		port = n
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	return target{Host: host, Port: port, TLS: tls, Path: path}, nil
}

// parseAuthorityTarget parses CONNECT's "host:port" authority-form.
func parseAuthorityTarget(raw string) (target, error) {
	host, portStr, err := splitHostPort(raw)
	if err != nil {
		return target{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return target{}, fmt.Errorf("invalid port in %q: %w", raw, err)
	}
	return target{Host: strings.ToLower(host), Port: port, TLS: true}, nil
}

func splitHostPort(raw string) (host, port string, err error) {
	i := strings.LastIndexByte(raw, ':')
	if i < 0 {
		return "", "", fmt.Errorf("authority-form target missing port: %q", raw)
	}
	return raw[:i], raw[i+1:], nil
}

// rewriteForUpstream mutates req in place: request-target from
// absolute-form to origin-form, and strips hop-by-hop headers, per
// spec.md §4.6's plain-forward-proxy rule.
func rewriteForUpstream(req *httpmsg.Message, t target) {
	req.Target = t.Path
	req.TargetForm = httpmsg.OriginForm

	var connectionNamed []string
	if cv, ok := req.Header.Get("Connection"); ok {
		for _, name := range strings.Split(cv, ",") {
			connectionNamed = append(connectionNamed, strings.TrimSpace(name))
		}
	}

	for _, h := range hopByHop {
		req.Header.Del(h)
	}
	for _, h := range connectionNamed {
		req.Header.Del(h)
	}

	if !req.Header.Has("Host") {
		if t.Port == 80 && !t.TLS || t.Port == 443 && t.TLS {
			req.Header.Set("Host", t.Host)
		} else {
			req.Header.Set("Host", fmt.Sprintf("%s:%d", t.Host, t.Port))
		}
	}
}
