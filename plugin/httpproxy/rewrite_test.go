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
	"testing"

	"github/sabouaram/httpmitm/httpmsg"
)

func TestParseAbsoluteTargetDefaultsPort(t *testing.T) {
	tg, err := parseAbsoluteTarget("http://Example.com/path?q=1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tg.Host != "example.com" || tg.Port != 80 || tg.TLS || tg.Path != "/path?q=1" {
		t.Fatalf("unexpected target: %+v", tg)
	}
}

func TestParseAbsoluteTargetHTTPSDefaultPort(t *testing.T) {
	tg, err := parseAbsoluteTarget("https://example.com")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tg.Port != 443 || !tg.TLS || tg.Path != "/" {
		t.Fatalf("unexpected target: %+v", tg)
	}
}

func TestParseAuthorityTarget(t *testing.T) {
	tg, err := parseAuthorityTarget("example.com:443")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tg.Host != "example.com" || tg.Port != 443 || !tg.TLS {
		t.Fatalf("unexpected target: %+v", tg)
	}
}

func TestRewriteForUpstreamStripsHopByHopAndSetsHost(t *testing.T) {
	req := &httpmsg.Message{Kind: httpmsg.Request, Method: "GET", Header: httpmsg.Header{}}
	req.Header.Set("Proxy-Connection", "keep-alive")
	req.Header.Set("Connection", "X-Custom")
	req.Header.Set("X-Custom", "drop-me")
	req.Header.Set("Accept", "*/*")

	rewriteForUpstream(req, target{Host: "example.com", Port: 80, Path: "/a"})

	if req.Target != "/a" || req.TargetForm != httpmsg.OriginForm {
		t.Fatalf("unexpected rewritten target: %q %v", req.Target, req.TargetForm)
	}
	if req.Header.Has("Proxy-Connection") || req.Header.Has("Connection") || req.Header.Has("X-Custom") {
		t.Fatalf("expected hop-by-hop and Connection-named headers stripped: %+v", req.Header)
	}
	if v, _ := req.Header.Get("Accept"); v != "*/*" {
		t.Fatalf("expected Accept preserved, got %q", v)
	}
	if v, _ := req.Header.Get("Host"); v != "example.com" {
		t.Fatalf("expected Host set to example.com, got %q", v)
	}
}

func TestHasConnectionClose(t *testing.T) {
	resp := httpmsg.NewResponse(200, "OK")
	if hasConnectionClose(resp) {
		t.Fatal("HTTP/1.1 with no Connection header should default to keep-alive")
	}

	resp.Header.Set("Connection", "close")
	if !hasConnectionClose(resp) {
		t.Fatal("expected Connection: close to be detected")
	}
}
