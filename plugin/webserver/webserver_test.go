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

package webserver

import (
	"os"
	"path/filepath"
	"testing"

	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/plugin"
)

func newReq(method, target string) *httpmsg.Message {
	return &httpmsg.Message{Kind: httpmsg.Request, Method: method, Target: target, TargetForm: httpmsg.OriginForm, ProtoMajor: 1, ProtoMinor: 1}
}

func TestMatchesOriginAndAsteriskOnly(t *testing.T) {
	p := New(Config{}, plugin.NewRegistry())
	if !p.Matches("GET", httpmsg.OriginForm) {
		t.Fatal("expected origin-form to match")
	}
	if !p.Matches("OPTIONS", httpmsg.AsteriskForm) {
		t.Fatal("expected asterisk-form to match")
	}
	if p.Matches("GET", httpmsg.AbsoluteForm) {
		t.Fatal("expected absolute-form not to match")
	}
}

func TestRoutePAC(t *testing.T) {
	p := New(Config{PACPath: "/proxy.pac", PACBody: []byte("function FindProxyForURL(){}")}, plugin.NewRegistry())
	resp := p.route(newReq("GET", "/proxy.pac"))
	if resp.StatusCode != 200 || string(resp.Body) != "function FindProxyForURL(){}" {
		t.Fatalf("unexpected PAC response: %+v", resp)
	}
}

func TestRouteStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>hi</html>"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p := New(Config{StaticEnabled: true, StaticDir: dir}, plugin.NewRegistry())
	resp := p.route(newReq("GET", "/"))
	if resp.StatusCode != 200 || string(resp.Body) != "<html>hi</html>" {
		t.Fatalf("unexpected static response: %+v", resp)
	}
}

func TestRouteStaticMissingFileFallsThroughTo404(t *testing.T) {
	dir := t.TempDir()
	p := New(Config{StaticEnabled: true, StaticDir: dir}, plugin.NewRegistry())
	resp := p.route(newReq("GET", "/../../etc/passwd"))
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for a nonexistent file, got %d", resp.StatusCode)
	}
}

func TestRouteDefault404(t *testing.T) {
	p := New(Config{}, plugin.NewRegistry())
	resp := p.route(newReq("GET", "/nope"))
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestKeepAliveForAlwaysFalse(t *testing.T) {
	req := newReq("GET", "/")
	resp := httpmsg.NewResponse(200, "OK")
	if keepAliveFor(req, resp) {
		t.Fatal("web server plugin must always close, per its design")
	}
}
