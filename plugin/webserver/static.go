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
	"bytes"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github/sabouaram/httpmitm/httpmsg"
)

// pacResponse answers the configured PAC document, per spec.md §4.7.1.
func (p *Plugin) pacResponse() *httpmsg.Message {
	resp := httpmsg.NewResponse(200, "OK")
	resp.Header.Set("Content-Type", "application/x-ns-proxy-autoconfig")
	resp.Header.Set("Connection", "close")
	resp.SetBody(p.cfg.PACBody)
	return resp
}

// staticResponse implements spec.md §4.7.2: directory-index expansion,
// symlink-canonicalised path-prefix safety, gzip when the client asked
// for it, and HEAD support (the body is computed then dropped).
func (p *Plugin) staticResponse(req *httpmsg.Message, reqPath string) (*httpmsg.Message, bool) {
	root, err := filepath.EvalSymlinks(p.cfg.StaticDir)
	if err != nil {
		return nil, false
	}

	clean := filepath.Clean("/" + reqPath)
	if clean == "/" {
		clean = "/index.html"
	}

	candidate := filepath.Join(root, clean)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return nil, false
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return nil, false
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return nil, false
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, false
	}

	resp := httpmsg.NewResponse(200, "OK")
	resp.Header.Set("Content-Type", contentType(resolved))
	resp.Header.Set("Cache-Control", "max-age=86400")
	resp.Header.Set("Connection", "close")

	if wantsGzip(req) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err == nil && gw.Close() == nil {
			data = buf.Bytes()
			resp.Header.Set("Content-Encoding", "gzip")
		}
	}

	if req.Method == "HEAD" {
		resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
		return resp, true
	}

	resp.SetBody(data)
	return resp, true
}

func wantsGzip(req *httpmsg.Message) bool {
	ae, ok := req.Header.Get("Accept-Encoding")
	if !ok {
		return false
	}
	for _, part := range strings.Split(ae, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "gzip") {
			return true
		}
	}
	return false
}

func contentType(path string) string {
	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
