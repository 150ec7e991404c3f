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
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github/sabouaram/httpmitm/conn"
	liberr "github/sabouaram/httpmitm/errors"
	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/monitor"
)

// serveConnect implements spec.md §4.6's CONNECT handling: a plain
// passthrough tunnel by default, or TLS interception with a synthesized
// leaf certificate when Intercept is enabled.
func (p *Plugin) serveConnect(ctx context.Context, s *handler.Session, req *httpmsg.Message) bool {
	t, err := parseAuthorityTarget(req.Target)
	if err != nil {
		_ = s.WriteMessage(errorResponse(liberr.CodeClientProtocolError, "Bad Request"))
		return false
	}

	if resp, cont := p.runSubPlugins(req); !cont {
		if resp != nil {
			_ = s.WriteMessage(resp)
		}
		return false
	}

	nc, err := p.cfg.Dial(ctx, "tcp", net.JoinHostPort(t.Host, strconv.Itoa(t.Port)))
	if err != nil {
		p.emit(monitor.KindUpstreamConnectErr, err.Error())
		_ = s.WriteMessage(errorResponse(liberr.CodeUpstreamConnectError, "Bad Gateway"))
		return false
	}

	if p.cfg.Intercept {
		p.interceptConnect(ctx, s, t.Host, nc)
		return false
	}

	established := httpmsg.NewResponse(200, "Connection Established")
	if err := s.WriteMessage(established); err != nil {
		_ = nc.Close()
		return false
	}

	relay(ctx, s.Client, nc)
	return false
}

// interceptConnect performs TLS MITM: it establishes a real TLS
// connection to the origin to learn its certificate SANs, synthesizes a
// matching leaf signed by the configured CA, then upgrades the client
// socket to TLS using that leaf and relays decrypted HTTP traffic
// directly onto the upstream TLS connection without re-entering outer
// plugin selection (a decrypted inner request is origin-form and would
// otherwise be misrouted to the local web server plugin).
func (p *Plugin) interceptConnect(ctx context.Context, s *handler.Session, host string, rawUpstream net.Conn) {
	// Upstream TLS failure is fail-closed 502, per spec.md §4.6 and open
	// question (b); TlsInterceptError (below) is reserved for failures in
	// our own synthesis/re-signing of the leaf, not the origin's handshake.
	upstreamTLS := tls.Client(rawUpstream, &tls.Config{ServerName: host})
	if err := upstreamTLS.HandshakeContext(ctx); err != nil {
		p.emit(monitor.KindTLSHandshakeFailed, err.Error())
		_ = s.WriteMessage(errorResponse(liberr.CodeUpstreamConnectError, "Bad Gateway"))
		_ = rawUpstream.Close()
		return
	}

	var sans []string
	if cs := upstreamTLS.ConnectionState(); len(cs.PeerCertificates) > 0 {
		sans = cs.PeerCertificates[0].DNSNames
	}

	// TlsInterceptError: spec.md §7 prescribes close, no response on the
	// client leg, since the client is still speaking plaintext CONNECT at
	// this point and a well-formed TLS record can't be sent back over it.
	leaf, err := p.cfg.CertStore.Synthesize(host, sans)
	if err != nil {
		p.emit(monitor.KindTLSHandshakeFailed, err.Error())
		_ = upstreamTLS.Close()
		_ = s.Client.Close()
		return
	}

	established := httpmsg.NewResponse(200, "Connection Established")
	if err := s.WriteMessage(established); err != nil {
		_ = upstreamTLS.Close()
		return
	}

	clientTLS := tls.Server(s.Client, &tls.Config{Certificates: []tls.Certificate{*leaf}})
	if err := clientTLS.HandshakeContext(ctx); err != nil {
		p.emit(monitor.KindTLSHandshakeFailed, err.Error())
		_ = upstreamTLS.Close()
		return
	}

	innerClient := conn.New(clientTLS, conn.RoleClient)
	innerUpstream := newUpstreamConn(upstreamTLS)
	defer innerClient.Close()
	defer innerUpstream.Close()

	for {
		if ctx.Err() != nil {
			return
		}

		innerReq, ok := readMessage(ctx, innerClient, httpmsg.Request, s.Deps.Config.MaxHeaderBytes, s.Deps.Config.IdleTimeout, false)
		if !ok {
			return
		}

		t, err := parseAbsoluteTarget("https://" + host + innerReq.Target)
		if err != nil {
			t = target{Host: host, TLS: true, Path: innerReq.Target}
		}
		rewriteForUpstream(innerReq, t)

		if err := writeAll(innerUpstream, httpmsg.Encode(innerReq), p.cfg.ConnectTimeout); err != nil {
			return
		}

		resp, ok := readMessage(ctx, innerUpstream, httpmsg.Response, s.Deps.Config.MaxHeaderBytes, s.Deps.Config.IdleTimeout, innerReq.Method == "HEAD")
		if !ok {
			return
		}

		if err := writeAll(innerClient, httpmsg.Encode(resp), p.cfg.ConnectTimeout); err != nil {
			return
		}

		if hasConnectionClose(innerReq) || hasConnectionClose(resp) {
			return
		}
	}
}

// relay pumps bytes in both directions between the client connection and
// the dialed upstream until either side closes, per spec.md §4.6's plain
// CONNECT passthrough: once the tunnel is established no further HTTP
// parsing happens on this leg.
func relay(ctx context.Context, client net.Conn, upstream net.Conn) {
	defer upstream.Close()
	defer client.Close()

	// Drop the deadlines left on the client socket by the request read and
	// the 200 flush; the tunnel lasts until a peer closes.
	_ = client.SetDeadline(time.Time{})

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.Copy(upstream, client)
		_ = upstream.Close()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(client, upstream)
		_ = client.Close()
		return err
	})
	_ = g.Wait()
}
