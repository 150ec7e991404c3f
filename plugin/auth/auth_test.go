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

package auth

import (
	"encoding/base64"
	"testing"

	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/plugin"
)

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestNoCredentialsConfiguredIsPassthrough(t *testing.T) {
	p := New()
	inst := p.Factory()()

	msg := &httpmsg.Message{Header: httpmsg.Header{}}
	if st := inst.OnRequestHeaders(msg); st != plugin.Continue {
		t.Fatalf("expected Continue with no configured credentials, got %v", st)
	}
}

func TestValidCredentialsContinue(t *testing.T) {
	p := New(Credentials{Username: "alice", Password: "secret"})
	inst := p.Factory()()

	msg := &httpmsg.Message{Header: httpmsg.Header{}}
	msg.Header.Set("Proxy-Authorization", basicHeader("alice", "secret"))

	if st := inst.OnRequestHeaders(msg); st != plugin.Continue {
		t.Fatalf("expected Continue for valid credentials, got %v", st)
	}
}

func TestInvalidCredentialsRejected(t *testing.T) {
	p := New(Credentials{Username: "alice", Password: "secret"})
	inst := p.Factory()()

	msg := &httpmsg.Message{Header: httpmsg.Header{}}
	msg.Header.Set("Proxy-Authorization", basicHeader("alice", "wrong"))

	st := inst.OnRequestHeaders(msg)
	if st != plugin.ResponseReady {
		t.Fatalf("expected ResponseReady for bad password, got %v", st)
	}
	if resp := inst.Response(); resp == nil || resp.StatusCode != 407 {
		t.Fatalf("expected a 407 response, got %+v", resp)
	}
}

func TestMissingHeaderRejected(t *testing.T) {
	p := New(Credentials{Username: "alice", Password: "secret"})
	inst := p.Factory()()

	msg := &httpmsg.Message{Header: httpmsg.Header{}}
	if st := inst.OnRequestHeaders(msg); st != plugin.ResponseReady {
		t.Fatalf("expected ResponseReady with no header at all, got %v", st)
	}
}
