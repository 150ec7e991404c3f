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

// Package auth is a sub-plugin (not one of the two outer protocol-handler
// plugins) run first in the forward proxy's chain: it gates every
// request behind Proxy-Authorization, kept as its own component rather
// than folding credential checks into the proxy plugin itself.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github/sabouaram/httpmitm/httpmsg"
	"github/sabouaram/httpmitm/plugin"
)

// Credentials is one accepted username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Plugin is the auth sub-plugin's factory-held configuration.
type Plugin struct {
	creds []Credentials
}

// New builds an auth Plugin accepting any of creds. An empty creds list
// makes every connection's Factory a no-op passthrough.
func New(creds ...Credentials) *Plugin {
	return &Plugin{creds: creds}
}

// Factory returns a plugin.Factory for the registry.
func (p *Plugin) Factory() plugin.Factory {
	return func() plugin.Instance {
		return &instance{creds: p.creds}
	}
}

type instance struct {
	plugin.BaseInstance
	creds []Credentials
}

func (i *instance) OnRequestHeaders(msg *httpmsg.Message) plugin.Status {
	if len(i.creds) == 0 {
		return plugin.Continue
	}

	got, ok := msg.Header.Get("Proxy-Authorization")
	if ok && i.valid(got) {
		return plugin.Continue
	}

	resp := httpmsg.NewResponse(407, "Proxy Authentication Required")
	resp.Header.Set("Proxy-Authenticate", `Basic realm="proxy"`)
	resp.Header.Set("Connection", "close")
	resp.SetBody([]byte("407 Proxy Authentication Required\n"))
	i.SetResponse(resp)
	return plugin.ResponseReady
}

func (i *instance) valid(header string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return false
	}
	for _, c := range i.creds {
		if subtle.ConstantTimeCompare([]byte(c.Username), []byte(user)) == 1 &&
			subtle.ConstantTimeCompare([]byte(c.Password), []byte(pass)) == 1 {
			return true
		}
	}
	return false
}
