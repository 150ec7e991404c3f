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

package plugin

import (
	"testing"

	"github/sabouaram/httpmitm/httpmsg"
)

type passInstance struct {
	BaseInstance
	closed *bool
}

func (p *passInstance) OnClose() {
	if p.closed != nil {
		*p.closed = true
	}
}

type blockInstance struct {
	BaseInstance
}

func (b *blockInstance) OnRequestHeaders(msg *httpmsg.Message) Status {
	resp := httpmsg.NewResponse(403, "Forbidden")
	b.SetResponse(resp)
	return ResponseReady
}

func TestChainContinuesThroughAllInstances(t *testing.T) {
	var closed1, closed2 bool
	chain := NewChain([]Factory{
		func() Instance { return &passInstance{closed: &closed1} },
		func() Instance { return &passInstance{closed: &closed2} },
	})

	st, who := chain.OnRequestHeaders(&httpmsg.Message{})
	if st != Continue || who != nil {
		t.Fatalf("expected Continue/nil, got %v %v", st, who)
	}

	chain.OnClose()
	if !closed1 || !closed2 {
		t.Fatal("expected OnClose to reach every instance")
	}
}

func TestChainShortCircuitsOnResponseReady(t *testing.T) {
	var reached bool
	chain := NewChain([]Factory{
		func() Instance { return &blockInstance{} },
		func() Instance { return &passInstance{closed: &reached} },
	})

	st, who := chain.OnRequestHeaders(&httpmsg.Message{})
	if st != ResponseReady || who == nil {
		t.Fatalf("expected ResponseReady with an instance, got %v %v", st, who)
	}

	resp := chain.ReadyResponse()
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("expected the blocking instance's 403 response, got %+v", resp)
	}
}

func TestRegistryNewChainForEmptyCategory(t *testing.T) {
	r := NewRegistry()
	chain := r.NewChainFor(CategoryProxyAuth)
	st, _ := chain.OnRequestHeaders(&httpmsg.Message{})
	if st != Continue {
		t.Fatalf("expected an empty registry's chain to pass through, got %v", st)
	}
}
