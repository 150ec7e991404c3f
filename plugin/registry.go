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

// Category names one of the fixed places a sub-plugin chain can be
// wired in. The outer protocol-handler plugin (proxy vs. web server) is
// chosen by request shape, not by category — only the sub-plugin chains
// running inside each are registry-driven.
type Category string

const (
	CategoryProxyAuth    Category = "proxy.auth"
	CategoryProxyGeneral Category = "proxy.general"
	CategoryWebServer    Category = "webserver.route"
)

// Registry is an ordered, built-once-at-startup map of Category to the
// Factories that run in that category; empty lists are permitted. main
// builds it from the configured proxy-auth credentials.
type Registry struct {
	chains map[Category][]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{chains: make(map[Category][]Factory)}
}

// Add appends factory to the end of category's chain.
func (r *Registry) Add(category Category, factory Factory) {
	r.chains[category] = append(r.chains[category], factory)
}

// Factories returns category's chain in registration order; nil (not
// empty) is a valid, supported return for an unregistered category.
func (r *Registry) Factories(category Category) []Factory {
	return r.chains[category]
}

// NewChainFor builds a Chain for category by instantiating every
// registered factory.
func (r *Registry) NewChainFor(category Category) *Chain {
	return NewChain(r.Factories(category))
}
