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

// Package context provides a generic, cancelable, typed key-value store
// layered over context.Context, giving both a Done()/Err() that follows the
// parent context and a concurrent map that clears itself on the next Store
// or LoadOrStore once that context is canceled.
package context

import (
	"context"
	"sync"
	"time"
)

// FuncWalk is called for every stored entry during a Walk; returning false
// stops the iteration early.
type FuncWalk[T comparable] func(key T, val any) bool

// Config is a cancelable, typed map: Store and LoadOrStore first check
// whether the parent context is still alive and wipe the map instead of
// applying the mutation once it is not. Delete and Clean do not check.
type Config[T comparable] interface {
	context.Context

	Clean()
	Load(key T) (any, bool)
	Store(key T, val any)
	Delete(key T)
	LoadOrStore(key T, val any) (any, bool)
	Walk(fct FuncWalk[T])
}

type ccx[T comparable] struct {
	parent func() context.Context
	m      sync.Map
}

// New returns a Config whose lifetime tracks the context.Context produced
// by the given function (re-evaluated on every call, so the parent can be
// swapped out from under it, e.g. on config reload).
func New[T comparable](parent func() context.Context) Config[T] {
	return &ccx[T]{parent: parent}
}

func (c *ccx[T]) ctx() context.Context {
	if c.parent != nil {
		if p := c.parent(); p != nil {
			return p
		}
	}
	return context.Background()
}

func (c *ccx[T]) Deadline() (deadline time.Time, ok bool) { return c.ctx().Deadline() }
func (c *ccx[T]) Done() <-chan struct{}                   { return c.ctx().Done() }
func (c *ccx[T]) Err() error                              { return c.ctx().Err() }
func (c *ccx[T]) Value(key any) any                       { return c.ctx().Value(key) }

func (c *ccx[T]) Clean() {
	c.m.Range(func(key, _ any) bool {
		c.m.Delete(key)
		return true
	})
}

func (c *ccx[T]) Load(key T) (any, bool) {
	return c.m.Load(key)
}

func (c *ccx[T]) Store(key T, val any) {
	if c.Err() != nil {
		c.Clean()
		return
	} else if val != nil {
		c.m.Store(key, val)
	}
}

func (c *ccx[T]) Delete(key T) {
	c.m.Delete(key)
}

func (c *ccx[T]) LoadOrStore(key T, val any) (any, bool) {
	if c.Err() != nil {
		c.Clean()
		return nil, false
	}
	return c.m.LoadOrStore(key, val)
}

func (c *ccx[T]) Walk(fct FuncWalk[T]) {
	c.m.Range(func(key, val any) bool {
		if val == nil {
			c.m.Delete(key)
			return true
		}
		return fct(key.(T), val)
	})
}
