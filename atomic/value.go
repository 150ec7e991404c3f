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

// Package atomic provides a type-safe generic wrapper over sync/atomic.Value,
// for a single mutable field that is read far more often than it is written
// and where a mutex would be the wrong tool.
package atomic

import "sync/atomic"

// Value is a lock-free, type-safe holder for a single value of type T.
type Value[T any] struct {
	v atomic.Value
}

// NewValue returns an empty Value[T]; Load returns the zero value of T
// until the first Store.
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// Load returns the stored value, or the zero value of T if none was ever
// stored.
func (o *Value[T]) Load() T {
	b, ok := o.v.Load().(box[T])
	if !ok {
		var zero T
		return zero
	}
	return b.val
}

// Store atomically replaces the held value.
func (o *Value[T]) Store(val T) {
	o.v.Store(box[T]{val: val})
}

// box indirects every stored value through the same concrete type so
// sync/atomic.Value never sees two different dynamic types (which would
// panic), even when T is an interface type whose concrete value varies.
type box[T any] struct {
	val T
}
