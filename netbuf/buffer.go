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

// Package netbuf is the byte buffer and CRLF line scanner component (A)
// the parser is built on: an append-only accumulator with O(1) append and
// O(k) consume-from-front, tolerant of the request line arriving split
// across many reads.
package netbuf

import "bytes"

// Buffer is an append-only byte accumulator. After Consume(k), the byte at
// index 0 is the (k+1)-th originally written byte — the invariant spec.md
// §3 requires.
type Buffer struct {
	data []byte
	off  int
}

// Append copies p onto the end of the buffer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.data = append(b.data, p...)
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Bytes returns the unconsumed bytes. The returned slice aliases the
// buffer's storage and is only valid until the next Append/Consume/Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[b.off:]
}

// Consume drops the first k unconsumed bytes. k is clamped to Len().
func (b *Buffer) Consume(k int) {
	if k <= 0 {
		return
	}
	if k > b.Len() {
		k = b.Len()
	}
	b.off += k

	// Reclaim storage once the consumed prefix dominates, so a
	// long-lived connection doesn't grow its backing array forever.
	if b.off > 0 && (b.off >= len(b.data) || b.off > 4096 && b.off*2 > len(b.data)) {
		remaining := len(b.data) - b.off
		copy(b.data, b.data[b.off:])
		b.data = b.data[:remaining]
		b.off = 0
	}
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// IndexCRLF returns the offset of the first line terminator (CRLF, or a
// lone LF per spec.md §4.1's robustness rule) at or after the unconsumed
// start, and the length of that terminator (1 or 2), or (-1, 0) if no
// complete line is buffered yet.
func (b *Buffer) IndexCRLF() (idx int, termLen int) {
	buf := b.Bytes()

	if i := bytes.IndexByte(buf, '\n'); i >= 0 {
		if i > 0 && buf[i-1] == '\r' {
			return i - 1, 2
		}
		return i, 1
	}

	return -1, 0
}

// ConsumeLine removes and returns the next complete line (without its
// terminator), or ok=false if no full line is buffered yet.
func (b *Buffer) ConsumeLine() (line []byte, ok bool) {
	idx, term := b.IndexCRLF()
	if idx < 0 {
		return nil, false
	}

	line = append([]byte(nil), b.Bytes()[:idx]...)
	b.Consume(idx + term)
	return line, true
}
