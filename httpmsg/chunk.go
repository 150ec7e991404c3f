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

package httpmsg

import "strings"

// maxChunkSize bounds a single chunk-size line so a hostile peer can't
// claim a petabyte chunk and make the handler block allocating for it;
// spec.md §4.1 calls this "chunk-size overflow" under Malformed.
const maxChunkSize = 1 << 30

// feedChunked advances the chunked-transfer sub-parser by one step using
// whatever is currently buffered. done reports the terminating zero-size
// chunk (plus trailers) was fully consumed; failed reports a malformed
// chunk stream.
func (p *Parser) feedChunked() (done bool, failed bool) {
	for {
		switch p.chunkPhase {
		case chunkSize:
			line, ok := p.buf.ConsumeLine()
			if !ok {
				return false, false
			}
			size, err := parseChunkSizeLine(line)
			if err != nil {
				return false, true
			}
			if size > maxChunkSize {
				return false, true
			}
			if size == 0 {
				p.chunkPhase = chunkTrailer
				continue
			}
			p.chunkRemaining = size
			p.chunkPhase = chunkData

		case chunkData:
			if p.chunkRemaining == 0 {
				p.chunkPhase = chunkCRLF
				continue
			}
			avail := int64(p.buf.Len())
			if avail == 0 {
				return false, false
			}
			n := p.chunkRemaining
			if avail < n {
				n = avail
			}
			p.msg.Body = append(p.msg.Body, p.buf.Bytes()[:n]...)
			p.buf.Consume(int(n))
			p.chunkRemaining -= n
			if p.chunkRemaining > 0 {
				return false, false
			}
			p.chunkPhase = chunkCRLF

		case chunkCRLF:
			line, ok := p.buf.ConsumeLine()
			if !ok {
				return false, false
			}
			if len(line) != 0 {
				return false, true
			}
			p.chunkPhase = chunkSize

		case chunkTrailer:
			line, ok := p.buf.ConsumeLine()
			if !ok {
				return false, false
			}
			if len(line) == 0 {
				return true, false
			}
			name, value, err := splitHeaderLine(line)
			if err != nil {
				return false, true
			}
			p.msg.Header.Add(name, value)
		}
	}
}

// parseChunkSizeLine parses "size[;ext...]" where size is hex digits, per
// RFC 7230 §4.1.
func parseChunkSizeLine(line []byte) (int64, error) {
	s := string(line)
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errMalformed("empty chunk size")
	}
	var n int64
	for _, c := range []byte(s) {
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		default:
			return 0, errMalformed("invalid chunk size digit")
		}
		if n > (maxChunkSize<<4)/16 {
			return 0, errMalformed("chunk size overflow")
		}
		n = n*16 + d
	}
	return n, nil
}
