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

package certificates

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLeafValidity is the default synthesized-leaf validity window.
const DefaultLeafValidity = 365 * 24 * time.Hour

// Store synthesizes and caches per-host leaf certificates signed by a CA,
// keyed by a fingerprint of (host, CA serial, SAN set) so a CA rotation or
// a different SAN list naturally invalidates the old cache entry.
type Store struct {
	ca       *CA
	dir      string
	validity time.Duration

	sf singleflight.Group

	mu    sync.RWMutex
	cache map[string]*tls.Certificate
}

// NewStore returns a cert Store persisting synthesized leaves under dir.
// If validity is zero, DefaultLeafValidity is used.
func NewStore(ca *CA, dir string, validity time.Duration) *Store {
	if validity <= 0 {
		validity = DefaultLeafValidity
	}
	return &Store{
		ca:       ca,
		dir:      dir,
		validity: validity,
		cache:    make(map[string]*tls.Certificate),
	}
}

// Invalidate drops every cached certificate, forcing the next Synthesize
// call for any host to mint (or reload) fresh. Called when fsnotify
// reports the CA pair or cert_dir changed underneath the running process.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*tls.Certificate)
}

func fingerprint(host string, serial string, sans []string) string {
	sorted := append([]string(nil), sans...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.ToLower(host)))
	h.Write([]byte{0})
	h.Write([]byte(serial))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))

	return hex.EncodeToString(h.Sum(nil))
}

// Synthesize returns a leaf *tls.Certificate for host (CN=host,
// SAN={DNS:host} ∪ peerSANs), minting and persisting one if none is cached.
// Concurrent calls for the same (host, fingerprint) are coalesced onto a
// single mint via singleflight, so a burst of requests for a host with no
// cached leaf yet never mints more than one certificate for it.
func (s *Store) Synthesize(host string, peerSANs []string) (*tls.Certificate, error) {
	sans := dedupeSANs(host, peerSANs)
	fp := fingerprint(host, s.ca.Cert.SerialNumber.String(), sans)

	s.mu.RLock()
	if c, ok := s.cache[fp]; ok {
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.sf.Do(fp, func() (interface{}, error) {
		// Re-check under the singleflight key: another goroutine may have
		// populated the cache while we were waiting to enter Do.
		s.mu.RLock()
		if c, ok := s.cache[fp]; ok {
			s.mu.RUnlock()
			return c, nil
		}
		s.mu.RUnlock()

		// The on-disk file is named by host only, so reuse it only when it
		// was signed by the current CA and carries the same SAN set.
		if cert, ok := s.loadFromDisk(host); ok && cert.Leaf.CheckSignatureFrom(s.ca.Cert) == nil &&
			fingerprint(host, s.ca.Cert.SerialNumber.String(), cert.Leaf.DNSNames) == fp {
			s.store(fp, cert)
			return cert, nil
		}

		cert, err := s.mint(host, sans)
		if err != nil {
			return nil, err
		}

		if err := s.persist(host, cert); err != nil {
			// Minting succeeded; a failed disk cache write is not fatal,
			// only means we'll re-mint (coalesced) next process start.
			_ = err
		}

		s.store(fp, cert)
		return cert, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*tls.Certificate), nil
}

func (s *Store) store(fp string, cert *tls.Certificate) {
	s.mu.Lock()
	s.cache[fp] = cert
	s.mu.Unlock()
}

func dedupeSANs(host string, peerSANs []string) []string {
	seen := map[string]bool{strings.ToLower(host): true}
	res := []string{host}
	for _, s := range peerSANs {
		l := strings.ToLower(s)
		if seen[l] {
			continue
		}
		seen[l] = true
		res = append(res, s)
	}
	return res
}

func (s *Store) mint(host string, sans []string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating leaf key for %q: %w", host, err)
	}

	tmpl := leafTemplate(host, sans, s.validity)

	der, err := x509.CreateCertificate(rand.Reader, tmpl, s.ca.Cert, &key.PublicKey, s.ca.Key)
	if err != nil {
		return nil, fmt.Errorf("signing leaf certificate for %q: %w", host, err)
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parsing minted certificate for %q: %w", host, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, s.ca.Cert.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

func (s *Store) pemPath(host string) string {
	return filepath.Join(s.dir, host+".pem")
}

// persist writes the leaf cert+chain and its key as a single PEM file
// named <host>.pem under the store directory, per spec.md §6.
func (s *Store) persist(host string, cert *tls.Certificate) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	var buf strings.Builder
	for _, der := range cert.Certificate {
		_ = pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	}

	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		return err
	}
	_ = pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return os.WriteFile(s.pemPath(host), []byte(buf.String()), 0o600)
}

// loadFromDisk re-reads a previously persisted <host>.pem, accepting it
// only if it is still within its validity window; an expired or
// unreadable file is treated as a cache miss so mint() regenerates it.
func (s *Store) loadFromDisk(host string) (*tls.Certificate, bool) {
	if s.dir == "" {
		return nil, false
	}

	raw, err := os.ReadFile(s.pemPath(host))
	if err != nil {
		return nil, false
	}

	var (
		certs [][]byte
		key   *ecdsa.PrivateKey
		rest  = raw
		block *pem.Block
	)

	for {
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			certs = append(certs, block.Bytes)
		case "EC PRIVATE KEY":
			if k, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
				key = k
			}
		}
	}

	if len(certs) == 0 || key == nil {
		return nil, false
	}

	leaf, err := x509.ParseCertificate(certs[0])
	if err != nil || time.Now().After(leaf.NotAfter) || !strings.EqualFold(leaf.Subject.CommonName, host) {
		return nil, false
	}

	return &tls.Certificate{
		Certificate: certs,
		PrivateKey:  key,
		Leaf:        leaf,
	}, true
}
