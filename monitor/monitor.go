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

// Package monitor emits the structured events named in spec.md §6
// ("Observable events") to a best-effort, non-blocking sink, and exposes
// the same counts to Prometheus for operators who scrape
// rather than tail logs (one Prometheus counter, labelled by event kind).
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Kind is one of the fixed event categories spec.md §6 names.
type Kind string

const (
	KindAccept             Kind = "connection_accept"
	KindRequestComplete    Kind = "request_complete"
	KindResponseComplete   Kind = "response_complete"
	KindTLSHandshakeFailed Kind = "tls_handshake_failure"
	KindUpstreamConnectErr Kind = "upstream_connect_failure"
	KindTeardown           Kind = "teardown"
)

// Event is one observable occurrence, delivered best-effort.
type Event struct {
	Kind   Kind
	Reason string
	Fields map[string]interface{}
}

// Sink receives events; the core never blocks waiting for a Sink, per
// spec.md §6 ("Delivery is best-effort; the core does not block on event
// sinks").
type Sink interface {
	Emit(Event)
}

// Monitor fans events out to a Sink and to Prometheus counters in one
// call, so a handler only needs one dependency for both observability
// paths.
type Monitor struct {
	sink    Sink
	counter *prometheus.CounterVec
}

// New builds a Monitor. reg may be nil to skip Prometheus registration
// (e.g. in tests); sink may be nil to skip the structured-event path.
func New(sink Sink, reg prometheus.Registerer) *Monitor {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpmitm",
		Name:      "events_total",
		Help:      "Count of observable proxy events by kind.",
	}, []string{"kind"})

	if reg != nil {
		_ = reg.Register(c)
	}

	return &Monitor{sink: sink, counter: c}
}

// Emit records ev against the Prometheus counter and, if a sink is
// configured, attempts a non-blocking delivery.
func (m *Monitor) Emit(ev Event) {
	if m == nil {
		return
	}

	m.counter.WithLabelValues(string(ev.Kind)).Inc()

	if m.sink == nil {
		return
	}

	// Sinks that themselves do I/O (a log line, a webhook) must not be
	// allowed to stall the handler goroutine that raised the event.
	go m.sink.Emit(ev)
}

// DiscardSink is a Sink that drops every event. New does not fall back to
// it; a nil sink simply skips the structured-event path.
type DiscardSink struct{}

func (DiscardSink) Emit(Event) {}
