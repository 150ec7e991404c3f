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

// Package logger is a thin structured-logging layer over logrus. It exists
// so the core never imports logrus directly: every package logs through
// the small Logger interface here, and only main picks a concrete output
// (stdout or stderr) from the configured log_output. NewFileSink and
// NewSyslogHook provide file and syslog outputs; main does not wire them.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors logrus.Level so callers never need the logrus import.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

func (l Level) logrus() logrus.Level { return logrus.Level(l) }

// Fields is an immutable-by-convention set of structured log attributes.
type Fields map[string]interface{}

// Add returns a new Fields with key/val merged in, leaving the receiver
// untouched so the same base Fields can be reused across log lines.
func (f Fields) Add(key string, val interface{}) Fields {
	res := make(Fields, len(f)+1)
	for k, v := range f {
		res[k] = v
	}
	res[key] = val
	return res
}

// Logger is the contract every core package logs through.
type Logger interface {
	WithFields(f Fields) Logger
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	// ErrorE logs an error value at error level, attaching it as a field.
	ErrorE(msg string, err error)
}

type entry struct {
	e *logrus.Entry
}

// New builds a Logger writing to w at the given level, formatted as text
// (format="text") or JSON (format="json") — the two formatter families
// logrus ships.
func New(w io.Writer, level Level, format string) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level.logrus())

	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &entry{e: logrus.NewEntry(l)}
}

// Discard returns a Logger that drops everything; used as a safe default
// before configuration settles and in tests.
func Discard() Logger {
	return New(io.Discard, PanicLevel, "text")
}

// Default returns a Logger writing text-formatted info+ logs to stderr,
// a safe default sink for unconfigured components.
func Default() Logger {
	return New(os.Stderr, InfoLevel, "text")
}

func (l *entry) WithFields(f Fields) Logger {
	return &entry{e: l.e.WithFields(logrus.Fields(f))}
}

func (l *entry) Debug(msg string) { l.e.Debug(msg) }
func (l *entry) Info(msg string)  { l.e.Info(msg) }
func (l *entry) Warn(msg string)  { l.e.Warn(msg) }
func (l *entry) Error(msg string) { l.e.Error(msg) }

func (l *entry) ErrorE(msg string, err error) {
	if err == nil {
		l.e.Error(msg)
		return
	}
	l.e.WithError(err).Error(msg)
}
