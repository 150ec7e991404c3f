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

package logger

import (
	"fmt"
	"log/syslog"
	"os"

	"github.com/sirupsen/logrus"
)

// NewFileSink opens (creating if needed) a log file and returns a Logger
// writing to it at the given level/format. The caller owns closing the
// returned *os.File lifecycle via Close.
func NewFileSink(path string, level Level, format string) (Logger, *os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	return New(f, level, format), f, nil
}

// syslogHook forwards logrus entries to a syslog writer. It is added as a
// hook (not as the primary output) so a process can log to stderr for the
// operator and syslog for the platform simultaneously.
type syslogHook struct {
	w      *syslog.Writer
	levels []logrus.Level
}

// NewSyslogHook dials the local syslog daemon under the given tag and
// returns a logrus.Hook that can be attached with AddSyslogHook.
func NewSyslogHook(tag string, priority syslog.Priority) (logrus.Hook, error) {
	w, err := syslog.New(priority, tag)
	if err != nil {
		return nil, fmt.Errorf("dialing syslog: %w", err)
	}
	return &syslogHook{w: w, levels: logrus.AllLevels}, nil
}

func (h *syslogHook) Levels() []logrus.Level { return h.levels }

func (h *syslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}

	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return h.w.Err(line)
	case logrus.WarnLevel:
		return h.w.Warning(line)
	case logrus.DebugLevel, logrus.TraceLevel:
		return h.w.Debug(line)
	default:
		return h.w.Info(line)
	}
}

// AddSyslogHook attaches hook to the logrus logger backing lg. lg must have
// been produced by New in this package.
func AddSyslogHook(lg Logger, hook logrus.Hook) {
	if e, ok := lg.(*entry); ok {
		e.e.Logger.AddHook(hook)
	}
}
