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

// Package config is the single settled configuration value the core
// consumes; per spec.md §9 ("global mutable flags -> immutable config"),
// nothing in the core reads a process-wide singleton — main loads a
// Config with viper and passes it down explicitly.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full recognised-options table from spec.md §6, plus the
// ambient keys a daemon needs beyond it: logging, unix socket, backlog.
type Config struct {
	// Listen is the bind address ("host:port") or, if UnixSocket is set,
	// ignored in favor of it.
	Listen string `mapstructure:"listen" validate:"required_without=UnixSocket"`

	// UnixSocket, if non-empty, binds a UNIX domain socket at this path
	// instead of a TCP listener.
	UnixSocket string `mapstructure:"unix_socket"`

	// TCPBacklog is accepted but not applied: Go's net.Listen does not
	// expose a backlog knob, so the listener uses the OS default.
	TCPBacklog int `mapstructure:"tcp_backlog"`

	// Workers is the number of event-loop worker goroutines (component E).
	Workers int `mapstructure:"workers" validate:"min=1"`

	// Threaded is accepted but not read by anything: the number of worker
	// goroutines is set by Workers alone, and they always run in parallel.
	Threaded bool `mapstructure:"threaded"`

	// CACert / CAKey enable TLS interception when both are set.
	CACert string `mapstructure:"ca_cert"`
	CAKey  string `mapstructure:"ca_key"`

	// CertDir caches synthesized per-host leaf certificates.
	CertDir string `mapstructure:"cert_dir"`

	// PACFile is either a path to a PAC script or, if it does not resolve
	// to an existing file, taken as the literal PAC script contents.
	PACFile string `mapstructure:"pac_file"`

	StaticServerEnabled bool   `mapstructure:"static_server_enabled"`
	StaticServerDir     string `mapstructure:"static_server_dir"`

	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	PoolIdleTTL    time.Duration `mapstructure:"pool_idle_ttl"`
	PoolMaxPerKey  int           `mapstructure:"pool_max_per_key"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`

	// ProxyAuthUsername / ProxyAuthPassword configure the auth sub-plugin;
	// both empty disables proxy auth.
	ProxyAuthUsername string `mapstructure:"proxy_auth_username"`
	ProxyAuthPassword string `mapstructure:"proxy_auth_password"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogOutput string `mapstructure:"log_output"`
}

// Default returns the recognised-options defaults named throughout
// spec.md §6 and §5.
func Default() Config {
	return Config{
		Listen:         "127.0.0.1:8899",
		Workers:        1,
		IdleTimeout:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PoolIdleTTL:    60 * time.Second,
		PoolMaxPerKey:  8,
		MaxHeaderBytes: 64 * 1024,
		LogLevel:       "info",
		LogFormat:      "text",
		LogOutput:      "stderr",
	}
}

// Validate checks the struct tags above with validator.v10, returning
// every failing field in one error.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("invalid configuration: %s", ve.Error())
		}
		return err
	}
	return nil
}

// TLSInterceptEnabled reports whether both halves of the CA pair are
// configured.
func (c Config) TLSInterceptEnabled() bool {
	return c.CACert != "" && c.CAKey != ""
}
