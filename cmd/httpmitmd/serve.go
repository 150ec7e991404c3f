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

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github/sabouaram/httpmitm/certificates"
	"github/sabouaram/httpmitm/config"
	"github/sabouaram/httpmitm/conn/pool"
	"github/sabouaram/httpmitm/handler"
	"github/sabouaram/httpmitm/logger"
	"github/sabouaram/httpmitm/loop"
	"github/sabouaram/httpmitm/monitor"
	"github/sabouaram/httpmitm/plugin"
	"github/sabouaram/httpmitm/plugin/auth"
	"github/sabouaram/httpmitm/plugin/httpproxy"
	"github/sabouaram/httpmitm/plugin/webserver"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy and embedded web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*cfgPath)
		},
	}
}

func runServe(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := newLogger(cfg)
	mon := monitor.New(logSink{log}, prometheus.DefaultRegisterer)

	ln, err := listen(cfg)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}
	defer ln.Close()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	p := pool.New(pool.Options{
		MaxPerKey: cfg.PoolMaxPerKey,
		IdleTTL:   cfg.PoolIdleTTL,
		Dial:      dialerFor(cfg.ConnectTimeout),
	})
	defer p.Close()

	proxyCfg := httpproxy.Config{
		Pool:           p,
		ConnectTimeout: cfg.ConnectTimeout,
		Registry:       registry,
		Mon:            mon,
	}

	var stopCertWatch func()
	if cfg.TLSInterceptEnabled() {
		ca, err := certificates.LoadCA(cfg.CACert, cfg.CAKey)
		if err != nil {
			return fmt.Errorf("loading interception CA: %w", err)
		}
		store := certificates.NewStore(ca, cfg.CertDir, 0)
		proxyCfg.Intercept = true
		proxyCfg.CertStore = store

		stop, err := watchCertRotation(cfg, store)
		if err != nil {
			log.ErrorE("cert rotation watcher failed to start", err)
		} else {
			stopCertWatch = stop
		}
	}
	if stopCertWatch != nil {
		defer stopCertWatch()
	}

	proxyPlugin := httpproxy.New(proxyCfg)

	handlerCfg := handler.Config{IdleTimeout: cfg.IdleTimeout, MaxHeaderBytes: cfg.MaxHeaderBytes}
	if handlerCfg.IdleTimeout == 0 || handlerCfg.MaxHeaderBytes == 0 {
		handlerCfg = handler.DefaultConfig()
	}

	webPlugin := webserver.New(webserverConfig(cfg), registry)

	deps := handler.Deps{
		Outers: []handler.Outer{proxyPlugin, webPlugin},
		Config: handlerCfg,
		Mon:    mon,
		Log:    log,
	}

	l := loop.New(ln, loop.Config{Workers: cfg.Workers}, deps, mon, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("httpmitmd listening on " + ln.Addr().String())
	return l.Run(ctx)
}

func dialerFor(timeout time.Duration) pool.DialFunc {
	d := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context, key pool.Key) (net.Conn, error) {
		nc, err := d.DialContext(ctx, "tcp", net.JoinHostPort(key.Host, strconv.Itoa(key.Port)))
		if err != nil {
			return nil, err
		}
		if !key.TLS {
			return nc, nil
		}
		tlsConn := tls.Client(nc, &tls.Config{ServerName: key.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = nc.Close()
			return nil, err
		}
		return tlsConn, nil
	}
}

func listen(cfg config.Config) (net.Listener, error) {
	if cfg.UnixSocket != "" {
		_ = os.Remove(cfg.UnixSocket)
		return net.Listen("unix", cfg.UnixSocket)
	}
	return net.Listen("tcp", cfg.Listen)
}

func newLogger(cfg config.Config) logger.Logger {
	var level logger.Level
	switch cfg.LogLevel {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	default:
		level = logger.InfoLevel
	}

	out := os.Stderr
	if cfg.LogOutput == "stdout" {
		return logger.New(os.Stdout, level, cfg.LogFormat)
	}
	return logger.New(out, level, cfg.LogFormat)
}

func buildRegistry(cfg config.Config) (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	if cfg.ProxyAuthUsername != "" || cfg.ProxyAuthPassword != "" {
		a := auth.New(auth.Credentials{Username: cfg.ProxyAuthUsername, Password: cfg.ProxyAuthPassword})
		reg.Add(plugin.CategoryProxyAuth, a.Factory())
	}
	return reg, nil
}

func webserverConfig(cfg config.Config) webserver.Config {
	pacBody := loadPAC(cfg.PACFile)
	return webserver.Config{
		PACPath:       "/proxy.pac",
		PACBody:       pacBody,
		StaticEnabled: cfg.StaticServerEnabled,
		StaticDir:     cfg.StaticServerDir,
	}
}

func loadPAC(path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return []byte(path)
	}
	return data
}

func watchCertRotation(cfg config.Config, store *certificates.Store) (func(), error) {
	stopCert, err := config.OnFileChange(cfg.CACert, store.Invalidate)
	if err != nil {
		return nil, err
	}
	stopKey, err := config.OnFileChange(cfg.CAKey, store.Invalidate)
	if err != nil {
		stopCert()
		return nil, err
	}
	stopDir, err := config.OnFileChange(cfg.CertDir, store.Invalidate)
	if err != nil {
		stopCert()
		stopKey()
		return nil, err
	}
	return func() {
		stopCert()
		stopKey()
		stopDir()
	}, nil
}

type logSink struct {
	log logger.Logger
}

func (s logSink) Emit(ev monitor.Event) {
	fields := logger.Fields{"kind": string(ev.Kind)}
	for k, v := range ev.Fields {
		fields[k] = v
	}
	l := s.log.WithFields(fields)
	if ev.Reason != "" {
		l.Info(ev.Reason)
		return
	}
	l.Debug("event")
}
