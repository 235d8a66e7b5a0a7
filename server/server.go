// Package server runs the HTTP(S) listener with graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM. The
// cancel func also stops signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Any("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ListenAndServeWithContext serves handler until ctx is canceled or the
// listener fails. With use_https it serves TLS from cert_file/key_file on
// https_port and redirects :80 to HTTPS; otherwise plain HTTP on
// http_port. In production TLS is usually terminated by the platform in
// front of the service.
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("server: cfg is nil")
	}
	if handler == nil {
		return errors.New("server: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(cfg, handler, logger)

	var (
		ln     net.Listener
		redir  *http.Server
		auxErr chan error
	)
	if !cfg.HTTP.UseHTTPS {
		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPPort)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen http %s: %w", addr, err)
		}
		ln = l
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	} else {
		tlsCfg, err := loadTLS(cfg, logger)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg

		addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
		base, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen https %s: %w", addr, err)
		}
		ln = tls.NewListener(base, tlsCfg)
		logger.Info("HTTPS server listening", zap.String("addr", addr), zap.String("cert_file", cfg.TLS.CertFile))

		redir = newServer(cfg, httpRedirectHandler(), logger)
		redir.Addr = ":80"
		auxErr = make(chan error, 1)
		go func() {
			if err := redir.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				auxErr <- err
			}
		}()
		logger.Info("HTTP → HTTPS redirect listening", zap.String("addr", redir.Addr))
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	// auxErr is nil in HTTP mode, which disables its case.
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		// ctx is already done; shutdown gets its own window.
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if redir != nil {
			_ = redir.Shutdown(sctx)
		}
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil

	case err := <-serveErr:
		if redir != nil {
			_ = redir.Close()
		}
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case err := <-auxErr:
		_ = srv.Close()
		return fmt.Errorf("redirect server error: %w", err)
	}
}

func newServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

func loadTLS(cfg *config.CoreConfig, logger *zap.Logger) (*tls.Config, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, errors.New("use_https is set but cert_file / key_file are not")
	}
	if err := validateTLSFiles(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil {
		var perm *permissionError
		if !errors.As(err, &perm) || cfg.IsProd() {
			return nil, err
		}
		logger.Warn("TLS key file permissions would be rejected in prod", zap.Error(err))
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS cert/key: %w", err)
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}, nil
}

// httpRedirectHandler sends every request to the HTTPS origin of the same
// host. Hosts and URIs that could inject headers get a 400.
func httpRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.URL.RequestURI()
		if !isValidHost(r.Host) || hasControl(uri) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+uri, http.StatusMovedPermanently)
	})
}

func hasControl(s string) bool {
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			return true
		}
	}
	return false
}

// isValidHost accepts host or host:port, including bracketed IPv6.
func isValidHost(host string) bool {
	if host == "" || hasControl(host) || strings.ContainsAny(host, " /\\@") {
		return false
	}
	name, ipOnly := host, false
	if h, port, err := net.SplitHostPort(host); err == nil {
		n, perr := strconv.Atoi(port)
		if perr != nil || n <= 0 || n > 65535 {
			return false
		}
		name, ipOnly = h, strings.HasPrefix(host, "[")
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		name, ipOnly = host[1:len(host)-1], true
	}
	if name == "" {
		return false
	}
	if ipOnly || strings.Contains(name, ":") {
		if i := strings.IndexByte(name, '%'); i >= 0 {
			name = name[:i]
		}
		return net.ParseIP(name) != nil
	}
	return true
}

type permissionError struct {
	path string
	mode os.FileMode
}

func (e *permissionError) Error() string {
	return fmt.Sprintf("TLS key file %s has permissions %o (want 0600)", e.path, e.mode)
}

// validateTLSFiles checks both files exist and the key is not readable by
// group or others.
func validateTLSFiles(certFile, keyFile string) error {
	for _, p := range []string{certFile, keyFile} {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("TLS file %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("TLS file %s is a directory", p)
		}
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	info, _ := os.Stat(keyFile)
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return &permissionError{path: keyFile, mode: perm}
	}
	return nil
}
