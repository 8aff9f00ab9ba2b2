// Package serverutil runs the ingest API's http.Server with context-driven
// graceful shutdown, so in-flight webhook deliveries finish before the
// process exits.
package serverutil

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// TLSConfig points at the certificate pair used to terminate TLS on the
// listener. Both paths are required together.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// Config wires a prepared http.Server into Run. Ready, when non-nil, is
// closed once the listener is accepting connections.
type Config struct {
	Server          *http.Server
	TLS             TLSConfig
	ShutdownTimeout time.Duration
	Ready           chan<- struct{}
}

// DefaultShutdownTimeout bounds the drain of in-flight requests once the
// context is cancelled. Event deliveries are small, so ten seconds is ample.
const DefaultShutdownTimeout = 10 * time.Second

// Run serves until the context is cancelled, then shuts the server down
// gracefully within ShutdownTimeout. A serve failure is returned as-is;
// http.ErrServerClosed is treated as a clean stop.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Server == nil {
		return fmt.Errorf("server is required")
	}
	if (cfg.TLS.CertFile == "") != (cfg.TLS.KeyFile == "") {
		return fmt.Errorf("both TLS cert file and key file must be provided")
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	listener, err := openListener(cfg.Server, cfg.TLS)
	if err != nil {
		return err
	}

	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- cfg.Server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shutdownErr := cfg.Server.Shutdown(shutdownCtx)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-shutdownCtx.Done():
		if shutdownErr != nil {
			return shutdownErr
		}
		return shutdownCtx.Err()
	}

	return shutdownErr
}

// openListener binds the server's address, wrapping the listener in TLS when
// a certificate pair is configured. The server's own TLSConfig is cloned so
// settings such as the minimum protocol version carry over.
func openListener(server *http.Server, tlsCfg TLSConfig) (net.Listener, error) {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, err
	}
	if tlsCfg.CertFile == "" {
		return listener, nil
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertFile, tlsCfg.KeyFile)
	if err != nil {
		listener.Close()
		return nil, err
	}

	config := server.TLSConfig
	if config == nil {
		config = &tls.Config{}
	} else {
		config = config.Clone()
	}
	config.Certificates = append([]tls.Certificate{cert}, config.Certificates...)
	server.TLSConfig = config
	return tls.NewListener(listener, config), nil
}
