// internal/collector/server.go
package collector

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/signalnine/teforward/internal/config"
)

// Server is the development event collector
type Server struct {
	cfg    *config.SinkConfig
	db     *DB
	log    zerolog.Logger
	server *http.Server
}

// NewServer creates a new collector server
func NewServer(cfg *config.SinkConfig, log zerolog.Logger) (*Server, error) {
	if cfg.Token == "" {
		return nil, errors.New("collector token is required")
	}

	db, err := NewDB(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	handler := NewIngestHandler(db, cfg.Token, cfg.MaxPayloadBytes, log)

	mux := http.NewServeMux()
	mux.Handle("/services/collector/event", handler)
	mux.Handle("/services/collector", handler)
	mux.HandleFunc("/services/collector/health", healthHandler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		cfg:    cfg,
		db:     db,
		log:    log,
		server: server,
	}, nil
}

// Handler exposes the routes, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// DB returns the event store
func (s *Server) DB() *DB {
	return s.db
}

// Run listens on the configured address until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. TLS is used when a
// certificate is configured.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.db.Close()

	useTLS := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			return errors.Wrap(err, "load TLS cert")
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", useTLS).Msg("collector starting")

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("collector shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
