package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/geminid/internal/config"
	"github.com/danmuck/geminid/internal/content"
	"github.com/danmuck/geminid/internal/gemini"
	"github.com/danmuck/geminid/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/netutil"
)

// Service serves one content root over gemini.
type Service struct {
	cfg    config.Config
	root   *content.Root
	tls    *tls.Config
	logger zerolog.Logger

	connsMu     sync.Mutex
	conns       map[net.Conn]struct{}
	clientCount atomic.Int64
}

// NewService opens the content root and loads the TLS identity named by cfg.
func NewService(cfg config.Config) (*Service, error) {
	root, err := content.NewRoot(cfg.ContentRoot, content.Options{
		IndexName:    cfg.IndexName,
		FormSuffix:   cfg.FormSuffix,
		HideDotfiles: cfg.HideDotfiles,
	})
	if err != nil {
		return nil, err
	}
	cert, err := LoadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:    cfg,
		root:   root,
		tls:    ServerTLSConfig(cert),
		logger: log.Logger.With().Str("component", "server").Logger(),
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Run listens on the configured address and blocks until SIGINT/SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := s.Listen()
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("content_root", s.root.Dir()).
		Int("max_connections", s.cfg.MaxConnections).
		Msg("gemini listening")

	metricsErr := make(chan error, 1)
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		go func() {
			metricsErr <- observability.ServeMetrics(ctx, addr)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-metricsErr:
		if err != nil {
			return err
		}
		return <-serveErr
	}
}

// Listen opens the TCP listener for the configured address and wraps it.
func (s *Service) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return nil, err
	}
	return s.WrapListener(ln), nil
}

// WrapListener applies the admission limit and TLS to a raw listener.
func (s *Service) WrapListener(ln net.Listener) net.Listener {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return tls.NewListener(ln, s.tls)
}

// Serve accepts connections until ctx is done, then closes the listener and
// every open connection. It returns nil on a context-driven shutdown, and only
// after every connection handler has returned.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	var handlers sync.WaitGroup
	defer func() {
		_ = ln.Close()
		s.closeAllConns()
		handlers.Wait()
	}()
	go func() {
		<-ctx.Done()
		s.closeAllConns()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.trackConn(conn)
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.handleConn(conn)
		}()
	}
}

// Exchange turns one request line into its response. It never returns nil.
func (s *Service) Exchange(line string) (gemini.Response, content.Target) {
	req, err := gemini.ParseRequest(line)
	if err != nil {
		return content.Classify(err), content.Target{}
	}
	return s.root.Serve(req)
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	defer observability.TrackConn()()

	remote := conn.RemoteAddr().String()
	active := s.clientCount.Add(1)
	s.logger.Info().Str("remote", remote).Int64("active_clients", active).Msg("gemini client connected")
	defer s.clientCount.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("remote", remote).Interface("panic", r).Msg("gemini connection aborted")
		}
	}()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	line, err := gemini.ReadRequestLine(conn)
	if err != nil {
		observability.RecordFramingError()
		s.logger.Warn().Str("remote", remote).Err(err).Msg("gemini request dropped")
		return
	}
	start := time.Now()

	resp, target := s.Exchange(line)

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	cw := &countingWriter{w: conn}
	if err := gemini.WriteResponse(cw, resp); err != nil {
		s.logger.Warn().Str("remote", remote).Err(err).Msg("gemini response write failed")
	}
	duration := time.Since(start)

	observability.RecordExchange(resp.Status(), duration)
	observability.LogExchange(s.logger, observability.Exchange{
		Remote:   remote,
		Request:  redactQuery(line),
		Target:   target.Kind.String(),
		Status:   resp.Status(),
		Meta:     resp.Meta(),
		Bytes:    cw.n,
		Duration: duration,
	})
}

// redactQuery keeps form answers out of logs; sensitive input travels in the query.
func redactQuery(line string) string {
	if i := strings.IndexByte(line, '?'); i >= 0 {
		return line[:i] + "?<redacted>"
	}
	return line
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
