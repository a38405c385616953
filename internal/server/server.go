package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternalApril/starlight/internal/config"
	"github.com/eternalApril/starlight/internal/metrics"
	"github.com/eternalApril/starlight/internal/resp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrServerClosed is returned by Serve after Shutdown or after its context is done
var ErrServerClosed = errors.New("server: closed")

// rejectReply is sent to a connection over the client limit before it is closed
const rejectReply = "-ERR max number of clients reached\r\n"

// Server accepts TCP clients and runs one connection loop per client against the engine
type Server struct {
	cfg     config.ServerConfig
	engine  *Engine
	logger  *zap.Logger
	limits  resp.Limits
	sem     *semaphore.Weighted // nil when max_clients is 0
	limiter *rate.Limiter       // nil when accept_rate is 0

	mu      sync.Mutex // protects ln, conns and the closing transition
	ln      net.Listener
	conns   map[*Peer]struct{}
	wg      sync.WaitGroup
	closing atomic.Bool
	nextID  atomic.Int64
}

// NewServer builds a server for cfg. Nothing is bound until ListenAndServe or Serve
func NewServer(cfg config.ServerConfig, engine *Engine, logger *zap.Logger) *Server {
	limits := resp.DefaultLimits()
	if cfg.MaxBulkLen > 0 {
		limits.MaxBulkLen = cfg.MaxBulkLen
	}
	if cfg.MaxArrayLen > 0 {
		limits.MaxArrayLen = cfg.MaxArrayLen
	}
	if cfg.MaxInlineLen > 0 {
		limits.MaxInlineLen = cfg.MaxInlineLen
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		limits: limits,
		conns:  make(map[*Peer]struct{}),
	}
	if cfg.MaxClients > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxClients))
	}
	if cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), max(cfg.AcceptBurst, 1))
	}
	return s
}

// ListenAndServe binds the configured address and serves it
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Shutdown is called.
// It takes ownership of ln
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		ln.Close() //nolint:errcheck
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("listening on", zap.String("address", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		ln.Close() //nolint:errcheck
	})
	defer stop()

	var backoff time.Duration
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return ErrServerClosed
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
				s.logger.Warn("accept error, retrying", zap.Error(err), zap.Duration("delay", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		s.handle(conn)
	}
}

// handle admits conn under the client limit and starts its loop
func (s *Server) handle(conn net.Conn) {
	if s.sem != nil && !s.sem.TryAcquire(1) {
		s.reject(conn)
		return
	}
	release := func() {
		if s.sem != nil {
			s.sem.Release(1)
		}
	}

	peer := NewPeer(conn, s.limits, s.nextID.Add(1))

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		release()
		conn.Close() //nolint:errcheck
		return
	}
	s.conns[peer] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.engine.stats.connected.Add(1)
	s.engine.stats.connections.Add(1)
	metrics.ActiveConnections.Inc()
	metrics.ConnectionsTotal.Inc()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, peer)
			s.mu.Unlock()

			release()
			s.engine.stats.connected.Add(-1)
			metrics.ActiveConnections.Dec()
		}()

		s.serveConn(peer)
	}()
}

// reject tells a client over the limit why it is dropped and closes it
func (s *Server) reject(conn net.Conn) {
	s.engine.stats.rejected.Add(1)
	metrics.RejectedConnections.Inc()

	s.logger.Warn("max number of clients reached",
		zap.String("addr", conn.RemoteAddr().String()),
		zap.Int("max_clients", s.cfg.MaxClients),
	)

	conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck
	conn.Write([]byte(rejectReply))                    //nolint:errcheck
	conn.Close()                                       //nolint:errcheck
}

// Addr returns the bound address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting and lets every connection finish the command it is
// running. Idle readers are woken at once. When ctx expires first the
// remaining connections are closed and ctx's error is part of the result
func (s *Server) Shutdown(ctx context.Context) error {
	var err error

	s.mu.Lock()
	s.closing.Store(true)
	if s.ln != nil {
		if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for peer := range s.conns {
		peer.nudge()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all connections closed gracefully")
	case <-ctx.Done():
		s.mu.Lock()
		s.logger.Warn("shutdown timed out, forcing close", zap.Int("connections", len(s.conns)))
		for peer := range s.conns {
			if cerr := peer.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = multierr.Append(err, cerr)
			}
		}
		s.mu.Unlock()
		<-done
		err = multierr.Append(err, ctx.Err())
	}

	return err
}
