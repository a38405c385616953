package server

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/eternalApril/starlight/internal/resp"
	"go.uber.org/zap"
)

// serveConn runs the read, dispatch, write loop of one client.
// Replies are buffered while more pipelined input is waiting and flushed once it is drained
func (s *Server) serveConn(peer *Peer) {
	debug := s.logger.Core().Enabled(zap.DebugLevel)
	if debug {
		s.logger.Debug("client connected",
			zap.Int64("id", peer.ID()),
			zap.String("addr", peer.RemoteAddr()),
		)
	}

	defer func() {
		peer.Close() //nolint:errcheck
		if debug {
			s.logger.Debug("client disconnected",
				zap.Int64("id", peer.ID()),
				zap.String("addr", peer.RemoteAddr()),
			)
		}
	}()

	for {
		if err := peer.SetIdleDeadline(s.cfg.IdleTimeout); err != nil {
			return
		}
		// Shutdown may have nudged the peer before the deadline above was set
		if s.closing.Load() {
			if peer.InputBuffered() == 0 {
				peer.Flush() //nolint:errcheck
				return
			}
			peer.nudge()
		}

		req, err := peer.ReadRequest()
		if err != nil {
			s.readFailed(peer, err)
			return
		}

		if req.Len() == 0 {
			continue
		}

		result := s.engine.Execute(req)

		if err = peer.Send(result); err != nil {
			s.logger.Error("error writing response", zap.Int64("id", peer.ID()), zap.Error(err))
			return
		}

		if req.Name() == "QUIT" {
			peer.Flush() //nolint:errcheck
			return
		}

		if peer.InputBuffered() == 0 || s.closing.Load() {
			if err := peer.Flush(); err != nil {
				if debug {
					s.logger.Debug("flush failed", zap.Int64("id", peer.ID()), zap.Error(err))
				}
				return
			}
		}
	}
}

// readFailed logs why reading stopped and flushes the replies already buffered.
// A protocol error gets no reply of its own
func (s *Server) readFailed(peer *Peer, err error) {
	fields := []zap.Field{zap.Int64("id", peer.ID()), zap.String("addr", peer.RemoteAddr())}

	var ne net.Error
	switch {
	case errors.Is(err, resp.ErrProtocol):
		s.logger.Warn("protocol error, closing connection", append(fields, zap.Error(err))...)
		peer.Flush() //nolint:errcheck
		return

	case errors.As(err, &ne) && ne.Timeout():
		peer.Flush() //nolint:errcheck
		if s.closing.Load() {
			s.logger.Debug("connection drained for shutdown", fields...)
			return
		}
		s.logger.Debug("idle timeout", fields...)
		return

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed), errors.Is(err, syscall.ECONNRESET):
		peer.Flush() //nolint:errcheck
		return
	}

	s.logger.Warn("read command failed", append(fields, zap.Error(err))...)
}
