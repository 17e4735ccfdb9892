// Package session drives one DICT connection end to end: banner, the
// read-parse-dispatch loop, and error-kind mapping, generalizing the
// teacher's InboundConnection.Serve/serveLoop pattern
// (goms/inboundconnection.go) from SMTP's verb table to the DICT
// protocol's parser+handlers split.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/vsemionov/wordbase/internal/backend"
	"github.com/vsemionov/wordbase/internal/cache"
	"github.com/vsemionov/wordbase/internal/handlers"
	"github.com/vsemionov/wordbase/internal/lineio"
	"github.com/vsemionov/wordbase/internal/parser"
	"github.com/vsemionov/wordbase/internal/wordlog"
)

// Config holds the per-session parameters that do not depend on the
// accepted connection: banner identity and I/O timeout.
type Config struct {
	ServerString string
	Domain       string
	Timeout      time.Duration
	DebugMode    bool
}

// Session serves DICT connections, each against a fresh Backend and Cache
// handle obtained from the given factories — "Backend connections: one
// per session; never shared across sessions or tasks" (spec §5).
type Session struct {
	cfg        Config
	handlers   *handlers.Handlers
	newBackend func() backend.Backend
	newCache   func() cache.Cache
	logger     *wordlog.Logger
}

// New returns a Session bound to cfg, using newBackend/newCache to obtain
// one Backend/Cache per connection.
func New(cfg Config, h *handlers.Handlers, newBackend func() backend.Backend, newCache func() cache.Cache, logger *wordlog.Logger) *Session {
	return &Session{cfg: cfg, handlers: h, newBackend: newBackend, newCache: newCache, logger: logger}
}

func fqdn() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}

func (s *Session) banner(conn *lineio.LineIO) error {
	msgID := fmt.Sprintf("<%d.%d@%s>", rand.Intn(10000), rand.Intn(10000), s.cfg.Domain)
	return conn.WriteStatus(220, fmt.Sprintf("%s %s %s", fqdn(), s.cfg.ServerString, msgID))
}

// Serve runs one connection's lifecycle to completion, then closes it. It
// never panics; every error path is logged and ends the loop.
func (s *Session) Serve(ctx context.Context, rawConn net.Conn) {
	addr := rawConn.RemoteAddr().String()
	s.logger.Infof("session started from %s", addr)
	defer func() {
		rawConn.Close()
		s.logger.Infof("session ended for %s", addr)
	}()

	conn := lineio.New(rawConn)
	be := s.newBackend()
	ca := s.newCache()
	defer ca.Close()
	defer be.Close()

	if err := be.Open(ctx); err != nil {
		s.logger.Errorf("%s: backend open failed: %v", addr, err)
		conn.WriteStatus(420, "Server temporarily unavailable")
		return
	}

	if err := s.banner(conn); err != nil {
		s.logger.Debugf("%s: writing banner: %v", addr, err)
		return
	}

	for {
		if s.cfg.Timeout > 0 {
			conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
		}

		line, err := conn.ReadLine()
		if err != nil {
			s.logReadError(addr, err)
			return
		}

		result := parser.Parse(line, s.cfg.DebugMode)
		if !result.OK {
			if err := handlers.HandleSyntaxError(conn, result.Verb); err != nil {
				s.logger.Debugf("%s: writing syntax error: %v", addr, err)
				return
			}
			continue
		}

		end, err := s.handlers.Dispatch(ctx, conn, be, ca, result.Cmd)
		if err != nil {
			s.handleDispatchError(conn, addr, err)
			return
		}
		if end {
			return
		}
	}
}

func (s *Session) logReadError(addr string, err error) {
	switch {
	case errors.Is(err, lineio.ErrEOF):
		s.logger.Debugf("%s: connection closed by peer", addr)
	case errors.Is(err, lineio.ErrLineTooLong):
		s.logger.Debugf("%s: line too long", addr)
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.logger.Debugf("%s: read timeout", addr)
			return
		}
		s.logger.Errorf("%s: read error: %v", addr, err)
	}
}

func (s *Session) handleDispatchError(conn *lineio.LineIO, addr string, err error) {
	var be *backend.BackendError
	if errors.As(err, &be) {
		s.logger.Errorf("%s: backend error: %v", addr, err)
		conn.WriteStatus(420, "Server temporarily unavailable")
		return
	}
	s.logger.Errorf("%s: unexpected error: %v", addr, err)
}
