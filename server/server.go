// Package server is a line-oriented TCP front-end over the engine,
// grounded on the accept-loop/per-connection-goroutine idiom the
// reference pack's k4 server example uses.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/emberkv/emberkv/engine"
	"github.com/emberkv/emberkv/protocol"
	"github.com/rs/zerolog"
)

// Server accepts connections and dispatches each request line to an
// Engine via the shared line protocol.
type Server struct {
	listener net.Listener
	engine   *engine.Engine
	logger   zerolog.Logger
}

// New starts listening on address.
func New(address string, eng *engine.Engine, logger zerolog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("server: listen on %s: %w", address, err)
	}
	return &Server{listener: listener, engine: eng, logger: logger}, nil
}

// Addr reports the address the server is actually bound to.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is canceled or the listener is
// closed, handling each on its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handle(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			s.respond(conn, line)
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) respond(conn net.Conn, line []byte) {
	cmd := protocol.Parse(line)

	var response string
	switch cmd.Kind {
	case protocol.Get:
		value, found, err := s.engine.Get(cmd.Key)
		switch {
		case err != nil:
			response = fmt.Sprintf("error: %v", err)
		case !found:
			response = protocol.RenderNotFound(cmd.Key)
		default:
			response = string(value)
		}
	case protocol.Insert:
		if err := s.engine.Insert(cmd.Key, cmd.Value); err != nil {
			response = fmt.Sprintf("error: %v", err)
		} else {
			response = protocol.RenderOK
		}
	case protocol.Update:
		if err := s.engine.Update(cmd.Key, cmd.Value); err != nil {
			response = fmt.Sprintf("error: %v", err)
		} else {
			response = protocol.RenderOK
		}
	case protocol.Delete:
		if err := s.engine.Delete(cmd.Key); err != nil {
			response = fmt.Sprintf("error: %v", err)
		} else {
			response = protocol.RenderOK
		}
	default:
		response = protocol.HelpLine
	}

	if _, err := conn.Write([]byte(response + "\n")); err != nil {
		s.logger.Error().Err(err).Msg("write response failed")
	}
}
