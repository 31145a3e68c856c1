package metrics

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/pkg/errors"
)

// Server is the TCP endpoint serving the latest snapshot.  Each accepted
// connection gets the full snapshot written in order and is then closed; the
// server never reads from clients and keeps no per-connection state beyond
// the handler goroutine's stack.
type Server struct {
	col    *Collector
	logger logging.Logger

	ln     net.Listener
	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer returns an unstarted Server.
func NewServer(col *Collector, logger logging.Logger) *Server {
	return &Server{
		col:    col,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Start binds host:port and begins accepting connections.  Binding failure
// is fatal to startup.
func (s *Server) Start(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeConfig, "cannot listen on %s:%d", host, port)
	}
	s.ln = ln
	s.logger.Info("serving metrics", logging.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("metrics accept failed", logging.Err(err))
			continue
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := s.col.WriteTo(conn); err != nil {
		s.logger.Warn("metrics write failed", logging.Err(err))
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	if s.ln == nil {
		return
	}
	close(s.closed)
	_ = s.ln.Close()
	s.wg.Wait()
	s.logger.Info("metrics endpoint stopped")
}
