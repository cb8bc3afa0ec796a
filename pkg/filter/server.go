package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	blzdJson "github.com/BLAZED-sh/labelmatch/pkg/json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// connection tracks a client connection and its lexer
type connection struct {
	conn      net.Conn
	lexer     *blzdJson.JsonStreamLexer
	cancel    context.CancelFunc
	createdAt int64 // Unix timestamp
}

// Server runs a Filter over every connection accepted on its listeners,
// writing the matches back to the same connection.
type Server struct {
	filter     *Filter
	listeners  []net.Listener
	context    context.Context
	cancelFunc context.CancelFunc
	listening  bool
	logger     zerolog.Logger

	acceptors sync.WaitGroup
	handlers  sync.WaitGroup
	nextID    atomic.Int64

	// Tracking active connections for debugging
	activeConnections      sync.Map // map[string]*connection
	activeConnectionsCount int64
}

func NewServer(filter *Filter) *Server {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	return &Server{
		filter:     filter,
		listeners:  []net.Listener{},
		context:    cancelCtx,
		cancelFunc: cancelFunc,
		listening:  false,
		logger:     log.Logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) AddUnixSocketListener(context context.Context, path string) error {
	config := net.ListenConfig{}
	listener, err := config.Listen(context, "unix", path)
	if err != nil {
		return err
	}
	s.listeners = append(s.listeners, listener)
	return nil
}

func (s *Server) Listen() error {
	if len(s.listeners) == 0 {
		return errors.New("no listeners configured")
	}
	for _, listener := range s.listeners {
		s.acceptors.Add(1)
		go s.acceptConnections(listener)
	}
	s.listening = true
	return nil
}

// Shutdown closes the listeners and every open connection, then waits for
// the connection handlers to return.
func (s *Server) Shutdown() {
	s.cancelFunc()

	// Close all listeners
	for _, listener := range s.listeners {
		if err := listener.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing listener")
		}
	}
	// No handler can be added once the accept loops are gone
	s.acceptors.Wait()

	s.activeConnections.Range(func(key, value interface{}) bool {
		c := value.(*connection)
		c.cancel()
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Str("connID", key.(string)).Msg("Error closing connection")
		}
		return true
	})

	s.handlers.Wait()
	s.listening = false

	totals := s.filter.Totals()
	s.logger.Info().
		Int64("objects", totals.Objects).
		Int64("matched", totals.Matched).
		Msg("Server shutdown complete")
}

// DumpDebugInfo logs the state of every active connection
func (s *Server) DumpDebugInfo() {
	count := 0

	s.logger.Info().Int64("active_connections_count", atomic.LoadInt64(&s.activeConnectionsCount)).Msg("Debug information")

	s.activeConnections.Range(func(key, value interface{}) bool {
		count++
		connID := key.(string)
		c := value.(*connection)

		bufferInfo := fmt.Sprintf("Buffer length: %d, cursor: %d, capacity: %d",
			c.lexer.BufferLength(),
			c.lexer.Cursor(),
			cap(c.lexer.Buffer()))

		s.logger.Info().
			Str("connection_id", connID).
			Str("buffer", bufferInfo).
			Str("buffer_content", c.lexer.BufferContent()).
			Int64("age_seconds", time.Now().Unix()-c.createdAt).
			Msg("Connection debug info")

		return true
	})

	s.logger.Info().Int("actual_count", count).Msg("Finished dumping debug info")
}

func (s *Server) acceptConnections(listener net.Listener) {
	defer s.acceptors.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Error().Err(err).Msg("Error accepting connection")
			continue
		}

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	connID := fmt.Sprintf("conn_%d", s.nextID.Add(1))

	ctx, cancel := context.WithCancel(s.context)
	defer cancel()

	lexer := blzdJson.NewJsonStreamLexer(ctx, conn, s.filter.bufferSize, s.filter.maxRead)

	s.activeConnections.Store(connID, &connection{
		conn:      conn,
		lexer:     lexer,
		cancel:    cancel,
		createdAt: time.Now().Unix(),
	})
	atomic.AddInt64(&s.activeConnectionsCount, 1)

	s.logger.Trace().Str("connID", connID).Msg("Handling connection")

	defer func() {
		s.activeConnections.Delete(connID)
		atomic.AddInt64(&s.activeConnectionsCount, -1)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error().Err(err).Str("connID", connID).Msg("Error closing connection")
		}
		s.logger.Trace().Str("connID", connID).Msg("Connection closed")
	}()

	// Shutdown may have walked the connections before this one was stored.
	if s.context.Err() != nil {
		return
	}

	stats, err := s.filter.run(ctx, cancel, lexer, conn)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.logger.Warn().Err(err).Str("connID", connID).Msg("Connection closed mid value")
	default:
		s.logger.Error().Err(err).Str("connID", connID).Msg("Error filtering connection")
	}

	s.logger.Debug().
		Str("connID", connID).
		Int64("objects", stats.Objects).
		Int64("matched", stats.Matched).
		Msg("Connection finished")
}
