// Package monitor serves the analyzer's band levels over a websocket so the
// spectrum can be watched while tuning effects.
package monitor

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/turboglow/internal/spectrum"
)

// DefaultInterval is how often levels are broadcast.
const DefaultInterval = 50 * time.Millisecond

const writeTimeout = time.Second

// Levels is a single broadcast message.
type Levels struct {
	Low  float32 `json:"low"`
	Mid  float32 `json:"mid"`
	High float32 `json:"high"`
	Peak float32 `json:"peak"`
}

// LevelsOf summarizes a frame.
func LevelsOf(f *spectrum.Frame) Levels {
	return Levels{
		Low:  f.Low(),
		Mid:  f.Mid(),
		High: f.High(),
		Peak: f.Peak(),
	}
}

// Server broadcasts Levels to every client connected on /ws.
type Server struct {
	frames   *spectrum.FrameCell
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}
}

// NewServer creates a server reading from frames. Zero interval means
// DefaultInterval.
func NewServer(frames *spectrum.FrameCell, interval time.Duration, logger *slog.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Server{
		frames:   frames,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves on addr and broadcasts until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	server := &http.Server{Handler: s.Handler()}
	s.logger.Info("monitor listening", "addr", l.Addr().String())

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "monitor server failed")
		}
		return nil
	})
	errg.Go(func() error {
		<-ctx.Done()
		s.closeClients()
		return server.Close()
	})
	errg.Go(func() error {
		return s.Broadcast(ctx)
	})

	return errg.Wait()
}

// Broadcast sends the latest levels to every client each interval until ctx
// is done.
func (s *Server) Broadcast(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.send(LevelsOf(s.frames.Load()))
		}
	}
}

func (s *Server) send(levels Levels) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteJSON(levels); err != nil {
			s.logger.Debug("dropping monitor client", "remote", client.RemoteAddr().String(), "err", err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	s.logger.Debug("monitor client connected", "remote", c.RemoteAddr().String())

	go func() {
		// Clients never send anything; this only notices the close.
		for {
			if _, _, err := c.NextReader(); err != nil {
				break
			}
		}

		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		client.Close()
		delete(s.clients, client)
	}
}
