package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"

	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/pkg/logger"
)

// Server exposes the daemon's JSON-RPC 2.0 API to CLI clients. The primary
// transport is HTTP over a Unix socket, falling back to TCP on the
// configured port if Unix socket creation fails. Request/response calls go
// through POST /jsonrpc; attached observers upgrade to a WebSocket on
// /jsonrpc/ws and receive push notifications.
type Server struct {
	log      logger.Logger
	rpc      *RPCServer
	notifier *RPCNotifier
	port     int
	listener net.Listener
	httpSrv  *http.Server
	mu       sync.Mutex
}

// NewServer creates a new Server instance. The notifier must be the same one
// whose EngineHandlers were installed on the engine, so attached observers
// see the engine's events.
func NewServer(l logger.Logger, rpc *RPCServer, notifier *RPCNotifier, port int) *Server {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Server{
		log:      l,
		rpc:      rpc,
		notifier: notifier,
		port:     port,
	}
}

func (s *Server) createListener() (net.Listener, error) {
	socketPath := socketPath()
	_ = os.Remove(socketPath)
	l, err := net.ListenUnix("unix", &net.UnixAddr{
		Name: socketPath,
		Net:  "unix",
	})
	if err != nil {
		s.log.Warning("unix socket unavailable (%s), falling back to tcp", err.Error())
		tcpListener, tcpErr := net.Listen("tcp", fmt.Sprintf("%s:%d", common.TCPHost, s.port))
		if tcpErr != nil {
			return nil, fmt.Errorf("error listening: %s", tcpErr.Error())
		}
		return tcpListener, nil
	}
	_ = os.Chmod(socketPath, 0700)
	return l, nil
}

// Handler builds the HTTP mux serving both RPC endpoints. Every route sits
// behind Bearer token auth. Exposed so embedders and tests can serve the
// API over their own listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/jsonrpc", requireToken(s.rpc.secret, s.rpc.bridge))
	mux.Handle("/jsonrpc/ws", requireToken(s.rpc.secret, http.HandlerFunc(s.handleWS)))
	return mux
}

// handleWS upgrades the connection to a WebSocket and runs a dedicated
// jrpc2 server over it with push enabled. The server stays registered with
// the notifier for broadcast until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.log.Warning("websocket accept failed: %v", err)
		return
	}
	ch := &wsChannel{conn: conn, ctx: r.Context()}
	srv := jrpc2.NewServer(s.rpc.methods, &jrpc2.ServerOptions{AllowPush: true})
	srv.Start(ch)
	s.notifier.Register(srv)
	_ = srv.Wait()
	s.notifier.Unregister(srv)
	_ = ch.Close()
}

// Start begins serving and blocks until the context is canceled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	l, err := s.createListener()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:  s.Handler(),
		ErrorLog: logger.ToStdLogger(s.log),
	}

	s.mu.Lock()
	s.listener = l
	s.httpSrv = srv
	s.mu.Unlock()

	// Watch for context cancellation to trigger shutdown
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()

	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, drains in-flight requests and
// removes the socket file.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("error shutting down http server: %v", err)
		}
	}

	s.rpc.Close()

	socketPath := socketPath()
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Error("error removing socket file: %v", err)
	}
	return nil
}
