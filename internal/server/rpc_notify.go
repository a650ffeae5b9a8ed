package server

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/vigild/vigil/common"
	"github.com/vigild/vigil/pkg/logger"
	"github.com/vigild/vigil/pkg/sessionlib"
)

// RPCNotifier maintains a set of connected jrpc2 WebSocket servers
// and broadcasts push notifications to all of them.
type RPCNotifier struct {
	mu      sync.RWMutex
	servers map[*jrpc2.Server]struct{}
	log     logger.Logger
}

// NewRPCNotifier creates a new notifier.
func NewRPCNotifier(l logger.Logger) *RPCNotifier {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &RPCNotifier{
		servers: make(map[*jrpc2.Server]struct{}),
		log:     l,
	}
}

// Register adds a server to the broadcast set.
func (n *RPCNotifier) Register(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[srv] = struct{}{}
}

// Unregister removes a server from the broadcast set.
func (n *RPCNotifier) Unregister(srv *jrpc2.Server) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.servers, srv)
}

// Broadcast sends a push notification to all registered servers.
// Servers that fail to receive (e.g., disconnected) are unregistered.
func (n *RPCNotifier) Broadcast(method string, params any) {
	n.mu.RLock()
	servers := make([]*jrpc2.Server, 0, len(n.servers))
	for srv := range n.servers {
		servers = append(servers, srv)
	}
	n.mu.RUnlock()

	var failed []*jrpc2.Server
	for _, srv := range servers {
		if err := srv.Notify(context.Background(), method, params); err != nil {
			n.log.Warning("RPC push failed: %v", err)
			failed = append(failed, srv)
		}
	}

	if len(failed) > 0 {
		n.mu.Lock()
		for _, srv := range failed {
			delete(n.servers, srv)
		}
		n.mu.Unlock()
	}
}

// Count returns the number of registered servers (for testing).
func (n *RPCNotifier) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.servers)
}

// EngineHandlers builds the engine observer set that forwards every session
// event to attached observers as a JSON-RPC push notification. State changes
// and progress ticks both travel as session.status snapshots.
func (n *RPCNotifier) EngineHandlers() sessionlib.Handlers {
	return sessionlib.Handlers{
		StateChangeHandler: func(snap sessionlib.StatusSnapshot) {
			n.Broadcast(common.NotifyStatus, common.FromSnapshot(snap))
		},
		ProgressHandler: func(snap sessionlib.StatusSnapshot) {
			n.Broadcast(common.NotifyStatus, common.FromSnapshot(snap))
		},
		ExecutionHandler: func(sessionID string, count int64) {
			n.Broadcast(common.NotifyExecution, &common.ExecutionNotification{
				SessionID: sessionID,
				Count:     count,
			})
		},
		ErrorHandler: func(sessionID string, serr *sessionlib.SessionError) {
			n.Broadcast(common.NotifyError, &common.ErrorNotification{
				SessionID: sessionID,
				Error:     serr,
			})
		},
		SessionCompleteHandler: func(sessionID string) {
			n.Broadcast(common.NotifyComplete, &common.CompleteNotification{
				SessionID: sessionID,
			})
		},
	}
}
