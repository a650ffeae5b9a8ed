package sessionlib

import (
	"log"
	"time"
)

// StatusSnapshot is the immutable view of the session published to
// observers on every state-relevant change. Delivery is at-least-once and
// may be coalesced to the latest value by transports.
type StatusSnapshot struct {
	SessionID      string         `json:"session_id,omitempty"`
	State          SessionState   `json:"state"`
	Progress       float64        `json:"progress"`
	Elapsed        time.Duration  `json:"elapsed"`
	TimeRemaining  time.Duration  `json:"time_remaining"`
	ExecutionCount int64          `json:"execution_count"`
	Accuracy       TimingAccuracy `json:"accuracy"`
	LastError      *SessionError  `json:"last_error,omitempty"`
	At             time.Time      `json:"at"`
}

type (
	// StateChangeHandlerFunc is called whenever the engine changes state.
	StateChangeHandlerFunc func(snap StatusSnapshot)
	// ProgressHandlerFunc is called on every processed tick with the
	// drift-corrected progress.
	ProgressHandlerFunc func(snap StatusSnapshot)
	// ExecutionHandlerFunc is called after each successful command
	// invocation with the new execution count.
	ExecutionHandlerFunc func(sessionID string, count int64)
	// ErrorHandlerFunc is called when a session error is recorded,
	// including self-healing warnings.
	ErrorHandlerFunc func(sessionID string, serr *SessionError)
	// CompleteHandlerFunc is called when a session reaches its planned
	// duration.
	CompleteHandlerFunc func(sessionID string)
)

// Handlers holds the observer callbacks of the engine. Nil handlers are
// replaced with defaults; the error handler default logs the error.
// Handlers are invoked outside the engine lock and may call back into the
// engine.
type Handlers struct {
	StateChangeHandler     StateChangeHandlerFunc
	ProgressHandler        ProgressHandlerFunc
	ExecutionHandler       ExecutionHandlerFunc
	ErrorHandler           ErrorHandlerFunc
	SessionCompleteHandler CompleteHandlerFunc
}

func (h *Handlers) setDefault(l *log.Logger) {
	if h.StateChangeHandler == nil {
		h.StateChangeHandler = func(snap StatusSnapshot) {}
	}
	if h.ProgressHandler == nil {
		h.ProgressHandler = func(snap StatusSnapshot) {}
	}
	if h.ExecutionHandler == nil {
		h.ExecutionHandler = func(sessionID string, count int64) {}
	}
	if h.SessionCompleteHandler == nil {
		h.SessionCompleteHandler = func(sessionID string) {}
	}
	if h.ErrorHandler == nil {
		h.ErrorHandler = func(sessionID string, serr *SessionError) {
			if l != nil {
				l.Printf("%s: error: %s", sessionID, serr.Error())
			}
		}
	} else {
		errHandler := h.ErrorHandler
		h.ErrorHandler = func(sessionID string, serr *SessionError) {
			if l != nil {
				l.Printf("%s: error: %s", sessionID, serr.Error())
			}
			errHandler(sessionID, serr)
		}
	}
}
