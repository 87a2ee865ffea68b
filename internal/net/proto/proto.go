// Package proto defines the JSON message envelope and the typed dispatch
// registry with state-based access control.
package proto

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Client message types.
const (
	CHello        = "hello"
	CUseSkill     = "use_skill"
	CAdvanceCombo = "advance_combo"
	CCancelSkill  = "cancel_skill"
	CPing         = "ping"
)

// Server message types.
const (
	SWelcome        = "welcome"
	SUseSkillResult = "use_skill_result"
	SSessionEvent   = "session_event"
	SError          = "error"
	SPong           = "pong"
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal wraps a payload into an encoded envelope.
func Marshal(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateHello SessionState = iota // connected, awaiting hello
	StateReady                     // authenticated, in world
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHello:
		return "Hello"
	case StateReady:
		return "Ready"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for message handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, data json.RawMessage)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps message types to handlers with state-based access control.
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps a message type to a handler, restricted to the given states.
func (reg *Registry) Register(msgType string, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[msgType] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch decodes the envelope, validates the session state, and calls the
// handler. Unknown message types are ignored so old clients stay connectable.
func (reg *Registry) Dispatch(sess any, state SessionState, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	reg.log.Debug("收到訊息",
		zap.String("type", env.Type),
		zap.Int("size", len(frame)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[env.Type]
	if !ok {
		reg.log.Debug("未知訊息類型", zap.String("type", env.Type))
		return nil // silently ignore unknown types
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("訊息在此狀態下不允許",
			zap.String("type", env.Type),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("message %q not allowed in state %s", env.Type, state)
	}

	return reg.safeCall(entry.fn, sess, env)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad message from crashing the entire game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, env Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("type", env.Type),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for message %q: %v", env.Type, rec)
		}
	}()
	fn(sess, env.Data)
	return nil
}
