package dom

import (
	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger. It is also handed to the bridge and
// the registry.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithID overrides the generated session id.
func WithID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// Session is one document session: a host, the bridge to it and the
// listener registry for its elements. Listeners live as long as the
// session does.
type Session struct {
	id       string
	bridge   *bridge.Bridge
	registry *ListenerRegistry
	logger   *zap.Logger
}

// NewSession starts a session against host with an empty registry.
func NewSession(host bridge.Host, opts ...SessionOption) *Session {
	s := &Session{id: uuid.NewString(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))
	s.bridge = bridge.New(host, bridge.WithLogger(s.logger))
	s.registry = NewListenerRegistry(s.logger)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Bridge returns the session's bridge.
func (s *Session) Bridge() *bridge.Bridge { return s.bridge }

// Registry returns the session's listener registry.
func (s *Session) Registry() *ListenerRegistry { return s.registry }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Element wraps an existing handle.
func (s *Session) Element(h bridge.Handle) *Element {
	return NewElement(h, s.bridge, s.registry)
}

// QuerySelectorAll returns fresh Elements for every host match of
// selector, in host order.
func (s *Session) QuerySelectorAll(selector string) ([]*Element, error) {
	handles, err := s.bridge.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	elements := make([]*Element, len(handles))
	for i, h := range handles {
		elements[i] = s.Element(h)
	}
	return elements, nil
}

// Log writes message to the host's log channel.
func (s *Session) Log(message string) error {
	return s.bridge.Log(message)
}

// Dispatch delivers a host-originated event: listeners of (h, eventType)
// receive a fresh Element for h.
func (s *Session) Dispatch(h bridge.Handle, eventType string) error {
	return s.registry.Dispatch(h, eventType, s.Element(h))
}
