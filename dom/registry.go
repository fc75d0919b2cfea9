package dom

import (
	"sync"

	"github.com/chrisuehlinger/hostdom/bridge"
	"go.uber.org/zap"
)

// Receiver is what a listener sees as the element an event was dispatched
// on.
type Receiver interface {
	GetAttribute(name string) (value string, ok bool, err error)
	SetInnerContent(markup string) error
}

// Listener handles an event dispatched on recv.
type Listener interface {
	HandleEvent(recv Receiver) error
}

// ListenerFunc adapts an ordinary function to the Listener interface.
type ListenerFunc func(recv Receiver) error

// HandleEvent calls f(recv).
func (f ListenerFunc) HandleEvent(recv Receiver) error {
	return f(recv)
}

// ListenerRegistry maps (handle, event type) to the listeners registered
// for it. It is append-only: listeners are never removed or de-duplicated,
// and registration order is dispatch order.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners map[bridge.Handle]map[string][]Listener
	logger    *zap.Logger
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry(logger *zap.Logger) *ListenerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenerRegistry{
		listeners: make(map[bridge.Handle]map[string][]Listener),
		logger:    logger,
	}
}

// Register appends l to the listeners of (h, eventType).
func (r *ListenerRegistry) Register(h bridge.Handle, eventType string, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.listeners[h]
	if !ok {
		byType = make(map[string][]Listener)
		r.listeners[h] = byType
	}
	byType[eventType] = append(byType[eventType], l)
}

// Len returns the number of listeners registered for (h, eventType).
func (r *ListenerRegistry) Len(h bridge.Handle, eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[h][eventType])
}

func (r *ListenerRegistry) at(h bridge.Handle, eventType string, i int) (Listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.listeners[h][eventType]
	if i >= len(list) {
		return nil, false
	}
	return list[i], true
}

// Dispatch invokes every listener of (h, eventType) in registration order
// with recv as receiver. An unregistered pair is a no-op.
//
// The list is re-read before each invocation, so listeners registered for
// the same pair while dispatching are invoked by this dispatch too. There
// is no reentrancy guard: a listener that dispatches the same pair again
// recurses.
//
// The first listener to fail stops the dispatch; its error is returned as
// a *CallbackError.
func (r *ListenerRegistry) Dispatch(h bridge.Handle, eventType string, recv Receiver) error {
	for i := 0; ; i++ {
		l, ok := r.at(h, eventType, i)
		if !ok {
			if i > 0 {
				r.logger.Debug("dispatched event",
					zap.Stringer("handle", h), zap.String("type", eventType), zap.Int("listeners", i))
			}
			return nil
		}
		if err := l.HandleEvent(recv); err != nil {
			r.logger.Debug("listener failed",
				zap.Stringer("handle", h), zap.String("type", eventType), zap.Int("index", i), zap.Error(err))
			return &CallbackError{Handle: h, Type: eventType, Index: i, Err: err}
		}
	}
}
