// Package bridge is the synchronous call boundary between the script
// runtime and the host that owns the real document tree.
//
// The host answers a small, fixed set of operations. Bridge is a typed
// pass-through over that surface: it performs no validation, caching or
// retries, and surfaces every host failure as a *HostError.
package bridge

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Operation names understood by hosts.
const (
	OpLog              = "log"
	OpQuerySelectorAll = "querySelectorAll"
	OpGetAttribute     = "getAttribute"
	OpSetAttribute     = "setAttribute"
	OpInnerHTMLSet     = "innerHTML_set"
)

// Host is the external document host. Call blocks until the host answers.
type Host interface {
	Call(op string, args ...any) (any, error)
}

// HostFunc adapts an ordinary function to the Host interface.
type HostFunc func(op string, args ...any) (any, error)

// Call calls f(op, args...).
func (f HostFunc) Call(op string, args ...any) (any, error) {
	return f(op, args...)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger used for host call tracing.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bridge exposes the host call surface with Go types.
type Bridge struct {
	host   Host
	logger *zap.Logger
}

// New returns a Bridge forwarding to host.
func New(host Host, opts ...Option) *Bridge {
	b := &Bridge{host: host, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Host returns the underlying host.
func (b *Bridge) Host() Host {
	return b.host
}

func (b *Bridge) call(op string, args ...any) (any, error) {
	b.logger.Debug("host call", zap.String("op", op), zap.Any("args", args))
	result, err := b.host.Call(op, args...)
	if err != nil {
		b.logger.Debug("host call failed", zap.String("op", op), zap.Error(err))
		return nil, hostError(op, err)
	}
	return result, nil
}

// Log sends a message to the host's log channel.
func (b *Bridge) Log(message string) error {
	_, err := b.call(OpLog, message)
	return err
}

// QuerySelectorAll asks the host for the handles of all elements matching
// selector, in the order the host returns them.
func (b *Bridge) QuerySelectorAll(selector string) ([]Handle, error) {
	result, err := b.call(OpQuerySelectorAll, selector)
	if err != nil {
		return nil, err
	}
	handles, err := toHandles(result)
	if err != nil {
		return nil, &HostError{Op: OpQuerySelectorAll, Err: err}
	}
	return handles, nil
}

// GetAttribute reads attribute name of element h. ok is false when the
// host reports the attribute as absent.
func (b *Bridge) GetAttribute(h Handle, name string) (value string, ok bool, err error) {
	result, err := b.call(OpGetAttribute, h.Value(), name)
	if err != nil {
		return "", false, err
	}
	switch v := result.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	default:
		return "", false, &HostError{Op: OpGetAttribute, Err: fmt.Errorf("unexpected result type %T", result)}
	}
}

// SetAttribute writes attribute name of element h.
func (b *Bridge) SetAttribute(h Handle, name, value string) error {
	_, err := b.call(OpSetAttribute, h.Value(), name, value)
	return err
}

// SetInnerHTML replaces the content of element h with markup.
func (b *Bridge) SetInnerHTML(h Handle, markup string) error {
	_, err := b.call(OpInnerHTMLSet, h.Value(), markup)
	return err
}

func toHandles(result any) ([]Handle, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case []Handle:
		return append([]Handle(nil), v...), nil
	case []any:
		handles := make([]Handle, 0, len(v))
		for i, item := range v {
			h, err := HandleOf(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			handles = append(handles, h)
		}
		return handles, nil
	}

	rv := reflect.ValueOf(result)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("unexpected result type %T", result)
	}
	handles := make([]Handle, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		h, err := HandleOf(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}
