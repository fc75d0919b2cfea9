// Package js runs scripts in a goja runtime against a host document.
// Scripts see console, document and Node; every DOM operation is a
// synchronous call through the session's bridge.
package js

import (
	"fmt"
	"sync"

	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/chrisuehlinger/hostdom/dom"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runtime wraps a goja JavaScript runtime bound to one document session.
type Runtime struct {
	vm        *goja.Runtime
	session   *dom.Session
	nodeProto *goja.Object
	mu        sync.Mutex
	errors    []error
	onError   func(error)
	logger    *zap.Logger
}

// NewRuntime creates a runtime whose document is served by session.
func NewRuntime(session *dom.Session, opts ...Option) *Runtime {
	r := &Runtime{
		vm:      goja.New(),
		session: session,
		errors:  make([]error, 0),
		logger:  session.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.setupConsole()
	r.setupNode()
	r.setupDocument()

	return r
}

// VM returns the underlying goja runtime.
func (r *Runtime) VM() *goja.Runtime {
	return r.vm
}

// Session returns the document session.
func (r *Runtime) Session() *dom.Session {
	return r.session
}

// SetOnError sets a callback for script errors.
func (r *Runtime) SetOnError(handler func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = handler
}

// Set defines a global variable.
func (r *Runtime) Set(name string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vm.Set(name, value)
}

// Execute runs JavaScript code and returns the result.
func (r *Runtime) Execute(code string) (result goja.Value, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer r.recoverPanic("script execution", &err)

	result, err = r.vm.RunString(code)
	if err != nil {
		r.recordError(err)
	}
	return result, err
}

// ExecuteScript compiles and runs a script loaded from src. Scripts are
// compiled in non-strict mode.
func (r *Runtime) ExecuteScript(code, src string) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer r.recoverPanic("script "+src, &err)

	program, err := goja.Compile(src, code, false)
	if err != nil {
		r.recordError(err)
		return err
	}

	_, err = r.vm.RunProgram(program)
	if err != nil {
		r.recordError(err)
	}
	return err
}

// DispatchEvent delivers a host-originated event to the listeners of
// (h, eventType). Script listeners see a fresh Node for h as this.
// It must not be called from inside a running script.
func (r *Runtime) DispatchEvent(h bridge.Handle, eventType string) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer r.recoverPanic("dispatch "+eventType, &err)

	err = r.session.Dispatch(h, eventType)
	if err != nil {
		r.recordError(err)
	}
	return err
}

// Errors returns all errors that occurred during execution.
func (r *Runtime) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error{}, r.errors...)
}

// ClearErrors clears the error list.
func (r *Runtime) ClearErrors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = r.errors[:0]
}

func (r *Runtime) recordError(err error) {
	r.logger.Debug("script error", zap.Error(err))
	r.errors = append(r.errors, err)
	if r.onError != nil {
		r.onError(err)
	}
}

// recoverPanic turns a panic escaping goja into an error.
func (r *Runtime) recoverPanic(what string, err *error) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("%s panic: %v", what, p)
		r.recordError(*err)
	}
}

// setupConsole creates a console whose output goes to the host log.
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()

	levels := []struct {
		name   string
		prefix string
	}{
		{"log", ""},
		{"info", "[INFO] "},
		{"warn", "[WARN] "},
		{"error", "[ERROR] "},
		{"debug", "[DEBUG] "},
	}
	for _, level := range levels {
		prefix := level.prefix
		console.Set(level.name, func(call goja.FunctionCall) goja.Value {
			if err := r.session.Log(prefix + formatArgs(call.Arguments)); err != nil {
				r.throw(err)
			}
			return goja.Undefined()
		})
	}

	r.vm.Set("console", console)
}

// formatArgs formats console arguments for output.
func formatArgs(args []goja.Value) string {
	result := ""
	for i, arg := range args {
		if i > 0 {
			result += " "
		}
		result += formatValue(arg)
	}
	return result
}

// formatValue formats a single value for output.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	return v.String()
}
