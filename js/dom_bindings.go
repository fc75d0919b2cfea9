package js

import (
	"errors"

	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/chrisuehlinger/hostdom/dom"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// scriptReceiver is the receiver for script-originated dispatch. It keeps
// the Node object dispatchEvent was called on so listeners see that same
// object as this.
type scriptReceiver struct {
	*dom.Element
	obj *goja.Object
}

// jsListener is a script function registered with addEventListener.
type jsListener struct {
	r  *Runtime
	fn goja.Callable
}

// HandleEvent calls the function with the receiver's Node as this.
func (l *jsListener) HandleEvent(recv dom.Receiver) error {
	_, err := l.fn(l.r.receiverObject(recv))
	return err
}

// setupNode creates the Node constructor and prototype.
// new Node(handle) wraps an existing host handle.
func (r *Runtime) setupNode() {
	vm := r.vm

	r.nodeProto = vm.NewObject()
	nodeConstructor := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		h, err := bridge.HandleOf(exportArg(call.Arguments, 0))
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		obj := call.This
		obj.SetPrototype(r.nodeProto)
		obj.Set("handle", h.Value())
		return obj
	})
	nodeConstructorObj := nodeConstructor.ToObject(vm)
	nodeConstructorObj.Set("prototype", r.nodeProto)
	r.nodeProto.Set("constructor", nodeConstructorObj)

	r.nodeProto.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		el := r.elementOf(call.This)
		value, ok, err := el.GetAttribute(call.Argument(0).String())
		if err != nil {
			r.throw(err)
		}
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(value)
	})

	r.nodeProto.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		el := r.elementOf(call.This)
		if err := el.SetAttribute(call.Argument(0).String(), call.Argument(1).String()); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	})

	r.nodeProto.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		el := r.elementOf(call.This)
		eventType := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			r.logger.Debug("addEventListener: listener is not callable",
				zap.Stringer("handle", el.Handle()), zap.String("type", eventType))
			return goja.Undefined()
		}
		el.AddEventListener(eventType, &jsListener{r: r, fn: fn})
		return goja.Undefined()
	})

	r.nodeProto.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		el := r.elementOf(call.This)
		recv := &scriptReceiver{Element: el, obj: call.This.ToObject(vm)}
		if err := r.session.Registry().Dispatch(el.Handle(), call.Argument(0).String(), recv); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	})

	r.nodeProto.DefineAccessorProperty("innerHTML", nil, vm.ToValue(func(call goja.FunctionCall) goja.Value {
		el := r.elementOf(call.This)
		if err := el.SetInnerContent(call.Argument(0).String()); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}), goja.FLAG_FALSE, goja.FLAG_TRUE)

	vm.Set("Node", nodeConstructorObj)
}

// setupDocument creates the document object.
func (r *Runtime) setupDocument() {
	vm := r.vm
	document := vm.NewObject()

	document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		elements, err := r.session.QuerySelectorAll(call.Argument(0).String())
		if err != nil {
			r.throw(err)
		}
		nodes := make([]interface{}, len(elements))
		for i, el := range elements {
			nodes[i] = r.wrap(el)
		}
		return vm.NewArray(nodes...)
	})

	vm.Set("document", document)
}

// wrap returns a new Node object for el.
func (r *Runtime) wrap(el *dom.Element) *goja.Object {
	obj := r.vm.NewObject()
	obj.SetPrototype(r.nodeProto)
	obj.Set("handle", el.Handle().Value())
	return obj
}

// elementOf resolves this.handle to an element of the session.
func (r *Runtime) elementOf(this goja.Value) *dom.Element {
	if this == nil || goja.IsUndefined(this) || goja.IsNull(this) {
		panic(r.vm.NewTypeError("Illegal invocation"))
	}
	hv := this.ToObject(r.vm).Get("handle")
	if hv == nil || goja.IsUndefined(hv) {
		panic(r.vm.NewTypeError("Illegal invocation: receiver has no handle"))
	}
	h, err := bridge.HandleOf(hv.Export())
	if err != nil {
		panic(r.vm.NewTypeError(err.Error()))
	}
	return r.session.Element(h)
}

// receiverObject returns the value a script listener sees as this.
func (r *Runtime) receiverObject(recv dom.Receiver) goja.Value {
	switch v := recv.(type) {
	case *scriptReceiver:
		return v.obj
	case *dom.Element:
		return r.wrap(v)
	}

	// A receiver from Go code that is not a session element: expose only
	// the receiver capabilities.
	obj := r.vm.NewObject()
	obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		value, ok, err := recv.GetAttribute(call.Argument(0).String())
		if err != nil {
			r.throw(err)
		}
		if !ok {
			return goja.Null()
		}
		return r.vm.ToValue(value)
	})
	obj.DefineAccessorProperty("innerHTML", nil, r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if err := recv.SetInnerContent(call.Argument(0).String()); err != nil {
			r.throw(err)
		}
		return goja.Undefined()
	}), goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// throw raises err in the script. Values thrown by script listeners are
// rethrown unchanged.
func (r *Runtime) throw(err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	panic(r.vm.NewGoError(err))
}

func exportArg(args []goja.Value, i int) interface{} {
	if i >= len(args) {
		return nil
	}
	return args[i].Export()
}
