package js

import (
	"fmt"
	"testing"

	"github.com/chrisuehlinger/hostdom/bridge"
	"github.com/chrisuehlinger/hostdom/dom"
)

type hostCall struct {
	op   string
	args []any
}

// fakeHost answers selector queries from a fixed table and keeps
// attributes and inner HTML per handle.
type fakeHost struct {
	calls   []hostCall
	logs    []string
	matches map[string][]any
	attrs   map[bridge.Handle]map[string]string
	inner   map[bridge.Handle]string
	fail    map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		matches: make(map[string][]any),
		attrs:   make(map[bridge.Handle]map[string]string),
		inner:   make(map[bridge.Handle]string),
		fail:    make(map[string]error),
	}
}

func (f *fakeHost) setAttr(h bridge.Handle, name, value string) {
	if f.attrs[h] == nil {
		f.attrs[h] = make(map[string]string)
	}
	f.attrs[h][name] = value
}

func (f *fakeHost) callsTo(op string) []hostCall {
	var out []hostCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHost) Call(op string, args ...any) (any, error) {
	f.calls = append(f.calls, hostCall{op: op, args: args})
	if err := f.fail[op]; err != nil {
		return nil, err
	}
	switch op {
	case bridge.OpLog:
		f.logs = append(f.logs, args[0].(string))
		return nil, nil
	case bridge.OpQuerySelectorAll:
		return f.matches[args[0].(string)], nil
	}

	h, err := bridge.HandleOf(args[0])
	if err != nil {
		return nil, err
	}
	switch op {
	case bridge.OpGetAttribute:
		if v, ok := f.attrs[h][args[1].(string)]; ok {
			return v, nil
		}
		return nil, nil
	case bridge.OpSetAttribute:
		f.setAttr(h, args[1].(string), args[2].(string))
		return nil, nil
	case bridge.OpInnerHTMLSet:
		f.inner[h] = args[1].(string)
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", op, bridge.ErrUnknownOp)
}

func newTestRuntime(t *testing.T) (*Runtime, *fakeHost) {
	t.Helper()
	host := newFakeHost()
	host.matches["input"] = []any{int64(3), int64(4)}
	host.setAttr(bridge.IntHandle(3), "name", "first")
	host.setAttr(bridge.IntHandle(4), "name", "second")
	return NewRuntime(dom.NewSession(host)), host
}
