package dom

import (
	"fmt"

	"github.com/chrisuehlinger/hostdom/bridge"
)

type hostCall struct {
	op   string
	args []any
}

// fakeHost is an in-memory host with fixed selector results and attribute
// maps. It records every call.
type fakeHost struct {
	calls   []hostCall
	logs    []string
	matches map[string][]any
	attrs   map[bridge.Handle]map[string]string
	fail    error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		matches: make(map[string][]any),
		attrs:   make(map[bridge.Handle]map[string]string),
	}
}

func (f *fakeHost) setAttr(h bridge.Handle, name, value string) {
	if f.attrs[h] == nil {
		f.attrs[h] = make(map[string]string)
	}
	f.attrs[h][name] = value
}

func (f *fakeHost) Call(op string, args ...any) (any, error) {
	f.calls = append(f.calls, hostCall{op: op, args: args})
	if f.fail != nil {
		return nil, f.fail
	}
	switch op {
	case bridge.OpLog:
		f.logs = append(f.logs, args[0].(string))
		return nil, nil
	case bridge.OpQuerySelectorAll:
		return f.matches[args[0].(string)], nil
	case bridge.OpGetAttribute:
		h, err := bridge.HandleOf(args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := f.attrs[h][args[1].(string)]; ok {
			return v, nil
		}
		return nil, nil
	case bridge.OpSetAttribute:
		h, err := bridge.HandleOf(args[0])
		if err != nil {
			return nil, err
		}
		f.setAttr(h, args[1].(string), args[2].(string))
		return nil, nil
	case bridge.OpInnerHTMLSet:
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", op, bridge.ErrUnknownOp)
}

// recorder collects the receivers listeners were invoked with, tagged by
// listener name.
type recorder struct {
	names     []string
	receivers []Receiver
}

func (r *recorder) listener(name string) Listener {
	return ListenerFunc(func(recv Receiver) error {
		r.names = append(r.names, name)
		r.receivers = append(r.receivers, recv)
		return nil
	})
}
