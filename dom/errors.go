package dom

import (
	"fmt"

	"github.com/chrisuehlinger/hostdom/bridge"
)

// CallbackError reports a listener that failed during dispatch. Listeners
// after it in the same dispatch were not invoked.
type CallbackError struct {
	Handle bridge.Handle
	Type   string
	Index  int
	Err    error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("listener %d for %q on element %s: %v", e.Index, e.Type, e.Handle, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}
