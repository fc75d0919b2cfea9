package bridge

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cast"
)

// Handle is an opaque element identifier minted by the host.
// It is either an integer or a string and compares by value, so it can be
// used directly as a map key.
type Handle struct {
	id    int64
	name  string
	named bool
}

// IntHandle returns an integer handle.
func IntHandle(id int64) Handle {
	return Handle{id: id}
}

// StringHandle returns a string handle.
func StringHandle(name string) Handle {
	return Handle{name: name, named: true}
}

// HandleOf converts a value returned by a host (or passed in from a script)
// into a Handle. Integral floats are treated as integers, which is how
// numbers arrive from JSON decoders and JavaScript engines.
func HandleOf(v any) (Handle, error) {
	switch x := v.(type) {
	case Handle:
		return x, nil
	case string:
		return StringHandle(x), nil
	case float64:
		return floatHandle(x)
	case float32:
		return floatHandle(float64(x))
	case nil, bool:
		return Handle{}, fmt.Errorf("invalid handle %v (%T)", v, v)
	}
	id, err := cast.ToInt64E(v)
	if err != nil {
		return Handle{}, fmt.Errorf("invalid handle %v (%T): %w", v, v, err)
	}
	return IntHandle(id), nil
}

func floatHandle(f float64) (Handle, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return Handle{}, fmt.Errorf("invalid handle %v: not an integer", f)
	}
	return IntHandle(int64(f)), nil
}

// IsString reports whether the host minted a string handle.
func (h Handle) IsString() bool { return h.named }

// Value returns the handle in the form the host minted it: int64 or string.
func (h Handle) Value() any {
	if h.named {
		return h.name
	}
	return h.id
}

func (h Handle) String() string {
	if h.named {
		return strconv.Quote(h.name)
	}
	return strconv.FormatInt(h.id, 10)
}

// MarshalJSON encodes the handle as a bare JSON number or string.
func (h Handle) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Value())
}

// UnmarshalJSON decodes a bare JSON number or string.
func (h *Handle) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := HandleOf(v)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
