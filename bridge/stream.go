package bridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// request and response are the wire messages of the stream protocol:
// one JSON object per line, strictly alternating.
type request struct {
	ID   uint64 `json:"id"`
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type response struct {
	ID     uint64 `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// StreamHost is a Host living on the other end of a byte stream, such as
// the stdin/stdout of a child process. Calls are serialized; only one
// request is outstanding at a time.
type StreamHost struct {
	mu   sync.Mutex
	w    io.Writer
	br   *bufio.Reader
	next uint64
}

// NewStreamHost returns a Host that writes requests to w and reads
// responses from r.
func NewStreamHost(r io.Reader, w io.Writer) *StreamHost {
	return &StreamHost{w: w, br: bufio.NewReader(r)}
}

// Call sends one request and waits for its response.
func (s *StreamHost) Call(op string, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	req := request{ID: s.next, Op: op, Args: args}
	if req.Args == nil {
		req.Args = []any{}
	}
	if err := writeLine(s.w, &req); err != nil {
		return nil, &HostError{Op: op, Err: fmt.Errorf("send: %w", err)}
	}

	line, err := readLine(s.br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &HostError{Op: op, Err: fmt.Errorf("receive: %w", err)}
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, &HostError{Op: op, Err: fmt.Errorf("receive: %w", err)}
	}
	if resp.ID != req.ID {
		return nil, &HostError{Op: op, Err: fmt.Errorf("response id %d does not match request id %d", resp.ID, req.ID)}
	}
	if resp.Error != "" {
		return nil, &HostError{Op: op, Err: errors.New(resp.Error)}
	}
	return resp.Result, nil
}

// readLine returns the next non-blank line of br. A final line without a
// trailing newline is returned as is; io.EOF is only reported once no
// data is left.
func readLine(br *bufio.Reader) ([]byte, error) {
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

type lineResult struct {
	line []byte
	err  error
}

// Serve answers stream requests from r with host, writing responses to w,
// until r reaches EOF or ctx is cancelled. A clean EOF returns nil.
// Cancellation returns at once, even while a read is pending; that read
// finishes in the background once r yields or is closed, and its line is
// dropped.
func Serve(ctx context.Context, host Host, r io.Reader, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	lines := make(chan lineResult)
	done := make(chan struct{})
	defer close(done)
	go func() {
		br := bufio.NewReader(r)
		for {
			line, err := readLine(br)
			select {
			case lines <- lineResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next lineResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next = <-lines:
		}
		if next.err != nil {
			if errors.Is(next.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", next.err)
		}

		var req request
		if err := json.Unmarshal(next.line, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}

		resp := response{ID: req.ID}
		result, err := host.Call(req.Op, req.Args...)
		if err != nil {
			logger.Debug("serve: host call failed", zap.String("op", req.Op), zap.Error(err))
			resp.Error = err.Error()
			if resp.Error == "" {
				resp.Error = req.Op + ": host error"
			}
		} else {
			resp.Result = result
		}

		if err := writeLine(w, &resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}
