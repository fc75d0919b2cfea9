package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

// pipeHosts connects a StreamHost to Serve over in-memory pipes. The
// returned stop func closes the client side and waits for Serve to finish.
func pipeHosts(t *testing.T, host Host) (*StreamHost, func() error) {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		defer respW.Close()
		return Serve(ctx, host, reqR, respW, nil)
	})

	stop := func() error {
		reqW.Close()
		err := g.Wait()
		respR.Close()
		return err
	}
	return NewStreamHost(respR, reqW), stop
}

func documentHost() Host {
	attrs := map[Handle]map[string]string{
		IntHandle(3): {"name": "first", "value": "abc"},
		IntHandle(4): {"name": "second"},
	}
	return HostFunc(func(op string, args ...any) (any, error) {
		switch op {
		case OpLog:
			return nil, nil
		case OpQuerySelectorAll:
			if args[0] == "input" {
				return []any{int64(3), int64(4)}, nil
			}
			return []any{}, nil
		case OpGetAttribute:
			h, err := HandleOf(args[0])
			if err != nil {
				return nil, err
			}
			if v, ok := attrs[h][args[1].(string)]; ok {
				return v, nil
			}
			return nil, nil
		case OpInnerHTMLSet:
			return nil, errors.New("read-only document")
		}
		return nil, ErrUnknownOp
	})
}

func TestStreamRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, stop := pipeHosts(t, documentHost())
	b := New(client)

	handles, err := b.QuerySelectorAll("input")
	require.NoError(t, err)
	assert.Equal(t, []Handle{IntHandle(3), IntHandle(4)}, handles)

	none, err := b.QuerySelectorAll("select")
	require.NoError(t, err)
	assert.Empty(t, none)

	value, ok, err := b.GetAttribute(handles[0], "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	_, ok, err = b.GetAttribute(handles[1], "value")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Log("hello"))

	require.NoError(t, stop())
}

func TestStreamRemoteError(t *testing.T) {
	defer goleak.VerifyNone(t)

	client, stop := pipeHosts(t, documentHost())
	b := New(client)

	err := b.SetInnerHTML(IntHandle(3), "<b>x</b>")
	var he *HostError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, OpInnerHTMLSet, he.Op)
	assert.Contains(t, err.Error(), "read-only document")

	_, err = client.Call("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrUnknownOp.Error())

	// The stream stays usable after remote errors.
	require.NoError(t, b.Log("still here"))

	require.NoError(t, stop())
}

func TestStreamHostClosedPeer(t *testing.T) {
	client := NewStreamHost(strings.NewReader(""), io.Discard)

	_, err := client.Call(OpLog, "x")
	var he *HostError
	require.ErrorAs(t, err, &he)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStreamHostIDMismatch(t *testing.T) {
	client := NewStreamHost(strings.NewReader(`{"id":9,"result":null}`+"\n"), io.Discard)

	_, err := client.Call(OpLog, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out strings.Builder
	err := Serve(ctx, documentHost(), strings.NewReader(`{"id":1,"op":"log","args":["x"]}`), &out, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestServeWireFormat(t *testing.T) {
	in := strings.Join([]string{
		`{"id":1,"op":"querySelectorAll","args":["input"]}`,
		`{"id":2,"op":"getAttribute","args":[3,"name"]}`,
		`{"id":3,"op":"innerHTML_set","args":[3,"x"]}`,
	}, "\n")

	var out strings.Builder
	require.NoError(t, Serve(context.Background(), documentHost(), strings.NewReader(in), &out, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"id":1,"result":[3,4]}`, lines[0])
	assert.JSONEq(t, `{"id":2,"result":"first"}`, lines[1])
	assert.JSONEq(t, `{"id":3,"error":"read-only document"}`, lines[2])
}

func TestServeReturnsNilAfterClientCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	var logged []string
	host := HostFunc(func(op string, args ...any) (any, error) {
		logged = append(logged, args[0].(string))
		return nil, nil
	})
	client, stop := pipeHosts(t, host)

	for i := 0; i < 10; i++ {
		_, err := client.Call(OpLog, "hello")
		require.NoError(t, err)
	}
	require.NoError(t, stop())
	assert.Len(t, logged, 10)
}

func TestServeSkipsBlankLines(t *testing.T) {
	in := "\n" + `{"id":1,"op":"log","args":["x"]}` + "\n\n  \n" + `{"id":2,"op":"log","args":["y"]}` + "\n\n"

	var out strings.Builder
	require.NoError(t, Serve(context.Background(), documentHost(), strings.NewReader(in), &out, nil))
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", out.String())
}

func TestServeRejectsMalformedRequest(t *testing.T) {
	var out strings.Builder
	err := Serve(context.Background(), documentHost(), strings.NewReader("not json\n"), &out, nil)
	assert.ErrorContains(t, err, "decode request")
}

func TestServeCancelWhileWaitingForInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	reqR, reqW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		errc <- Serve(ctx, documentHost(), reqR, io.Discard, nil)
	}()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// Releases the pending read.
	reqW.Close()
}

func TestServeEmptyHostErrorStaysAnError(t *testing.T) {
	defer goleak.VerifyNone(t)

	host := HostFunc(func(op string, args ...any) (any, error) {
		return nil, errors.New("")
	})
	client, stop := pipeHosts(t, host)

	_, ok, err := New(client).GetAttribute(IntHandle(3), "value")
	var he *HostError
	require.ErrorAs(t, err, &he)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "getAttribute: host error")

	require.NoError(t, stop())
}
