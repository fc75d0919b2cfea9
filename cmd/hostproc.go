package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/chrisuehlinger/hostdom/bridge"
)

// hostProcess is a child process serving the stream protocol.
type hostProcess struct {
	*bridge.StreamHost
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func startHostProcess(ctx context.Context, command string, stderr io.Writer) (*hostProcess, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("host command is empty")
	}

	c := exec.CommandContext(ctx, fields[0], fields[1:]...)
	c.Stderr = stderr
	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdin: %w", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdout: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start host %q: %w", fields[0], err)
	}

	return &hostProcess{
		StreamHost: bridge.NewStreamHost(stdout, stdin),
		cmd:        c,
		stdin:      stdin,
	}, nil
}

// Close ends the session by closing the child's stdin and waits for it
// to exit.
func (p *hostProcess) Close() error {
	if err := p.stdin.Close(); err != nil {
		return err
	}
	return p.cmd.Wait()
}
