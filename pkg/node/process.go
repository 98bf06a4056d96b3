package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrProcessExited is returned by Wait when a process exits with a nonzero code.
var ErrProcessExited = errors.New("process exited with error")

// ErrUnknownProcess is returned for exec ids this manager did not start.
var ErrUnknownProcess = errors.New("unknown process")

// Process is a command executed inside a host container.
type Process struct {
	ExecID string
	Host   string
	Cmd    []string
	Pid    int

	// done is closed once the output stream reaches EOF
	done    chan struct{}
	copyErr error
}

// Exec runs cmd inside the container of host. Stdout and stderr of the
// command are copied to out until the command exits.
func (cm *ContainerManager) Exec(ctx context.Context, host string, cmd []string, out io.Writer) (*Process, error) {
	name := ContainerName(host)
	created, err := cm.dClient.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating exec on %s: %w", name, err)
	}

	// attaching starts the exec
	hijacked, err := cm.dClient.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("error starting exec on %s: %w", name, err)
	}

	p := &Process{
		ExecID: created.ID,
		Host:   host,
		Cmd:    cmd,
		done:   make(chan struct{}),
	}
	if out == nil {
		out = io.Discard
	}
	go func() {
		defer close(p.done)
		defer hijacked.Close()
		_, p.copyErr = stdcopy.StdCopy(out, out, hijacked.Reader)
	}()

	inspect, err := cm.dClient.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		log.Warnf("node: cannot inspect exec %s on %s: %v", created.ID, name, err)
	} else {
		p.Pid = inspect.Pid
	}

	cm.mu.Lock()
	cm.procs[p.ExecID] = p
	cm.mu.Unlock()
	log.Debugf("node: %s exec %q pid %d", name, strings.Join(cmd, " "), p.Pid)
	return p, nil
}

// Lookup returns a process started by Exec.
func (cm *ContainerManager) Lookup(execID string) (*Process, error) {
	cm.mu.Lock()
	p, ok := cm.procs[execID]
	cm.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcess, execID)
	}
	return p, nil
}

// Wait blocks until the process exits or ctx expires.
func (cm *ContainerManager) Wait(ctx context.Context, p *Process) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.copyErr != nil {
		return fmt.Errorf("error reading output of %s: %w", p.Host, p.copyErr)
	}

	inspect, err := cm.dClient.ContainerExecInspect(context.Background(), p.ExecID)
	if err != nil {
		return fmt.Errorf("error inspecting exec on %s: %w", p.Host, err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("%w: %q on %s exited with code %d", ErrProcessExited, strings.Join(p.Cmd, " "), p.Host, inspect.ExitCode)
	}
	return nil
}

// Kill sends SIGTERM to a process that is still running. Exec'd processes
// are children of the container runtime, so the host pid is signalled.
func (cm *ContainerManager) Kill(p *Process) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pid := p.Pid
	if pid == 0 {
		inspect, err := cm.dClient.ContainerExecInspect(context.Background(), p.ExecID)
		if err != nil {
			return fmt.Errorf("error inspecting exec on %s: %w", p.Host, err)
		}
		if !inspect.Running {
			return nil
		}
		pid = inspect.Pid
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("error killing pid %d on %s: %w", pid, p.Host, err)
	}
	return nil
}
