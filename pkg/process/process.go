// Package process provides the process runner for launcher commands on the host.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/AMD-AGI/Primus-SaFE-sub001/pkg/log"
)

type Process interface {
	// Starts the process but does not wait for it to exit.
	Start(ctx context.Context) error
	// Returns true if the process is started.
	Started() bool

	// Closes the process (aborts if still running) and waits for it to exit.
	// Cleans up the process resources.
	Close(ctx context.Context) error
	// Returns true if the process is closed.
	Closed() bool

	// Waits for the process to exit and returns the error, if any.
	// If the command completes successfully, the error will be nil.
	// The channel is closed on the command exit.
	Wait() <-chan error

	// Returns the current pid of the process.
	PID() int32

	// Returns the exit code of the process.
	// Returns 0 if the process is not started yet.
	ExitCode() int32

	// Returns the combined stdout/stderr captured so far.
	// Safe to call while the process is still running, and after a
	// timeout abort, in which case it holds the partial output.
	Output() []byte
}

type process struct {
	ctx    context.Context
	cancel context.CancelFunc

	cmdMu sync.RWMutex
	cmd   *exec.Cmd

	startedMu sync.RWMutex
	started   bool

	abortedMu sync.RWMutex
	aborted   bool

	// error streaming channel, closed on command exit
	errc chan error

	pid      int32
	exitCode int32

	commandArgs []string
	envs        []string

	outBuf     safeBuffer
	outputFile *os.File
}

func New(opts ...OpOption) (Process, error) {
	op := &Op{}
	if err := op.applyOpts(opts); err != nil {
		return nil, err
	}

	return &process{
		started: false,
		aborted: false,

		errc: make(chan error, 1),

		commandArgs: op.commandArgs,
		envs:        op.envs,
		outputFile:  op.outputFile,
	}, nil
}

func (p *process) Start(ctx context.Context) error {
	p.startedMu.RLock()
	started := p.started
	p.startedMu.RUnlock()
	if started { // already started
		return errors.New("process already started")
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.cmd != nil {
		return errors.New("process already started")
	}

	cctx, ccancel := context.WithCancel(ctx)
	p.ctx = cctx
	p.cancel = ccancel

	if err := p.startCommand(); err != nil {
		ccancel()
		return err
	}

	go func() {
		p.watchCmd()
	}()

	return nil
}

func (p *process) Started() bool {
	p.startedMu.RLock()
	defer p.startedMu.RUnlock()

	return p.started
}

func (p *process) startCommand() error {
	log.Logger.Debugw("starting command", "command", p.commandArgs)

	p.cmd = exec.CommandContext(p.ctx, p.commandArgs[0], p.commandArgs[1:]...)
	p.cmd.Env = p.envs

	// Place the launcher and everything it spawns in one process group,
	// so a timeout abort can terminate the whole group at once with
	// syscall.Kill(-pgid, sig). Killing only the direct child would
	// orphan the per-node worker processes.
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// On context cancellation, kill the whole group, not just the parent.
	// ESRCH ("no such process") is expected if the group already exited.
	p.cmd.Cancel = func() error {
		if p.cmd.Process == nil {
			return nil
		}
		pgid := p.cmd.Process.Pid
		if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			return err
		}
		return nil
	}

	var w io.Writer = &p.outBuf
	if p.outputFile != nil {
		w = io.MultiWriter(&p.outBuf, p.outputFile)
	}
	p.cmd.Stdout = w
	p.cmd.Stderr = w

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	atomic.StoreInt32(&p.pid, int32(p.cmd.Process.Pid))

	p.startedMu.Lock()
	p.started = true
	p.startedMu.Unlock()

	return nil
}

// Returns a channel where the command watcher sends the error if any.
// The channel is closed on the command exit.
func (p *process) Wait() <-chan error {
	return p.errc
}

func (p *process) watchCmd() {
	defer func() {
		close(p.errc)
	}()

	err := p.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode := exitErr.ExitCode()
			atomic.StoreInt32(&p.exitCode, int32(exitCode))

			if exitCode == -1 && p.ctx.Err() != nil {
				log.Logger.Debugw("command terminated by context cancellation", "cmd", p.cmd.String())
			} else {
				log.Logger.Debugw("command exited with non-zero status", "cmd", p.cmd.String(), "exitCode", exitCode)
			}
		} else {
			log.Logger.Warnw("error waiting for command to finish", "error", err, "cmd", p.cmd.String())
		}
	}

	p.errc <- err
}

func (p *process) Close(ctx context.Context) error {
	p.startedMu.RLock()
	started := p.started
	p.startedMu.RUnlock()
	if !started { // has not started yet
		return nil
	}

	p.abortedMu.RLock()
	aborted := p.aborted
	p.abortedMu.RUnlock()
	if aborted { // already aborted
		return nil
	}

	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.cmd == nil {
		return errors.New("process not started")
	}

	if p.cmd.Process != nil {
		// SIGTERM the group first so the launcher can tear down its
		// remote workers, then escalate to SIGKILL.
		pgid := p.cmd.Process.Pid
		finished := false
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
			if err == syscall.ESRCH {
				finished = true
			} else {
				log.Logger.Warnw("failed to send SIGTERM to process group", "pgid", pgid, "error", err)
			}
		}
		if !finished {
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
				// no graceful exit within 3 seconds, force kill
				if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
					log.Logger.Warnw("failed to send SIGKILL to process group", "pgid", pgid, "error", err)
				}
			}
		}
	}

	p.cancel()

	p.abortedMu.Lock()
	p.aborted = true
	p.abortedMu.Unlock()

	return nil
}

func (p *process) Closed() bool {
	p.abortedMu.RLock()
	defer p.abortedMu.RUnlock()

	return p.aborted
}

func (p *process) PID() int32 {
	return atomic.LoadInt32(&p.pid)
}

func (p *process) ExitCode() int32 {
	return atomic.LoadInt32(&p.exitCode)
}

func (p *process) Output() []byte {
	return p.outBuf.Bytes()
}

// safeBuffer guards the combined output buffer, written from the
// command's stdout/stderr copier and read by callers at any time.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}
