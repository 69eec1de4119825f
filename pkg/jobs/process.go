package jobs

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// ProcessSpec describes one child-process job.
type ProcessSpec struct {
	Command string
	Args    []string
	Timeout time.Duration

	// Stdout and Stderr receive the child's output. A nil writer discards
	// the corresponding stream.
	Stdout io.Writer
	Stderr io.Writer
}

// ProcessRunner drives a single child process from spawn to a terminal
// status. It is the only writer of the job's status cell.
type ProcessRunner struct {
	spec   ProcessSpec
	status *StatusCell
	cancel <-chan struct{}
	logger *slog.Logger
}

// NewProcessRunner creates a runner for the given job. The cancel channel
// carries at most one coalesced cancellation signal.
func NewProcessRunner(jobID string, spec ProcessSpec, status *StatusCell, cancel <-chan struct{}) *ProcessRunner {
	return &ProcessRunner{
		spec:   spec,
		status: status,
		cancel: cancel,
		logger: slog.With("job_id", jobID, "command", spec.Command),
	}
}

// Run blocks until the job reaches a terminal status. The child is always
// reaped on every path that observed a successful spawn, so no zombies are
// left behind.
func (r *ProcessRunner) Run() {
	cmd := exec.Command(r.spec.Command, r.spec.Args...)

	// The child writes into plain pipes rather than exec's own copier
	// goroutines. cmd.Wait then never races our readers: the read side
	// drains to EOF on its own once every write end is gone, regardless
	// of when the child is reaped.
	stdoutRead, err := attachPipe(r.spec.Stdout, &cmd.Stdout)
	if err != nil {
		r.logger.Error("Failed to create stdout pipe", "error", err)
		r.status.Store(ProcessFailed(FailOnSpawn))
		return
	}
	stderrRead, err := attachPipe(r.spec.Stderr, &cmd.Stderr)
	if err != nil {
		r.logger.Error("Failed to create stderr pipe", "error", err)
		closePipe(stdoutRead, cmd.Stdout)
		r.status.Store(ProcessFailed(FailOnSpawn))
		return
	}

	if err := cmd.Start(); err != nil {
		r.logger.Error("Failed to spawn child process", "error", err)
		closePipe(stdoutRead, cmd.Stdout)
		closePipe(stderrRead, cmd.Stderr)
		r.status.Store(ProcessFailed(FailOnSpawn))
		return
	}
	r.logger.Info("Spawned child process", "pid", cmd.Process.Pid)

	// The parent's copies of the write ends must go away so the copiers
	// see EOF when the child exits.
	closeWriteEnd(cmd.Stdout)
	closeWriteEnd(cmd.Stderr)

	r.startCopier("stdout", stdoutRead, r.spec.Stdout)
	r.startCopier("stderr", stderrRead, r.spec.Stderr)

	r.status.Store(ProcessRunning())

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	// The timeout clock starts at the successful spawn.
	timer := time.NewTimer(r.spec.Timeout)
	defer timer.Stop()

	var status Status
	select {
	case <-timer.C:
		r.logger.Warn("Child process timed out, killing it", "timeout", r.spec.Timeout)
		status = r.killAndReap(cmd, waitCh, FailAfterTimeoutOnKill, FailAfterTimeoutOnWait, ProcessTimeout())
	case <-r.cancel:
		r.logger.Info("Cancellation requested, killing child process")
		status = r.killAndReap(cmd, waitCh, FailAfterCancelOnKill, FailAfterCancelOnWait, ProcessCanceled())
	case waitErr := <-waitCh:
		status = r.classifyExit(waitErr)
	}
	r.status.Store(status)
}

// killAndReap kills the child and waits for it. A child that already
// exited on its own does not fail the kill.
func (r *ProcessRunner) killAndReap(cmd *exec.Cmd, waitCh <-chan error, killFail, waitFail FailOperation, reaped Status) Status {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		// The wait goroutine stays behind and reaps the child whenever
		// it eventually dies.
		r.logger.Error("Failed to kill child process", "error", err)
		return ProcessFailed(killFail)
	}
	waitErr := <-waitCh
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		r.logger.Error("Failed to wait for child process", "error", waitErr)
		return ProcessFailed(waitFail)
	}
	return reaped
}

// classifyExit turns cmd.Wait's result for a naturally finished child into
// a terminal status.
func (r *ProcessRunner) classifyExit(waitErr error) Status {
	if waitErr == nil {
		r.logger.Info("Child process exited", "exit_code", 0)
		return ProcessExited(ExitSuccess())
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		r.logger.Error("Failed to wait for child process", "error", waitErr)
		return ProcessFailed(FailOnWait)
	}
	if code := exitErr.ExitCode(); code >= 0 {
		r.logger.Info("Child process exited", "exit_code", code)
		return ProcessExited(ExitFailure(code))
	}
	// Killed by a signal, no exit code to report.
	r.logger.Info("Child process terminated by signal")
	return ProcessExited(ExitStatus{})
}

func (r *ProcessRunner) startCopier(stream string, src *os.File, dst io.Writer) {
	if src == nil {
		return
	}
	go func() {
		defer src.Close()
		if _, err := io.Copy(dst, src); err != nil {
			r.logger.Error("Failed to copy child output", "stream", stream, "error", err)
			return
		}
		r.logger.Debug("Child output drained", "stream", stream)
	}()
}

// attachPipe wires a pipe's write end into the exec slot and returns the
// read end, or nil when the stream is discarded.
func attachPipe(dst io.Writer, slot *io.Writer) (*os.File, error) {
	if dst == nil {
		return nil, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	*slot = pw
	return pr, nil
}

func closePipe(readEnd *os.File, writeEnd io.Writer) {
	if readEnd != nil {
		readEnd.Close()
	}
	closeWriteEnd(writeEnd)
}

func closeWriteEnd(w io.Writer) {
	if f, ok := w.(*os.File); ok {
		f.Close()
	}
}
