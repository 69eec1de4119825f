package jobs

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is an io.Writer safe for concurrent use; the runner's copier
// goroutines keep writing after Run returns.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCell(t *testing.T) (*StatusCell, func() []Phase) {
	t.Helper()
	var mu sync.Mutex
	var phases []Phase
	cell := NewStatusCell(ProcessCreated(), func(s Status) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.CurrentPhase())
	})
	return cell, func() []Phase {
		mu.Lock()
		defer mu.Unlock()
		return append([]Phase{}, phases...)
	}
}

func TestProcessRunnerExitZero(t *testing.T) {
	cell, phases := newTestCell(t)
	stdout := &syncBuffer{}
	stderr := &syncBuffer{}

	runner := NewProcessRunner("0", ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "printf out-data; printf err-data >&2"},
		Timeout: 10 * time.Second,
		Stdout:  stdout,
		Stderr:  stderr,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	assert.Equal(t, ProcessExited(ExitSuccess()), cell.Load())
	assert.Equal(t, []Phase{PhaseRunning, PhaseExited}, phases())

	// Copiers drain independently of the reap, so give them a moment.
	assert.Eventually(t, func() bool {
		return stdout.String() == "out-data" && stderr.String() == "err-data"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessRunnerExitCode(t *testing.T) {
	cell, _ := newTestCell(t)

	runner := NewProcessRunner("1", ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
		Timeout: 10 * time.Second,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	assert.Equal(t, ProcessExited(ExitFailure(3)), cell.Load())
}

func TestProcessRunnerSignalExit(t *testing.T) {
	cell, _ := newTestCell(t)

	runner := NewProcessRunner("2", ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "kill -9 $$"},
		Timeout: 10 * time.Second,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	// Signal death carries no exit code.
	assert.Equal(t, ProcessExited(ExitStatus{}), cell.Load())
}

func TestProcessRunnerSpawnFailure(t *testing.T) {
	cell, phases := newTestCell(t)

	runner := NewProcessRunner("3", ProcessSpec{
		Command: "/nonexistent/this-binary-does-not-exist",
		Timeout: 10 * time.Second,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	assert.Equal(t, ProcessFailed(FailOnSpawn), cell.Load())
	// No Running status for a child that never spawned.
	assert.Equal(t, []Phase{PhaseFailed}, phases())
}

func TestProcessRunnerTimeout(t *testing.T) {
	cell, _ := newTestCell(t)

	runner := NewProcessRunner("4", ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		Timeout: 150 * time.Millisecond,
	}, cell, make(chan struct{}, 1))

	start := time.Now()
	runner.Run()

	assert.Equal(t, ProcessTimeout(), cell.Load())
	assert.Less(t, time.Since(start), 5*time.Second, "runner must reap promptly after the timeout")
}

func TestProcessRunnerZeroTimeout(t *testing.T) {
	cell, _ := newTestCell(t)

	runner := NewProcessRunner("9", ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		Timeout: 0,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	assert.Equal(t, ProcessTimeout(), cell.Load())
}

func TestProcessRunnerCancelBeforeRun(t *testing.T) {
	cell, _ := newTestCell(t)
	cancelCh := make(chan struct{}, 1)
	cancelCh <- struct{}{}

	runner := NewProcessRunner("5", ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		Timeout: 10 * time.Second,
	}, cell, cancelCh)
	runner.Run()

	assert.Equal(t, ProcessCanceled(), cell.Load())
}

func TestProcessRunnerCancelWhileRunning(t *testing.T) {
	cell, _ := newTestCell(t)
	cancelCh := make(chan struct{}, 1)

	runner := NewProcessRunner("6", ProcessSpec{
		Command: "sleep",
		Args:    []string{"30"},
		Timeout: 10 * time.Second,
	}, cell, cancelCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run()
	}()

	require.Eventually(t, func() bool {
		return cell.Load().CurrentPhase() == PhaseRunning
	}, 2*time.Second, 10*time.Millisecond)

	cancelCh <- struct{}{}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not finish after cancellation")
	}
	assert.Equal(t, ProcessCanceled(), cell.Load())
}

func TestProcessRunnerOutputOrder(t *testing.T) {
	cell, _ := newTestCell(t)
	stdout := &syncBuffer{}

	runner := NewProcessRunner("7", ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "i=0; while [ $i -lt 10 ]; do echo line-$i; i=$((i+1)); done"},
		Timeout: 10 * time.Second,
		Stdout:  stdout,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	require.Equal(t, ProcessExited(ExitSuccess()), cell.Load())

	var want strings.Builder
	for i := 0; i < 10; i++ {
		want.WriteString("line-")
		want.WriteByte(byte('0' + i))
		want.WriteByte('\n')
	}
	assert.Eventually(t, func() bool {
		return stdout.String() == want.String()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessRunnerDiscardsStreamsWithoutWriters(t *testing.T) {
	cell, _ := newTestCell(t)

	runner := NewProcessRunner("8", ProcessSpec{
		Command: "sh",
		Args:    []string{"-c", "echo ignored; echo ignored >&2"},
		Timeout: 10 * time.Second,
	}, cell, make(chan struct{}, 1))
	runner.Run()

	assert.Equal(t, ProcessExited(ExitSuccess()), cell.Load())
}
