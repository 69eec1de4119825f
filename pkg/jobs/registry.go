package jobs

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/jobhub/pkg/bus"
	"github.com/codeready-toolchain/jobhub/pkg/config"
	"github.com/codeready-toolchain/jobhub/pkg/metrics"
)

// record is one live job: identity, ownership, live status and the
// cancellation channel its runner listens on.
type record struct {
	id       string
	chatID   string
	kind     Kind
	status   *StatusCell
	cancelCh chan struct{}

	// done is closed by the runner goroutine after the terminal status
	// is stored, so eviction never races the last write.
	done chan struct{}
}

// signalCancel delivers at most one coalesced cancellation signal and
// never blocks.
func (rec *record) signalCancel() {
	select {
	case rec.cancelCh <- struct{}{}:
	default:
	}
}

// Registry is the facade between the transport layer and the job core. It
// owns every live job record, allocates ids, spawns runners and publishes
// their status transitions and output chunks on the event bus.
type Registry struct {
	eventBus *bus.Bus
	metrics  *metrics.Metrics

	apiToken         string
	projectsDir      string
	jobTimeout       time.Duration
	jobRetention     time.Duration
	converterCommand string

	httpClient *http.Client

	mu      sync.RWMutex
	records map[string]*record
	nextID  atomic.Uint32

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRegistry creates a job registry. The metrics handle may be nil, e.g.
// in tests that do not assert on instrumentation.
func NewRegistry(cfg *config.Config, eventBus *bus.Bus, m *metrics.Metrics) *Registry {
	return &Registry{
		eventBus:         eventBus,
		metrics:          m,
		apiToken:         cfg.APIToken,
		projectsDir:      cfg.ProjectsDir,
		jobTimeout:       cfg.JobTimeout,
		jobRetention:     cfg.JobRetention,
		converterCommand: cfg.ConverterCommand,
		httpClient:       &http.Client{},
		records:          make(map[string]*record),
		stopCh:           make(chan struct{}),
	}
}

// ValidateToken compares a presented token against the configured API
// token in constant time.
func (r *Registry) ValidateToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(r.apiToken)) == 1
}

// NewChatID mints a fresh chat id. Chat ids scope every job operation;
// the server hands them out without recording them.
func (r *Registry) NewChatID() string {
	return uuid.New().String()
}

// nextJobID allocates the next id in the monotonic sequence "0", "1", ...
func (r *Registry) nextJobID() string {
	return strconv.FormatUint(uint64(r.nextID.Add(1)-1), 10)
}

// SubmitProcessJob registers a child-process job and schedules its runner.
// It returns once the record is inserted; the job may not have entered
// Running yet.
func (r *Registry) SubmitProcessJob(chatID, command string, args []string) string {
	id := r.nextJobID()
	rec := r.newRecord(id, chatID, KindProcess, ProcessCreated())
	runner := NewProcessRunner(id, ProcessSpec{
		Command: command,
		Args:    args,
		Timeout: r.jobTimeout,
		Stdout:  r.eventBus.NewChunkWriter(id, bus.IoStdout),
		Stderr:  r.eventBus.NewChunkWriter(id, bus.IoStderr),
	}, rec.status, rec.cancelCh)

	r.insert(rec)
	r.launch(rec, runner.Run)
	slog.Info("Submitted process job", "job_id", id, "command", command)
	return id
}

// SubmitDownloadJob registers a download-and-unzip job. The project
// directory is created up front; name validation and directory I/O errors
// fail the submission itself, not the job.
func (r *Registry) SubmitDownloadJob(chatID, downloadURL, projectName string) (string, error) {
	if err := validateName("project_name", projectName); err != nil {
		return "", err
	}
	projectDir := filepath.Join(r.projectsDir, projectName)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}

	id := r.nextJobID()
	rec := r.newRecord(id, chatID, KindDownload, DownloadCreated())
	runner := NewDownloadRunner(id, DownloadSpec{
		URL:        downloadURL,
		ProjectDir: projectDir,
		Timeout:    r.jobTimeout,
		Client:     r.httpClient,
	}, rec.status, rec.cancelCh)

	r.insert(rec)
	r.launch(rec, runner.Run)
	slog.Info("Submitted download job", "job_id", id, "project", projectName)
	return id, nil
}

// SubmitConverterJob schedules the log converter over an existing project
// directory. A missing directory is ErrNotFound.
func (r *Registry) SubmitConverterJob(chatID, projectName string) (string, error) {
	if err := validateName("project_name", projectName); err != nil {
		return "", err
	}
	projectDir := filepath.Join(r.projectsDir, projectName)
	info, err := os.Stat(projectDir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat project directory: %w", err)
	}
	if !info.IsDir() {
		return "", ErrNotFound
	}
	return r.SubmitProcessJob(chatID, r.converterCommand, []string{projectDir}), nil
}

// CancelJob sends the advisory cancel signal to the job's runner. It
// reports false when the id is unknown or owned by another chat id; the
// two cases are indistinguishable. It never waits for the job to die.
func (r *Registry) CancelJob(id, chatID string) bool {
	rec, ok := r.lookup(id, chatID)
	if !ok {
		return false
	}
	rec.signalCancel()
	slog.Info("Sent cancel signal", "job_id", id)
	return true
}

// JobStatus returns the job's current status under the same ownership
// rule as CancelJob.
func (r *Registry) JobStatus(id, chatID string) (Status, bool) {
	rec, ok := r.lookup(id, chatID)
	if !ok {
		return Status{}, false
	}
	return rec.status.Load(), true
}

// JobCount returns the number of live records, finished-but-retained ones
// included.
func (r *Registry) JobCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Stop cancels every live job and waits for all runner and supervisor
// goroutines to finish. Callers bound it with their own shutdown timeout.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	r.mu.RLock()
	for _, rec := range r.records {
		rec.signalCancel()
	}
	r.mu.RUnlock()

	r.wg.Wait()
	slog.Info("Job registry stopped")
}

func (r *Registry) lookup(id, chatID string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok || rec.chatID != chatID {
		return nil, false
	}
	return rec, true
}

func (r *Registry) newRecord(id, chatID string, kind Kind, initial Status) *record {
	rec := &record{
		id:       id,
		chatID:   chatID,
		kind:     kind,
		cancelCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	rec.status = NewStatusCell(initial, func(status Status) {
		r.publishStatus(id, status)
	})
	return rec
}

func (r *Registry) insert(rec *record) {
	r.mu.Lock()
	r.records[rec.id] = rec
	r.mu.Unlock()
}

// launch starts the runner goroutine and its supervisor. The supervisor
// retains the finished record for the configured delay, then evicts it.
func (r *Registry) launch(rec *record, run func()) {
	if r.metrics != nil {
		r.metrics.JobSubmitted(string(rec.kind))
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		defer close(rec.done)
		run()
	}()
	go r.supervise(rec)
}

func (r *Registry) supervise(rec *record) {
	defer r.wg.Done()

	select {
	case <-rec.done:
	case <-r.stopCh:
		return
	}

	status := rec.status.Load()
	if r.metrics != nil {
		r.metrics.JobFinished(string(rec.kind), string(status.CurrentPhase()))
	}
	slog.Debug("Job finished, retaining record", "job_id", rec.id,
		"phase", status.CurrentPhase(), "retention", r.jobRetention)

	select {
	case <-time.After(r.jobRetention):
	case <-r.stopCh:
		return
	}
	r.evict(rec)
}

func (r *Registry) evict(rec *record) {
	r.mu.Lock()
	delete(r.records, rec.id)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.JobEvicted()
	}
	slog.Debug("Removed job record", "job_id", rec.id)
}

// publishStatus pushes a status transition onto the bus as a TaskStatus
// event. Runs on the runner goroutine via the status cell observer.
func (r *Registry) publishStatus(id string, status Status) {
	raw, err := json.Marshal(status)
	if err != nil {
		slog.Error("Failed to marshal job status", "job_id", id, "error", err)
		return
	}
	r.eventBus.Publish(bus.NewStatusEvent(id, raw))
}
