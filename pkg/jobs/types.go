package jobs

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Kind distinguishes the two job families the registry runs.
type Kind string

const (
	KindProcess  Kind = "Process"
	KindDownload Kind = "Download"
)

// Phase is the coarse lifecycle state shared by both job kinds.
type Phase string

const (
	PhaseCreated  Phase = "Created"
	PhaseRunning  Phase = "Running"
	PhaseExited   Phase = "Exited"
	PhaseCanceled Phase = "Canceled"
	PhaseTimeout  Phase = "Timeout"
	PhaseFailed   Phase = "Failed"
)

// Terminal reports whether a phase is final. Terminal phases are written
// exactly once per job and never change afterwards.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseExited, PhaseCanceled, PhaseTimeout, PhaseFailed:
		return true
	}
	return false
}

// FailOperation pinpoints the operation a process job failed on.
type FailOperation string

const (
	FailOnSpawn            FailOperation = "OnSpawn"
	FailAfterTimeoutOnKill FailOperation = "AfterTimeoutOnKill"
	FailAfterTimeoutOnWait FailOperation = "AfterTimeoutOnWait"
	FailAfterCancelOnKill  FailOperation = "AfterCancelOnKill"
	FailAfterCancelOnWait  FailOperation = "AfterCancelOnWait"
	FailOnWait             FailOperation = "OnWait"
)

// ExitStatus describes how a child process exited. Code is nil when the
// child was terminated by a signal and no exit code exists.
type ExitStatus struct {
	Success bool
	Code    *int
}

// ExitSuccess is the zero-exit-code outcome.
func ExitSuccess() ExitStatus {
	return ExitStatus{Success: true}
}

// ExitFailure is a non-zero exit with a known code.
func ExitFailure(code int) ExitStatus {
	return ExitStatus{Code: &code}
}

// ProcessStatus is the lifecycle state of a child-process job.
type ProcessStatus struct {
	Phase    Phase
	Exit     *ExitStatus   // set when Phase is Exited
	FailedAt FailOperation // set when Phase is Failed
}

// DownloadStatus is the lifecycle state of a download job.
type DownloadStatus struct {
	Phase  Phase
	Reason string // set when Phase is Failed
}

// Status is the tagged union of the per-kind statuses. Exactly one of
// Process and Download is non-nil, matching Kind.
type Status struct {
	Kind     Kind
	Process  *ProcessStatus
	Download *DownloadStatus
}

// CurrentPhase returns the lifecycle phase regardless of kind.
func (s Status) CurrentPhase() Phase {
	switch {
	case s.Process != nil:
		return s.Process.Phase
	case s.Download != nil:
		return s.Download.Phase
	}
	return ""
}

// Terminal reports whether the job has reached a final status.
func (s Status) Terminal() bool {
	return s.CurrentPhase().Terminal()
}

func ProcessCreated() Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseCreated}}
}

func ProcessRunning() Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseRunning}}
}

func ProcessExited(exit ExitStatus) Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseExited, Exit: &exit}}
}

func ProcessCanceled() Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseCanceled}}
}

func ProcessTimeout() Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseTimeout}}
}

func ProcessFailed(op FailOperation) Status {
	return Status{Kind: KindProcess, Process: &ProcessStatus{Phase: PhaseFailed, FailedAt: op}}
}

func DownloadCreated() Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseCreated}}
}

func DownloadRunning() Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseRunning}}
}

func DownloadExited() Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseExited}}
}

func DownloadCanceled() Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseCanceled}}
}

func DownloadTimeout() Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseTimeout}}
}

func DownloadFailed(reason string) Status {
	return Status{Kind: KindDownload, Download: &DownloadStatus{Phase: PhaseFailed, Reason: reason}}
}

// Wire format. Statuses serialize as adjacently tagged documents, e.g.
//
//	{"type":"Process","content":{"status":"Exited","content":{"exit_status":"Success"}}}
//	{"type":"Download","content":{"status":"Failed","content":{"reason":"..."}}}
//
// Phases without a payload carry no "content" key.

type statusDoc struct {
	Type    Kind            `json:"type"`
	Content json.RawMessage `json:"content"`
}

type phaseDoc struct {
	Status  Phase           `json:"status"`
	Content json.RawMessage `json:"content,omitempty"`
}

type failDoc struct {
	Operation FailOperation `json:"operation"`
}

type reasonDoc struct {
	Reason string `json:"reason"`
}

type exitDoc struct {
	ExitStatus string          `json:"exit_status"`
	Content    json.RawMessage `json:"content,omitempty"`
}

type exitCodeDoc struct {
	Code int `json:"code"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	switch {
	case s.Process != nil:
		content, err = json.Marshal(s.Process)
	case s.Download != nil:
		content, err = json.Marshal(s.Download)
	default:
		return nil, fmt.Errorf("status has no content for kind %q", s.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(statusDoc{Type: s.Kind, Content: content})
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var doc statusDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	switch doc.Type {
	case KindProcess:
		var ps ProcessStatus
		if err := json.Unmarshal(doc.Content, &ps); err != nil {
			return err
		}
		*s = Status{Kind: KindProcess, Process: &ps}
	case KindDownload:
		var ds DownloadStatus
		if err := json.Unmarshal(doc.Content, &ds); err != nil {
			return err
		}
		*s = Status{Kind: KindDownload, Download: &ds}
	default:
		return fmt.Errorf("unknown status type %q", doc.Type)
	}
	return nil
}

func (p ProcessStatus) MarshalJSON() ([]byte, error) {
	doc := phaseDoc{Status: p.Phase}
	switch p.Phase {
	case PhaseExited:
		if p.Exit == nil {
			return nil, fmt.Errorf("exited process status has no exit status")
		}
		content, err := json.Marshal(p.Exit)
		if err != nil {
			return nil, err
		}
		doc.Content = content
	case PhaseFailed:
		content, err := json.Marshal(failDoc{Operation: p.FailedAt})
		if err != nil {
			return nil, err
		}
		doc.Content = content
	}
	return json.Marshal(doc)
}

func (p *ProcessStatus) UnmarshalJSON(data []byte) error {
	var doc phaseDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = ProcessStatus{Phase: doc.Status}
	switch doc.Status {
	case PhaseExited:
		var exit ExitStatus
		if err := json.Unmarshal(doc.Content, &exit); err != nil {
			return err
		}
		p.Exit = &exit
	case PhaseFailed:
		var fd failDoc
		if err := json.Unmarshal(doc.Content, &fd); err != nil {
			return err
		}
		p.FailedAt = fd.Operation
	}
	return nil
}

func (d DownloadStatus) MarshalJSON() ([]byte, error) {
	doc := phaseDoc{Status: d.Phase}
	if d.Phase == PhaseFailed {
		content, err := json.Marshal(reasonDoc{Reason: d.Reason})
		if err != nil {
			return nil, err
		}
		doc.Content = content
	}
	return json.Marshal(doc)
}

func (d *DownloadStatus) UnmarshalJSON(data []byte) error {
	var doc phaseDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*d = DownloadStatus{Phase: doc.Status}
	if doc.Status == PhaseFailed {
		var rd reasonDoc
		if err := json.Unmarshal(doc.Content, &rd); err != nil {
			return err
		}
		d.Reason = rd.Reason
	}
	return nil
}

func (e ExitStatus) MarshalJSON() ([]byte, error) {
	if e.Success {
		return json.Marshal(exitDoc{ExitStatus: "Success"})
	}
	doc := exitDoc{ExitStatus: "Failure"}
	if e.Code != nil {
		content, err := json.Marshal(exitCodeDoc{Code: *e.Code})
		if err != nil {
			return nil, err
		}
		doc.Content = content
	}
	return json.Marshal(doc)
}

func (e *ExitStatus) UnmarshalJSON(data []byte) error {
	var doc exitDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	switch doc.ExitStatus {
	case "Success":
		*e = ExitStatus{Success: true}
	case "Failure":
		*e = ExitStatus{}
		if len(doc.Content) > 0 {
			var cd exitCodeDoc
			if err := json.Unmarshal(doc.Content, &cd); err != nil {
				return err
			}
			e.Code = &cd.Code
		}
	default:
		return fmt.Errorf("unknown exit status %q", doc.ExitStatus)
	}
	return nil
}

// StatusCell holds one job's status for concurrent readers and a single
// writer (the job's runner). Terminal statuses are sticky: once a terminal
// status is stored, later writes are rejected.
type StatusCell struct {
	mu       sync.RWMutex
	status   Status
	observer func(Status)
}

// NewStatusCell builds a cell seeded with the job's initial status. The
// observer, if non-nil, is invoked after every accepted Store, on the
// writer's goroutine.
func NewStatusCell(initial Status, observer func(Status)) *StatusCell {
	return &StatusCell{status: initial, observer: observer}
}

// Load returns the current status.
func (c *StatusCell) Load() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Store replaces the current status. It reports whether the write was
// accepted; writes after a terminal status are dropped.
func (c *StatusCell) Store(status Status) bool {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return false
	}
	c.status = status
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(status)
	}
	return true
}
