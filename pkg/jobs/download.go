package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DownloadSpec describes one download-and-unzip job.
type DownloadSpec struct {
	URL        string
	ProjectDir string
	Timeout    time.Duration

	// Client issues the download request. Nil falls back to a client
	// without a per-request timeout; the job timeout bounds it instead.
	Client *http.Client
}

// DownloadRunner fetches a ZIP archive and extracts it into the project
// directory. It is the only writer of the job's status cell.
type DownloadRunner struct {
	spec   DownloadSpec
	status *StatusCell
	cancel <-chan struct{}
	logger *slog.Logger
}

func NewDownloadRunner(jobID string, spec DownloadSpec, status *StatusCell, cancel <-chan struct{}) *DownloadRunner {
	return &DownloadRunner{
		spec:   spec,
		status: status,
		cancel: cancel,
		logger: slog.With("job_id", jobID, "url", spec.URL),
	}
}

// Run blocks until the job reaches a terminal status. When the timeout or
// a cancellation wins the race, the in-flight request is aborted through
// its context and the pipeline goroutine winds down on its own.
func (r *DownloadRunner) Run() {
	r.status.Store(DownloadRunning())

	ctx, cancelPipeline := context.WithCancel(context.Background())
	defer cancelPipeline()

	resultCh := make(chan Status, 1)
	go func() {
		resultCh <- r.fetchAndExtract(ctx)
	}()

	timer := time.NewTimer(r.spec.Timeout)
	defer timer.Stop()

	var status Status
	select {
	case <-timer.C:
		r.logger.Warn("Download timed out", "timeout", r.spec.Timeout)
		status = DownloadTimeout()
	case <-r.cancel:
		r.logger.Info("Download canceled")
		status = DownloadCanceled()
	case status = <-resultCh:
	}
	r.status.Store(status)
}

func (r *DownloadRunner) fetchAndExtract(ctx context.Context) Status {
	client := r.spec.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.spec.URL, nil)
	if err != nil {
		r.logger.Error("Failed to download file", "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to download file: %v", err))
	}
	resp, err := client.Do(req)
	if err != nil {
		r.logger.Error("Failed to download file", "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to download file: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Error("Failed to download file", "status", resp.Status)
		return DownloadFailed(fmt.Sprintf("Failed to download file: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.logger.Error("Failed to download file", "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to download file: %v", err))
	}
	r.logger.Debug("Downloaded file", "bytes", len(body))

	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		r.logger.Error("Failed to open file", "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to open file: %v", err))
	}

	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		// Entry names are flattened to their basename so crafted archives
		// cannot escape the project directory.
		name := path.Base(entry.Name)
		if name == "." || name == "/" {
			continue
		}
		if status, ok := r.extractEntry(entry, filepath.Join(r.spec.ProjectDir, name)); !ok {
			return status
		}
	}
	return DownloadExited()
}

func (r *DownloadRunner) extractEntry(entry *zip.File, dst string) (Status, bool) {
	src, err := entry.Open()
	if err != nil {
		r.logger.Error("Failed to get file", "entry", entry.Name, "error", err)
		return DownloadFailed("Failed to get file"), false
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		r.logger.Error("Failed to create file", "path", dst, "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to create file: %v", err)), false
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		r.logger.Error("Failed to copy file", "path", dst, "error", err)
		return DownloadFailed(fmt.Sprintf("Failed to copy file: %v", err)), false
	}
	r.logger.Debug("Unzipped file", "entry", entry.Name, "path", dst)
	return Status{}, true
}
