package jobs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxLogFileBytes caps how much of a log file a single read returns.
const maxLogFileBytes = 20 * 1024 * 1024

// validateName rejects names that could address anything outside the
// projects directory.
func validateName(field, name string) error {
	if name == "" {
		return NewValidationError(field, "must not be empty")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return NewValidationError(field, "must be a plain name without path separators")
	}
	return nil
}

// ListProjectFiles returns the names of the regular files in a project
// directory, sorted by name. A missing project is ErrNotFound.
func (r *Registry) ListProjectFiles(projectName string) ([]string, error) {
	if err := validateName("project_name", projectName); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(r.projectsDir, projectName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list project directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// ReadProjectFile returns a project file's content as text, truncated at
// maxLogFileBytes. A missing project or file is ErrNotFound.
func (r *Registry) ReadProjectFile(projectName, fileName string) (string, error) {
	if err := validateName("project_name", projectName); err != nil {
		return "", err
	}
	if err := validateName("file_name", fileName); err != nil {
		return "", err
	}

	f, err := os.Open(filepath.Join(r.projectsDir, projectName, fileName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxLogFileBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}
	return string(data), nil
}
