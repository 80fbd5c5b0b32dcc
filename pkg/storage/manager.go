package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"igfetch/pkg/models"
)

// ErrUnknownMediaType is returned for media without a known extension
var ErrUnknownMediaType = errors.New("unknown media type")

// DateLayout renders dates as DDMMYYYY in file names
const DateLayout = "02012006"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Manager writes media files and the run log under one output directory
type Manager struct {
	outputDir string
	pattern   string
	mu        sync.Mutex
	now       func() time.Time
}

// NewManager creates the output directory and returns a Manager using pattern
// for file names. Placeholders: {target} {date} {index} {ext} {kind}.
func NewManager(outputDir, pattern string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{
		outputDir: outputDir,
		pattern:   pattern,
		now:       time.Now,
	}, nil
}

// OutputDir returns the root directory
func (m *Manager) OutputDir() string { return m.outputDir }

// SubDir returns the folder a link kind is saved into
func SubDir(kind models.LinkKind) string {
	if kind == models.LinkReel {
		return "Reels"
	}
	return "Stories"
}

// FileName renders the configured pattern
func (m *Manager) FileName(target string, kind models.LinkKind, index int, ext string) string {
	r := strings.NewReplacer(
		"{target}", sanitize(target),
		"{date}", m.now().Format(DateLayout),
		"{index}", strconv.Itoa(index),
		"{ext}", ext,
		"{kind}", string(kind),
	)
	return r.Replace(m.pattern)
}

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_.")
	if s == "" {
		return "media"
	}
	return s
}

// SaveMedia writes r to <output>/<Stories|Reels>/<pattern> and returns the
// final path. An existing file is never overwritten; a numeric suffix is added.
func (m *Manager) SaveMedia(r io.Reader, target string, kind models.LinkKind, index int, ext string) (string, error) {
	if ext == "" {
		return "", ErrUnknownMediaType
	}
	dir := filepath.Join(m.outputDir, SubDir(kind))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	name := m.FileName(target, kind, index, ext)

	// reserve the name while holding the lock so parallel saves never collide
	m.mu.Lock()
	path, err := reserve(dir, name)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	}); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// reserve creates an empty placeholder at the first free variant of name
func reserve(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i < 10000; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("failed to create media file: %w", err)
		}
	}
	return "", fmt.Errorf("no free file name for %s", name)
}

// AppendTaskLog appends one line to <output>/task.txt
func (m *Manager) AppendTaskLog(line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(m.outputDir, "task.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open task log: %w", err)
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return fmt.Errorf("failed to write task log: %w", err)
	}
	return f.Close()
}

// TaskLogLine formats a run for the task log
func TaskLogLine(at time.Time, kind models.Kind, target string, outcome models.RunOutcome, links int) string {
	return fmt.Sprintf("%s - %s %s - %s (%d links)", at.Format(time.RFC3339), kind, target, outcome, links)
}

// WriteFileAtomic writes data to path through a temporary file and rename
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func writeAtomic(path string, write func(w io.Writer) error) error {
	tempPath := path + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := write(out); err != nil {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
