package ledger

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"igfetch/pkg/errors"
)

// CanonicalKey is the part of a media URL before the first '&'. Signed CDN
// URLs differ only in their trailing query parameters between page loads.
func CanonicalKey(url string) string {
	if i := strings.IndexByte(url, '&'); i >= 0 {
		return url[:i]
	}
	return url
}

// Ledger is a persisted set of canonical keys of media already saved
type Ledger interface {
	Has(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string) error
	Close() error
}

// FileLedger keeps one key per line in a text file and mirrors it in memory
type FileLedger struct {
	path string
	mu   sync.RWMutex
	keys map[string]struct{}
	file *os.File
}

// OpenFile loads the ledger at path, creating it if needed. Lines are
// canonicalised on load so files holding full URLs still deduplicate.
func OpenFile(path string) (*FileLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, ioErr("open", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, ioErr("open", err)
	}

	keys := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys[CanonicalKey(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return nil, ioErr("load", err)
	}

	return &FileLedger{path: path, keys: keys, file: f}, nil
}

// Has reports whether key was recorded
func (l *FileLedger) Has(_ context.Context, key string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.keys[key]
	return ok, nil
}

// Record appends key to the file. Memory is updated only after the write
// succeeds. Recording a present key is a no-op.
func (l *FileLedger) Record(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.keys[key]; ok {
		return nil
	}
	if l.file == nil {
		return ioErr("record", os.ErrClosed)
	}
	if _, err := fmt.Fprintln(l.file, key); err != nil {
		return ioErr("record", err)
	}
	l.keys[key] = struct{}{}
	return nil
}

// Len returns the number of recorded keys
func (l *FileLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Path returns the backing file path
func (l *FileLedger) Path() string { return l.path }

// Close closes the backing file
func (l *FileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func ioErr(step string, err error) error {
	return errors.New(errors.ErrorTypeLedgerIO, "ledger "+step, "", err)
}
