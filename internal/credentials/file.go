package credentials

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// FileSource reads the bearer token from a file and watches it for changes,
// so token rotation (or revocation, by emptying the file) propagates to the
// channel without restarting the client.
type FileSource struct {
	mu    sync.RWMutex
	fs    afero.Fs
	path  string
	token string

	onChange func(token string)

	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithFs overrides the filesystem the token file is read through. Tests use
// afero.NewMemMapFs.
func WithFs(fs afero.Fs) FileOption {
	return func(s *FileSource) {
		s.fs = fs
	}
}

// WithChangeHandler registers a callback invoked with the new token whenever
// the file content changes. The callback receives an empty string when the
// credential is cleared.
func WithChangeHandler(fn func(token string)) FileOption {
	return func(s *FileSource) {
		s.onChange = fn
	}
}

// NewFileSource creates a source backed by the token file at path and loads
// its current content.
func NewFileSource(path string, opts ...FileOption) (*FileSource, error) {
	s := &FileSource{
		fs:     afero.NewOsFs(),
		path:   path,
		done:   make(chan struct{}),
		logger: slog.Default().With("service", "credentials"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initial load populates the token without firing the change handler;
	// callbacks are reserved for rotations after construction.
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	s.token = strings.TrimSpace(string(data))

	return s, nil
}

// Token implements Source.
func (s *FileSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// reload re-reads the token file. It returns the new token and whether the
// value changed.
func (s *FileSource) reload() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return err
	}
	token := strings.TrimSpace(string(data))

	s.mu.Lock()
	changed := token != s.token
	s.token = token
	fn := s.onChange
	s.mu.Unlock()

	if changed && fn != nil {
		fn(token)
	}
	return nil
}

// Watch starts watching the token file for changes. Editors and secret
// managers usually replace the file rather than write in place, so the
// parent directory is watched and events are filtered by name.
func (s *FileSource) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching token directory: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.logger.Warn("Failed to reload token file", "path", s.path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("Token file watcher error", "error", err)
			case <-s.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher if one is running.
func (s *FileSource) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
