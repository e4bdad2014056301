package runfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

const (
	eventsFile   = "events.jsonl"
	artifactsDir = "artifacts"
)

// Store implements storage.RunStore under a root directory.
type Store struct {
	root   string
	logger *slog.Logger

	// serialises appends so concurrent writers never interleave lines
	mu sync.Mutex
}

var _ storage.RunStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("runs directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	s := &Store{root: dir, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "run-store")
	return s, nil
}

// Root returns the directory runs are stored under.
func (s *Store) Root() string {
	return s.root
}

// CreateRun creates the run directory and an empty event log.
func (s *Store) CreateRun(ctx context.Context, runID string) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// AppendEvent writes event as one line of the run's log.
func (s *Store) AppendEvent(ctx context.Context, event *core.Event) error {
	dir, err := s.runDir(event.RunID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(dir, eventsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Events reads the run's log in append order.
func (s *Store) Events(ctx context.Context, runID string) ([]*core.Event, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, eventsFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	events := []*core.Event{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e core.Event
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn("skipping undecodable event line", "run_id", runID, "err", err)
			continue
		}
		events = append(events, &e)
	}
	return events, scanner.Err()
}

// SaveArtifact writes v as indented JSON to artifacts/<name>.json.
func (s *Store) SaveArtifact(ctx context.Context, runID, name string, v any) error {
	path, err := s.artifactPath(runID, name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadArtifact returns the raw JSON of an artifact.
func (s *Store) LoadArtifact(ctx context.Context, runID, name string) ([]byte, error) {
	path, err := s.artifactPath(runID, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ListRuns returns every run directory, newest first. A run's creation time
// is its first event's timestamp, or the directory's modification time when
// the log is empty.
func (s *Store) ListRuns(ctx context.Context) ([]storage.RunInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	runs := make([]storage.RunInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info := storage.RunInfo{RunID: entry.Name()}
		if first, ok := s.firstEventTime(entry.Name()); ok {
			info.CreatedAt = first
		} else if fi, err := entry.Info(); err == nil {
			info.CreatedAt = fi.ModTime().UTC()
		}
		runs = append(runs, info)
	}

	slices.SortFunc(runs, func(a, b storage.RunInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})
	return runs, nil
}

// DeleteRun removes the run directory.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Store) firstEventTime(runID string) (time.Time, bool) {
	f, err := os.Open(filepath.Join(s.root, runID, eventsFile))
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return time.Time{}, false
	}
	var e core.Event
	if err := json.Unmarshal(scanner.Bytes(), &e); err != nil || e.Timestamp.IsZero() {
		return time.Time{}, false
	}
	return e.Timestamp, true
}

func (s *Store) runDir(runID string) (string, error) {
	if !validName(runID) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidRunID, runID)
	}
	return filepath.Join(s.root, runID), nil
}

func (s *Store) artifactPath(runID, name string) (string, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return "", err
	}
	if !validName(name) {
		return "", fmt.Errorf("%w: artifact name %q", storage.ErrInvalidQuery, name)
	}
	return filepath.Join(dir, artifactsDir, name+".json"), nil
}

// validName accepts single path elements made of letters, digits, '-' and '_'.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
