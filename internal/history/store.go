// Package history keeps a rotating JSON-lines log of conversions under the state dir.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/floegence/brushport/internal/brush"
)

const (
	defaultMaxBytes   = int64(1 << 20) // 1 MiB
	defaultMaxBackups = 3

	activeName    = "conversions.jsonl"
	rotatedPrefix = "conversions-"
	rotatedSuffix = ".jsonl"
)

// Record is one conversion attempt.
type Record struct {
	CreatedAt string `json:"created_at"`
	Source    string `json:"source"`
	Output    string `json:"output,omitempty"`

	// Status is "success" or "failure".
	Status string `json:"status"`
	// ErrorKind is the conversion error taxonomy entry on failure.
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	DurationMS  int64          `json:"duration_ms"`
	Diagnostics map[string]int `json:"diagnostics,omitempty"`
}

// NewRecord summarizes the outcome of one conversion.
func NewRecord(source string, res *brush.Result, err error, took time.Duration) Record {
	r := Record{
		Source:     source,
		Status:     "success",
		DurationMS: took.Milliseconds(),
	}
	if err != nil {
		r.Status = "failure"
		r.ErrorKind = brush.ErrorKind(err)
		r.Error = err.Error()
		return r
	}
	if res != nil {
		if len(res.ProducedPaths) > 0 {
			r.Output = res.ProducedPaths[0]
		}
		for _, d := range res.Diagnostics {
			if r.Diagnostics == nil {
				r.Diagnostics = make(map[string]int)
			}
			r.Diagnostics[d.Kind.String()]++
		}
	}
	return r
}

type Options struct {
	Logger *slog.Logger
	// Fs defaults to the OS file system.
	Fs afero.Fs
	// StateDir is the brushport state directory (e.g. ~/.brushport).
	StateDir string

	// MaxBytes is the rotation threshold of the active file.
	MaxBytes int64
	// MaxBackups keeps the latest N rotated files besides the active one.
	MaxBackups int

	// Now is used for timestamps and rotated file names.
	Now func() time.Time
}

type Store struct {
	log *slog.Logger
	fs  afero.Fs
	now func() time.Time

	dir        string
	activePath string

	maxBytes   int64
	maxBackups int

	mu sync.Mutex
}

func New(opts Options) (*Store, error) {
	stateDir := strings.TrimSpace(opts.StateDir)
	if stateDir == "" {
		return nil, errors.New("missing StateDir")
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := filepath.Join(stateDir, "history")
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	return &Store{
		log:        logger,
		fs:         fs,
		now:        now,
		dir:        dir,
		activePath: filepath.Join(dir, activeName),
		maxBytes:   maxBytes,
		maxBackups: maxBackups,
	}, nil
}

// Append writes r and rotates the log when it grows past the threshold. Failures are
// logged, never returned: history must not fail a conversion.
func (s *Store) Append(r Record) {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(r.CreatedAt) == "" {
		r.CreatedAt = s.now().UTC().Format(time.RFC3339Nano)
	}
	if strings.TrimSpace(r.Status) == "" {
		r.Status = "success"
	}

	f, err := s.fs.OpenFile(s.activePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.log.Warn("history append failed", "error", err)
		return
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	err = enc.Encode(&r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.log.Warn("history append failed", "error", err)
		return
	}

	s.maybeRotateLocked()
}

// List returns up to limit records, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, limit)
	for _, path := range s.filesLocked() {
		if len(out) >= limit {
			break
		}
		records, err := s.readNewestFirst(path, limit-len(out))
		if err != nil {
			s.log.Warn("history read failed", "path", path, "error", err)
			continue
		}
		out = append(out, records...)
	}
	return out, nil
}

// filesLocked returns the active file followed by rotated files, newest first.
func (s *Store) filesLocked() []string {
	paths := []string{s.activePath}
	rotated := s.rotatedLocked()
	for i := len(rotated) - 1; i >= 0; i-- {
		paths = append(paths, filepath.Join(s.dir, rotated[i]))
	}
	return paths
}

// rotatedLocked returns rotated file names oldest first. Names embed UnixMilli, which sorts
// lexicographically in time order.
func (s *Store) rotatedLocked() []string {
	ents, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || !strings.HasPrefix(name, rotatedPrefix) || !strings.HasSuffix(name, rotatedSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) maybeRotateLocked() {
	st, err := s.fs.Stat(s.activePath)
	if err != nil || st.Size() <= s.maxBytes {
		return
	}

	dst := filepath.Join(s.dir, fmt.Sprintf("%s%013d%s", rotatedPrefix, s.now().UnixMilli(), rotatedSuffix))
	if err := s.fs.Rename(s.activePath, dst); err != nil {
		s.log.Warn("history rotate failed", "error", err)
		return
	}

	rotated := s.rotatedLocked()
	if len(rotated) <= s.maxBackups {
		return
	}
	for _, name := range rotated[:len(rotated)-s.maxBackups] {
		if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warn("history cleanup failed", "file", name, "error", err)
		}
	}
}

func (s *Store) readNewestFirst(path string, limit int) ([]Record, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []Record
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
