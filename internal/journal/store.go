// Package journal keeps a local record of finished interview sessions.
// Records are stored as append-only JSON lines so that a payload the backend
// never accepted survives a crash or an offline session and can be resent.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/interviewcoach/pkg/types"
)

// Status is the delivery state of a journaled session.
type Status string

const (
	// StatusPending means the backend has not accepted the payload yet.
	StatusPending Status = "pending"

	// StatusSubmitted means the backend accepted the payload.
	StatusSubmitted Status = "submitted"
)

// Record is a single journal entry. The latest record per session wins.
type Record struct {
	Timestamp  time.Time               `json:"timestamp"`
	SessionID  string                  `json:"session_id"`
	Status     Status                  `json:"status"`
	Error      string                  `json:"error,omitempty"`
	Submission types.SessionSubmission `json:"submission"`
}

// FileStore persists records as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the journal file location.
func (fs *FileStore) Path() string { return fs.path }

// Append writes one record. cause is stored for pending records.
func (fs *FileStore) Append(sessionID string, status Status, sub types.SessionSubmission, cause error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	record := Record{
		Timestamp:  fs.now().UTC(),
		SessionID:  sessionID,
		Status:     status,
		Submission: sub,
	}
	if cause != nil {
		record.Error = cause.Error()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Records returns every record in file order. A missing file yields no
// records; unparsable lines are logged and skipped.
func (fs *FileStore) Records() ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	var out []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			slog.Warn("journal: skipping malformed record", "path", fs.path, "line", line, "err", err)
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("journal: read: %w", err)
	}
	return out, nil
}

// Pending returns the sessions whose latest record is still pending, in the
// order they were first journaled.
func Pending(records []Record) []Record {
	latest := make(map[string]int, len(records))
	var order []string
	for i, r := range records {
		if _, seen := latest[r.SessionID]; !seen {
			order = append(order, r.SessionID)
		}
		latest[r.SessionID] = i
	}
	var out []Record
	for _, id := range order {
		if r := records[latest[id]]; r.Status == StatusPending {
			out = append(out, r)
		}
	}
	return out
}
