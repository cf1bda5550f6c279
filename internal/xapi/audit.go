package xapi

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
)

// Trail appends request audit records to JSON-array files. The files are
// write-only from the client's perspective; a failed write is logged and
// never surfaces to the fetch path.
type Trail struct {
	historyPath string
	successPath string
	clock       clockwork.Clock
	logger      *slog.Logger
}

// auditEntry wraps a record with the time it was appended.
type auditEntry struct {
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// AttemptRecord captures one request attempt for the history trail.
type AttemptRecord struct {
	Attempt         int     `json:"attempt"`
	Method          string  `json:"method"`
	URL             string  `json:"url"`
	StatusCode      int     `json:"status_code,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error,omitempty"`
	ResponseBody    string  `json:"response_body,omitempty"`
}

// SuccessRecord captures one successful response for the success trail.
type SuccessRecord struct {
	Attempt         int             `json:"attempt"`
	URL             string          `json:"url"`
	StatusCode      int             `json:"status_code"`
	DurationSeconds float64         `json:"duration_seconds"`
	ResultCount     int             `json:"result_count"`
	Meta            json.RawMessage `json:"meta,omitempty"`
}

// NewTrail creates an audit trail writing to the given paths. A nil Trail is
// valid and discards everything.
func NewTrail(historyPath, successPath string, clock clockwork.Clock, logger *slog.Logger) *Trail {
	return &Trail{
		historyPath: historyPath,
		successPath: successPath,
		clock:       clock,
		logger:      logger,
	}
}

// AppendHistory appends an attempt record to the request-history file.
func (t *Trail) AppendHistory(rec AttemptRecord) {
	if t == nil {
		return
	}
	t.append(t.historyPath, rec)
}

// AppendSuccess appends a success record to the success-log file.
func (t *Trail) AppendSuccess(rec SuccessRecord) {
	if t == nil {
		return
	}
	t.append(t.successPath, rec)
}

func (t *Trail) append(path string, rec any) {
	data, err := json.Marshal(rec)
	if err != nil {
		t.logger.Warn("audit record not serializable", "path", path, "error", err)
		return
	}

	entry := auditEntry{
		Timestamp: t.clock.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	var entries []auditEntry
	if existing, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(existing, &entries); err != nil {
			t.logger.Warn("audit log unreadable, starting fresh", "path", path, "error", err)
			entries = nil
		}
	}
	entries = append(entries, entry)

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		t.logger.Warn("audit log not serializable", "path", path, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.logger.Warn("audit log directory not writable", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.logger.Warn("audit log write failed", "path", path, "error", err)
	}
}
