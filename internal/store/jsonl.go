package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
)

// maxLineBytes bounds a single JSONL record. Tweets with full raw snapshots
// stay well under this.
const maxLineBytes = 1 << 20

// JSONLStore persists labeled tweets as one JSON object per line, merged by
// tweet ID on every save so re-ingesting a window updates rather than
// duplicates.
type JSONLStore struct {
	path    string
	atomic  bool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// SaveResult reports what one merge-on-write pass did.
type SaveResult struct {
	Added   int
	Updated int
	Total   int
}

// NewJSONLStore creates a store writing to path. With atomic set, saves go
// through a temp file in the same directory followed by a rename.
func NewJSONLStore(path string, atomic bool, metrics *observability.Metrics, logger *slog.Logger) *JSONLStore {
	return &JSONLStore{path: path, atomic: atomic, metrics: metrics, logger: logger}
}

// idProbe extracts just the merge key from a stored line.
type idProbe struct {
	ID string `json:"id"`
}

// Save merges tweets into the corpus by ID and rewrites the file. Existing
// records keep their position; new ones are appended in input order. A
// record arriving twice in one batch resolves to the last occurrence.
func (s *JSONLStore) Save(tweets []domain.LabeledTweet) (SaveResult, error) {
	order, existing, err := s.loadRaw()
	if err != nil {
		return SaveResult{}, err
	}

	var res SaveResult
	for _, t := range tweets {
		if t.ID == "" {
			s.logger.Warn("skipping labeled tweet without id")
			continue
		}
		data, err := json.Marshal(t)
		if err != nil {
			return SaveResult{}, fmt.Errorf("marshal tweet %s: %w", t.ID, err)
		}
		if _, ok := existing[t.ID]; ok {
			res.Updated++
		} else {
			order = append(order, t.ID)
			res.Added++
		}
		existing[t.ID] = data
	}
	res.Total = len(order)

	if err := s.write(order, existing); err != nil {
		return SaveResult{}, err
	}

	s.logger.Info("corpus saved",
		"path", s.path,
		"added", res.Added,
		"updated", res.Updated,
		"total", res.Total,
	)
	return res, nil
}

// Load reads the full corpus, skipping corrupt lines.
func (s *JSONLStore) Load() ([]domain.LabeledTweet, error) {
	order, raw, err := s.loadRaw()
	if err != nil {
		return nil, err
	}
	tweets := make([]domain.LabeledTweet, 0, len(order))
	for _, id := range order {
		var t domain.LabeledTweet
		if err := json.Unmarshal(raw[id], &t); err != nil {
			return nil, fmt.Errorf("decode stored tweet %s: %w", id, err)
		}
		tweets = append(tweets, t)
	}
	return tweets, nil
}

// loadRaw reads the existing file into an insertion-ordered id index.
// Corrupt or keyless lines are skipped, not fatal; the save that follows
// drops them from the rewritten file.
func (s *JSONLStore) loadRaw() ([]string, map[string]json.RawMessage, error) {
	records := make(map[string]json.RawMessage)
	var order []string

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return order, records, nil
		}
		return nil, nil, fmt.Errorf("open corpus %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe idProbe
		if err := json.Unmarshal(line, &probe); err != nil {
			s.metrics.StoreCorruptLines.Inc()
			s.logger.Warn("skipping corrupt corpus line", "path", s.path, "line", lineNo, "error", err)
			continue
		}
		if probe.ID == "" {
			s.logger.Warn("skipping corpus line without id", "path", s.path, "line", lineNo)
			continue
		}

		if _, ok := records[probe.ID]; !ok {
			order = append(order, probe.ID)
		}
		records[probe.ID] = append(json.RawMessage(nil), line...)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read corpus %s: %w", s.path, err)
	}
	return order, records, nil
}

func (s *JSONLStore) write(order []string, records map[string]json.RawMessage) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create corpus directory: %w", err)
	}

	target := s.path
	if s.atomic {
		tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp corpus file: %w", err)
		}
		target = tmp.Name()
		tmp.Close()
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create corpus file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, id := range order {
		if _, err := w.Write(records[id]); err != nil {
			f.Close()
			return fmt.Errorf("write corpus: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			return fmt.Errorf("write corpus: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush corpus: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close corpus: %w", err)
	}

	if s.atomic {
		if err := os.Rename(target, s.path); err != nil {
			os.Remove(target)
			return fmt.Errorf("replace corpus: %w", err)
		}
	}
	return nil
}
