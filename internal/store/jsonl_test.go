package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-tweet-etl/internal/domain"
	"github.com/couchcryptid/crisis-tweet-etl/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func labeled(id, clean string, label bool) domain.LabeledTweet {
	return domain.LabeledTweet{
		NormalizedTweet: domain.NormalizedTweet{
			ID:        id,
			Text:      clean + " raw",
			CleanText: clean,
			Lang:      "en",
		},
		Label: label,
	}
}

func newTestStore(t *testing.T, atomic bool) *JSONLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tweets.jsonl")
	return NewJSONLStore(path, atomic, observability.NewMetricsForTesting(), testLogger())
}

func TestJSONLStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t, false)

	res, err := s.Save([]domain.LabeledTweet{
		labeled("1", "wildfire near ridge", true),
		labeled("2", "lovely sunset", false),
	})
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Added: 2, Updated: 0, Total: 2}, res)

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.True(t, got[0].Label)
	assert.Equal(t, "lovely sunset", got[1].CleanText)
}

func TestJSONLStore_MergeByID(t *testing.T) {
	s := newTestStore(t, false)

	_, err := s.Save([]domain.LabeledTweet{
		labeled("1", "first version", false),
		labeled("2", "untouched", false),
	})
	require.NoError(t, err)

	res, err := s.Save([]domain.LabeledTweet{
		labeled("1", "second version", true),
		labeled("3", "brand new", true),
	})
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Added: 1, Updated: 1, Total: 3}, res)

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Updated record keeps its original position.
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "second version", got[0].CleanText)
	assert.True(t, got[0].Label)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "3", got[2].ID)
}

func TestJSONLStore_LastWriteWinsWithinBatch(t *testing.T) {
	s := newTestStore(t, false)

	_, err := s.Save([]domain.LabeledTweet{
		labeled("1", "early", false),
		labeled("1", "late", true),
	})
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].CleanText)
}

func TestJSONLStore_SkipsCorruptLines(t *testing.T) {
	s := newTestStore(t, false)

	content := strings.Join([]string{
		`{"id":"1","text":"a","clean_text":"a","label":false}`,
		`{broken`,
		`{"text":"no id here"}`,
		`{"id":"2","text":"b","clean_text":"b","label":true}`,
	}, "\n")
	require.NoError(t, os.WriteFile(s.path, []byte(content), 0o644))

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestJSONLStore_AtomicSave(t *testing.T) {
	s := newTestStore(t, true)

	_, err := s.Save([]domain.LabeledTweet{labeled("1", "atomic write", true)})
	require.NoError(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)

	// No temp files leak into the directory.
	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tweets.jsonl", entries[0].Name())
}

func TestJSONLStore_EmptyFileAndMissingFile(t *testing.T) {
	s := newTestStore(t, false)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(s.path, nil, 0o644))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONLStore_FailedWriteKeepsExistingCorpus(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}

	s := newTestStore(t, true)
	_, err := s.Save([]domain.LabeledTweet{labeled("1", "wildfire near ridge", true)})
	require.NoError(t, err)

	dir := filepath.Dir(s.path)
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	_, err = s.Save([]domain.LabeledTweet{labeled("2", "never lands", false)})
	require.Error(t, err)

	require.NoError(t, os.Chmod(dir, 0o755))
	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wildfire near ridge", got[0].CleanText)
}

func TestJSONLStore_UnserializableRecordKeepsExistingCorpus(t *testing.T) {
	s := newTestStore(t, true)
	_, err := s.Save([]domain.LabeledTweet{labeled("1", "wildfire near ridge", true)})
	require.NoError(t, err)

	bad := labeled("2", "never lands", false)
	bad.Raw.Tweet = json.RawMessage(`{broken`)
	_, err = s.Save([]domain.LabeledTweet{bad})
	require.Error(t, err)

	got, err := s.Load()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	entries, err := os.ReadDir(filepath.Dir(s.path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(s.path), entries[0].Name())
}
