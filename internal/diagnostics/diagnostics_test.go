package diagnostics

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuran/shopbot/internal/models"
)

type fakeShooter struct {
	paths []string
	err   error
	url   string
}

func (f *fakeShooter) Screenshot(path string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func (f *fakeShooter) URL() string { return f.url }

func TestRecorderCreatesRunDir(t *testing.T) {
	root := t.TempDir()
	rec, err := NewRecorder(root)
	require.NoError(t, err)

	info, err := os.Stat(rec.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NotEmpty(t, rec.RunID())
}

func TestScreenshotTagsAccountAndLabel(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	shooter := &fakeShooter{}
	rec.SetPage(shooter)
	rec.SetAccountContext(2)
	rec.Screenshot("sold_out")

	require.Len(t, shooter.paths, 1)
	assert.Contains(t, shooter.paths[0], "acct2_sold_out.png")
}

func TestScreenshotWithoutPageIsNoop(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	rec.Screenshot("nothing") // must not panic
}

func TestScreenshotErrorDoesNotPropagate(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	rec.SetPage(&fakeShooter{err: errors.New("disk full")})
	rec.Screenshot("bad") // best-effort, swallowed
}

func TestFailureAppendsRecord(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)
	rec.SetPage(&fakeShooter{url: "https://shop.example.com/login"})
	rec.SetAccountContext(1)

	rec.Failure("sign_in", errors.New("credentials rejected"))
	rec.Failure("sign_in", errors.New("captcha unresolved"))

	data, err := os.ReadFile(filepath.Join(rec.Dir(), "failures.jsonl"))
	require.NoError(t, err)
	lines := splitLines(data)
	require.Len(t, lines, 2)

	var record models.FailureRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, 1, record.AccountIndex)
	assert.Equal(t, "sign_in", record.Step)
	assert.Equal(t, "https://shop.example.com/login", record.URL)
	assert.Equal(t, "credentials rejected", record.Error)
	assert.NotEmpty(t, record.ID)
}

func TestWriteReport(t *testing.T) {
	rec, err := NewRecorder(t.TempDir())
	require.NoError(t, err)

	results := []models.AccountResult{
		{Index: 0, MaskedUsername: "al***@example.com", Status: models.StatusLimitReached, Message: "limit 1 per customer", Timestamp: time.Now()},
		{Index: 1, MaskedUsername: "be***@example.com", Status: models.StatusSuccess, Timestamp: time.Now()},
	}
	rec.WriteReport(results)

	data, err := os.ReadFile(filepath.Join(rec.Dir(), "results.json"))
	require.NoError(t, err)

	var report struct {
		RunID   string                 `json:"run_id"`
		Results []models.AccountResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, rec.RunID(), report.RunID)
	require.Len(t, report.Results, 2)
	assert.Equal(t, models.StatusLimitReached, report.Results[0].Status)
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(data[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
