package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/progress"
)

func TestProgressLine(t *testing.T) {
	line := progressLine(progress.State{Current: 512, Total: 1024}, 10)
	assert.True(t, strings.HasPrefix(line, "•━━━━━     •"))
	assert.Contains(t, line, "50.0%")
	assert.Contains(t, line, "512 B of 1.0 KiB")

	over := progressLine(progress.State{Current: 2048, Total: 1024}, 10)
	assert.Contains(t, over, "100.0%")
	assert.Contains(t, progressLine(progress.State{Current: 10}, 10), "0.0%")
}

func TestManagerSummary(t *testing.T) {
	var buf bytes.Buffer
	m := newManager(&buf, false)
	m.Register("a", "https://example.com/a.bin")
	m.Register("b", "https://example.com/b.bin")
	m.StartDisplay()

	obs := m.Observer("a")
	obs.Progress(progress.State{Current: 5, Total: 10})
	obs.Error(errors.New("connection reset"), "request")
	m.mutex.RLock()
	lines := append([]string(nil), m.jobs["a"].StreamLines...)
	m.mutex.RUnlock()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "50.0%")
	assert.Equal(t, "request: connection reset", lines[1])

	m.Complete("a", "")
	m.ReportError("b", errors.New("boom"))
	m.StopDisplay()
	m.StopDisplay()

	out := buf.String()
	assert.Contains(t, out, "Completed https://example.com/a.bin")
	assert.Contains(t, out, "Failed https://example.com/b.bin")
	assert.Contains(t, out, "Completed 1 of 2")
	assert.Contains(t, out, "Failed 1 of 2")
	assert.Contains(t, out, "Error: boom")
	assert.Equal(t, 1, strings.Count(out, "Completed 1 of 2"))
}

func TestManagerStreamLimit(t *testing.T) {
	m := newManager(&bytes.Buffer{}, false)
	m.Register("a", "job")
	m.SetProgress("a", progress.State{Current: 1, Total: 2})
	for i := 0; i < 10; i++ {
		m.AddStreamLine("a", "warning")
	}
	m.SetProgress("a", progress.State{Current: 2, Total: 2})
	j := m.jobs["a"]
	require.Len(t, j.StreamLines, m.maxStreams)
	assert.Contains(t, j.StreamLines[0], "100.0%")
}

func TestRenderInteractive(t *testing.T) {
	m := newManager(&bytes.Buffer{}, true)
	m.Register("a", "job")
	m.SetMessage("a", "Downloading job")
	m.SetProgress("a", progress.State{Current: 1, Total: 4})
	first := m.render()
	assert.Contains(t, first, "Downloading job")
	assert.Contains(t, first, "25.0%")
	assert.Equal(t, 2, m.numLines)
	// later frames rewind over the previous one
	assert.True(t, strings.HasPrefix(m.render(), "\033[2A\033[J"))
}

func TestCompletionMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 2048), 0644))
	assert.Equal(t, "Completed "+path+" (2.0 KiB)", CompletionMessage(path))
	assert.Equal(t, "Completed "+path+".missing", CompletionMessage(path+".missing"))
}
