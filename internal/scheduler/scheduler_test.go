package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/utils"
)

type fakeDownloader struct {
	running  atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	observed map[string]bool
}

func (f *fakeDownloader) ValidateJob(job *utils.Job) error {
	if job.URL == "invalid" {
		return errors.New("bad url")
	}
	return nil
}

func (f *fakeDownloader) BuildJob(ctx context.Context, job *utils.Job) error {
	if job.OutputPath == "" {
		job.OutputPath = job.URL + ".out"
	}
	return nil
}

func (f *fakeDownloader) Download(ctx context.Context, job *utils.Job) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	f.mu.Lock()
	f.observed[job.ID] = job.Options.Observer != nil
	f.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	if job.URL == "fail" {
		return errors.New("server went away")
	}
	return nil
}

func TestRun(t *testing.T) {
	fake := &fakeDownloader{observed: map[string]bool{}}
	var buf bytes.Buffer
	s := &Scheduler{
		Registry: map[string]utils.Downloader{"http": fake},
		Workers:  2,
		Output:   output.NewPlainManager(&buf),
	}
	jobs := []utils.Job{
		{JobType: "http", URL: "a"},
		{JobType: "http", URL: "b"},
		{JobType: "http", URL: "c"},
		{JobType: "http", URL: "fail"},
		{JobType: "http", URL: "invalid"},
		{JobType: "ftp", URL: "d"},
	}
	err := s.Run(context.Background(), jobs)
	require.Error(t, err)
	assert.Equal(t, "3 of 6 jobs failed", err.Error())
	assert.LessOrEqual(t, fake.peak.Load(), int32(2))

	ids := map[string]bool{}
	for _, job := range jobs {
		require.NotEmpty(t, job.ID)
		ids[job.ID] = true
	}
	assert.Len(t, ids, len(jobs))
	assert.Len(t, fake.observed, 4)
	for _, ok := range fake.observed {
		assert.True(t, ok)
	}

	out := buf.String()
	assert.Contains(t, out, "Completed a.out")
	assert.Contains(t, out, "Completed 3 of 6")
	assert.Contains(t, out, "unknown job type: ftp")
	assert.Contains(t, out, "validation failed: bad url")
	assert.Contains(t, out, "download failed: server went away")
}

func TestRunCancelled(t *testing.T) {
	fake := &fakeDownloader{observed: map[string]bool{}}
	s := &Scheduler{
		Registry: map[string]utils.Downloader{"http": fake},
		Workers:  1,
		Output:   output.NewPlainManager(&bytes.Buffer{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, []utils.Job{{JobType: "http", URL: "a"}})
	assert.Error(t, err)
	assert.Empty(t, fake.observed)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry("http://localhost:9000")
	for _, kind := range []string{"http", "segments", "m3u8", "s3"} {
		assert.Contains(t, reg, kind)
	}
}
