package segments

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

// segmentBody is a distinct byte pattern per segment index.
func segmentBody(i int) []byte {
	return bytes.Repeat([]byte{byte('A' + i)}, 100+i*10)
}

type segServer struct {
	*httptest.Server
	hits sync.Map
}

func (s *segServer) Hits(i int) int32 {
	v, ok := s.hits.Load(i)
	if !ok {
		return 0
	}
	return atomic.LoadInt32(v.(*int32))
}

func newSegServer(t *testing.T, handle func(i int, w http.ResponseWriter, r *http.Request) bool) *segServer {
	t.Helper()
	s := &segServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg"), ".ts"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		v, _ := s.hits.LoadOrStore(i, new(int32))
		atomic.AddInt32(v.(*int32), 1)
		if handle != nil && handle(i, w, r) {
			return
		}
		w.Header().Set("Content-Type", "video/mp2t")
		w.Write(segmentBody(i))
	}))
	t.Cleanup(s.Close)
	return s
}

func segmentList(base string, n int) []utils.Segment {
	segs := make([]utils.Segment, n)
	for i := range segs {
		segs[i] = utils.Segment{URL: fmt.Sprintf("%s/seg%d.ts", base, i)}
	}
	return segs
}

func expectedOutput(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(segmentBody(i))
	}
	return buf.Bytes()
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

type recordingObserver struct {
	utils.NopObserver
	mu       sync.Mutex
	comments []string
}

func (o *recordingObserver) Error(_ error, comment string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.comments = append(o.comments, comment)
}

func TestDownloadPreservesListOrder(t *testing.T) {
	first := make(chan struct{})
	srv := newSegServer(t, func(i int, w http.ResponseWriter, r *http.Request) bool {
		switch i {
		case 0:
			// segment 0 waits until the last one is done
			<-first
		case 2:
			defer close(first)
		}
		return false
	})
	dir := t.TempDir()
	output := filepath.Join(dir, "video.ts")

	err := Download(context.Background(), http.DefaultClient, Request{Source: srv.URL + "/list.m3u8", Segments: segmentList(srv.URL, 3)}, utils.Options{
		Output:      output,
		Connections: 3,
		TempDir:     filepath.Join(dir, "tmp"),
	})
	require.NoError(t, err)
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(3), got)
	assert.NoFileExists(t, resume.MetaPath(output))
	assert.NoDirExists(t, utils.SegmentTempDir(output, filepath.Join(dir, "tmp")))
}

func TestDownloadMergesHeaders(t *testing.T) {
	srv := newSegServer(t, func(i int, w http.ResponseWriter, r *http.Request) bool {
		assert.Equal(t, "global", r.Header.Get("X-Global"))
		if i == 1 {
			assert.Equal(t, "segment", r.Header.Get("X-Key"))
		} else {
			assert.Equal(t, "default", r.Header.Get("X-Key"))
		}
		return false
	})
	segs := segmentList(srv.URL, 2)
	segs[1].Headers = map[string]string{"X-Key": "segment"}
	output := filepath.Join(t.TempDir(), "out.ts")
	err := Download(context.Background(), http.DefaultClient, Request{Source: "list", Segments: segs}, utils.Options{
		Output:  output,
		Headers: map[string]string{"X-Global": "global", "X-Key": "default"},
	})
	require.NoError(t, err)
}

func TestDownloadRetriesTransientErrors(t *testing.T) {
	srv := newSegServer(t, nil)
	var failed atomic.Bool
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/seg1.ts") && failed.CompareAndSwap(false, true) {
			return nil, fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
		}
		return http.DefaultClient.Do(req)
	})
	output := filepath.Join(t.TempDir(), "out.ts")
	require.NoError(t, Download(context.Background(), client, Request{Source: "list", Segments: segmentList(srv.URL, 4)}, utils.Options{Output: output}))
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(4), got)
}

func TestDownloadRetryBudgetExhausted(t *testing.T) {
	srv := newSegServer(t, nil)
	var attempts int32
	client := doerFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/seg2.ts") {
			atomic.AddInt32(&attempts, 1)
			return nil, fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
		}
		return http.DefaultClient.Do(req)
	})
	dir := t.TempDir()
	output := filepath.Join(dir, "out.ts")
	obs := &recordingObserver{}
	err := Download(context.Background(), client, Request{Source: "list", Segments: segmentList(srv.URL, 4)}, utils.Options{
		Output:     output,
		MaxRetries: 3,
		Observer:   obs,
	})
	require.ErrorIs(t, err, utils.ErrIncomplete)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	assert.Equal(t, []string{"max retries exceeded", "verify"}, obs.comments)
	assert.NoFileExists(t, output)

	doc, err := resume.Load(resume.MetaPath(output))
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []bool{true, true, false, true}, doc.Completed)

	// the next run trusts 0 and 1 only
	require.NoError(t, Download(context.Background(), http.DefaultClient, Request{Source: "list", Segments: segmentList(srv.URL, 4)}, utils.Options{Output: output}))
	assert.Equal(t, int32(1), srv.Hits(0))
	assert.Equal(t, int32(1), srv.Hits(1))
	assert.Equal(t, int32(1), srv.Hits(2))
	assert.Equal(t, int32(2), srv.Hits(3))
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(4), got)
}

func TestDownloadStatusErrorNotRetried(t *testing.T) {
	srv := newSegServer(t, func(i int, w http.ResponseWriter, r *http.Request) bool {
		if i == 0 {
			http.Error(w, "gone", http.StatusGone)
			return true
		}
		return false
	})
	output := filepath.Join(t.TempDir(), "out.ts")
	err := Download(context.Background(), http.DefaultClient, Request{Source: "list", Segments: segmentList(srv.URL, 2)}, utils.Options{Output: output})
	require.ErrorIs(t, err, utils.ErrIncomplete)
	assert.Equal(t, int32(1), srv.Hits(0))
	assert.Equal(t, int32(1), srv.Hits(1))
}

func TestDownloadCancelKeepsState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := newSegServer(t, func(i int, w http.ResponseWriter, r *http.Request) bool {
		if i == 1 {
			cancel()
			<-r.Context().Done()
			return true
		}
		return false
	})
	dir := t.TempDir()
	output := filepath.Join(dir, "out.ts")
	opts := utils.Options{Output: output, Connections: 1, TempDir: filepath.Join(dir, "tmp")}
	err := Download(ctx, http.DefaultClient, Request{Source: "list", Segments: segmentList(srv.URL, 3)}, opts)
	require.ErrorIs(t, err, context.Canceled)
	assert.FileExists(t, resume.MetaPath(output))
	assert.FileExists(t, filepath.Join(utils.SegmentTempDir(output, opts.TempDir), "segment_0.part"))

	st, err := resume.Inspect(output)
	require.NoError(t, err)
	assert.Equal(t, 1, st.UnitsCompleted)
	assert.Equal(t, int64(len(segmentBody(0))), st.BytesDownloaded)
}

func TestDownloadChangedListStartsOver(t *testing.T) {
	srv := newSegServer(t, nil)
	output := filepath.Join(t.TempDir(), "out.ts")
	doc := resume.NewSegments("list", output, 2, resume.SegmentPlan{Segments: segmentList(srv.URL, 2)})
	doc.Completed[0] = true
	require.NoError(t, resume.Save(resume.MetaPath(output), doc))

	require.NoError(t, Download(context.Background(), http.DefaultClient, Request{Source: "list", Segments: segmentList(srv.URL, 3)}, utils.Options{Output: output}))
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(1), srv.Hits(i))
	}
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(3), got)
}

func TestDownloadPreconditions(t *testing.T) {
	err := Download(context.Background(), http.DefaultClient, Request{Segments: segmentList("http://x", 1)}, utils.Options{})
	assert.ErrorIs(t, err, utils.ErrOutputRequired)
	err = Download(context.Background(), http.DefaultClient, Request{}, utils.Options{Output: "x"})
	assert.Error(t, err)

	output := filepath.Join(t.TempDir(), "exists.ts")
	require.NoError(t, os.WriteFile(output, []byte("x"), 0644))
	require.NoError(t, resume.Save(resume.MetaPath(output), resume.NewSegments("other", output, 1, resume.SegmentPlan{Segments: segmentList("http://x", 1)})))
	err = Download(context.Background(), http.DefaultClient, Request{Source: "list", Segments: segmentList("http://x", 1)}, utils.Options{Output: output})
	assert.ErrorIs(t, err, utils.ErrOutputExists)
	assert.NoFileExists(t, resume.MetaPath(output))
}

func TestDownloadFinishedOutputIsIdempotent(t *testing.T) {
	srv := newSegServer(t, nil)
	dir := t.TempDir()
	output := filepath.Join(dir, "video.ts")
	req := Request{Source: "list", Segments: segmentList(srv.URL, 3)}
	opts := utils.Options{Output: output, TempDir: filepath.Join(dir, "tmp")}

	require.NoError(t, Download(context.Background(), http.DefaultClient, req, opts))
	require.NoError(t, Download(context.Background(), http.DefaultClient, req, opts))
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(1), srv.Hits(i))
	}
	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, expectedOutput(3), got)

	opts.NoResume = true
	require.NoError(t, Download(context.Background(), http.DefaultClient, req, opts))
	for i := 0; i < 3; i++ {
		assert.Equal(t, int32(2), srv.Hits(i))
	}
}

func TestValidateAndBuildJob(t *testing.T) {
	d := &Downloader{}
	assert.Error(t, d.ValidateJob(&utils.Job{}))
	assert.Error(t, d.ValidateJob(&utils.Job{Segments: []utils.Segment{{URL: "file:///etc/passwd"}}}))

	dir := t.TempDir()
	job := &utils.Job{Segments: []utils.Segment{{URL: "https://cdn.example.com/a/seg0.ts"}}}
	require.NoError(t, d.ValidateJob(job))
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, "segments.ts", job.OutputPath)
	assert.Equal(t, "https://cdn.example.com/a/seg0.ts", job.URL)

	// a finished output keeps its name so the next run sees it as done
	existing := filepath.Join(dir, "out.ts")
	require.NoError(t, os.WriteFile(existing, nil, 0644))
	job = &utils.Job{OutputPath: existing, Segments: job.Segments}
	require.NoError(t, d.BuildJob(context.Background(), job))
	assert.Equal(t, existing, job.OutputPath)
}
