package m3u8

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/utils"
)

func TestPlaylistJob(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:2,\nseg0.ts\n#EXTINF:2,\nseg1.ts\n#EXTINF:1,\nseg2.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/live/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<%s>", filepath.Base(r.URL.Path))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "stream.ts")
	job := &utils.Job{
		URL:         srv.URL + "/live/index.m3u8",
		OutputPath:  output,
		Connections: 2,
	}
	d := &Downloader{}
	require.NoError(t, d.ValidateJob(job))
	require.NoError(t, d.BuildJob(context.Background(), job))
	require.Len(t, job.Segments, 3)
	require.NoError(t, d.Download(context.Background(), job))

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "<seg0.ts><seg1.ts><seg2.ts>", string(got))
}

func TestValidateJob(t *testing.T) {
	d := &Downloader{}
	assert.Error(t, d.ValidateJob(&utils.Job{URL: "rtmp://example.com/live"}))
	assert.NoError(t, d.ValidateJob(&utils.Job{URL: "https://example.com/live.m3u8"}))
}
