package playlist

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/utils"
)

const media = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:6
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.0,
seg0.m4s
#EXTINF:6.0,
/abs/seg1.m4s

#EXTINF:4.2,
https://other.example.com/seg2.m4s
#EXT-X-ENDLIST
`

func TestParseMediaPlaylist(t *testing.T) {
	pl, err := Parse(media, "https://cdn.example.com/video/720p/index.m3u8")
	require.NoError(t, err)
	assert.Empty(t, pl.Variants)
	assert.Equal(t, []utils.Segment{
		{URL: "https://cdn.example.com/video/720p/init.mp4"},
		{URL: "https://cdn.example.com/video/720p/seg0.m4s"},
		{URL: "https://cdn.example.com/abs/seg1.m4s"},
		{URL: "https://other.example.com/seg2.m4s"},
	}, pl.Segments)
}

func TestParseMasterPlaylist(t *testing.T) {
	content := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
1080p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720
720p/index.m3u8
`
	pl, err := Parse(content, "https://cdn.example.com/video/master.m3u8")
	require.NoError(t, err)
	assert.Empty(t, pl.Segments)
	assert.Equal(t, []string{
		"https://cdn.example.com/video/1080p/index.m3u8",
		"https://cdn.example.com/video/720p/index.m3u8",
	}, pl.Variants)
}

func TestParseBadBase(t *testing.T) {
	_, err := Parse(media, "://bad")
	assert.Error(t, err)
}

func TestFetchFollowsFirstVariant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nhi/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nlo/index.m3u8\n")
	})
	mux.HandleFunc("/hi/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:1,\na.ts\n#EXTINF:1,\nb.ts\n#EXT-X-ENDLIST\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	headers := map[string]string{"Authorization": "token"}
	segs, err := Fetch(context.Background(), http.DefaultClient, srv.URL+"/master.m3u8", headers)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, srv.URL+"/hi/a.ts", segs[0].URL)
	assert.Equal(t, srv.URL+"/hi/b.ts", segs[1].URL)
	assert.Equal(t, headers, segs[1].Headers)
}

func TestFetchErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/loop.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nloop.m3u8\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Fetch(context.Background(), http.DefaultClient, srv.URL+"/empty.m3u8", nil)
	assert.ErrorContains(t, err, "no segments")

	_, err = Fetch(context.Background(), http.DefaultClient, srv.URL+"/loop.m3u8", nil)
	assert.ErrorContains(t, err, "nesting")

	_, err = Fetch(context.Background(), http.DefaultClient, srv.URL+"/missing.m3u8", nil)
	var statusErr *utils.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
