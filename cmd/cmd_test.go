package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
	"gopkg.in/yaml.v3"
)

func TestParseSegmentList(t *testing.T) {
	segs, err := parseSegmentList([]byte("- https://cdn.example.com/a.ts\n- https://cdn.example.com/b.ts\n"))
	require.NoError(t, err)
	assert.Equal(t, []utils.Segment{{URL: "https://cdn.example.com/a.ts"}, {URL: "https://cdn.example.com/b.ts"}}, segs)

	segs, err = parseSegmentList([]byte(`
- url: https://cdn.example.com/a.ts
  headers:
    Cookie: session=abc
- url: https://cdn.example.com/b.ts
`))
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "session=abc", segs[0].Headers["Cookie"])
	assert.Empty(t, segs[1].Headers)

	_, err = parseSegmentList([]byte("[]"))
	assert.Error(t, err)
	_, err = parseSegmentList([]byte("- headers: {a: b}\n"))
	assert.Error(t, err)
	_, err = parseSegmentList([]byte("url: nope"))
	assert.Error(t, err)
}

func TestSegmentsFromArgs(t *testing.T) {
	segs, err := segmentsFromArgs([]string{"https://a/0.ts", "https://a/1.ts"})
	require.NoError(t, err)
	assert.Len(t, segs, 2)

	path := filepath.Join(t.TempDir(), "list.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- https://a/0.ts\n"), 0644))
	segs, err = segmentsFromArgs([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "https://a/0.ts", segs[0].URL)

	_, err = segmentsFromArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestBuildJobsFromBatch(t *testing.T) {
	data := `
http:
  - link: https://example.com/a.iso
    op: isos/a.iso
  - op: nothing.bin
HLS:
  - link: https://example.com/live/index.m3u8
s3:
  - link: bucket/key.zip
segments:
  - op: joined.ts
    segments:
      - url: https://cdn.example.com/seg0.ts
  - op: empty.ts
ftp:
  - link: ftp://example.com/file
`
	var batch BatchFile
	require.NoError(t, yaml.Unmarshal([]byte(data), &batch))
	connections = 4
	jobs := buildJobsFromBatch(batch)
	require.Len(t, jobs, 4)

	// sorted by section name: HLS, http, s3, segments
	assert.Equal(t, "m3u8", jobs[0].JobType)
	assert.Equal(t, "http", jobs[1].JobType)
	assert.Equal(t, "isos/a.iso", jobs[1].OutputPath)
	assert.Equal(t, 4, jobs[1].Connections)
	assert.Equal(t, "s3://bucket/key.zip", jobs[2].URL)
	assert.Equal(t, "segments", jobs[3].JobType)
	assert.Len(t, jobs[3].Segments, 1)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "s3://b/k", normalizeS3URL("b/k"))
	assert.Equal(t, "s3://b/k", normalizeS3URL("s3://b/k"))
	assert.Equal(t, "http", normalizeJobType("HTTPS"))
	assert.Equal(t, "", normalizeJobType("youtube"))
}

func TestFormatStatus(t *testing.T) {
	out := formatStatus(&resume.Status{
		Kind:            resume.KindProgressive,
		URL:             "https://example.com/a.iso",
		BytesDownloaded: 1 << 20,
		TotalBytes:      4 << 20,
		PercentComplete: 25,
		UnitsCompleted:  1,
		UnitsTotal:      4,
	})
	assert.Contains(t, out, "1.0 MiB of 4.0 MiB")
	assert.Contains(t, out, "1 of 4 ranges done (25%)")
	assert.Contains(t, out, "https://example.com/a.iso")
}
