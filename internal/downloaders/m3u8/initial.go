package m3u8

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/downloaders/segments"
	"github.com/tanq16/splitdl/internal/playlist"
	"github.com/tanq16/splitdl/internal/utils"
)

// Downloader resolves an HLS playlist into a segment list and hands it to
// the segmented orchestrator.
type Downloader struct{}

func (d *Downloader) ValidateJob(job *utils.Job) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	return nil
}

func (d *Downloader) BuildJob(ctx context.Context, job *utils.Job) error {
	client := utils.NewClient(job.HTTPClientConfig)
	segs, err := playlist.Fetch(ctx, client, job.URL, job.Options.Headers)
	if err != nil {
		return fmt.Errorf("error processing playlist: %v", err)
	}
	job.Segments = segs
	if job.OutputPath == "" {
		job.OutputPath = fmt.Sprintf("stream_%s.ts", time.Now().Format("2006-01-02_15-04"))
	}
	log.Debug().Str("op", "m3u8/initial").Msgf("Playlist %s resolved to %d segments", job.URL, len(segs))
	return nil
}

func (d *Downloader) Download(ctx context.Context, job *utils.Job) error {
	client := utils.NewClient(job.HTTPClientConfig)
	opts := job.Options
	opts.Output = job.OutputPath
	opts.Connections = job.Connections
	// the playlist URL is the list identity, so a re-fetched playlist resumes
	return segments.Download(ctx, client, segments.Request{Source: job.URL, Segments: job.Segments}, opts)
}
