package segments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/tanq16/splitdl/internal/utils"
)

// Downloader handles jobs that carry an explicit segment list.
type Downloader struct{}

func (d *Downloader) ValidateJob(job *utils.Job) error {
	if len(job.Segments) == 0 {
		return errors.New("segment list is empty")
	}
	for i, seg := range job.Segments {
		parsed, err := url.Parse(seg.URL)
		if err != nil {
			return fmt.Errorf("invalid URL for segment %d: %v", i, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("unsupported scheme for segment %d: %s", i, parsed.Scheme)
		}
	}
	return nil
}

func (d *Downloader) BuildJob(ctx context.Context, job *utils.Job) error {
	if job.URL == "" {
		job.URL = job.Segments[0].URL
	}
	if job.OutputPath == "" {
		job.OutputPath = defaultOutput(job.Segments[0].URL)
	}
	return nil
}

func (d *Downloader) Download(ctx context.Context, job *utils.Job) error {
	client := utils.NewClient(job.HTTPClientConfig)
	opts := job.Options
	opts.Output = job.OutputPath
	opts.Connections = job.Connections
	return Download(ctx, client, Request{Source: job.URL, Segments: job.Segments}, opts)
}

func defaultOutput(segmentURL string) string {
	ext := ".bin"
	if parsed, err := url.Parse(segmentURL); err == nil {
		if e := path.Ext(parsed.Path); e != "" {
			ext = e
		}
	}
	return "segments" + ext
}
