package segments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/progress"
	"github.com/tanq16/splitdl/internal/queue"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

// Request is an ordered segment list. Source identifies the list itself,
// such as the playlist URL, and binds resume metadata to it.
type Request struct {
	Source   string
	Segments []utils.Segment
}

func segmentPath(tempPath string, index int) string {
	return filepath.Join(tempPath, fmt.Sprintf("segment_%d.part", index))
}

// Download fetches every segment into its own temp file and concatenates
// them into opts.Output in list order.
func Download(ctx context.Context, client utils.Doer, req Request, opts utils.Options) error {
	opts = opts.WithDefaults()
	obs := opts.Observer
	output := opts.Output
	if output == "" {
		return utils.ErrOutputRequired
	}
	if len(req.Segments) == 0 {
		return fmt.Errorf("no segments to download")
	}
	metaPath := resume.MetaPath(output)
	tempPath := utils.SegmentTempDir(output, opts.TempDir)
	if opts.Overwrite || opts.NoResume {
		if err := resume.Cleanup(output, opts.TempDir); err != nil {
			obs.Error(err, "metadata")
			return err
		}
	}

	plan := resume.SegmentPlan{Segments: make([]utils.Segment, len(req.Segments))}
	urls := make([]string, len(req.Segments))
	for i, seg := range req.Segments {
		plan.Segments[i] = utils.Segment{URL: seg.URL, Headers: utils.MergeHeaders(opts.Headers, seg.Headers)}
		urls[i] = seg.URL
	}

	_, statErr := os.Stat(metaPath)
	doc, err := resume.Load(metaPath)
	if err != nil {
		obs.Error(err, "metadata")
	}
	stale := statErr == nil && (doc == nil || !doc.MatchesSegments(req.Source, output, urls))
	if stale {
		log.Debug().Str("op", "segments/download").Msgf("Metadata for %s is unusable, starting over", output)
		// segment output only exists after a finished merge, so leave it alone
		if err := resume.Remove(metaPath); err != nil {
			obs.Error(err, "metadata")
			return err
		}
		os.RemoveAll(tempPath)
		doc = nil
	}

	prefix := 0
	if doc == nil {
		if _, err := os.Stat(output); err == nil {
			if stale {
				return fmt.Errorf("%s: %w", output, utils.ErrOutputExists)
			}
			// the merged output only appears once every segment is in
			log.Debug().Str("op", "segments/download").Msgf("%s is already complete", output)
			return nil
		}
		doc = resume.NewSegments(req.Source, output, opts.Connections, plan)
	} else {
		// headers are not part of the match; take the caller's current ones
		doc.Segments = &plan
		prefix = resume.TrustedPrefix(doc.Completed)
		var prefixBytes int64
		for i := 0; i < prefix; i++ {
			st, err := os.Stat(segmentPath(tempPath, i))
			if err != nil {
				prefix = i
				break
			}
			prefixBytes += st.Size()
		}
		doc.ResetFrom(prefix, prefixBytes)
		log.Debug().Str("op", "segments/download").Msgf("Resuming %s from segment %d of %d (%d bytes)", output, prefix, doc.Units(), prefixBytes)
	}

	if err := os.MkdirAll(tempPath, 0755); err != nil {
		obs.Error(err, "stream write")
		return fmt.Errorf("error creating temp directory: %v", err)
	}
	tracker := resume.NewTracker(metaPath, doc)
	if err := tracker.Save(); err != nil {
		obs.Error(err, "metadata")
		return err
	}

	agg := progress.New(doc.Units())
	agg.Seed(doc.BytesDownloaded)
	stopReport := progress.Report(agg, opts.ProgressInterval, obs.Progress)
	defer stopReport()

	engine := queue.NewEngine(ctx, queue.Config{
		Client:      client,
		Connections: opts.Connections,
		MaxRetries:  opts.MaxRetries,
		Hooks: queue.Hooks{
			OnData: func(task queue.Task, data []byte) {
				obs.ChunkData(task.Index, data)
			},
		},
		OnProgress: agg.Add,
		OnResult: func(res queue.Result) {
			if res.Err != nil {
				obs.Error(res.Err, res.Comment)
				return
			}
			if ctx.Err() != nil {
				return
			}
			agg.RecordChunk(res.Bytes)
			if err := tracker.MarkComplete(res.Task.Index, res.Bytes); err != nil {
				obs.Error(err, "metadata")
			}
		},
	})
	for i := prefix; i < len(plan.Segments); i++ {
		seg := plan.Segments[i]
		if !engine.Push(queue.Task{
			Index:   i,
			URL:     seg.URL,
			Headers: seg.Headers,
			Path:    segmentPath(tempPath, i),
		}) {
			break
		}
	}
	if err := engine.Wait(); err != nil {
		return err
	}
	stopReport()

	if !tracker.AllComplete() {
		obs.Error(utils.ErrIncomplete, "verify")
		return utils.ErrIncomplete
	}
	if err := merge(output, tempPath, len(plan.Segments)); err != nil {
		obs.Error(err, "merge")
		return err
	}
	if err := tracker.Remove(); err != nil {
		obs.Error(err, "metadata")
		return err
	}
	if err := os.RemoveAll(tempPath); err != nil {
		log.Warn().Str("op", "segments/download").Msgf("Could not remove temp directory %s: %v", tempPath, err)
	}
	log.Debug().Str("op", "segments/download").Msgf("Merged %d segments into %s", len(plan.Segments), output)
	return nil
}

// merge concatenates segment files in index order into output via a temp
// file, so a failed merge never leaves a truncated output behind.
func merge(output, tempPath string, count int) error {
	tmpOutput := output + ".tmp"
	out, err := os.Create(tmpOutput)
	if err != nil {
		return fmt.Errorf("error creating output file: %v", err)
	}
	buffer := make([]byte, utils.DefaultBufferSize)
	for i := 0; i < count; i++ {
		if err := appendFile(out, segmentPath(tempPath, i), buffer); err != nil {
			out.Close()
			os.Remove(tmpOutput)
			return fmt.Errorf("error merging segment %d: %v", i, err)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpOutput)
		return err
	}
	if err := os.Rename(tmpOutput, output); err != nil {
		os.Remove(tmpOutput)
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	return nil
}

func appendFile(dst io.Writer, path string, buffer []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyBuffer(dst, f, buffer)
	return err
}
