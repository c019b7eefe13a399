package progressive

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/progress"
	"github.com/tanq16/splitdl/internal/queue"
	"github.com/tanq16/splitdl/internal/ranges"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

// Request describes the resolved resource to fetch. Source, when set, is
// the stable identity stored in resume metadata in place of URL.
type Request struct {
	URL           string
	Source        string
	ContentLength int64
	ContentType   string
}

// Download fetches req into opts.Output over opts.Connections concurrent
// range requests, resuming from metadata left by an earlier run.
func Download(ctx context.Context, client utils.Doer, req Request, opts utils.Options) error {
	opts = opts.WithDefaults()
	obs := opts.Observer
	output := opts.Output
	if output == "" {
		return utils.ErrOutputRequired
	}
	source := req.Source
	if source == "" {
		source = req.URL
	}
	metaPath := resume.MetaPath(output)
	if opts.Overwrite || opts.NoResume {
		if err := discard(output, metaPath); err != nil {
			obs.Error(err, "metadata")
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	if req.ContentLength == 0 {
		log.Debug().Str("op", "progressive/download").Msgf("Empty resource, writing zero-length %s", output)
		resume.Remove(metaPath)
		return os.WriteFile(output, nil, 0644)
	}

	_, statErr := os.Stat(metaPath)
	doc, err := resume.Load(metaPath)
	if err != nil {
		obs.Error(err, "metadata")
	}
	if statErr == nil && (doc == nil || !doc.MatchesProgressive(source, output, req.ContentLength, req.ContentType)) {
		// the output is a partial of some other download
		log.Debug().Str("op", "progressive/download").Msgf("Metadata for %s is unusable, starting over", output)
		if err := discard(output, metaPath); err != nil {
			obs.Error(err, "metadata")
			return err
		}
		doc = nil
	}

	prefix := 0
	if doc == nil {
		if st, err := os.Stat(output); err == nil {
			if st.Size() == req.ContentLength {
				log.Debug().Str("op", "progressive/download").Msgf("%s is already complete", output)
				return nil
			}
			return fmt.Errorf("%s: %w", output, utils.ErrOutputExists)
		}
		doc = resume.NewProgressive(source, output, opts.Connections, resume.ProgressivePlan{
			ContentLength: req.ContentLength,
			ContentType:   req.ContentType,
			Ranges:        ranges.Partition(req.ContentLength, opts.Connections),
		})
	} else {
		prefix = resume.TrustedPrefix(doc.Completed)
		prefixBytes := doc.Progressive.PrefixBytes(prefix)
		if st, err := os.Stat(output); err != nil || st.Size() < prefixBytes {
			// the bytes the metadata vouches for are gone
			prefix, prefixBytes = 0, 0
		}
		doc.ResetFrom(prefix, prefixBytes)
		log.Debug().Str("op", "progressive/download").Msgf("Resuming %s from range %d of %d (%d bytes)", output, prefix, doc.Units(), prefixBytes)
	}
	fresh := prefix == 0 && doc.BytesDownloaded == 0

	tracker := resume.NewTracker(metaPath, doc)
	if err := tracker.Save(); err != nil {
		obs.Error(err, "metadata")
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if fresh {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(output, flags, 0644)
	if err != nil {
		obs.Error(err, "stream write")
		return fmt.Errorf("error opening output file: %v", err)
	}
	defer file.Close()

	agg := progress.New(doc.Units())
	agg.SetTotal(req.ContentLength)
	agg.Seed(doc.BytesDownloaded)
	stopReport := progress.Report(agg, opts.ProgressInterval, obs.Progress)
	defer stopReport()

	engine := queue.NewEngine(ctx, queue.Config{
		Client:      client,
		Connections: opts.Connections,
		MaxRetries:  opts.MaxRetries,
		Hooks: queue.Hooks{
			OnHeaders: expectContentType(req.ContentType),
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
	plan := doc.Progressive
	for i := prefix; i < len(plan.Ranges); i++ {
		if !engine.Push(queue.Task{
			Index:   i,
			URL:     req.URL,
			Headers: opts.Headers,
			Range:   &plan.Ranges[i],
			File:    file,
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
	if err := file.Sync(); err != nil {
		obs.Error(err, "stream write")
		return err
	}
	st, err := file.Stat()
	if err != nil {
		obs.Error(err, "verify")
		return err
	}
	if st.Size() != req.ContentLength {
		err := &utils.SizeMismatchError{Expected: req.ContentLength, Actual: st.Size()}
		obs.Error(err, "verify")
		return err
	}
	if err := tracker.Remove(); err != nil {
		obs.Error(err, "metadata")
		return err
	}
	log.Debug().Str("op", "progressive/download").Msgf("Download of %s complete", output)
	return nil
}

// expectContentType rejects responses whose media type differs from the one
// recorded when the download started. An empty expectation accepts anything.
func expectContentType(expected string) func(queue.Task, *http.Response) error {
	return func(_ queue.Task, resp *http.Response) error {
		if expected == "" {
			return nil
		}
		received := resp.Header.Get("Content-Type")
		if sameMediaType(expected, received) {
			return nil
		}
		return &utils.ContentTypeError{Expected: expected, Received: received, StatusCode: resp.StatusCode}
	}
}

func sameMediaType(a, b string) bool {
	if a == b {
		return true
	}
	ma, _, errA := mime.ParseMediaType(a)
	mb, _, errB := mime.ParseMediaType(b)
	return errA == nil && errB == nil && ma == mb
}

func discard(output, metaPath string) error {
	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing existing output: %v", err)
	}
	return resume.Remove(metaPath)
}
