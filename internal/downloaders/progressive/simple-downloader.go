package progressive

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/progress"
	"github.com/tanq16/splitdl/internal/queue"
	"github.com/tanq16/splitdl/internal/utils"
)

// SimpleDownload fetches req.URL with a single request into <output>.part and
// renames it into place. It serves resources that cannot be split, such as
// compressed responses or servers without range support. An existing output
// of exactly req.ContentLength bytes is taken as already downloaded.
func SimpleDownload(ctx context.Context, client utils.Doer, req Request, opts utils.Options) error {
	opts = opts.WithDefaults()
	obs := opts.Observer
	if opts.Output == "" {
		return utils.ErrOutputRequired
	}
	if opts.Overwrite {
		if err := os.Remove(opts.Output); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("error removing existing output: %v", err)
		}
	} else if st, err := os.Stat(opts.Output); err == nil {
		if req.ContentLength > 0 && st.Size() == req.ContentLength {
			log.Debug().Str("op", "progressive/simple-downloader").Msgf("%s is already complete", opts.Output)
			return nil
		}
		return fmt.Errorf("%s: %w", opts.Output, utils.ErrOutputExists)
	}
	if err := os.MkdirAll(filepath.Dir(opts.Output), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	partPath := opts.Output + ".part"

	agg := progress.New(1)
	stopReport := progress.Report(agg, opts.ProgressInterval, obs.Progress)
	defer stopReport()

	var failure error
	engine := queue.NewEngine(ctx, queue.Config{
		Client:      client,
		Connections: 1,
		MaxRetries:  opts.MaxRetries,
		Hooks: queue.Hooks{
			OnHeaders: func(_ queue.Task, resp *http.Response) error {
				if resp.ContentLength > 0 {
					agg.SetTotal(resp.ContentLength)
				}
				return nil
			},
			OnData: func(task queue.Task, data []byte) {
				obs.ChunkData(task.Index, data)
			},
		},
		OnProgress: agg.Add,
		OnResult: func(res queue.Result) {
			if res.Err != nil {
				failure = res.Err
				obs.Error(res.Err, res.Comment)
				return
			}
			agg.RecordChunk(res.Bytes)
		},
	})
	engine.Push(queue.Task{URL: req.URL, Headers: opts.Headers, Path: partPath})
	if err := engine.Wait(); err != nil {
		return err
	}
	stopReport()
	if failure != nil {
		os.Remove(partPath)
		return fmt.Errorf("download failed: %w", failure)
	}
	if err := os.Rename(partPath, opts.Output); err != nil {
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	log.Debug().Str("op", "progressive/simple-downloader").Msgf("Simple download successful for %s", opts.Output)
	return nil
}
