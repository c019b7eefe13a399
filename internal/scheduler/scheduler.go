package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/downloaders/m3u8"
	"github.com/tanq16/splitdl/internal/downloaders/progressive"
	"github.com/tanq16/splitdl/internal/downloaders/s3"
	"github.com/tanq16/splitdl/internal/downloaders/segments"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs jobs through the downloader registered for their type,
// at most Workers at a time.
type Scheduler struct {
	Registry map[string]utils.Downloader
	Workers  int
	Output   *output.Manager
}

// NewRegistry maps job types to downloaders. s3Endpoint is passed through
// for S3-compatible stores.
func NewRegistry(s3Endpoint string) map[string]utils.Downloader {
	return map[string]utils.Downloader{
		"http":     &progressive.Downloader{},
		"segments": &segments.Downloader{},
		"m3u8":     &m3u8.Downloader{},
		"s3":       &s3.Downloader{Endpoint: s3Endpoint},
	}
}

func New(workers int, registry map[string]utils.Downloader) *Scheduler {
	return &Scheduler{
		Registry: registry,
		Workers:  max(workers, 1),
		Output:   output.NewManager(),
	}
}

// Run processes every job and reports failures through the output manager.
// One failed job does not stop the others; the returned error counts them.
func (s *Scheduler) Run(ctx context.Context, jobs []utils.Job) error {
	for i := range jobs {
		if jobs[i].ID == "" {
			jobs[i].ID = uuid.NewString()
		}
		s.Output.Register(jobs[i].ID, jobLabel(&jobs[i]))
	}
	s.Output.StartDisplay()
	defer s.Output.StopDisplay()

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(s.Workers)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			if err := s.process(ctx, job); err != nil {
				failed.Add(1)
				s.Output.ReportError(job.ID, err)
			}
			return nil
		})
	}
	g.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d jobs failed", n, len(jobs))
	}
	return nil
}

func (s *Scheduler) process(ctx context.Context, job *utils.Job) error {
	logger := log.With().Str("job", job.ID).Str("type", job.JobType).Logger()
	downloader, ok := s.Registry[job.JobType]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.JobType)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Output.SetMessage(job.ID, fmt.Sprintf("Validating %s job", job.JobType))
	if err := downloader.ValidateJob(job); err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}
	logger.Debug().Str("op", "scheduler/process").Msgf("Validated %s", job.URL)

	s.Output.SetMessage(job.ID, fmt.Sprintf("Building %s job", job.JobType))
	if err := downloader.BuildJob(ctx, job); err != nil {
		return fmt.Errorf("build failed: %v", err)
	}
	logger.Debug().Str("op", "scheduler/process").Msgf("Built job with output %s", job.OutputPath)

	s.Output.SetMessage(job.ID, fmt.Sprintf("Downloading %s", job.OutputPath))
	job.Options.Observer = s.Output.Observer(job.ID)
	if err := downloader.Download(ctx, job); err != nil {
		logger.Debug().Str("op", "scheduler/process").Msgf("Download failed: %v", err)
		return fmt.Errorf("download failed: %w", err)
	}
	s.Output.Complete(job.ID, output.CompletionMessage(job.OutputPath))
	logger.Info().Str("op", "scheduler/process").Msgf("Completed %s", job.OutputPath)
	return nil
}

func jobLabel(job *utils.Job) string {
	if job.OutputPath != "" {
		return job.OutputPath
	}
	if job.URL != "" {
		return job.URL
	}
	return fmt.Sprintf("%s job", job.JobType)
}
