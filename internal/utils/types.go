package utils

import (
	"context"
	"mime"
	"strings"
	"time"

	"github.com/tanq16/splitdl/internal/progress"
)

type Downloader interface {
	ValidateJob(job *Job) error
	BuildJob(ctx context.Context, job *Job) error
	Download(ctx context.Context, job *Job) error
}

// Job is one scheduled download. Fields after Segments are filled by BuildJob.
type Job struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	Connections      int
	Profile          string
	Segments         []Segment
	HTTPClientConfig HTTPClientConfig
	Options          Options
	Remote           *RemoteInfo
}

// Segment is one independently addressed piece of a segmented download.
type Segment struct {
	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Options are the caller-facing knobs shared by both orchestrators.
// Cancellation is carried by the context passed alongside.
type Options struct {
	Output           string
	Headers          map[string]string
	Connections      int
	NoResume         bool
	Overwrite        bool
	TempDir          string
	MaxRetries       int
	ProgressInterval time.Duration
	Observer         Observer
}

func (o Options) WithDefaults() Options {
	if o.Connections <= 0 {
		o.Connections = DefaultConnections
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultTaskRetries
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}

// RemoteInfo is what the header resolver learns about a URL.
type RemoteInfo struct {
	URL           string
	ContentLength int64
	ContentType   string
	AcceptRanges  bool
	Compressed    bool
	FileName      string
}

// Progressive reports whether the resource can go through the ranged downloader.
func (r *RemoteInfo) Progressive() bool {
	if r.Compressed || r.ContentLength <= 0 {
		return false
	}
	if r.AcceptRanges {
		return true
	}
	// media servers often honor ranges without advertising them
	mediaType, _, _ := mime.ParseMediaType(r.ContentType)
	return strings.Contains(mediaType, "video") || strings.Contains(mediaType, "audio") || strings.Contains(mediaType, "zip")
}

// Observer receives notifications from an orchestrator. Implementations must be
// safe for concurrent use; ChunkData slices are only valid during the call.
type Observer interface {
	Progress(state progress.State)
	ChunkData(index int, data []byte)
	Error(err error, comment string)
}

type NopObserver struct{}

func (NopObserver) Progress(progress.State) {}
func (NopObserver) ChunkData(int, []byte)   {}
func (NopObserver) Error(error, string)     {}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	OnProgress  func(state progress.State)
	OnChunkData func(index int, data []byte)
	OnError     func(err error, comment string)
}

func (o ObserverFuncs) Progress(state progress.State) {
	if o.OnProgress != nil {
		o.OnProgress(state)
	}
}

func (o ObserverFuncs) ChunkData(index int, data []byte) {
	if o.OnChunkData != nil {
		o.OnChunkData(index, data)
	}
}

func (o ObserverFuncs) Error(err error, comment string) {
	if o.OnError != nil {
		o.OnError(err, comment)
	}
}

type DownloadEntry struct {
	OutputPath string    `yaml:"op,omitempty"`
	URL        string    `yaml:"link"`
	Segments   []Segment `yaml:"segments,omitempty"`
}
