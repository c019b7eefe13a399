package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/ranges"
	"github.com/tanq16/splitdl/internal/utils"
)

const Version = 1

// Suffix is appended to the output path to locate its metadata document.
const Suffix = ".partmeta"

type Kind string

const (
	KindProgressive Kind = "progressive"
	KindSegments    Kind = "segments"
)

type ProgressivePlan struct {
	ContentLength int64             `json:"contentLength"`
	ContentType   string            `json:"contentType"`
	Ranges        []ranges.ByteRange `json:"ranges"`
}

// PrefixBytes is the byte count covered by the first n ranges.
func (p *ProgressivePlan) PrefixBytes(n int) int64 {
	var total int64
	for _, r := range p.Ranges[:min(n, len(p.Ranges))] {
		total += r.Size()
	}
	return total
}

type SegmentPlan struct {
	Segments []utils.Segment `json:"segments"`
}

func (p *SegmentPlan) URLs() []string {
	urls := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		urls[i] = s.URL
	}
	return urls
}

// Document is the persisted record of a download in progress. Exactly one of
// Progressive or Segments is set, matching Kind.
type Document struct {
	Version         int
	Kind            Kind
	URL             string
	Output          string
	Connections     int
	Completed       []bool
	BytesDownloaded int64
	Progressive     *ProgressivePlan
	Segments        *SegmentPlan
}

type envelope struct {
	Version         int             `json:"version"`
	Kind            Kind            `json:"kind"`
	URL             string          `json:"url"`
	Output          string          `json:"output"`
	Connections     int             `json:"connections"`
	Completed       []bool          `json:"completed"`
	BytesDownloaded int64           `json:"bytesDownloaded"`
	Plan            json.RawMessage `json:"plan"`
}

func NewProgressive(url, output string, connections int, plan ProgressivePlan) *Document {
	return &Document{
		Version:     Version,
		Kind:        KindProgressive,
		URL:         url,
		Output:      output,
		Connections: connections,
		Completed:   make([]bool, len(plan.Ranges)),
		Progressive: &plan,
	}
}

func NewSegments(url, output string, connections int, plan SegmentPlan) *Document {
	return &Document{
		Version:     Version,
		Kind:        KindSegments,
		URL:         url,
		Output:      output,
		Connections: connections,
		Completed:   make([]bool, len(plan.Segments)),
		Segments:    &plan,
	}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var plan any
	switch d.Kind {
	case KindProgressive:
		plan = d.Progressive
	case KindSegments:
		plan = d.Segments
	default:
		return nil, fmt.Errorf("unknown metadata kind %q", d.Kind)
	}
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Version:         d.Version,
		Kind:            d.Kind,
		URL:             d.URL,
		Output:          d.Output,
		Connections:     d.Connections,
		Completed:       d.Completed,
		BytesDownloaded: d.BytesDownloaded,
		Plan:            raw,
	})
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*d = Document{
		Version:         env.Version,
		Kind:            env.Kind,
		URL:             env.URL,
		Output:          env.Output,
		Connections:     env.Connections,
		Completed:       env.Completed,
		BytesDownloaded: env.BytesDownloaded,
	}
	switch env.Kind {
	case KindProgressive:
		d.Progressive = &ProgressivePlan{}
		return json.Unmarshal(env.Plan, d.Progressive)
	case KindSegments:
		d.Segments = &SegmentPlan{}
		return json.Unmarshal(env.Plan, d.Segments)
	default:
		return fmt.Errorf("unknown metadata kind %q", env.Kind)
	}
}

// Validate checks the structural invariants of a decoded document.
func (d *Document) Validate() error {
	if d.Version != Version {
		return fmt.Errorf("unsupported metadata version %d", d.Version)
	}
	switch d.Kind {
	case KindProgressive:
		if d.Progressive == nil {
			return errors.New("progressive metadata without plan")
		}
		if !ranges.Tiles(d.Progressive.Ranges, d.Progressive.ContentLength) {
			return errors.New("ranges do not tile the content length")
		}
		if len(d.Completed) != len(d.Progressive.Ranges) {
			return fmt.Errorf("completion array has %d entries for %d ranges", len(d.Completed), len(d.Progressive.Ranges))
		}
	case KindSegments:
		if d.Segments == nil || len(d.Segments.Segments) == 0 {
			return errors.New("segment metadata without segments")
		}
		if len(d.Completed) != len(d.Segments.Segments) {
			return fmt.Errorf("completion array has %d entries for %d segments", len(d.Completed), len(d.Segments.Segments))
		}
	default:
		return fmt.Errorf("unknown metadata kind %q", d.Kind)
	}
	return nil
}

func (d *Document) MatchesProgressive(url, output string, size int64, contentType string) bool {
	return d.Kind == KindProgressive &&
		d.URL == url &&
		d.Output == output &&
		d.Progressive.ContentLength == size &&
		d.Progressive.ContentType == contentType
}

func (d *Document) MatchesSegments(url, output string, urls []string) bool {
	return d.Kind == KindSegments &&
		d.URL == url &&
		d.Output == output &&
		slices.Equal(d.Segments.URLs(), urls)
}

// Units is the number of ranges or segments in the plan.
func (d *Document) Units() int {
	return len(d.Completed)
}

// ResetFrom marks every unit at or after prefix incomplete and sets the byte
// count to what the trusted prefix holds.
func (d *Document) ResetFrom(prefix int, prefixBytes int64) {
	for i := prefix; i < len(d.Completed); i++ {
		d.Completed[i] = false
	}
	d.BytesDownloaded = prefixBytes
}

func MetaPath(output string) string {
	return output + Suffix
}

// Load reads the document at path. A missing file returns nil without error.
// A document that cannot be decoded or fails validation is treated as absent
// so the caller restarts clean.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading metadata: %w", err)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		log.Warn().Str("op", "resume/document").Msgf("Discarding undecodable metadata %s: %v", path, err)
		return nil, nil
	}
	if err := doc.Validate(); err != nil {
		log.Warn().Str("op", "resume/document").Msgf("Discarding invalid metadata %s: %v", path, err)
		return nil, nil
	}
	return doc, nil
}

// Save replaces the document at path atomically.
func Save(path string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("error encoding metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error replacing metadata: %w", err)
	}
	return nil
}

func Remove(path string) error {
	os.Remove(path + ".tmp")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing metadata: %w", err)
	}
	return nil
}

// TrustedPrefix is the length of the leading run of completed units. Units
// completed after the first gap are re-fetched on resume.
func TrustedPrefix(completed []bool) int {
	for i, done := range completed {
		if !done {
			return i
		}
	}
	return len(completed)
}
