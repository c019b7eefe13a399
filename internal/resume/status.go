package resume

import (
	"errors"
	"os"

	"github.com/tanq16/splitdl/internal/utils"
)

// Status summarizes a paused download from its metadata alone.
type Status struct {
	Kind            Kind
	URL             string
	BytesDownloaded int64
	TotalBytes      int64 // zero when unknown, as for segment lists
	PercentComplete int
	UnitsCompleted  int
	UnitsTotal      int
}

// Inspect reports the state of the download writing to output, or nil when
// there is no usable metadata for it.
func Inspect(output string) (*Status, error) {
	doc, err := Load(MetaPath(output))
	if err != nil || doc == nil {
		return nil, err
	}
	st := &Status{
		Kind:            doc.Kind,
		URL:             doc.URL,
		BytesDownloaded: doc.BytesDownloaded,
		UnitsTotal:      doc.Units(),
	}
	for _, done := range doc.Completed {
		if done {
			st.UnitsCompleted++
		}
	}
	switch doc.Kind {
	case KindProgressive:
		st.TotalBytes = doc.Progressive.ContentLength
		if st.TotalBytes > 0 {
			st.PercentComplete = int(doc.BytesDownloaded * 100 / st.TotalBytes)
		}
	case KindSegments:
		if st.UnitsTotal > 0 {
			st.PercentComplete = st.UnitsCompleted * 100 / st.UnitsTotal
		}
	}
	return st, nil
}

// Cleanup discards a paused download entirely: output, metadata and the
// segment temp directory. tempDir may be empty for the default location.
func Cleanup(output, tempDir string) error {
	var errs []error
	if err := os.Remove(output); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	if err := Remove(MetaPath(output)); err != nil {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(utils.SegmentTempDir(output, tempDir)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
