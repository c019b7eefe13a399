package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/utils"
	"gopkg.in/yaml.v3"
)

func newSegmentsCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "segments [LIST_FILE | URL...] [--output OUTPUT_PATH]",
		Short: "Download an ordered list of segments and join them",
		Long: `Download each segment independently and concatenate them in list order.

The list is either URLs given as arguments or a YAML file holding a
sequence of URLs or of {url, headers} entries:

  - url: https://cdn.example.com/seg0.ts
    headers:
      Cookie: session=abc
  - url: https://cdn.example.com/seg1.ts`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			segs, err := segmentsFromArgs(args)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			job := newJob("segments", "", outputPath)
			job.Segments = segs
			runJobs(cmd, []utils.Job{job})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: segments[.ext])")
	return cmd
}

func segmentsFromArgs(args []string) ([]utils.Segment, error) {
	if len(args) == 1 && !strings.Contains(args[0], "://") {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("error reading segment list: %v", err)
		}
		return parseSegmentList(data)
	}
	segs := make([]utils.Segment, len(args))
	for i, arg := range args {
		segs[i] = utils.Segment{URL: arg}
	}
	return segs, nil
}

// parseSegmentList accepts a YAML sequence of URLs or of segment entries.
func parseSegmentList(data []byte) ([]utils.Segment, error) {
	var segs []utils.Segment
	if err := yaml.Unmarshal(data, &segs); err != nil {
		var urls []string
		if err := yaml.Unmarshal(data, &urls); err != nil {
			return nil, fmt.Errorf("error parsing segment list: %v", err)
		}
		segs = make([]utils.Segment, len(urls))
		for i, link := range urls {
			segs[i] = utils.Segment{URL: link}
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("segment list is empty")
	}
	for i, seg := range segs {
		if seg.URL == "" {
			return nil, fmt.Errorf("segment %d has no url", i)
		}
	}
	return segs, nil
}
