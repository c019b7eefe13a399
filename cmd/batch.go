package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/utils"
	"gopkg.in/yaml.v3"
)

// BatchFile groups entries by job type:
//
//	http:
//	  - link: https://example.com/a.iso
//	    op: isos/a.iso
//	m3u8:
//	  - link: https://example.com/live/index.m3u8
//	segments:
//	  - op: joined.ts
//	    segments:
//	      - url: https://cdn.example.com/seg0.ts
type BatchFile map[string][]utils.DownloadEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading YAML file: %v", err))
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				output.PrintError(fmt.Sprintf("Error parsing YAML file: %v", err))
				os.Exit(1)
			}
			jobs := buildJobsFromBatch(batchFile)
			if len(jobs) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			runJobs(cmd, jobs)
		},
	}
	return cmd
}

func buildJobsFromBatch(batchFile BatchFile) []utils.Job {
	// map order is random; keep runs reproducible
	types := make([]string, 0, len(batchFile))
	for jobType := range batchFile {
		types = append(types, jobType)
	}
	sort.Strings(types)

	var jobs []utils.Job
	for _, jobType := range types {
		normalizedType := normalizeJobType(jobType)
		if normalizedType == "" {
			output.PrintWarning(fmt.Sprintf("Warning: Unknown job type '%s', skipping...", jobType))
			continue
		}
		for _, entry := range batchFile[jobType] {
			if normalizedType == "segments" {
				if len(entry.Segments) == 0 {
					output.PrintWarning("Warning: Empty segment list found in segments section, skipping...")
					continue
				}
			} else if entry.URL == "" {
				output.PrintWarning(fmt.Sprintf("Warning: Empty link found in %s section, skipping...", jobType))
				continue
			}
			link := entry.URL
			if normalizedType == "s3" {
				link = normalizeS3URL(link)
			}
			job := newJob(normalizedType, link, entry.OutputPath)
			job.Segments = entry.Segments
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func normalizeJobType(jobType string) string {
	typeMap := map[string]string{
		"http":     "http",
		"https":    "http",
		"s3":       "s3",
		"m3u8":     "m3u8",
		"hls":      "m3u8",
		"segments": "segments",
		"segment":  "segments",
	}
	return typeMap[strings.ToLower(jobType)]
}
