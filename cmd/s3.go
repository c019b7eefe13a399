package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/utils"
)

func newS3Cmd() *cobra.Command {
	var outputPath string
	var profile string

	cmd := &cobra.Command{
		Use:   "s3 [BUCKET/KEY or s3://BUCKET/KEY]",
		Short: "Download files from AWS S3",
		Long: `Download files or folders from AWS S3 through presigned URLs.

Examples:
  splitdl s3 mybucket/path/to/file.zip
  splitdl s3 s3://mybucket/path/to/folder/
  splitdl s3 mybucket/file.zip --profile myprofile`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := newJob("s3", normalizeS3URL(args[0]), outputPath)
			if profile != "" {
				job.Profile = profile
			}
			runJobs(cmd, []utils.Job{job})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path")
	cmd.Flags().StringVar(&profile, "profile", "", "AWS profile to use (default: AWS_PROFILE or the default chain)")
	return cmd
}

func normalizeS3URL(link string) string {
	if strings.HasPrefix(link, "s3://") {
		return link
	}
	return "s3://" + link
}
