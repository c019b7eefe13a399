package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/utils"
)

func newM3U8Cmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "m3u8 [URL] [--output OUTPUT_PATH]",
		Short: "Download HLS/M3U8 streams",
		Long: `Download every segment of an HLS playlist and join them in order.
A master playlist is followed through its first variant.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runJobs(cmd, []utils.Job{newJob("m3u8", args[0], outputPath)})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stream_[timestamp].ts)")
	return cmd
}
