package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [OUTPUT_PATH...]",
		Short: "Show how far paused downloads got",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			failed := false
			for _, path := range args {
				st, err := resume.Inspect(path)
				if err != nil {
					output.PrintError(fmt.Sprintf("%s: %v", path, err))
					failed = true
					continue
				}
				if st == nil {
					output.PrintInfo(fmt.Sprintf("%s: no paused download", path))
					continue
				}
				output.PrintHeader(path)
				fmt.Println(formatStatus(st))
			}
			if failed {
				os.Exit(1)
			}
		},
	}
}

func formatStatus(st *resume.Status) string {
	size := utils.FormatBytes(uint64(st.BytesDownloaded))
	if st.TotalBytes > 0 {
		size += " of " + utils.FormatBytes(uint64(st.TotalBytes))
	}
	return fmt.Sprintf("  %s %s, %d of %d %s done (%d%%)\n  %s",
		st.Kind, size, st.UnitsCompleted, st.UnitsTotal, unitName(st.Kind), st.PercentComplete, output.FDebug(st.URL))
}

func unitName(kind resume.Kind) string {
	if kind == resume.KindSegments {
		return "segments"
	}
	return "ranges"
}
