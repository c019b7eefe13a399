package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/resume"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [OUTPUT_PATH...]",
		Short: "Remove a paused download's partial output, metadata and temp files",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			failed := false
			for _, path := range args {
				if err := resume.Cleanup(path, tempDir); err != nil {
					output.PrintError(fmt.Sprintf("Error cleaning up %s: %v", path, err))
					failed = true
					continue
				}
				output.PrintSuccess(fmt.Sprintf("Cleaned up %s", path))
			}
			if failed {
				os.Exit(1)
			}
		},
	}
}
