package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/tanq16/splitdl/internal/progress"
	"github.com/tanq16/splitdl/internal/utils"
	"golang.org/x/term"
)

// progressLine renders "• ━━━━    • 42.0% • 3s left - 1.0 MiB of 4.0 MiB (1.0 MiB/s)".
func progressLine(state progress.State, width int) string {
	if width <= 0 {
		width = 30
	}
	percent := state.Percent() / 100
	if state.Total <= 0 {
		percent = 0
	}
	percent = max(0, min(percent, 1))
	filled := int(percent * float64(width))
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return fmt.Sprintf("%s %.1f%% %s %s", bar, percent*100, StyleSymbols["bullet"], state.String())
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalHeight(f *os.File) int {
	_, height, err := term.GetSize(int(f.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}

func terminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func truncate(text string, width int) string {
	runes := []rune(text)
	if width <= 3 || len(runes) <= width {
		return text
	}
	return string(runes[:width-3]) + "..."
}

// CompletionMessage describes a finished download by its size on disk.
func CompletionMessage(path string) string {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return fmt.Sprintf("Completed %s", path)
	}
	return fmt.Sprintf("Completed %s (%s)", path, utils.FormatBytes(uint64(st.Size())))
}
