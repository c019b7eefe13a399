package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" && value != "" {
				result[key] = value
			}
		}
	}
	return result
}

// MergeHeaders returns a new map with later maps overriding earlier ones.
func MergeHeaders(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// OutputFromURL picks a file name from the last path element of rawURL.
func OutputFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		return "download"
	}
	return name
}

// SegmentTempDir is where a segmented download keeps its per-index files.
func SegmentTempDir(output, tempRoot string) string {
	if tempRoot == "" {
		tempRoot = filepath.Join(filepath.Dir(output), TempDirName)
	}
	base := filepath.Base(output)
	return filepath.Join(tempRoot, strings.TrimSuffix(base, filepath.Ext(base)))
}

func FormatBytes(bytes uint64) string {
	return humanize.IBytes(bytes)
}
