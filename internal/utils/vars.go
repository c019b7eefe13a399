package utils

import (
	"errors"
	"time"
)

const (
	DefaultConnections      = 5
	DefaultTaskRetries      = 3
	DefaultClientRetries    = 5
	DefaultMaxRedirects     = 5
	DefaultProgressInterval = 200 * time.Millisecond
	DefaultBufferSize       = 1024 * 256 // 256KB read buffer per stream
	SocketBufferSize        = 1024 * 1024 * 8
	ToolUserAgent           = "splitdl/1.0"
	LogFile                 = ".splitdl.log"
	TempDirName             = ".splitdl-temp"
)

var (
	ErrOutputRequired = errors.New("output path is required")
	ErrOutputExists   = errors.New("output file already exists and has no resume metadata")
	ErrIncomplete     = errors.New("not all parts were downloaded successfully, try resuming later")
	ErrRangeIgnored   = errors.New("server ignored the range request")
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36 Edg/132.0.0.0",
	"curl/7.88.1",
	"Wget/1.21.4",
}
