package progressive

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/resume"
	"github.com/tanq16/splitdl/internal/utils"
)

type Downloader struct{}

func (d *Downloader) ValidateJob(job *utils.Job) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	return nil
}

func (d *Downloader) BuildJob(ctx context.Context, job *utils.Job) error {
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5
	client := utils.NewClient(job.HTTPClientConfig)
	info, err := Resolve(ctx, client, job.URL, job.Options.Headers)
	if err != nil {
		return fmt.Errorf("error getting file info: %v", err)
	}
	job.Remote = info

	if job.OutputPath == "" && info.FileName != "" {
		job.OutputPath = info.FileName
	} else if job.OutputPath == "" {
		job.OutputPath = utils.OutputFromURL(info.URL)
	}

	// an existing file is only reused when it has resume metadata or is the
	// finished download; anything else gets a fresh name
	if existing, err := os.Stat(job.OutputPath); err == nil && !job.Options.Overwrite {
		_, metaErr := os.Stat(resume.MetaPath(job.OutputPath))
		if metaErr != nil && existing.Size() != info.ContentLength {
			job.OutputPath = utils.RenewOutputPath(job.OutputPath)
		}
	}
	log.Debug().Str("op", "progressive/initial").Msgf("Resolved %s: size=%d type=%q ranges=%v", info.URL, info.ContentLength, info.ContentType, info.AcceptRanges)
	return nil
}

func (d *Downloader) Download(ctx context.Context, job *utils.Job) error {
	client := utils.NewClient(job.HTTPClientConfig)
	opts := job.Options
	opts.Output = job.OutputPath
	opts.Connections = job.Connections
	req := Request{
		URL:           job.Remote.URL,
		ContentLength: job.Remote.ContentLength,
		ContentType:   job.Remote.ContentType,
	}
	if !job.Remote.Progressive() {
		return SimpleDownload(ctx, client, req, opts)
	}
	return Download(ctx, client, req, opts)
}

// Resolve probes url with a one-byte range request and reports what the
// server says about the resource.
func Resolve(ctx context.Context, client utils.Doer, link string, headers map[string]string) (*utils.RemoteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, &utils.StatusError{URL: link, StatusCode: resp.StatusCode}
	}

	info := &utils.RemoteInfo{
		URL:         link,
		ContentType: resp.Header.Get("Content-Type"),
		FileName:    fileNameFromDisposition(resp.Header.Get("Content-Disposition")),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		info.URL = resp.Request.URL.String()
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		info.Compressed = true
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		info.AcceptRanges = true
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			info.ContentLength = total
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1))
	default:
		info.AcceptRanges = resp.Header.Get("Accept-Ranges") == "bytes"
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
				info.ContentLength = size
			}
		}
	}
	return info, nil
}

// parseContentRangeTotal reads the complete length from "bytes 0-0/1234".
func parseContentRangeTotal(header string) (int64, bool) {
	slash := strings.LastIndex(header, "/")
	if slash < 0 {
		return 0, false
	}
	total := strings.TrimSpace(header[slash+1:])
	if total == "*" {
		return 0, false
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func fileNameFromDisposition(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return filenameRegex.ReplaceAllString(unescaped, "_")
	}
	return ""
}
