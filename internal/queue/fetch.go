package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/tanq16/splitdl/internal/ranges"
	"github.com/tanq16/splitdl/internal/utils"
)

// Task is one unit of work: a byte range of a resource, or a whole resource.
type Task struct {
	Index   int
	URL     string
	Headers map[string]string
	Range   *ranges.ByteRange
	// File receives range tasks at Range.Start. When nil the body is written
	// to Path, truncating it first.
	File    io.WriterAt
	Path    string
	Attempt int
}

// WriteError marks a failure writing to local storage.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("stream write: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Hooks observe a fetch as it happens. Nil fields are skipped.
type Hooks struct {
	// OnHeaders may reject the response before any body byte is written.
	OnHeaders func(task Task, resp *http.Response) error
	// OnData sees every written slice; the slice is reused after return.
	OnData func(task Task, data []byte)
}

// Fetch performs task and returns the number of body bytes written.
func Fetch(ctx context.Context, client utils.Doer, task Task, hooks Hooks) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.URL, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range task.Headers {
		req.Header.Set(k, v)
	}
	if task.Range != nil {
		req.Header.Set("Range", task.Range.Header())
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, &utils.StatusError{URL: task.URL, StatusCode: resp.StatusCode}
	}
	if hooks.OnHeaders != nil {
		if err := hooks.OnHeaders(task, resp); err != nil {
			return 0, err
		}
	}

	expected := resp.ContentLength
	var dst io.WriterAt
	var offset int64
	if task.Range != nil {
		if err := checkRangeResponse(task.Range, resp); err != nil {
			return 0, err
		}
		expected = task.Range.Size()
		offset = task.Range.Start
		if task.File == nil {
			return 0, errors.New("range task without destination file")
		}
		dst = task.File
	} else if task.File != nil {
		dst = task.File
	} else {
		f, err := os.OpenFile(task.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return 0, &WriteError{Err: err}
		}
		defer f.Close()
		dst = f
	}

	body := io.Reader(resp.Body)
	if expected >= 0 {
		body = io.LimitReader(resp.Body, expected)
	}
	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, err := dst.WriteAt(buffer[:n], offset+written); err != nil {
				return written, &WriteError{Err: err}
			}
			written += int64(n)
			if hooks.OnData != nil {
				hooks.OnData(task, buffer[:n])
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return written, readErr
		}
	}
	if expected >= 0 && written != expected {
		return written, fmt.Errorf("received %d of %d bytes: %w", written, expected, io.ErrUnexpectedEOF)
	}
	return written, nil
}

// checkRangeResponse accepts 206, or a 200 whose body is exactly the
// requested range starting at zero.
func checkRangeResponse(r *ranges.ByteRange, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return nil
	case http.StatusOK:
		if r.Start == 0 && resp.ContentLength == r.Size() {
			return nil
		}
		return utils.ErrRangeIgnored
	default:
		return fmt.Errorf("unexpected status code %d for range %s", resp.StatusCode, r)
	}
}
