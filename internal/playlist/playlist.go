package playlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitdl/internal/utils"
)

// maxDepth bounds master playlist indirection.
const maxDepth = 3

// Playlist is a parsed media playlist. Variants is set instead of Segments
// when the content was a master playlist.
type Playlist struct {
	Segments []utils.Segment
	Variants []string
}

// Parse reads an HLS playlist and resolves every URI against baseURL. An
// EXT-X-MAP init segment is placed first.
func Parse(content, baseURL string) (*Playlist, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing playlist URL: %v", err)
	}
	pl := &Playlist{}
	var inStreamInf bool
	var initSegment string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			uri, ok := attribute(line, "URI")
			if !ok {
				continue
			}
			if initSegment, err = resolveURL(base, uri); err != nil {
				return nil, fmt.Errorf("error resolving init segment URL: %v", err)
			}
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			inStreamInf = true
		case strings.HasPrefix(line, "#"):
			continue
		default:
			resolved, err := resolveURL(base, line)
			if err != nil {
				return nil, fmt.Errorf("error resolving URL: %v", err)
			}
			if inStreamInf {
				pl.Variants = append(pl.Variants, resolved)
				inStreamInf = false
			} else {
				pl.Segments = append(pl.Segments, utils.Segment{URL: resolved})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning playlist: %v", err)
	}
	if initSegment != "" && len(pl.Segments) > 0 {
		pl.Segments = append([]utils.Segment{{URL: initSegment}}, pl.Segments...)
	}
	return pl, nil
}

// Fetch downloads a playlist and returns its segments. A master playlist
// is followed through its first variant.
func Fetch(ctx context.Context, client utils.Doer, link string, headers map[string]string) ([]utils.Segment, error) {
	for depth := 0; depth < maxDepth; depth++ {
		content, finalURL, err := get(ctx, client, link, headers)
		if err != nil {
			return nil, err
		}
		pl, err := Parse(content, finalURL)
		if err != nil {
			return nil, err
		}
		if len(pl.Variants) == 0 {
			if len(pl.Segments) == 0 {
				return nil, fmt.Errorf("no segments found in %s", finalURL)
			}
			for i := range pl.Segments {
				pl.Segments[i].Headers = headers
			}
			log.Debug().Str("op", "playlist/fetch").Msgf("Found %d segments in %s", len(pl.Segments), finalURL)
			return pl.Segments, nil
		}
		log.Debug().Str("op", "playlist/fetch").Msgf("Master playlist with %d variants, following %s", len(pl.Variants), pl.Variants[0])
		link = pl.Variants[0]
	}
	return nil, fmt.Errorf("playlist nesting deeper than %d levels", maxDepth)
}

func get(ctx context.Context, client utils.Doer, link string, headers map[string]string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", "", fmt.Errorf("error creating request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("error fetching playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", &utils.StatusError{URL: link, StatusCode: resp.StatusCode}
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("error reading playlist content: %v", err)
	}
	finalURL := link
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return string(content), finalURL, nil
}

func attribute(line, name string) (string, bool) {
	key := name + `="`
	idx := strings.Index(line, key)
	if idx == -1 {
		return "", false
	}
	rest := line[idx+len(key):]
	end := strings.Index(rest, `"`)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

func resolveURL(base *url.URL, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}
