// Package thumbnails rewrites thumbnail URLs in catalog responses so that clients load images
// through the proxy at a usable resolution.
package thumbnails

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

const ProxyPath = "/api/proxy/image"

const targetSize = "500"

var (
	sizedPattern  = regexp.MustCompile(`=w\d+-h\d+`)
	squarePattern = regexp.MustCompile(`=s\d+`)
)

type Rewriter struct {
	base string
}

// New returns a Rewriter producing URLs under selfBaseURL (scheme and host, no trailing slash).
func New(selfBaseURL string) *Rewriter {
	return &Rewriter{base: strings.TrimRight(selfBaseURL, "/")}
}

// Upscale requests a 500px rendition from the image hosts that encode size in the URL.
func Upscale(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch host := u.Hostname(); {
	case strings.HasPrefix(host, "lh") && strings.HasSuffix(host, ".googleusercontent.com"):
		return sizedPattern.ReplaceAllString(raw, "=w"+targetSize+"-h"+targetSize)
	case host == "yt3.ggpht.com", host == "yt3.googleusercontent.com":
		return squarePattern.ReplaceAllString(raw, "=s"+targetSize)
	}
	return raw
}

// ProxyURL returns the proxied form of an upstream image URL.
func (r *Rewriter) ProxyURL(raw string) string {
	return r.base + ProxyPath + "?url=" + url.QueryEscape(Upscale(raw))
}

// Rewrite returns a copy of node in which every "thumbnails" list has proxied URLs.
// The input is never modified.
func (r *Rewriter) Rewrite(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if key == "thumbnails" {
				if list, ok := value.([]any); ok {
					out[key] = r.rewriteList(list)
					continue
				}
			}
			out[key] = r.Rewrite(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.Rewrite(item)
		}
		return out
	default:
		return node
	}
}

func (r *Rewriter) rewriteList(list []any) []any {
	out := make([]any, len(list))
	for i, item := range list {
		thumb, ok := item.(map[string]any)
		if !ok {
			out[i] = r.Rewrite(item)
			continue
		}
		copied := make(map[string]any, len(thumb))
		for k, val := range thumb {
			copied[k] = val
		}
		if raw, ok := thumb["url"].(string); ok && raw != "" {
			copied["url"] = r.ProxyURL(raw)
		}
		out[i] = copied
	}
	return out
}

// RewriteResults rewrites search hits, giving video hits without artwork the default
// i.ytimg.com renditions first.
func (r *Rewriter) RewriteResults(items []any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		hit, ok := item.(map[string]any)
		if !ok {
			out[i] = r.Rewrite(item)
			continue
		}
		out[i] = r.Rewrite(withDefaultThumbnails(hit))
	}
	return out
}

func withDefaultThumbnails(hit map[string]any) map[string]any {
	videoID, _ := hit["videoId"].(string)
	if videoID == "" {
		return hit
	}
	if list, ok := hit["thumbnails"].([]any); ok && len(list) > 0 {
		return hit
	}

	filled := make(map[string]any, len(hit)+1)
	for k, v := range hit {
		filled[k] = v
	}
	filled["thumbnails"] = []any{
		map[string]any{"url": "https://i.ytimg.com/vi/" + videoID + "/mqdefault.jpg", "width": float64(320), "height": float64(180)},
		map[string]any{"url": "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg", "width": float64(480), "height": float64(360)},
	}
	return filled
}

// Tree converts a typed value to its generic JSON form.
func Tree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
