package mirrors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Thomas5624/echo-backend/models"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type pipedResponse struct {
	Title        string        `json:"title"`
	AudioStreams []pipedStream `json:"audioStreams"`
}

type pipedStream struct {
	URL      string `json:"url"`
	Bitrate  int    `json:"bitrate"`
	Quality  string `json:"quality"`
	MimeType string `json:"mimeType"`
}

type invidiousResponse struct {
	Title           string            `json:"title"`
	AdaptiveFormats []invidiousFormat `json:"adaptiveFormats"`
}

type invidiousFormat struct {
	URL          string  `json:"url"`
	Bitrate      flexInt `json:"bitrate"`
	Type         string  `json:"type"`
	AudioQuality string  `json:"audioQuality"`
}

// flexInt accepts both 128000 and "128000"; Invidious sends the latter.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("invalid bitrate %q: %w", data, err)
	}
	*f = flexInt(n)
	return nil
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fetchPiped returns nil without error when the instance has no usable audio stream.
func (r *Resolver) fetchPiped(ctx context.Context, instance, videoID string) (*models.StreamResult, error) {
	var body pipedResponse
	if err := r.getJSON(ctx, instance+"/streams/"+url.PathEscape(videoID), &body); err != nil {
		return nil, err
	}

	var best *pipedStream
	for i := range body.AudioStreams {
		s := &body.AudioStreams[i]
		if s.URL == "" || (s.MimeType != "" && !strings.HasPrefix(s.MimeType, "audio/")) {
			continue
		}
		if best == nil || s.Bitrate > best.Bitrate {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}

	quality := best.Quality
	if quality == "" {
		quality = kbps(best.Bitrate)
	}
	return &models.StreamResult{
		URL:      best.URL,
		Quality:  quality,
		Source:   models.SourcePiped,
		Instance: instance,
		Title:    body.Title,
	}, nil
}

func (r *Resolver) fetchInvidious(ctx context.Context, instance, videoID string) (*models.StreamResult, error) {
	var body invidiousResponse
	if err := r.getJSON(ctx, instance+"/api/v1/videos/"+url.PathEscape(videoID), &body); err != nil {
		return nil, err
	}

	var best *invidiousFormat
	for i := range body.AdaptiveFormats {
		f := &body.AdaptiveFormats[i]
		if f.URL == "" || !strings.HasPrefix(f.Type, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return nil, nil
	}

	quality := kbps(int(best.Bitrate))
	if best.Bitrate == 0 && best.AudioQuality != "" {
		quality = best.AudioQuality
	}
	return &models.StreamResult{
		URL:      best.URL,
		Quality:  quality,
		Source:   models.SourceInvidious,
		Instance: instance,
		Title:    body.Title,
	}, nil
}

func kbps(bitrate int) string {
	if bitrate <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d kbps", bitrate/1000)
}
