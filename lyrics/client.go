package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://lrclib.net"

type SearchResult struct {
	ID           int    `json:"id"`
	TrackName    string `json:"trackName"`
	ArtistName   string `json:"artistName"`
	AlbumName    string `json:"albumName"`
	PlainLyrics  string `json:"plainLyrics"`
	SyncedLyrics string `json:"syncedLyrics"`
}

// Lyrics is the text of the best match. Text is empty when the track has no lyrics.
type Lyrics struct {
	Track  string `json:"track"`
	Artist string `json:"artist"`
	Album  string `json:"album,omitempty"`
	Text   string `json:"lyrics"`
	Synced bool   `json:"synced"`
}

var timestampPattern = regexp.MustCompile(`\[\d+:\d+\.\d+\]`)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Entry
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.WithFields(log.Fields{"module": "lyrics"}),
	}
}

// Search returns the first lrclib match for query, or nil when nothing matched.
func (c *Client) Search(ctx context.Context, query string) (*Lyrics, error) {
	logger := c.logger.WithFields(log.Fields{"function": "Search", "query": query})

	span := sentry.StartSpan(ctx, "lyrics.search")
	span.Description = "Search lrclib"
	defer span.Finish()

	u := fmt.Sprintf("%s/api/search?q=%s", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(span.Context(), http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("lrclib API returned status %d", resp.StatusCode)
	}

	var results []SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		span.Status = sentry.SpanStatusNotFound
		logger.Trace("no lyrics found")
		return nil, nil
	}

	res := results[0]
	lyrics := &Lyrics{Track: res.TrackName, Artist: res.ArtistName, Album: res.AlbumName}
	if res.PlainLyrics != "" {
		lyrics.Text = res.PlainLyrics
	} else if res.SyncedLyrics != "" {
		lyrics.Text = strings.TrimSpace(timestampPattern.ReplaceAllString(res.SyncedLyrics, ""))
		lyrics.Synced = true
	}

	span.Status = sentry.SpanStatusOK
	return lyrics, nil
}
