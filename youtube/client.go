package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	yt "github.com/kkdai/youtube/v2"
	log "github.com/sirupsen/logrus"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID accepts a bare video id or a watch, music, shorts or youtu.be URL.
func ParseVideoID(input string) string {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input
	}

	parsedURL, err := url.Parse(input)
	if err != nil {
		return ""
	}

	var id string
	switch parsedURL.Host {
	case "www.youtube.com", "youtube.com", "music.youtube.com", "m.youtube.com":
		if strings.HasPrefix(parsedURL.Path, "/shorts/") {
			id = strings.TrimPrefix(parsedURL.Path, "/shorts/")
		} else {
			id = parsedURL.Query().Get("v")
		}
	case "youtu.be":
		id = strings.TrimPrefix(parsedURL.Path, "/")
	}

	if videoIDPattern.MatchString(id) {
		return id
	}
	return ""
}

type Format struct {
	Itag          int
	URL           string
	MimeType      string
	Bitrate       int
	AudioChannels int
	AudioQuality  string
	Width         int
	Height        int
	ContentLength int64
}

func (f Format) AudioOnly() bool {
	return f.AudioChannels > 0 && f.Width == 0 && f.Height == 0
}

// Video is the primary upstream's description of one video and its formats.
type Video struct {
	ID       string
	Title    string
	Author   string
	Formats  []Format
	Identity Identity

	source *yt.Video
	client *yt.Client
	// lock guards the library's shared persona, see LibraryExtractor
	lock *sync.Mutex
}

// NewVideo builds a Video whose format URLs are used as-is.
func NewVideo(id, title string, formats []Format) *Video {
	return &Video{ID: id, Title: title, Formats: formats}
}

// StreamURL returns a fetchable URL for f, deciphering it through the library when needed.
func (v *Video) StreamURL(ctx context.Context, f Format) (string, error) {
	if v.client == nil || v.source == nil {
		if f.URL == "" {
			return "", fmt.Errorf("format %d has no url", f.Itag)
		}
		return f.URL, nil
	}

	for i := range v.source.Formats {
		if v.source.Formats[i].ItagNo == f.Itag {
			var (
				streamURL string
				err       error
			)
			v.withPersona(func() {
				streamURL, err = v.client.GetStreamURLContext(ctx, v.source, &v.source.Formats[i])
			})
			return streamURL, err
		}
	}
	return "", fmt.Errorf("format %d not found for %s", f.Itag, v.ID)
}

// withPersona runs fn with the resolving identity applied. The library client points at a
// package variable, so the persona is re-applied under the extractor lock before each call.
func (v *Video) withPersona(fn func()) {
	if v.lock != nil {
		v.lock.Lock()
		defer v.lock.Unlock()
	}
	if v.Identity.persona != nil {
		v.Identity.persona()
	}
	fn()
}

var streamClient = &http.Client{}

// Open starts a download of f, forwarding rangeHeader when set.
func (v *Video) Open(ctx context.Context, f Format, rangeHeader string) (*http.Response, error) {
	streamURL, err := v.StreamURL(ctx, f)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	if v.Identity.UserAgent != "" {
		req.Header.Set("User-Agent", v.Identity.UserAgent)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, yt.ErrUnexpectedStatusCode(resp.StatusCode)
	}
	return resp, nil
}

type Extractor interface {
	Fetch(ctx context.Context, videoID string, identity Identity) (*Video, error)
}

// LibraryExtractor fetches video info with kkdai/youtube.
type LibraryExtractor struct {
	httpClient *http.Client
	// the library reads its persona from a package variable, so switches are serialized
	mutex  sync.Mutex
	logger *log.Entry
}

func NewLibraryExtractor(httpClient *http.Client) *LibraryExtractor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LibraryExtractor{
		httpClient: httpClient,
		logger:     log.WithFields(log.Fields{"module": "youtube", "function": "Fetch"}),
	}
}

func (e *LibraryExtractor) Fetch(ctx context.Context, videoID string, identity Identity) (*Video, error) {
	e.mutex.Lock()
	if identity.persona != nil {
		identity.persona()
	}
	client := &yt.Client{HTTPClient: e.httpClient}
	source, err := client.GetVideoContext(ctx, videoID)
	e.mutex.Unlock()

	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("empty video response")
	}

	formats := make([]Format, 0, len(source.Formats))
	for _, f := range source.Formats {
		bitrate := f.Bitrate
		if bitrate == 0 {
			bitrate = f.AverageBitrate
		}
		formats = append(formats, Format{
			Itag:          f.ItagNo,
			URL:           f.URL,
			MimeType:      f.MimeType,
			Bitrate:       bitrate,
			AudioChannels: f.AudioChannels,
			AudioQuality:  f.AudioQuality,
			Width:         f.Width,
			Height:        f.Height,
			ContentLength: f.ContentLength,
		})
	}

	e.logger.WithFields(log.Fields{
		"video_id": videoID,
		"identity": identity.Name,
		"formats":  len(formats),
	}).Trace("video info fetched")

	return &Video{
		ID:       source.ID,
		Title:    source.Title,
		Author:   source.Author,
		Formats:  formats,
		Identity: identity,
		source:   source,
		client:   client,
		lock:     &e.mutex,
	}, nil
}
