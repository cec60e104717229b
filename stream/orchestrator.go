// Package stream combines the primary upstream and the mirror ecosystems into a single
// stream lookup. The primary error is the one surfaced when every strategy fails.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/sentryhelper"
	"github.com/Thomas5624/echo-backend/youtube"
)

type PrimaryResolver interface {
	Resolve(ctx context.Context, videoID string, maxAttempts int) (*youtube.Video, youtube.Identity, error)
}

type MirrorResolver interface {
	Resolve(ctx context.Context, videoID string) (*models.StreamResult, error)
}

type Orchestrator struct {
	primary     PrimaryResolver
	mirrors     MirrorResolver
	maxAttempts int
	group       singleflight.Group
	logger      *log.Entry
}

func NewOrchestrator(primary PrimaryResolver, mirrors MirrorResolver, maxAttempts int) *Orchestrator {
	return &Orchestrator{
		primary:     primary,
		mirrors:     mirrors,
		maxAttempts: maxAttempts,
		logger:      log.WithFields(log.Fields{"module": "stream"}),
	}
}

var errNoAudio = errors.New("no audio-only formats available")

// sharedResolveTimeout bounds a coalesced resolution, which outlives any single caller.
const sharedResolveTimeout = 2 * time.Minute

// GetStream returns a playable locator for videoID. Concurrent lookups of the same id share
// one resolution; a caller leaving early does not cancel it for the others.
func (o *Orchestrator) GetStream(ctx context.Context, videoID string) (*models.StreamResult, error) {
	results := o.group.DoChan(videoID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedResolveTimeout)
		defer cancel()
		return o.getStream(shared, videoID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Shared {
			o.logger.WithFields(log.Fields{"video_id": videoID}).Debug("coalesced with an in-flight resolution")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result := *res.Val.(*models.StreamResult)
		return &result, nil
	}
}

func (o *Orchestrator) getStream(ctx context.Context, videoID string) (*models.StreamResult, error) {
	logger := o.logger.WithFields(log.Fields{"video_id": videoID, "function": "GetStream"})

	video, primaryErr := o.resolvePrimary(ctx, videoID)
	if primaryErr == nil {
		format, ok := BestAudio(video.Formats)
		if !ok {
			primaryErr = errNoAudio
		} else if streamURL, err := video.StreamURL(ctx, format); err != nil {
			primaryErr = err
		} else {
			return &models.StreamResult{
				URL:     streamURL,
				Quality: qualityLabel(format),
				Source:  models.SourcePrimary,
				Title:   video.Title,
			}, nil
		}
	}

	logger.WithFields(log.Fields{"error": primaryErr}).Info("primary upstream failed, trying mirrors")
	result, err := o.viaMirrors(ctx, videoID)
	if err != nil || result == nil {
		return nil, models.Terminal(primaryErr)
	}
	return result, nil
}

func (o *Orchestrator) resolvePrimary(ctx context.Context, videoID string) (*youtube.Video, error) {
	video, _, err := o.primary.Resolve(ctx, videoID, o.maxAttempts)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, errors.New("empty primary response")
	}
	return video, nil
}

func (o *Orchestrator) viaMirrors(ctx context.Context, videoID string) (*models.StreamResult, error) {
	if o.mirrors == nil {
		return nil, nil
	}
	result, err := o.mirrors.Resolve(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if result != nil {
		sentryhelper.CaptureMessage(ctx, fmt.Sprintf("stream %s served by %s mirror", videoID, result.Source))
	}
	return result, nil
}

// Delivery is the outcome of Open: either a redirect to a mirror URL or an open byte stream.
type Delivery struct {
	Redirect string
	Result   *models.StreamResult

	Body          io.ReadCloser
	Status        int
	ContentType   string
	ContentLength string
	ContentRange  string
	Format        youtube.Format
}

// Open prepares the binary path for videoID. The primary upstream yields a byte stream,
// forwarding rangeHeader; a mirror yields a redirect. Callers must close Body.
func (o *Orchestrator) Open(ctx context.Context, videoID, rangeHeader string) (*Delivery, error) {
	logger := o.logger.WithFields(log.Fields{"video_id": videoID, "function": "Open"})

	video, primaryErr := o.resolvePrimary(ctx, videoID)
	if primaryErr == nil {
		format, ok := DownloadFormat(video.Formats)
		if !ok {
			primaryErr = errNoAudio
		} else if resp, err := video.Open(ctx, format, rangeHeader); err != nil {
			primaryErr = err
		} else {
			contentType := resp.Header.Get("Content-Type")
			if !strings.HasPrefix(contentType, "audio/") {
				contentType = mimeBase(format.MimeType)
			}
			logger.WithFields(log.Fields{"itag": format.Itag, "status": resp.StatusCode}).Debug("streaming from primary upstream")
			return &Delivery{
				Body:          resp.Body,
				Status:        resp.StatusCode,
				ContentType:   contentType,
				ContentLength: resp.Header.Get("Content-Length"),
				ContentRange:  resp.Header.Get("Content-Range"),
				Format:        format,
			}, nil
		}
	}

	logger.WithFields(log.Fields{"error": primaryErr}).Info("primary download failed, trying mirrors")
	result, err := o.viaMirrors(ctx, videoID)
	if err != nil || result == nil {
		return nil, models.Terminal(primaryErr)
	}
	return &Delivery{Redirect: result.URL, Result: result, Status: http.StatusFound}, nil
}

// BestAudio picks the audio-only format with the highest bitrate; the first one wins ties.
func BestAudio(formats []youtube.Format) (youtube.Format, bool) {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !f.AudioOnly() {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return youtube.Format{}, false
	}
	return *best, true
}

// DownloadFormat prefers the mp4 container and falls back to any audio-only format.
func DownloadFormat(formats []youtube.Format) (youtube.Format, bool) {
	mp4 := make([]youtube.Format, 0, len(formats))
	for _, f := range formats {
		if strings.HasPrefix(f.MimeType, "audio/mp4") {
			mp4 = append(mp4, f)
		}
	}
	if f, ok := BestAudio(mp4); ok {
		return f, true
	}
	return BestAudio(formats)
}

func qualityLabel(f youtube.Format) string {
	if f.Bitrate > 0 {
		return fmt.Sprintf("%d kbps", f.Bitrate/1000)
	}
	if f.AudioQuality != "" {
		return f.AudioQuality
	}
	return "unknown"
}

func mimeBase(mimeType string) string {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		return strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return "audio/mp4"
	}
	return mimeType
}
