package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/youtube"
)

const imageUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func videoID(c *gin.Context) (string, error) {
	id := youtube.ParseVideoID(c.Param("id"))
	if id == "" {
		return "", fmt.Errorf("%w: invalid video id %q", models.ErrValidation, c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleStream(c *gin.Context) {
	id, err := videoID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	logger := s.logger.WithFields(log.Fields{"function": "handleStream", "video_id": id})

	result, err := s.streams.GetStream(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	if result.Source == models.SourcePrimary {
		// primary URLs are bound to the resolving client, so playback goes through the proxy
		result.URL = s.selfBaseURL(c) + "/api/proxy/" + id
	}
	if result.Title == "" && s.gateway != nil && s.gateway.Ready() {
		if song, err := s.gateway.Song(ctx, id); err == nil {
			result.Title = song.Name
		} else {
			logger.WithFields(log.Fields{"error": err}).Debug("title lookup failed")
		}
	}

	logger.WithFields(log.Fields{"source": result.Source, "quality": result.Quality}).Trace("stream resolved")
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleProxy(c *gin.Context) {
	id, err := videoID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	logger := s.logger.WithFields(log.Fields{"function": "handleProxy", "video_id": id})

	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

	delivery, err := s.streams.Open(c.Request.Context(), id, c.GetHeader("Range"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if delivery.Redirect != "" {
		logger.WithFields(log.Fields{"source": delivery.Result.Source}).Debug("redirecting to mirror")
		c.Redirect(http.StatusFound, delivery.Redirect)
		return
	}
	defer delivery.Body.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Type", delivery.ContentType)
	if delivery.ContentLength != "" {
		c.Header("Content-Length", delivery.ContentLength)
	}
	if delivery.ContentRange != "" {
		c.Header("Content-Range", delivery.ContentRange)
	}
	c.Status(delivery.Status)

	// headers are sent from here on, so a broken copy can only end the connection
	if _, err := io.Copy(c.Writer, delivery.Body); err != nil {
		logger.WithFields(log.Fields{"error": err}).Debug("stream copy ended early")
	}
}

func (s *Server) handleImageProxy(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		s.fail(c, fmt.Errorf("%w: url is required", models.ErrValidation))
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		s.fail(c, fmt.Errorf("%w: url must be an absolute http(s) URL", models.ErrValidation))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", models.ErrValidation, err))
		return
	}
	req.Header.Set("User-Agent", imageUserAgent)

	resp, err := s.images.Do(req)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: image fetch failed: %v", models.ErrUpstream, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.fail(c, fmt.Errorf("%w: image origin returned %d", models.ErrUpstream, resp.StatusCode))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	c.Header("Access-Control-Allow-Origin", "*")
	if length := resp.Header.Get("Content-Length"); length != "" {
		c.Header("Content-Length", length)
	}
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.WithFields(log.Fields{"function": "handleImageProxy", "error": err}).Debug("image copy ended early")
	}
}

const flacUnavailable = "FLAC downloads are not available on this deployment"

func (s *Server) handleFlacStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available": false,
		"enabled":   s.flacEnabled,
		"message":   flacUnavailable,
	})
}

func (s *Server) handleFlacDownload(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"available": false,
		"error":     models.CategoryNotReady,
		"message":   flacUnavailable,
	})
}
