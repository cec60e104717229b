package handlers

// handlers expose the catalog and stream resolution over HTTP.
// they validate input, call into the core and shape the JSON responses.

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Thomas5624/echo-backend/catalog"
	"github.com/Thomas5624/echo-backend/lyrics"
	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/ratelimit"
	"github.com/Thomas5624/echo-backend/sentryhelper"
	"github.com/Thomas5624/echo-backend/stream"
	"github.com/Thomas5624/echo-backend/thumbnails"
)

type StreamService interface {
	GetStream(ctx context.Context, videoID string) (*models.StreamResult, error)
	Open(ctx context.Context, videoID, rangeHeader string) (*stream.Delivery, error)
}

type LyricsService interface {
	Search(ctx context.Context, query string) (*lyrics.Lyrics, error)
}

type Options struct {
	Gateway   catalog.Gateway
	Streams   StreamService
	Lyrics    LyricsService
	Limiter   *ratelimit.Limiter
	Albums    []catalog.AlbumStrategy
	ImageHTTP *http.Client
	// ImageTimeout bounds each image proxy fetch.
	ImageTimeout  time.Duration
	PublicBaseURL string
	FlacEnabled   bool
	Middleware    []gin.HandlerFunc
}

type Server struct {
	gateway       catalog.Gateway
	streams       StreamService
	lyrics        LyricsService
	limiter       *ratelimit.Limiter
	albums        []catalog.AlbumStrategy
	images        *http.Client
	imageTimeout  time.Duration
	publicBaseURL string
	flacEnabled   bool
	middleware    []gin.HandlerFunc
	logger        *log.Entry
}

func NewServer(opts Options) *Server {
	if opts.Albums == nil && opts.Gateway != nil {
		opts.Albums = catalog.DefaultAlbumStrategies(opts.Gateway)
	}
	if opts.ImageHTTP == nil {
		opts.ImageHTTP = &http.Client{}
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 10 * time.Second
	}
	return &Server{
		gateway:       opts.Gateway,
		streams:       opts.Streams,
		lyrics:        opts.Lyrics,
		limiter:       opts.Limiter,
		albums:        opts.Albums,
		images:        opts.ImageHTTP,
		imageTimeout:  opts.ImageTimeout,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		flacEnabled:   opts.FlacEnabled,
		middleware:    opts.Middleware,
		logger:        log.WithFields(log.Fields{"module": "handlers"}),
	}
}

// Router registers every route. Rate limiting applies to /api only.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.middleware...)
	router.Use(requestID(), cors())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}

	api.POST("/search", s.requireCatalog, s.handleSearch)
	api.GET("/song/:id", s.requireCatalog, s.handleSong)
	api.GET("/artist/:id", s.requireCatalog, s.handleArtist)
	api.GET("/album/:id", s.requireCatalog, s.handleAlbum)
	api.GET("/playlist/:id", s.requireCatalog, s.handlePlaylist)
	api.GET("/lyrics", s.handleLyrics)

	api.GET("/stream/:id", s.handleStream)
	api.GET("/proxy/image", s.handleImageProxy)
	api.GET("/proxy/:id", s.handleProxy)

	api.GET("/flac/status", s.handleFlacStatus)
	api.POST("/flac/download/:id", s.handleFlacDownload)

	return router
}

func (s *Server) requireCatalog(c *gin.Context) {
	if s.gateway == nil || !s.gateway.Ready() {
		s.fail(c, models.ErrNotReady)
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"catalogReady": s.gateway != nil && s.gateway.Ready(),
	})
}

func statusFor(category string) int {
	switch category {
	case models.CategoryNotReady:
		return http.StatusServiceUnavailable
	case models.CategoryValidation:
		return http.StatusBadRequest
	case models.CategoryNotFound:
		return http.StatusNotFound
	case models.CategoryUpstream:
		return http.StatusBadGateway
	case models.CategoryRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the JSON error body for err and aborts the chain.
func (s *Server) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	logger := s.logger.WithFields(log.Fields{"path": c.FullPath(), "request_id": c.GetString(requestIDKey)})

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Debug("client went away before the response")
		c.Abort()
		return
	}

	category := models.Category(err)
	status := statusFor(category)
	switch {
	case status >= http.StatusInternalServerError && category != models.CategoryNotReady:
		logger.WithFields(log.Fields{"error": err, "category": category}).Error("request failed")
		sentryhelper.CaptureException(ctx, err)
	default:
		logger.WithFields(log.Fields{"error": err, "category": category}).Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": category, "message": err.Error()})
}

// selfBaseURL is the origin clients reach this server on.
func (s *Server) selfBaseURL(c *gin.Context) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := c.Request.Host
	if forwarded := c.GetHeader("X-Forwarded-Host"); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + host
}

func (s *Server) rewriter(c *gin.Context) *thumbnails.Rewriter {
	return thumbnails.New(s.selfBaseURL(c))
}

// rewritten renders v through the thumbnail rewriter.
func (s *Server) rewritten(c *gin.Context, v any) (any, error) {
	tree, err := thumbnails.Tree(v)
	if err != nil {
		return nil, err
	}
	return s.rewriter(c).Rewrite(tree), nil
}

const requestIDKey = "request_id"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		// only tag a request hub; the process-wide hub is shared by every request
		if ctx := c.Request.Context(); sentry.GetHubFromContext(ctx) != nil {
			sentryhelper.ConfigureScope(ctx, func(scope *sentry.Scope) {
				scope.SetTag("request_id", id)
			})
		}
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Range")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
