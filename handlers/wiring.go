package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Thomas5624/echo-backend/catalog"
	"github.com/Thomas5624/echo-backend/config"
	"github.com/Thomas5624/echo-backend/lyrics"
	"github.com/Thomas5624/echo-backend/mirrors"
	"github.com/Thomas5624/echo-backend/ratelimit"
	"github.com/Thomas5624/echo-backend/rotation"
	"github.com/Thomas5624/echo-backend/stream"
	"github.com/Thomas5624/echo-backend/youtube"
)

// mirrorCallsPerSecond paces each mirror ecosystem so one busy process cannot hammer public instances.
const mirrorCallsPerSecond = 10

// NewFromConfig assembles the server from cfg.
func NewFromConfig(ctx context.Context, cfg *config.ConfigStruct, middleware ...gin.HandlerFunc) (*Server, error) {
	gateway, err := catalog.NewAPIGateway(ctx, cfg.Youtube.APIKey)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	primary := youtube.NewResolver(youtube.NewSelector(), youtube.NewLibraryExtractor(&http.Client{}))

	var piped, invidious *rotation.Ring[string]
	if len(cfg.Mirrors.Piped) > 0 {
		piped = rotation.New(cfg.Mirrors.Piped...)
	}
	if len(cfg.Mirrors.Invidious) > 0 {
		invidious = rotation.New(cfg.Mirrors.Invidious...)
	}
	fallback := mirrors.NewResolver(mirrors.Config{
		Piped:     piped,
		Invidious: invidious,
		Timeout:   cfg.Mirrors.Timeout,
		PerSecond: mirrorCallsPerSecond,
	})

	return NewServer(Options{
		Gateway:       gateway,
		Streams:       stream.NewOrchestrator(primary, fallback, cfg.Stream.MaxAttempts),
		Lyrics:        lyrics.New(""),
		Limiter:       ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window),
		ImageTimeout:  cfg.Stream.ImageTimeout,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		FlacEnabled:   cfg.Options.FlacEnabled,
		Middleware:    middleware,
	}), nil
}
