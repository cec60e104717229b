// Package mirrors resolves audio streams through public Piped and Invidious instances when the
// primary upstream is unavailable.
package mirrors

import (
	"context"
	"net/http"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/rotation"
)

type Config struct {
	Piped     *rotation.Ring[string]
	Invidious *rotation.Ring[string]
	Timeout   time.Duration
	// PerSecond paces outbound calls per ecosystem; zero disables pacing.
	PerSecond  int
	HTTPClient *http.Client
}

type ecosystem struct {
	name      string
	instances *rotation.Ring[string]
	pace      ratelimit.Limiter
	fetch     func(ctx context.Context, instance, videoID string) (*models.StreamResult, error)
}

type Resolver struct {
	httpClient *http.Client
	timeout    time.Duration
	ecosystems []ecosystem
	logger     *log.Entry
}

func NewResolver(cfg Config) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	r := &Resolver{
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		logger:     log.WithFields(log.Fields{"module": "mirrors"}),
	}

	newPace := func() ratelimit.Limiter {
		if cfg.PerSecond <= 0 {
			return ratelimit.NewUnlimited()
		}
		return ratelimit.New(cfg.PerSecond)
	}

	if cfg.Piped != nil {
		r.ecosystems = append(r.ecosystems, ecosystem{
			name:      models.SourcePiped,
			instances: cfg.Piped,
			pace:      newPace(),
			fetch:     r.fetchPiped,
		})
	}
	if cfg.Invidious != nil {
		r.ecosystems = append(r.ecosystems, ecosystem{
			name:      models.SourceInvidious,
			instances: cfg.Invidious,
			pace:      newPace(),
			fetch:     r.fetchInvidious,
		})
	}
	return r
}

// Resolve walks every Piped instance once, then every Invidious instance once. It returns
// nil, nil when no instance had a usable stream; only cancellation of ctx is an error.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (*models.StreamResult, error) {
	logger := r.logger.WithFields(log.Fields{"video_id": videoID, "function": "Resolve"})

	span := sentry.StartSpan(ctx, "mirrors.resolve")
	span.Description = "Resolve audio stream via mirror instances"
	span.SetTag("video_id", videoID)
	defer span.Finish()

	for _, eco := range r.ecosystems {
		for _, instance := range eco.instances.Cycle() {
			if err := ctx.Err(); err != nil {
				span.Status = sentry.SpanStatusCanceled
				return nil, err
			}
			// Take cannot be interrupted, so ctx is checked again once the slot arrives
			eco.pace.Take()
			if err := ctx.Err(); err != nil {
				span.Status = sentry.SpanStatusCanceled
				return nil, err
			}

			result, err := eco.fetch(span.Context(), instance, videoID)
			if err != nil {
				logger.WithFields(log.Fields{
					"ecosystem": eco.name,
					"instance":  instance,
					"error":     err,
				}).Warn("mirror instance failed")
				continue
			}
			if result == nil {
				logger.WithFields(log.Fields{"ecosystem": eco.name, "instance": instance}).Debug("mirror has no audio streams")
				continue
			}

			logger.WithFields(log.Fields{
				"ecosystem": eco.name,
				"instance":  instance,
				"quality":   result.Quality,
			}).Info("resolved stream via mirror")
			span.Status = sentry.SpanStatusOK
			span.SetTag("ecosystem", eco.name)
			span.SetTag("instance", instance)
			return result, nil
		}
	}

	span.Status = sentry.SpanStatusNotFound
	logger.Warn("no mirror returned a usable stream")
	return nil, nil
}
