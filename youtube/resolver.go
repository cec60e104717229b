package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	yt "github.com/kkdai/youtube/v2"
	log "github.com/sirupsen/logrus"

	"github.com/Thomas5624/echo-backend/rotation"
	"github.com/Thomas5624/echo-backend/sentryhelper"
)

const DefaultMaxAttempts = 5

type FailureClass int

const (
	FailureOther FailureClass = iota
	FailureRateLimited
	FailureForbidden
)

func (c FailureClass) String() string {
	switch c {
	case FailureRateLimited:
		return "rate_limited"
	case FailureForbidden:
		return "forbidden"
	default:
		return "other"
	}
}

// Classify sorts an upstream error into the class that drives its backoff.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureOther
	}

	var status yt.ErrUnexpectedStatusCode
	if errors.As(err, &status) {
		switch int(status) {
		case 429:
			return FailureRateLimited
		case 403:
			return FailureForbidden
		}
	}
	if errors.Is(err, yt.ErrLoginRequired) {
		return FailureForbidden
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "429"),
		strings.Contains(message, "too many requests"),
		strings.Contains(message, "rate limit"):
		return FailureRateLimited
	case strings.Contains(message, "403"),
		strings.Contains(message, "forbidden"),
		strings.Contains(message, "sign in to confirm"),
		strings.Contains(message, "blocked"):
		return FailureForbidden
	}
	return FailureOther
}

// Backoff is the wait before the attempt following attempt (0-based) failed with class.
func Backoff(attempt int, class FailureClass) time.Duration {
	base := 1000 * time.Millisecond
	if class == FailureRateLimited {
		base = 2000 * time.Millisecond
	}
	return base << attempt
}

// Attempt records one call against the primary upstream.
type Attempt struct {
	Index    int
	Identity Identity
	Err      error
	Class    FailureClass
	Backoff  time.Duration
}

type Resolver struct {
	selector  *rotation.Ring[Identity]
	extractor Extractor
	logger    *log.Entry

	// Sleep waits between attempts; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt, when set, observes every attempt.
	OnAttempt func(Attempt)
}

func NewResolver(selector *rotation.Ring[Identity], extractor Extractor) *Resolver {
	return &Resolver{
		selector:  selector,
		extractor: extractor,
		logger:    log.WithFields(log.Fields{"module": "youtube", "function": "Resolve"}),
		Sleep:     sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve tries up to maxAttempts identities and returns the first success or the last error.
func (r *Resolver) Resolve(ctx context.Context, videoID string, maxAttempts int) (*Video, Identity, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	logger := r.logger.WithFields(log.Fields{"video_id": videoID})

	span := sentry.StartSpan(ctx, "youtube.resolve")
	span.Description = "Resolve video info from the primary upstream"
	span.SetTag("video_id", videoID)
	defer span.Finish()

	var lastErr error
	for attempt := range maxAttempts {
		identity := r.selector.Next()

		video, err := r.extractor.Fetch(span.Context(), videoID, identity)
		if err == nil {
			r.observe(Attempt{Index: attempt, Identity: identity})
			logger.WithFields(log.Fields{"attempt": attempt + 1, "identity": identity.Name}).Debug("primary upstream resolved")
			span.Status = sentry.SpanStatusOK
			span.SetData("attempts", attempt+1)
			return video, identity, nil
		}

		lastErr = err
		class := Classify(err)
		record := Attempt{Index: attempt, Identity: identity, Err: err, Class: class}

		logger.WithFields(log.Fields{
			"attempt":  attempt + 1,
			"identity": identity.Name,
			"class":    class.String(),
			"error":    err,
		}).Warn("primary upstream attempt failed")

		if attempt == maxAttempts-1 {
			r.observe(record)
			break
		}

		record.Backoff = Backoff(attempt, class)
		r.observe(record)
		sentryhelper.AddBreadcrumb(ctx, &sentry.Breadcrumb{
			Category: "youtube.resolve",
			Message:  fmt.Sprintf("attempt %d with %s failed: %v", attempt+1, identity.Name, err),
			Level:    sentry.LevelWarning,
		})

		if err := r.Sleep(ctx, record.Backoff); err != nil {
			span.Status = sentry.SpanStatusCanceled
			return nil, Identity{}, err
		}
	}

	span.Status = sentry.SpanStatusUnavailable
	logger.WithFields(log.Fields{"attempts": maxAttempts, "error": lastErr}).Error("primary upstream exhausted")
	return nil, Identity{}, lastErr
}

func (r *Resolver) observe(a Attempt) {
	if r.OnAttempt != nil {
		r.OnAttempt(a)
	}
}
