package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/youtube"
)

type fakePrimary struct {
	video *youtube.Video
	err   error
	calls atomic.Int32
	delay time.Duration
	// release, when set, holds Resolve until closed or ctx is done
	release chan struct{}
}

func (f *fakePrimary) Resolve(ctx context.Context, videoID string, maxAttempts int) (*youtube.Video, youtube.Identity, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, youtube.Identity{}, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, youtube.Identity{}, f.err
	}
	return f.video, youtube.Identity{Name: "WEB"}, nil
}

type fakeMirrors struct {
	result *models.StreamResult
	err    error
	calls  int
}

func (f *fakeMirrors) Resolve(ctx context.Context, videoID string) (*models.StreamResult, error) {
	f.calls++
	return f.result, f.err
}

func audioFormats(base string) []youtube.Format {
	return []youtube.Format{
		{Itag: 18, URL: base + "/muxed", MimeType: "video/mp4", Bitrate: 500000, AudioChannels: 2, Width: 640, Height: 360},
		{Itag: 140, URL: base + "/m4a", MimeType: "audio/mp4; codecs=\"mp4a.40.2\"", Bitrate: 130000, AudioChannels: 2},
		{Itag: 251, URL: base + "/opus", MimeType: "audio/webm; codecs=\"opus\"", Bitrate: 160000, AudioChannels: 2},
		{Itag: 250, URL: base + "/opus-dup", MimeType: "audio/webm; codecs=\"opus\"", Bitrate: 160000, AudioChannels: 2},
	}
}

func TestBestAudio(t *testing.T) {
	f, ok := BestAudio(audioFormats("https://x"))
	if !ok || f.Itag != 251 {
		t.Errorf("BestAudio() = %d %v, want itag 251 (first of the tied max)", f.Itag, ok)
	}

	if _, ok := BestAudio([]youtube.Format{{Width: 1280, Height: 720}}); ok {
		t.Error("BestAudio() should fail without audio-only formats")
	}
}

func TestDownloadFormat(t *testing.T) {
	f, ok := DownloadFormat(audioFormats("https://x"))
	if !ok || f.Itag != 140 {
		t.Errorf("DownloadFormat() = %d, want mp4 itag 140", f.Itag)
	}

	webm := []youtube.Format{{Itag: 251, MimeType: "audio/webm", Bitrate: 1, AudioChannels: 2}}
	if f, ok := DownloadFormat(webm); !ok || f.Itag != 251 {
		t.Errorf("DownloadFormat() = %d, want webm fallback 251", f.Itag)
	}
}

func TestGetStreamPrimary(t *testing.T) {
	primary := &fakePrimary{video: youtube.NewVideo("dQw4w9WgXcQ", "Never Gonna Give You Up", audioFormats("https://cdn"))}
	mirrors := &fakeMirrors{}
	o := NewOrchestrator(primary, mirrors, 5)

	result, err := o.GetStream(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if result.Source != models.SourcePrimary || result.URL != "https://cdn/opus" || result.Quality != "160 kbps" {
		t.Errorf("GetStream() = %+v", result)
	}
	if result.Title != "Never Gonna Give You Up" {
		t.Errorf("title = %q", result.Title)
	}
	if mirrors.calls != 0 {
		t.Error("mirrors should not be consulted after a primary success")
	}
}

func TestGetStreamFallsBackToMirror(t *testing.T) {
	primary := &fakePrimary{err: errors.New("sign in to confirm")}
	mirror := &models.StreamResult{URL: "https://m/a", Source: models.SourcePiped, Instance: "https://piped"}
	o := NewOrchestrator(primary, &fakeMirrors{result: mirror}, 5)

	result, err := o.GetStream(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if result.Source != models.SourcePiped || result.Instance != "https://piped" {
		t.Errorf("GetStream() = %+v", result)
	}
}

func TestGetStreamSurfacesPrimaryError(t *testing.T) {
	primaryErr := errors.New("status 403 from primary")

	tests := []struct {
		name    string
		mirrors *fakeMirrors
	}{
		{"mirror absent", &fakeMirrors{}},
		{"mirror error", &fakeMirrors{err: errors.New("mirror exploded")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(&fakePrimary{err: primaryErr}, tt.mirrors, 5)
			_, err := o.GetStream(context.Background(), "dQw4w9WgXcQ")
			if !errors.Is(err, primaryErr) {
				t.Errorf("GetStream() error = %v, want primary error", err)
			}
			if err.Error() != primaryErr.Error() {
				t.Errorf("message = %q, want %q", err.Error(), primaryErr.Error())
			}
			if models.Category(err) != models.CategoryUpstream {
				t.Errorf("category = %q", models.Category(err))
			}
		})
	}
}

func TestGetStreamNoAudioUsesMirror(t *testing.T) {
	video := youtube.NewVideo("dQw4w9WgXcQ", "x", []youtube.Format{{URL: "https://v", Width: 1920, Height: 1080}})
	mirrors := &fakeMirrors{}
	o := NewOrchestrator(&fakePrimary{video: video}, mirrors, 5)

	_, err := o.GetStream(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, errNoAudio) || mirrors.calls != 1 {
		t.Errorf("GetStream() error = %v, mirror calls = %d", err, mirrors.calls)
	}
}

func TestGetStreamCoalesces(t *testing.T) {
	primary := &fakePrimary{
		video: youtube.NewVideo("dQw4w9WgXcQ", "x", audioFormats("https://cdn")),
		delay: 50 * time.Millisecond,
	}
	o := NewOrchestrator(primary, &fakeMirrors{}, 5)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.GetStream(context.Background(), "dQw4w9WgXcQ"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := primary.calls.Load(); got >= 5 {
		t.Errorf("primary calls = %d, want concurrent lookups coalesced", got)
	}
}

func TestGetStreamCallerCancelDoesNotFailOthers(t *testing.T) {
	primary := &fakePrimary{
		video:   youtube.NewVideo("dQw4w9WgXcQ", "x", audioFormats("https://cdn")),
		release: make(chan struct{}),
	}
	o := NewOrchestrator(primary, &fakeMirrors{}, 5)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := o.GetStream(first, "dQw4w9WgXcQ")
		firstErr <- err
	}()
	for primary.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		result *models.StreamResult
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		result, err := o.GetStream(context.Background(), "dQw4w9WgXcQ")
		second <- outcome{result, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}

	close(primary.release)
	got := <-second
	if got.err != nil {
		t.Fatalf("live caller error = %v, want the shared result", got.err)
	}
	if got.result.URL != "https://cdn/opus" {
		t.Errorf("URL = %q", got.result.URL)
	}
	if calls := primary.calls.Load(); calls != 1 {
		t.Errorf("primary calls = %d, want 1", calls)
	}
}

func TestOpenPrimaryForwardsRange(t *testing.T) {
	var gotRange atomic.Value
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange.Store(r.Header.Get("Range"))
		w.Header().Set("Content-Range", "bytes 0-3/10")
		w.Header().Set("Content-Length", "4")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("abcd"))
	}))
	defer cdn.Close()

	primary := &fakePrimary{video: youtube.NewVideo("dQw4w9WgXcQ", "x", audioFormats(cdn.URL))}
	o := NewOrchestrator(primary, &fakeMirrors{}, 5)

	d, err := o.Open(context.Background(), "dQw4w9WgXcQ", "bytes=0-3")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Body.Close()

	body, _ := io.ReadAll(d.Body)
	if string(body) != "abcd" {
		t.Errorf("body = %q", body)
	}
	if d.Status != http.StatusPartialContent || d.ContentRange != "bytes 0-3/10" || d.ContentLength != "4" {
		t.Errorf("delivery = %+v", d)
	}
	if d.Format.Itag != 140 {
		t.Errorf("format = %d, want mp4 itag 140", d.Format.Itag)
	}
	if gotRange.Load() != "bytes=0-3" {
		t.Errorf("upstream Range = %v", gotRange.Load())
	}
	// the test CDN sends no type, so the server sniffs text/plain
	if d.ContentType != "audio/mp4" {
		t.Errorf("ContentType = %q, want the format's audio type", d.ContentType)
	}
}

func TestOpenContentType(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		want     string
	}{
		{"audio kept", "audio/mpeg", "audio/mpeg"},
		{"octet stream", "application/octet-stream", "audio/mp4"},
		{"html error page", "text/html; charset=utf-8", "audio/mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.upstream)
				w.Write([]byte("abcd"))
			}))
			defer cdn.Close()

			primary := &fakePrimary{video: youtube.NewVideo("dQw4w9WgXcQ", "x", audioFormats(cdn.URL))}
			d, err := NewOrchestrator(primary, &fakeMirrors{}, 5).Open(context.Background(), "dQw4w9WgXcQ", "")
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer d.Body.Close()
			if d.ContentType != tt.want {
				t.Errorf("ContentType = %q, want %q", d.ContentType, tt.want)
			}
		})
	}
}

func TestOpenRedirectsToMirror(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer cdn.Close()

	primary := &fakePrimary{video: youtube.NewVideo("dQw4w9WgXcQ", "x", audioFormats(cdn.URL))}
	mirror := &models.StreamResult{URL: "https://inv/audio", Source: models.SourceInvidious}
	o := NewOrchestrator(primary, &fakeMirrors{result: mirror}, 5)

	d, err := o.Open(context.Background(), "dQw4w9WgXcQ", "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if d.Redirect != "https://inv/audio" || d.Body != nil {
		t.Errorf("delivery = %+v, want redirect", d)
	}
}

func TestOpenSurfacesPrimaryError(t *testing.T) {
	primaryErr := errors.New("too many requests")
	o := NewOrchestrator(&fakePrimary{err: primaryErr}, &fakeMirrors{}, 5)

	if _, err := o.Open(context.Background(), "dQw4w9WgXcQ", ""); !errors.Is(err, primaryErr) {
		t.Errorf("Open() error = %v, want primary error", err)
	}
}
