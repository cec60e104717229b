package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"

	"github.com/Thomas5624/echo-backend/models"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name string
		iso  string
		want time.Duration
	}{
		{name: "1min 30s", iso: "PT1M30S", want: 90 * time.Second},
		{name: "1 hour", iso: "PT1H", want: time.Hour},
		{name: "30 seconds", iso: "PT30S", want: 30 * time.Second},
		{name: "1h30m45s", iso: "PT1H30M45S", want: time.Hour + 30*time.Minute + 45*time.Second},
		{name: "1h2m", iso: "PT1H2M", want: time.Hour + 2*time.Minute},
		{name: "invalid", iso: "invalid", want: 0},
		{name: "empty", iso: "", want: 0},
		{name: "only seconds", iso: "PT0S", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDuration(tt.iso); got != tt.want {
				t.Errorf("parseDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArtistName(t *testing.T) {
	if got := artistName("Rick Astley - Topic"); got != "Rick Astley" {
		t.Errorf("artistName() = %q", got)
	}
	if got := artistName("AC&amp;DC"); got != "AC&DC" {
		t.Errorf("artistName() = %q", got)
	}
}

func TestNotReadyWithoutKey(t *testing.T) {
	gw, err := NewAPIGateway(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if gw.Ready() {
		t.Fatal("gateway without a key should not be ready")
	}
	if _, err := gw.Search(context.Background(), "x", KindSong, 5); !errors.Is(err, models.ErrNotReady) {
		t.Errorf("Search() error = %v, want not ready", err)
	}
	if _, err := gw.Album(context.Background(), "x"); !errors.Is(err, models.ErrNotReady) {
		t.Errorf("Album() error = %v, want not ready", err)
	}
}

func newTestGateway(t *testing.T, routes map[string]any) *APIGateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)

	gw, err := NewAPIGateway(context.Background(), "test-key", option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	return gw
}

func thumbnailJSON(url string, size int) map[string]any {
	return map[string]any{"default": map[string]any{"url": url, "width": size, "height": size}}
}

func TestSearchSongs(t *testing.T) {
	gw := newTestGateway(t, map[string]any{
		"/youtube/v3/search": map[string]any{
			"items": []any{
				map[string]any{
					"id":      map[string]any{"kind": "youtube#video", "videoId": "dQw4w9WgXcQ"},
					"snippet": map[string]any{"title": "Never Gonna Give You Up", "channelTitle": "Rick Astley - Topic", "channelId": "UC1", "thumbnails": thumbnailJSON("https://i.ytimg.com/a.jpg", 120)},
				},
				map[string]any{
					"id":      map[string]any{"kind": "youtube#channel", "channelId": "UC2"},
					"snippet": map[string]any{"title": "Some Channel"},
				},
			},
		},
	})

	results, err := gw.Search(context.Background(), "rick", KindSong, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.SearchResult{
		{
			Type:       models.TypeSong,
			VideoID:    "dQw4w9WgXcQ",
			Name:       "Never Gonna Give You Up",
			Artist:     &models.ArtistRef{Name: "Rick Astley", ArtistID: "UC1"},
			Thumbnails: []models.Thumbnail{{URL: "https://i.ytimg.com/a.jpg", Width: 120, Height: 120}},
		},
		{
			Type:       models.TypeArtist,
			ArtistID:   "UC2",
			Name:       "Some Channel",
			Thumbnails: []models.Thumbnail{},
		},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
}

func TestSongAndNotFound(t *testing.T) {
	gw := newTestGateway(t, map[string]any{
		"/youtube/v3/videos": map[string]any{
			"items": []any{map[string]any{
				"id":             "dQw4w9WgXcQ",
				"snippet":        map[string]any{"title": "Song", "channelTitle": "Artist"},
				"contentDetails": map[string]any{"duration": "PT3M33S"},
			}},
		},
	})

	song, err := gw.Song(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if song.Duration != 213 || song.Artist.Name != "Artist" {
		t.Errorf("Song() = %+v", song)
	}

	if _, err := gw.Artist(context.Background(), "UCmissing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Artist() error = %v, want not found", err)
	}
}

func TestAlbumFromPlaylistItems(t *testing.T) {
	gw := newTestGateway(t, map[string]any{
		"/youtube/v3/playlists": map[string]any{
			"items": []any{map[string]any{
				"id":      "OLAK5uy_x",
				"snippet": map[string]any{"title": "Album", "channelTitle": "Band - Topic", "publishedAt": "2019-05-01T00:00:00Z"},
			}},
		},
		"/youtube/v3/playlistItems": map[string]any{
			"items": []any{
				map[string]any{
					"snippet":        map[string]any{"title": "Track 1", "videoOwnerChannelTitle": "Band - Topic"},
					"contentDetails": map[string]any{"videoId": "aaaaaaaaaaa"},
				},
				map[string]any{
					"snippet":        map[string]any{"title": "Private video"},
					"contentDetails": map[string]any{"videoId": "bbbbbbbbbbb"},
				},
			},
		},
	})

	album, err := gw.Album(context.Background(), "OLAK5uy_x")
	if err != nil {
		t.Fatal(err)
	}
	if album.Year != 2019 || album.Artist.Name != "Band" || len(album.Songs) != 1 {
		t.Fatalf("Album() = %+v", album)
	}
	if album.Songs[0].Album == nil || album.Songs[0].Album.AlbumID != "OLAK5uy_x" {
		t.Errorf("song album ref = %+v", album.Songs[0].Album)
	}
}
