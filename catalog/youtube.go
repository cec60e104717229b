package catalog

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	sentry "github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"github.com/Thomas5624/echo-backend/models"
)

const (
	musicCategory   = "10"
	maxPageSize     = 50
	topSongsLimit   = 10
	topicSuffix     = " - Topic"
	videoKind       = "youtube#video"
	channelKind     = "youtube#channel"
	playlistKind    = "youtube#playlist"
	searchPart      = "snippet"
	unavailableSong = "Private video"
	deletedSong     = "Deleted video"
)

// APIGateway serves the catalog from the YouTube Data API.
type APIGateway struct {
	service *ytapi.Service
	logger  *log.Entry
}

// NewAPIGateway builds a gateway for apiKey. Without a key the gateway is returned not ready.
func NewAPIGateway(ctx context.Context, apiKey string, opts ...option.ClientOption) (*APIGateway, error) {
	g := &APIGateway{logger: log.WithFields(log.Fields{"module": "catalog"})}
	if apiKey == "" {
		g.logger.Warn("YOUTUBE_API_KEY not set, catalog routes will report not ready")
		return g, nil
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating YouTube client: %w", err)
	}
	g.service = service
	return g, nil
}

func (g *APIGateway) Ready() bool {
	return g.service != nil
}

func (g *APIGateway) Search(ctx context.Context, query, kind string, limit int) ([]models.SearchResult, error) {
	if !g.Ready() {
		return nil, models.ErrNotReady
	}
	logger := g.logger.WithFields(log.Fields{"function": "Search", "kind": kind})

	span := sentry.StartSpan(ctx, "catalog.search")
	span.Description = "Search YouTube Data API"
	span.SetTag("kind", kind)
	defer span.Finish()

	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	call := g.service.Search.List([]string{searchPart}).MaxResults(int64(limit))
	switch kind {
	case KindSong:
		call = call.Q(query).Type("video").VideoCategoryId(musicCategory)
	case KindVideo:
		call = call.Q(query).Type("video")
	case KindAlbum:
		call = call.Q(query + " album").Type("playlist")
	case KindArtist:
		call = call.Q(query).Type("channel")
	case KindPlaylist:
		call = call.Q(query).Type("playlist")
	default:
		call = call.Q(query)
	}

	response, err := call.Context(span.Context()).Do()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		logger.WithFields(log.Fields{"error": err}).Error("error querying YouTube")
		return nil, mapError(err, "search")
	}

	results := make([]models.SearchResult, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Snippet == nil {
			continue
		}
		if hit, ok := searchHit(item, kind); ok {
			results = append(results, hit)
		}
	}

	span.Status = sentry.SpanStatusOK
	span.SetData("results_count", len(results))
	logger.Tracef("found %d results", len(results))
	return results, nil
}

func searchHit(item *ytapi.SearchResult, kind string) (models.SearchResult, bool) {
	snippet := item.Snippet
	hit := models.SearchResult{
		Name:       html.UnescapeString(snippet.Title),
		Thumbnails: convertThumbnails(snippet.Thumbnails),
	}
	owner := &models.ArtistRef{Name: artistName(snippet.ChannelTitle), ArtistID: snippet.ChannelId}

	switch item.Id.Kind {
	case videoKind:
		hit.Type = models.TypeSong
		if kind == KindVideo {
			hit.Type = models.TypeVideo
		}
		hit.VideoID = item.Id.VideoId
		hit.Artist = owner
	case playlistKind:
		hit.Type = models.TypePlaylist
		hit.PlaylistID = item.Id.PlaylistId
		if kind == KindAlbum {
			hit.Type = models.TypeAlbum
			hit.AlbumID = item.Id.PlaylistId
		}
		hit.Artist = owner
	case channelKind:
		hit.Type = models.TypeArtist
		hit.ArtistID = item.Id.ChannelId
		hit.Name = artistName(hit.Name)
	default:
		return hit, false
	}
	return hit, true
}

func (g *APIGateway) Song(ctx context.Context, id string) (*models.Song, error) {
	if !g.Ready() {
		return nil, models.ErrNotReady
	}

	span := sentry.StartSpan(ctx, "catalog.song")
	span.SetTag("video_id", id)
	defer span.Finish()

	response, err := g.service.Videos.List([]string{"snippet", "contentDetails"}).Id(id).Context(span.Context()).Do()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, mapError(err, "song "+id)
	}
	if len(response.Items) == 0 || response.Items[0].Snippet == nil {
		span.Status = sentry.SpanStatusNotFound
		return nil, fmt.Errorf("%w: song %s", models.ErrNotFound, id)
	}

	video := response.Items[0]
	song := &models.Song{
		Type:       models.TypeSong,
		VideoID:    video.Id,
		Name:       html.UnescapeString(video.Snippet.Title),
		Artist:     models.ArtistRef{Name: artistName(video.Snippet.ChannelTitle), ArtistID: video.Snippet.ChannelId},
		Thumbnails: convertThumbnails(video.Snippet.Thumbnails),
	}
	if video.ContentDetails != nil {
		song.Duration = int(parseDuration(video.ContentDetails.Duration).Seconds())
	}
	span.Status = sentry.SpanStatusOK
	return song, nil
}

// Album reads an album published as a playlist.
func (g *APIGateway) Album(ctx context.Context, id string) (*models.Album, error) {
	playlist, year, err := g.playlist(ctx, id)
	if err != nil {
		return nil, err
	}
	return AlbumFromPlaylist(playlist, year), nil
}

func (g *APIGateway) Playlist(ctx context.Context, id string) (*models.Playlist, error) {
	playlist, _, err := g.playlist(ctx, id)
	return playlist, err
}

func (g *APIGateway) playlist(ctx context.Context, id string) (*models.Playlist, int, error) {
	if !g.Ready() {
		return nil, 0, models.ErrNotReady
	}
	logger := g.logger.WithFields(log.Fields{"function": "Playlist", "playlist_id": id})

	span := sentry.StartSpan(ctx, "catalog.playlist")
	span.SetTag("playlist_id", id)
	defer span.Finish()

	response, err := g.service.Playlists.List([]string{"snippet"}).Id(id).Context(span.Context()).Do()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, 0, mapError(err, "playlist "+id)
	}
	if len(response.Items) == 0 || response.Items[0].Snippet == nil {
		span.Status = sentry.SpanStatusNotFound
		return nil, 0, fmt.Errorf("%w: playlist %s", models.ErrNotFound, id)
	}

	info := response.Items[0]
	playlist := &models.Playlist{
		Type:       models.TypePlaylist,
		PlaylistID: info.Id,
		Name:       html.UnescapeString(info.Snippet.Title),
		Artist:     models.ArtistRef{Name: artistName(info.Snippet.ChannelTitle), ArtistID: info.Snippet.ChannelId},
		Thumbnails: convertThumbnails(info.Snippet.Thumbnails),
		Songs:      []models.Song{},
	}

	items, err := g.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(id).
		MaxResults(maxPageSize).
		Context(span.Context()).
		Do()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		logger.WithFields(log.Fields{"error": err}).Warn("error listing playlist items")
		return nil, 0, mapError(err, "playlist items "+id)
	}

	for _, item := range items.Items {
		if song, ok := playlistSong(item); ok {
			playlist.Songs = append(playlist.Songs, song)
		}
	}

	span.Status = sentry.SpanStatusOK
	logger.Tracef("playlist has %d songs", len(playlist.Songs))
	return playlist, publishedYear(info.Snippet.PublishedAt), nil
}

func playlistSong(item *ytapi.PlaylistItem) (models.Song, bool) {
	if item.Snippet == nil {
		return models.Song{}, false
	}
	videoID := ""
	if item.ContentDetails != nil {
		videoID = item.ContentDetails.VideoId
	}
	if videoID == "" && item.Snippet.ResourceId != nil {
		videoID = item.Snippet.ResourceId.VideoId
	}
	title := html.UnescapeString(item.Snippet.Title)
	if videoID == "" || title == unavailableSong || title == deletedSong {
		return models.Song{}, false
	}
	return models.Song{
		Type:       models.TypeSong,
		VideoID:    videoID,
		Name:       title,
		Artist:     models.ArtistRef{Name: artistName(item.Snippet.VideoOwnerChannelTitle), ArtistID: item.Snippet.VideoOwnerChannelId},
		Thumbnails: convertThumbnails(item.Snippet.Thumbnails),
	}, true
}

func (g *APIGateway) Artist(ctx context.Context, id string) (*models.Artist, error) {
	if !g.Ready() {
		return nil, models.ErrNotReady
	}

	span := sentry.StartSpan(ctx, "catalog.artist")
	span.SetTag("artist_id", id)
	defer span.Finish()

	response, err := g.service.Channels.List([]string{"snippet"}).Id(id).Context(span.Context()).Do()
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, mapError(err, "artist "+id)
	}
	if len(response.Items) == 0 || response.Items[0].Snippet == nil {
		span.Status = sentry.SpanStatusNotFound
		return nil, fmt.Errorf("%w: artist %s", models.ErrNotFound, id)
	}

	channel := response.Items[0]
	artist := &models.Artist{
		Type:       models.TypeArtist,
		ArtistID:   channel.Id,
		Name:       artistName(channel.Snippet.Title),
		Thumbnails: convertThumbnails(channel.Snippet.Thumbnails),
		TopSongs:   []models.Song{},
	}

	top, err := g.service.Search.List([]string{searchPart}).
		ChannelId(id).
		Type("video").
		Order("viewCount").
		MaxResults(topSongsLimit).
		Context(span.Context()).
		Do()
	if err != nil {
		// the channel itself resolved, so top songs are best-effort
		g.logger.WithFields(log.Fields{"function": "Artist", "artist_id": id, "error": err}).Warn("error listing top songs")
	} else {
		for _, item := range top.Items {
			if item.Id == nil || item.Snippet == nil || item.Id.VideoId == "" {
				continue
			}
			artist.TopSongs = append(artist.TopSongs, models.Song{
				Type:       models.TypeSong,
				VideoID:    item.Id.VideoId,
				Name:       html.UnescapeString(item.Snippet.Title),
				Artist:     models.ArtistRef{Name: artist.Name, ArtistID: artist.ArtistID},
				Thumbnails: convertThumbnails(item.Snippet.Thumbnails),
			})
		}
	}

	span.Status = sentry.SpanStatusOK
	return artist, nil
}

func mapError(err error, what string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", models.ErrNotFound, what)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: quota exceeded", models.ErrUpstream, what)
		}
		return fmt.Errorf("%w: %s: %s", models.ErrUpstream, what, apiErr.Message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrUpstream, what, err)
}

func convertThumbnails(details *ytapi.ThumbnailDetails) []models.Thumbnail {
	thumbnails := []models.Thumbnail{}
	if details == nil {
		return thumbnails
	}
	for _, t := range []*ytapi.Thumbnail{details.Default, details.Medium, details.High, details.Standard, details.Maxres} {
		if t == nil || t.Url == "" {
			continue
		}
		thumbnails = append(thumbnails, models.Thumbnail{URL: t.Url, Width: int(t.Width), Height: int(t.Height)})
	}
	return thumbnails
}

// artistName drops the suffix of auto-generated music channels.
func artistName(channelTitle string) string {
	return strings.TrimSuffix(html.UnescapeString(channelTitle), topicSuffix)
}

func publishedYear(publishedAt string) int {
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return 0
	}
	return t.Year()
}

// parseDuration reads the ISO 8601 durations the Data API uses, e.g. PT1H2M3S.
func parseDuration(duration string) time.Duration {
	if !strings.HasPrefix(duration, "PT") {
		return 0
	}
	duration = strings.TrimPrefix(duration, "PT")

	var total time.Duration
	for _, unit := range []struct {
		suffix string
		scale  time.Duration
	}{{"H", time.Hour}, {"M", time.Minute}, {"S", time.Second}} {
		idx := strings.Index(duration, unit.suffix)
		if idx == -1 {
			continue
		}
		n, err := strconv.ParseFloat(duration[:idx], 64)
		if err != nil {
			return 0
		}
		total += time.Duration(n * float64(unit.scale))
		duration = duration[idx+1:]
	}
	return total
}
