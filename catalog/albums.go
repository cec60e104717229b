package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Thomas5624/echo-backend/models"
)

const (
	StrategyDirect   = "direct"
	StrategyPlaylist = "playlist"
	StrategySearch   = "search"
)

// Id prefixes of compilations and playlists that can stand in for an album.
var playlistPrefixes = []string{"OLAK5uy_", "VL", "PL", "RDCLAK"}

const (
	albumSearchLimit = 5
	songSearchLimit  = 20
)

// AlbumQuery identifies the album being recovered. Name and Artist are optional hints.
type AlbumQuery struct {
	ID     string
	Name   string
	Artist string
}

// AlbumStrategy is one way of producing an album. Resolve returns nil, nil when it does not apply.
type AlbumStrategy struct {
	Name    string
	Resolve func(ctx context.Context, q AlbumQuery) (*models.Album, error)
}

// DefaultAlbumStrategies returns the recovery order: direct lookup, playlist listing, search.
func DefaultAlbumStrategies(gw Gateway) []AlbumStrategy {
	return []AlbumStrategy{
		{Name: StrategyDirect, Resolve: directAlbum(gw)},
		{Name: StrategyPlaylist, Resolve: playlistAlbum(gw)},
		{Name: StrategySearch, Resolve: searchAlbum(gw)},
	}
}

// RecoverAlbum tries each strategy in order and returns the first album with songs.
func RecoverAlbum(ctx context.Context, strategies []AlbumStrategy, q AlbumQuery) (*models.Album, error) {
	logger := log.WithFields(log.Fields{"module": "catalog", "function": "RecoverAlbum", "album_id": q.ID})

	for _, strategy := range strategies {
		album, err := strategy.Resolve(ctx, q)
		if err != nil {
			if errors.Is(err, models.ErrNotReady) || ctx.Err() != nil {
				return nil, err
			}
			logger.WithFields(log.Fields{"strategy": strategy.Name, "error": err}).Debug("album strategy failed")
			continue
		}
		if album == nil || len(album.Songs) == 0 {
			logger.WithFields(log.Fields{"strategy": strategy.Name}).Trace("album strategy had no result")
			continue
		}

		if strategy.Name != StrategyDirect {
			logger.WithFields(log.Fields{"strategy": strategy.Name}).Info("album recovered by fallback")
		}
		album.RecoveredBy = strategy.Name
		return album, nil
	}
	return nil, fmt.Errorf("%w: album %s", models.ErrNotFound, q.ID)
}

func directAlbum(gw Gateway) func(context.Context, AlbumQuery) (*models.Album, error) {
	return func(ctx context.Context, q AlbumQuery) (*models.Album, error) {
		return gw.Album(ctx, q.ID)
	}
}

func playlistAlbum(gw Gateway) func(context.Context, AlbumQuery) (*models.Album, error) {
	return func(ctx context.Context, q AlbumQuery) (*models.Album, error) {
		if !hasPlaylistPrefix(q.ID) {
			return nil, nil
		}
		playlist, err := gw.Playlist(ctx, strings.TrimPrefix(q.ID, "VL"))
		if err != nil {
			return nil, err
		}
		album := AlbumFromPlaylist(playlist, 0)
		album.AlbumID = q.ID
		return album, nil
	}
}

func searchAlbum(gw Gateway) func(context.Context, AlbumQuery) (*models.Album, error) {
	return func(ctx context.Context, q AlbumQuery) (*models.Album, error) {
		if q.Name == "" {
			return nil, nil
		}
		query := strings.TrimSpace(q.Name + " " + q.Artist)

		hits, err := gw.Search(ctx, query, KindAlbum, albumSearchLimit)
		if err == nil {
			for _, hit := range hits {
				if hit.PlaylistID == "" {
					continue
				}
				playlist, err := gw.Playlist(ctx, hit.PlaylistID)
				if err != nil || len(playlist.Songs) == 0 {
					break
				}
				album := AlbumFromPlaylist(playlist, 0)
				album.AlbumID = q.ID
				album.Name = q.Name
				return album, nil
			}
		} else if errors.Is(err, models.ErrNotReady) {
			return nil, err
		}

		songs, err := gw.Search(ctx, query, KindSong, songSearchLimit)
		if err != nil {
			return nil, err
		}
		album := &models.Album{
			Type:       models.TypeAlbum,
			AlbumID:    q.ID,
			Name:       q.Name,
			Artist:     models.ArtistRef{Name: q.Artist},
			Thumbnails: []models.Thumbnail{},
			Songs:      make([]models.Song, 0, len(songs)),
		}
		for _, hit := range songs {
			if hit.VideoID == "" {
				continue
			}
			song := models.Song{
				Type:       models.TypeSong,
				VideoID:    hit.VideoID,
				Name:       hit.Name,
				Album:      &models.AlbumRef{Name: q.Name, AlbumID: q.ID},
				Thumbnails: hit.Thumbnails,
			}
			if hit.Artist != nil {
				song.Artist = *hit.Artist
			}
			album.Songs = append(album.Songs, song)
		}
		if len(album.Songs) > 0 && len(album.Songs[0].Thumbnails) > 0 {
			album.Thumbnails = album.Songs[0].Thumbnails
		}
		return album, nil
	}
}

func hasPlaylistPrefix(id string) bool {
	for _, prefix := range playlistPrefixes {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// AlbumFromPlaylist reshapes a playlist into an album whose songs reference it.
func AlbumFromPlaylist(p *models.Playlist, year int) *models.Album {
	album := &models.Album{
		Type:       models.TypeAlbum,
		AlbumID:    p.PlaylistID,
		PlaylistID: p.PlaylistID,
		Name:       p.Name,
		Artist:     p.Artist,
		Year:       year,
		Thumbnails: p.Thumbnails,
		Songs:      make([]models.Song, 0, len(p.Songs)),
	}
	for _, song := range p.Songs {
		song.Album = &models.AlbumRef{Name: p.Name, AlbumID: p.PlaylistID}
		album.Songs = append(album.Songs, song)
	}
	return album
}
