// Package catalog looks up music metadata: search, songs, albums, artists and playlists.
package catalog

import (
	"context"

	"github.com/Thomas5624/echo-backend/models"
)

const (
	KindSong     = "song"
	KindVideo    = "video"
	KindAlbum    = "album"
	KindArtist   = "artist"
	KindPlaylist = "playlist"
	KindAll      = "all"
)

// Gateway is the catalog provider. Lookups of absent content return models.ErrNotFound;
// calls made before the gateway is ready return models.ErrNotReady.
type Gateway interface {
	Ready() bool
	Search(ctx context.Context, query, kind string, limit int) ([]models.SearchResult, error)
	Song(ctx context.Context, id string) (*models.Song, error)
	Album(ctx context.Context, id string) (*models.Album, error)
	Artist(ctx context.Context, id string) (*models.Artist, error)
	Playlist(ctx context.Context, id string) (*models.Playlist, error)
}
