package models

type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ArtistRef struct {
	Name     string `json:"name"`
	ArtistID string `json:"artistId,omitempty"`
}

type AlbumRef struct {
	Name    string `json:"name"`
	AlbumID string `json:"albumId,omitempty"`
}

type Song struct {
	Type       string      `json:"type"`
	VideoID    string      `json:"videoId"`
	Name       string      `json:"name"`
	Artist     ArtistRef   `json:"artist"`
	Album      *AlbumRef   `json:"album,omitempty"`
	Duration   int         `json:"duration,omitempty"` // seconds
	Thumbnails []Thumbnail `json:"thumbnails"`
}

type Album struct {
	Type        string      `json:"type"`
	AlbumID     string      `json:"albumId"`
	PlaylistID  string      `json:"playlistId,omitempty"`
	Name        string      `json:"name"`
	Artist      ArtistRef   `json:"artist"`
	Year        int         `json:"year,omitempty"`
	Thumbnails  []Thumbnail `json:"thumbnails"`
	Songs       []Song      `json:"songs"`
	RecoveredBy string      `json:"recoveredBy,omitempty"`
}

type Artist struct {
	Type       string      `json:"type"`
	ArtistID   string      `json:"artistId"`
	Name       string      `json:"name"`
	Thumbnails []Thumbnail `json:"thumbnails"`
	TopSongs   []Song      `json:"topSongs"`
}

type Playlist struct {
	Type       string      `json:"type"`
	PlaylistID string      `json:"playlistId"`
	Name       string      `json:"name"`
	Artist     ArtistRef   `json:"artist"`
	Thumbnails []Thumbnail `json:"thumbnails"`
	Songs      []Song      `json:"songs"`
}

// SearchResult is one hit of a catalog search. Only the identifiers relevant to Type are set.
type SearchResult struct {
	Type       string      `json:"type"`
	VideoID    string      `json:"videoId,omitempty"`
	AlbumID    string      `json:"albumId,omitempty"`
	PlaylistID string      `json:"playlistId,omitempty"`
	ArtistID   string      `json:"artistId,omitempty"`
	Name       string      `json:"name"`
	Artist     *ArtistRef  `json:"artist,omitempty"`
	Thumbnails []Thumbnail `json:"thumbnails"`
}

const (
	TypeSong     = "SONG"
	TypeVideo    = "VIDEO"
	TypeAlbum    = "ALBUM"
	TypeArtist   = "ARTIST"
	TypePlaylist = "PLAYLIST"
)

const (
	SourcePrimary   = "primary"
	SourcePiped     = "piped"
	SourceInvidious = "invidious"
)

// StreamResult is a playable audio locator and where it came from.
type StreamResult struct {
	URL      string `json:"url"`
	Quality  string `json:"quality"`
	Source   string `json:"source"`
	Instance string `json:"instance,omitempty"`
	Title    string `json:"title"`
}
