package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Thomas5624/echo-backend/catalog"
	"github.com/Thomas5624/echo-backend/models"
	"github.com/Thomas5624/echo-backend/thumbnails"
)

const (
	searchLimit         = 20
	searchCategoryLimit = 10
)

type searchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type"`
}

// category lists returned by a combined search, in response order
var searchCategories = []struct {
	key  string
	kind string
}{
	{"songs", catalog.KindSong},
	{"albums", catalog.KindAlbum},
	{"artists", catalog.KindArtist},
	{"playlists", catalog.KindPlaylist},
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: invalid JSON body", models.ErrValidation))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.fail(c, fmt.Errorf("%w: query is required", models.ErrValidation))
		return
	}
	kind := strings.ToLower(req.Type)

	logger := s.logger.WithFields(log.Fields{"function": "handleSearch", "kind": kind})
	ctx := c.Request.Context()
	rewriter := s.rewriter(c)

	if kind == catalog.KindAll {
		lists := make([][]models.SearchResult, len(searchCategories))
		group, groupCtx := errgroup.WithContext(ctx)
		for i, category := range searchCategories {
			group.Go(func() error {
				results, err := s.gateway.Search(groupCtx, req.Query, category.kind, searchCategoryLimit)
				if err != nil {
					return err
				}
				lists[i] = capResults(results, searchCategoryLimit)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			s.fail(c, err)
			return
		}

		response := gin.H{}
		for i, category := range searchCategories {
			items, err := rewriteResults(rewriter, lists[i])
			if err != nil {
				s.fail(c, err)
				return
			}
			response[category.key] = items
		}
		logger.Trace("combined search served")
		c.JSON(http.StatusOK, response)
		return
	}

	results, err := s.gateway.Search(ctx, req.Query, kind, searchLimit)
	if err != nil {
		s.fail(c, err)
		return
	}
	items, err := rewriteResults(rewriter, capResults(results, searchLimit))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func capResults(results []models.SearchResult, limit int) []models.SearchResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

func rewriteResults(rewriter *thumbnails.Rewriter, results []models.SearchResult) ([]any, error) {
	tree, err := thumbnails.Tree(results)
	if err != nil {
		return nil, err
	}
	list, _ := tree.([]any)
	return rewriter.RewriteResults(list), nil
}

func (s *Server) handleSong(c *gin.Context) {
	song, err := s.gateway.Song(c.Request.Context(), c.Param("id"))
	s.respond(c, song, err)
}

func (s *Server) handleArtist(c *gin.Context) {
	artist, err := s.gateway.Artist(c.Request.Context(), c.Param("id"))
	s.respond(c, artist, err)
}

func (s *Server) handlePlaylist(c *gin.Context) {
	playlist, err := s.gateway.Playlist(c.Request.Context(), c.Param("id"))
	s.respond(c, playlist, err)
}

func (s *Server) handleAlbum(c *gin.Context) {
	album, err := catalog.RecoverAlbum(c.Request.Context(), s.albums, catalog.AlbumQuery{
		ID:     c.Param("id"),
		Name:   strings.TrimSpace(c.Query("name")),
		Artist: strings.TrimSpace(c.Query("artist")),
	})
	s.respond(c, album, err)
}

func (s *Server) respond(c *gin.Context, v any, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	body, err := s.rewritten(c, v)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleLyrics(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		s.fail(c, fmt.Errorf("%w: title is required", models.ErrValidation))
		return
	}
	if s.lyrics == nil {
		s.fail(c, fmt.Errorf("%w: lyrics lookup disabled", models.ErrNotReady))
		return
	}

	query := strings.TrimSpace(title + " " + c.Query("artist"))
	result, err := s.lyrics.Search(c.Request.Context(), query)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %v", models.ErrUpstream, err))
		return
	}
	if result == nil {
		s.fail(c, fmt.Errorf("%w: no lyrics for %q", models.ErrNotFound, query))
		return
	}
	c.JSON(http.StatusOK, result)
}
