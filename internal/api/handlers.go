package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/mo"

	"vodpick/internal/httputil"
	"vodpick/internal/media"
	"vodpick/internal/resolve"
	"vodpick/internal/store"
)

// ResolveInput is the body of POST /api/resolve.
type ResolveInput struct {
	Title       string `json:"title"`
	Year        string `json:"year"`
	Type        string `json:"type"`
	SearchTitle string `json:"searchTitle"`
	Source      string `json:"source"`
	ID          string `json:"id"`
	PreferBest  bool   `json:"preferBest"`
	Episode     *int   `json:"episode"`
}

// Request converts the body into a resolution request.
func (in ResolveInput) Request() (resolve.Request, error) {
	req := resolve.Request{
		Query: media.Query{
			Title:       strings.TrimSpace(in.Title),
			Year:        strings.TrimSpace(in.Year),
			SearchTitle: strings.TrimSpace(in.SearchTitle),
		},
		PreferBest: in.PreferBest,
	}
	if in.Type != "" {
		t, ok := media.ParseMediaType(in.Type)
		if !ok {
			return req, echo.NewHTTPError(http.StatusBadRequest, "type must be movie or tv")
		}
		req.Query.Type = mo.Some(t)
	}
	if in.Source != "" || in.ID != "" {
		ref, err := parseRef(in.Source, in.ID)
		if err != nil {
			return req, err
		}
		req.Hint = mo.Some(ref)
	}
	if in.Episode != nil {
		if *in.Episode < 0 {
			return req, echo.NewHTTPError(http.StatusBadRequest, "episode cannot be negative")
		}
		req.Episode = mo.Some(*in.Episode)
	}
	return req, nil
}

type resolveResponse struct {
	Accepted   bool   `json:"accepted"`
	Generation uint64 `json:"generation"`
}

type sourceInput struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

type episodeInput struct {
	Direction int `json:"direction"`
}

type positionInput struct {
	Seconds float64 `json:"seconds"`
}

type skipInput struct {
	Enabled      bool    `json:"enabled"`
	IntroSeconds float64 `json:"introSeconds"`
	OutroSeconds float64 `json:"outroSeconds"`
}

func parseRef(source, id string) (media.SourceRef, error) {
	if err := httputil.ValidateSourceKey(source); err != nil {
		return media.SourceRef{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := httputil.ValidateID(id); err != nil {
		return media.SourceRef{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return media.SourceRef{Source: source, ID: id}, nil
}

func pathRef(c echo.Context) (media.SourceRef, error) {
	return parseRef(c.Param("source"), c.Param("id"))
}

// targetError maps orchestrator errors to HTTP errors.
func targetError(err error) error {
	switch {
	case errors.Is(err, media.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, resolve.ErrNoTarget):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, resolve.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// healthCheck reports liveness.
// GET /health
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// resolve starts a resolution unless the request equals the last one.
// POST /api/resolve
func (s *Server) resolve(c echo.Context) error {
	var in ResolveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := in.Request()
	if err != nil {
		return err
	}

	accepted, generation, err := s.orch.ResolveGeneration(req)
	if err != nil {
		if errors.Is(err, resolve.ErrMissingParameters) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return targetError(err)
	}
	return c.JSON(http.StatusAccepted, resolveResponse{
		Accepted:   accepted,
		Generation: generation,
	})
}

// state returns the current snapshot.
// GET /api/state
func (s *Server) state(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Snapshot())
}

// switchSource moves playback to another discovered source.
// POST /api/source
func (s *Server) switchSource(c echo.Context) error {
	var in sourceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ref, err := parseRef(in.Source, in.ID)
	if err != nil {
		return err
	}
	target, err := s.orch.SwitchSource(ref)
	if err != nil {
		return targetError(err)
	}
	return c.JSON(http.StatusOK, target)
}

// advanceEpisode moves to the next or previous episode.
// POST /api/episode
func (s *Server) advanceEpisode(c echo.Context) error {
	var in episodeInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.Direction == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "direction must be non-zero")
	}
	target, err := s.orch.AdvanceEpisode(in.Direction)
	if err != nil {
		return targetError(err)
	}
	return c.JSON(http.StatusOK, target)
}

// reportPosition records playback progress.
// POST /api/position
func (s *Server) reportPosition(c echo.Context) error {
	var in positionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.Seconds < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "seconds cannot be negative")
	}
	s.orch.ReportPosition(in.Seconds)
	return c.NoContent(http.StatusNoContent)
}

// search runs an unfiltered catalog search.
// GET /api/search?q=
func (s *Server) search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	results, err := s.catalog.Search(c.Request().Context(), q)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if results == nil {
		results = []media.Candidate{}
	}
	return c.JSON(http.StatusOK, results)
}

// listHistory returns recent plays, newest first.
// GET /api/history
func (s *Server) listHistory(c echo.Context) error {
	limit := store.DefaultRecentLimit
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	records, err := s.library.RecentPlays(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if records == nil {
		records = []media.PlayRecord{}
	}
	return c.JSON(http.StatusOK, records)
}

// deleteHistory removes one play record.
// DELETE /api/history/:source/:id
func (s *Server) deleteHistory(c echo.Context) error {
	ref, err := pathRef(c)
	if err != nil {
		return err
	}
	if err := s.library.DeletePlayRecord(c.Request().Context(), ref); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// clearHistory removes every play record.
// DELETE /api/history
func (s *Server) clearHistory(c echo.Context) error {
	if err := s.library.ClearPlayRecords(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// listFavorites returns bookmarks, newest first.
// GET /api/favorites
func (s *Server) listFavorites(c echo.Context) error {
	favs, err := s.library.Favorites(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if favs == nil {
		favs = []media.Favorite{}
	}
	return c.JSON(http.StatusOK, favs)
}

// addFavorite bookmarks a title.
// POST /api/favorites
func (s *Server) addFavorite(c echo.Context) error {
	var fav media.Favorite
	if err := c.Bind(&fav); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := parseRef(fav.Source, fav.ID); err != nil {
		return err
	}
	if strings.TrimSpace(fav.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if err := s.library.AddFavorite(c.Request().Context(), fav); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

// removeFavorite deletes a bookmark.
// DELETE /api/favorites/:source/:id
func (s *Server) removeFavorite(c echo.Context) error {
	ref, err := pathRef(c)
	if err != nil {
		return err
	}
	if err := s.library.RemoveFavorite(c.Request().Context(), ref); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// getSkip returns intro/outro settings for a title.
// GET /api/skip/:source/:id
func (s *Server) getSkip(c echo.Context) error {
	ref, err := pathRef(c)
	if err != nil {
		return err
	}
	cfg, err := s.library.SkipConfig(c.Request().Context(), ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

// putSkip stores intro/outro settings for a title.
// PUT /api/skip/:source/:id
func (s *Server) putSkip(c echo.Context) error {
	ref, err := pathRef(c)
	if err != nil {
		return err
	}
	var in skipInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cfg := media.SkipConfig{
		Source:       ref.Source,
		ID:           ref.ID,
		Enabled:      in.Enabled,
		IntroSeconds: in.IntroSeconds,
		OutroSeconds: in.OutroSeconds,
	}
	if err := s.library.SetSkipConfig(c.Request().Context(), cfg); err != nil {
		if errors.Is(err, store.ErrInvalidSkip) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}
