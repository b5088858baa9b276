// Package api exposes the resolution engine over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"vodpick/internal/media"
	"vodpick/internal/resolve"
)

// Searcher runs unfiltered catalog searches.
type Searcher interface {
	Search(ctx context.Context, title string) ([]media.Candidate, error)
}

// Library is the persistent side the API reads and edits.
type Library interface {
	RecentPlays(ctx context.Context, limit int) ([]media.PlayRecord, error)
	DeletePlayRecord(ctx context.Context, ref media.SourceRef) error
	ClearPlayRecords(ctx context.Context) error
	Favorites(ctx context.Context) ([]media.Favorite, error)
	AddFavorite(ctx context.Context, fav media.Favorite) error
	RemoveFavorite(ctx context.Context, ref media.SourceRef) error
	SkipConfig(ctx context.Context, ref media.SourceRef) (media.SkipConfig, error)
	SetSkipConfig(ctx context.Context, cfg media.SkipConfig) error
}

// Server is the HTTP front end of one orchestrator.
type Server struct {
	echo    *echo.Echo
	orch    *resolve.Orchestrator
	catalog Searcher
	library Library
	hub     *Hub
	logger  zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer wires routes and starts relaying orchestrator events to
// WebSocket clients. Call Shutdown to stop it.
func NewServer(orch *resolve.Orchestrator, catalog Searcher, library Library, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		orch:    orch,
		catalog: catalog,
		library: library,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.hub = NewHub(func() any { return orch.Snapshot() }, logger)

	s.setupMiddleware()
	s.setupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	events, unsubscribe := orch.Subscribe()
	go func() {
		defer close(s.done)
		defer unsubscribe()
		s.hub.Relay(ctx, events)
	}()

	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("64K"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Warn().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api")
	api.POST("/resolve", s.resolve)
	api.GET("/state", s.state)
	api.POST("/source", s.switchSource)
	api.POST("/episode", s.advanceEpisode)
	api.POST("/position", s.reportPosition)
	api.GET("/search", s.search)

	api.GET("/history", s.listHistory)
	api.DELETE("/history", s.clearHistory)
	api.DELETE("/history/:source/:id", s.deleteHistory)

	api.GET("/favorites", s.listFavorites)
	api.POST("/favorites", s.addFavorite)
	api.DELETE("/favorites/:source/:id", s.removeFavorite)

	api.GET("/skip/:source/:id", s.getSkip)
	api.PUT("/skip/:source/:id", s.putSkip)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on address until Shutdown.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	s.cancel()
	<-s.done
	return s.echo.Shutdown(ctx)
}
