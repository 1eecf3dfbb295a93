package server

import (
	"fmt"
	"regexp"

	"github.com/gofiber/fiber/v2"

	"pinarch/internal/archive"
	"pinarch/internal/config"
	"pinarch/internal/model"
)

// Store is the catalog surface the serving layer needs.
type Store interface {
	ListPins(offset, limit int, sort string) ([]model.Pin, error)
	CountPins() (int64, error)
	PinExists(pinID string) (bool, error)
	FindPinByPinID(pinID string) (*model.Pin, error)
	FindPinByFileID(fileID string) (*model.Pin, error)
	InsertPin(pin model.Pin) (bool, error)
	DeletePinByPinID(pinID string) error
}

// Server exposes the catalog over HTTP: a JSON API under /api and the
// media blobs under /images.
type Server struct {
	app      *fiber.App
	cfg      config.ServerConfig
	store    Store
	fetcher  *MediaFetcher
	mediaDir string
	logger   archive.Logger
	origin   *regexp.Regexp
}

// New builds a Server from config. mediaDir is the directory holding the
// content-addressed media blobs.
func New(cfg config.ServerConfig, store Store, mediaDir string, logger archive.Logger) (*Server, error) {
	var origin *regexp.Regexp
	if cfg.AllowedOriginPattern != "" {
		var err error
		origin, err = regexp.Compile(cfg.AllowedOriginPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling allowed origin pattern: %w", err)
		}
	}

	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		cfg:      cfg,
		store:    store,
		fetcher:  NewMediaFetcher(mediaDir, logger),
		mediaDir: mediaDir,
		logger:   logger,
		origin:   origin,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.app.Use(s.cors)

	api := s.app.Group("/api")
	api.Get("/pins", s.listPins)
	api.Post("/pins", s.addPin)
	api.Post("/pins/check", s.checkPins)
	api.Delete("/pins/:pin_id", s.deletePin)

	s.app.Get("/images/:filename", s.serveImage)
}

// cors reflects the Origin header back when it matches the configured
// pattern, and short-circuits preflight requests.
func (s *Server) cors(c *fiber.Ctx) error {
	origin := c.Get(fiber.HeaderOrigin)
	if origin != "" && s.origin != nil && s.origin.MatchString(origin) {
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, DELETE, OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type")
	}
	if c.Method() == fiber.MethodOptions {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Next()
}

// Listen serves until the process is interrupted or Shutdown is called.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("serving catalog", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for in-process request testing.
func (s *Server) App() *fiber.App {
	return s.app
}
