package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"duox/internal/cache"
	"duox/internal/database"
	"duox/internal/game"
)

// RoundLookup finds the audit of a completed round.
type RoundLookup interface {
	GetRound(ctx context.Context, roundID string) (game.RoundAudit, error)
}

// RoundHistory lists recently completed rounds, newest first.
type RoundHistory interface {
	RoundLookup
	RecentRounds(ctx context.Context, limit int) ([]game.RoundAudit, error)
}

type FiberServer struct {
	*fiber.App

	round    *game.RoundCoordinator
	hub      *game.Hub
	fairness game.FairnessConfig

	db      database.Service
	cache   cache.Service
	audits  RoundLookup
	history RoundHistory
	metrics http.Handler

	log *slog.Logger
}

type Option func(*FiberServer)

// WithDatabase enables durable round lookups. repo may be nil.
func WithDatabase(db database.Service, repo RoundLookup) Option {
	return func(s *FiberServer) {
		s.db = db
		s.audits = repo
	}
}

// WithCache enables the recent-round history. history may be nil.
func WithCache(c cache.Service, history RoundHistory) Option {
	return func(s *FiberServer) {
		s.cache = c
		s.history = history
	}
}

func WithMetrics(h http.Handler) Option {
	return func(s *FiberServer) { s.metrics = h }
}

func New(round *game.RoundCoordinator, hub *game.Hub, fairness game.FairnessConfig, opts ...Option) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "duox",
			AppName:       "duox",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		round:    round,
		hub:      hub,
		fairness: fairness,
		log:      slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(server)
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics" || c.Path() == "/health"
		},
	}))

	return server
}

// Shutdown stops accepting requests and closes the stores.
func (s *FiberServer) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	err := s.App.ShutdownWithContext(ctx)

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}
