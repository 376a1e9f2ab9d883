package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"duox/internal/cache"
	"duox/internal/database"
	"duox/internal/game"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

type seedRequest struct {
	UserID  string `json:"user_id"`
	Vehicle string `json:"vehicle"`
	Seed    string `json:"seed"`
}

type seedResponse struct {
	RoundID string           `json:"round_id"`
	Vehicle game.VehicleKind `json:"vehicle"`
	game.ContributionResult
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	phase := s.round.Phase()
	health := fiber.Map{
		"game": fiber.Map{
			"status":            "running",
			"phase":             phase,
			"round_id":          s.round.RoundID(),
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.db != nil {
		health["database"] = s.db.Health()
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}

	if phase == game.PhaseError {
		health["game"].(fiber.Map)["status"] = "failed"
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	return c.JSON(health)
}

// getRoundHandler returns the public snapshot of the current round
func (s *FiberServer) getRoundHandler(c *fiber.Ctx) error {
	return c.JSON(s.round.Snapshot())
}

func (s *FiberServer) getBettingHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"round_id":     s.round.RoundID(),
		"phase":        s.round.Phase(),
		"betting_open": s.round.IsBettingOpen(),
	})
}

// submitSeedHandler routes a client seed fragment to a vehicle
func (s *FiberServer) submitSeedHandler(c *fiber.Ctx) error {
	var req seedRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	resp := s.contribute(req.UserID, req.Vehicle, req.Seed)
	return c.Status(contributionStatus(resp.ContributionResult)).JSON(resp)
}

func (s *FiberServer) contribute(userID, vehicle, seed string) seedResponse {
	kind := game.VehicleKind(vehicle)
	roundID, result := s.round.SubmitContributionToRound(kind, userID, seed)
	return seedResponse{
		RoundID:            roundID,
		Vehicle:            kind,
		ContributionResult: result,
	}
}

func contributionStatus(res game.ContributionResult) int {
	switch res.Reason {
	case game.RejectNone:
		return fiber.StatusOK
	case game.RejectUnknownVehicle, game.RejectInvalidSeed, game.RejectInvalidUser:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusConflict
	}
}

func (s *FiberServer) recentRoundsHandler(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Round history is not available",
		})
	}

	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = min(n, maxRecentLimit)
	}

	rounds, err := s.history.RecentRounds(c.Context(), limit)
	if err != nil {
		s.log.Error("recent rounds", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recent rounds",
		})
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

// getRoundAuditHandler serves a completed round from the cache, falling back to the database
func (s *FiberServer) getRoundAuditHandler(c *fiber.Ctx) error {
	roundID := c.Params("roundId")

	for _, lookup := range []RoundLookup{s.history, s.audits} {
		if lookup == nil {
			continue
		}
		audit, err := lookup.GetRound(c.Context(), roundID)
		if err == nil {
			return c.JSON(audit)
		}
		if !errors.Is(err, cache.ErrRoundNotFound) && !errors.Is(err, database.ErrRoundNotFound) {
			s.log.Error("round lookup", "round_id", roundID, "error", err)
		}
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Round not found",
	})
}

// verifyHandler recomputes a published record for a third party
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var rec game.ProvablyFairRecord
	if err := c.BodyParser(&rec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(rec.ServerSeed) == "" || rec.HashedServerSeed == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "server_seed and hashed_server_seed are required",
		})
	}

	result, err := game.VerifyRecord(rec, s.fairness)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"valid":        result.Valid(),
		"verification": result,
	})
}
