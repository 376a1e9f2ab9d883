package game

import (
	"time"
)

type VehicleKind string

const (
	VehicleMatatu   VehicleKind = "matatu"
	VehicleBodaboda VehicleKind = "bodaboda"
)

// VehicleKinds is the closed set of vehicles raced every round, in broadcast order.
var VehicleKinds = []VehicleKind{VehicleMatatu, VehicleBodaboda}

func ParseVehicleKind(s string) (VehicleKind, bool) {
	for _, k := range VehicleKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type VehicleStatus string

const (
	StatusPending VehicleStatus = "pending"
	StatusRunning VehicleStatus = "running"
	StatusCrashed VehicleStatus = "crashed"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseBetting   Phase = "betting"
	PhasePreparing Phase = "preparing"
	PhaseRunning   Phase = "running"
	PhaseEnded     Phase = "ended"
	PhaseError     Phase = "error"
)

// Phases lists every phase, in lifecycle order.
var Phases = []Phase{PhaseIdle, PhaseBetting, PhasePreparing, PhaseRunning, PhaseEnded, PhaseError}

// SeedContribution is one player's fragment of a vehicle's client seed.
type SeedContribution struct {
	UserID string `json:"user_id"`
	Seed   string `json:"seed"`
}

type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectBettingClosed  RejectReason = "betting_closed"
	RejectUnknownVehicle RejectReason = "unknown_vehicle"
	RejectNotStarted     RejectReason = "engine_not_started"
	RejectFrozen         RejectReason = "contributions_frozen"
	RejectCapacity       RejectReason = "vehicle_full"
	RejectDuplicate      RejectReason = "already_contributed"
	RejectInvalidSeed    RejectReason = "invalid_seed"
	RejectInvalidUser    RejectReason = "invalid_user"
	RejectAnonymous      RejectReason = "anonymous_user"
)

// ContributionResult is the outcome of a seed submission. A rejection is a
// normal result, not an error.
type ContributionResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
}

func accepted() ContributionResult { return ContributionResult{Accepted: true} }

func rejected(reason RejectReason) ContributionResult {
	return ContributionResult{Reason: reason}
}

type TopStaker struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username,omitempty"`
	Vehicle  VehicleKind `json:"vehicle"`
	Stake    float64     `json:"stake"`
}

// VehicleSnapshot is the public, read-only view of one vehicle. The server
// seed and crash point stay hidden until the vehicle has crashed.
type VehicleSnapshot struct {
	Kind              VehicleKind         `json:"kind"`
	CurrentMultiplier float64             `json:"current_multiplier"`
	Status            VehicleStatus       `json:"status"`
	FinalMultiplier   *float64            `json:"final_multiplier,omitempty"`
	TotalPlayers      int                 `json:"total_players"`
	TotalBetAmount    float64             `json:"total_bet_amount"`
	HashedServerSeed  string              `json:"hashed_server_seed,omitempty"`
	ClientSeed        string              `json:"client_seed,omitempty"`
	Contributions     []SeedContribution  `json:"contributions,omitempty"`
	Fairness          *ProvablyFairRecord `json:"fairness,omitempty"`
}

type RoundSnapshot struct {
	RoundID     string            `json:"round_id"`
	Phase       Phase             `json:"phase"`
	BettingOpen bool              `json:"betting_open"`
	TopStakers  []TopStaker       `json:"top_stakers"`
	Vehicles    []VehicleSnapshot `json:"vehicles"`
}

// VehicleAudit is the persisted proof for one vehicle of a completed round.
type VehicleAudit struct {
	RoundID     string      `json:"round_id"`
	VehicleKind VehicleKind `json:"vehicle_kind"`
	ProvablyFairRecord
}

type RoundAudit struct {
	RoundID     string         `json:"round_id"`
	CompletedAt time.Time      `json:"completed_at"`
	Vehicles    []VehicleAudit `json:"vehicles"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}
