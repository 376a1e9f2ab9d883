package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhaseBetting, PhaseError},
	PhaseBetting:   {PhasePreparing, PhaseError},
	PhasePreparing: {PhaseRunning, PhaseError},
	PhaseRunning:   {PhaseEnded, PhaseError},
	PhaseEnded:     {PhaseBetting, PhaseError},
	PhaseError:     {PhaseError},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Phase) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RoundCoordinator owns the round phase and one VehicleEngine per vehicle
// kind. The Scheduler is its only writer; every other method is safe to call
// concurrently. Phase changes and the per-vehicle commit/finalize steps run
// under the write lock, so readers never see a half-applied transition.
type RoundCoordinator struct {
	mu         sync.RWMutex
	roundID    string
	phase      Phase
	topStakers []TopStaker
	vehicles   map[VehicleKind]*VehicleEngine
	order      []VehicleKind

	newRoundID func() string
	observer   Observer
}

type CoordinatorOption func(*RoundCoordinator)

// WithVehicles overrides the raced vehicle kinds.
func WithVehicles(kinds ...VehicleKind) CoordinatorOption {
	return func(rc *RoundCoordinator) { rc.order = append([]VehicleKind(nil), kinds...) }
}

func WithCoordinatorObserver(o Observer) CoordinatorOption {
	return func(rc *RoundCoordinator) {
		if o != nil {
			rc.observer = o
		}
	}
}

func NewRoundCoordinator(cfg FairnessConfig, opts ...CoordinatorOption) *RoundCoordinator {
	rc := &RoundCoordinator{
		phase:      PhaseIdle,
		order:      append([]VehicleKind(nil), VehicleKinds...),
		newRoundID: func() string { return uuid.New().String() },
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(rc)
	}

	rc.vehicles = make(map[VehicleKind]*VehicleEngine, len(rc.order))
	for _, kind := range rc.order {
		rc.vehicles[kind] = NewVehicleEngine(kind, cfg)
	}
	rc.roundID = rc.newRoundID()
	return rc
}

// SetPhase is the single gate on phase mutation.
func (rc *RoundCoordinator) SetPhase(next Phase) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !CanTransition(rc.phase, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rc.phase, next)
	}
	rc.phase = next
	rc.observer.PhaseChanged(next)
	return nil
}

// CommitAllVehicles starts every engine and returns kind -> published hash.
func (rc *RoundCoordinator) CommitAllVehicles() (map[VehicleKind]string, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.phase != PhaseBetting {
		return nil, fmt.Errorf("%w: commit requires %s, phase is %s", ErrWrongPhase, PhaseBetting, rc.phase)
	}

	hashes := make(map[VehicleKind]string, len(rc.order))
	for _, kind := range rc.order {
		hash, err := rc.vehicles[kind].StartEngine()
		if err != nil {
			return nil, err
		}
		hashes[kind] = hash
	}
	return hashes, nil
}

// FinalizeAllVehicles reveals every vehicle. Holding the write lock here is
// what freezes contributions: no submission can be in flight.
func (rc *RoundCoordinator) FinalizeAllVehicles() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.phase != PhasePreparing {
		return fmt.Errorf("%w: finalize requires %s, phase is %s", ErrWrongPhase, PhasePreparing, rc.phase)
	}

	for _, kind := range rc.order {
		if err := rc.vehicles[kind].Finalize(); err != nil {
			return err
		}
	}
	return nil
}

// TickAllVehicles advances every vehicle that has not crashed yet.
func (rc *RoundCoordinator) TickAllVehicles() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, kind := range rc.order {
		if err := rc.vehicles[kind].Tick(); err != nil {
			return err
		}
	}
	return nil
}

func (rc *RoundCoordinator) AllVehiclesCrashed() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	for _, kind := range rc.order {
		if !rc.vehicles[kind].HasCrashed() {
			return false
		}
	}
	return true
}

// IsBettingOpen is true only in BETTING and only once every vehicle has a
// published commitment.
func (rc *RoundCoordinator) IsBettingOpen() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.bettingOpenLocked()
}

func (rc *RoundCoordinator) bettingOpenLocked() bool {
	if rc.phase != PhaseBetting {
		return false
	}
	for _, kind := range rc.order {
		if _, ok := rc.vehicles[kind].Commitment(); !ok {
			return false
		}
	}
	return true
}

// SubmitContribution routes a client seed fragment to a vehicle. It holds
// the read lock for the whole call so that the phase cannot advance past
// BETTING while the fragment is being appended.
func (rc *RoundCoordinator) SubmitContribution(kind VehicleKind, userID, seed string) ContributionResult {
	_, result := rc.SubmitContributionToRound(kind, userID, seed)
	return result
}

// SubmitContributionToRound is SubmitContribution that also reports the id
// of the round the outcome applies to, read under the same lock.
func (rc *RoundCoordinator) SubmitContributionToRound(kind VehicleKind, userID, seed string) (string, ContributionResult) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	var result ContributionResult
	v, ok := rc.vehicles[kind]
	switch {
	case !ok:
		result = rejected(RejectUnknownVehicle)
	case !rc.bettingOpenLocked():
		result = rejected(RejectBettingClosed)
	default:
		result = v.SubmitContribution(SeedContribution{UserID: userID, Seed: seed})
	}

	rc.observer.ContributionSubmitted(kind, result)
	return rc.roundID, result
}

// ResetRound starts a fresh round identity and clears every vehicle. The
// phase is left alone; the next SetPhase(BETTING) opens the new round.
func (rc *RoundCoordinator) ResetRound() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.roundID = rc.newRoundID()
	rc.topStakers = nil
	for _, kind := range rc.order {
		rc.vehicles[kind].Reset()
	}
}

func (rc *RoundCoordinator) RoundID() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.roundID
}

func (rc *RoundCoordinator) Phase() Phase {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.phase
}

func (rc *RoundCoordinator) Kinds() []VehicleKind {
	return append([]VehicleKind(nil), rc.order...)
}

// Multipliers returns the live multiplier of every vehicle.
func (rc *RoundCoordinator) Multipliers() map[VehicleKind]float64 {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make(map[VehicleKind]float64, len(rc.order))
	for _, kind := range rc.order {
		out[kind] = rc.vehicles[kind].CurrentMultiplier()
	}
	return out
}

func (rc *RoundCoordinator) Snapshot() RoundSnapshot {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	snap := RoundSnapshot{
		RoundID:     rc.roundID,
		Phase:       rc.phase,
		BettingOpen: rc.bettingOpenLocked(),
		TopStakers:  append([]TopStaker{}, rc.topStakers...),
		Vehicles:    make([]VehicleSnapshot, 0, len(rc.order)),
	}
	for _, kind := range rc.order {
		snap.Vehicles = append(snap.Vehicles, rc.vehicles[kind].Snapshot())
	}
	return snap
}

// Audit collects the revealed records of every vehicle. It fails until all
// vehicles have crashed, so it can never leak a live crash point.
func (rc *RoundCoordinator) Audit() (RoundAudit, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	audit := RoundAudit{
		RoundID:     rc.roundID,
		CompletedAt: time.Now().UTC(),
		Vehicles:    make([]VehicleAudit, 0, len(rc.order)),
	}
	for _, kind := range rc.order {
		v := rc.vehicles[kind]
		rec, ok := v.Record()
		if !ok || !v.HasCrashed() {
			return RoundAudit{}, fmt.Errorf("%s: audit: %w", kind, ErrNotFinalized)
		}
		audit.Vehicles = append(audit.Vehicles, VehicleAudit{
			RoundID:            rc.roundID,
			VehicleKind:        kind,
			ProvablyFairRecord: rec,
		})
	}
	return audit, nil
}

// SetTopStakers stores the summary supplied by bet accounting.
func (rc *RoundCoordinator) SetTopStakers(stakers []TopStaker) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.topStakers = append([]TopStaker(nil), stakers...)
}

func (rc *RoundCoordinator) UpdatePlayerStats(kind VehicleKind, totalPlayers int, totalBetAmount float64) error {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	v, ok := rc.vehicles[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, kind)
	}
	v.UpdatePlayerStats(totalPlayers, totalBetAmount)
	return nil
}
