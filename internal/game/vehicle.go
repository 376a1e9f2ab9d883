package game

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	GrowthRate        = 0.0045
	InitialMultiplier = 1.0
	DefaultSeedPrefix = "duox"

	MaxContributionsPerVehicle = 2
	MaxSeedLength              = 20
	MaxUserIDLength            = 64

	liveDecimals = 3
)

// VehicleEngine owns one vehicle's round: its commitment, the client seed
// contributions and the live multiplier. The engine itself lives for the
// whole process; Reset clears the per-round contents.
type VehicleEngine struct {
	mu   sync.RWMutex
	kind VehicleKind
	cfg  FairnessConfig

	// newSeed is swapped in tests to commit to a known server seed.
	newSeed func() string

	currentMultiplier float64
	finalMultiplier   float64
	status            VehicleStatus
	totalPlayers      int
	totalBetAmount    float64

	contributions []SeedContribution
	clientSeed    strings.Builder
	generator     *FairnessGenerator
	finalized     bool
}

func NewVehicleEngine(kind VehicleKind, cfg FairnessConfig) *VehicleEngine {
	v := &VehicleEngine{
		kind:    kind,
		cfg:     cfg,
		newSeed: GenerateSeed,
	}
	v.resetLocked()
	return v
}

func (v *VehicleEngine) Kind() VehicleKind { return v.kind }

// StartEngine opens the round for this vehicle and returns the published
// server seed hash.
func (v *VehicleEngine) StartEngine() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.generator != nil {
		return "", fmt.Errorf("%s: %w", v.kind, ErrAlreadyCommitted)
	}

	gen := NewFairnessGenerator(v.cfg)
	hash, err := gen.CommitSeed(v.newSeed())
	if err != nil {
		return "", fmt.Errorf("%s: %w", v.kind, err)
	}
	v.generator = gen
	return hash, nil
}

// SubmitContribution appends a client seed fragment. The capacity check,
// duplicate check and append happen under one lock.
func (v *VehicleEngine) SubmitContribution(c SeedContribution) ContributionResult {
	if c.UserID == "" || utf8.RuneCountInString(c.UserID) > MaxUserIDLength {
		return rejected(RejectInvalidUser)
	}
	if strings.TrimSpace(c.Seed) == "" || utf8.RuneCountInString(c.Seed) > MaxSeedLength {
		return rejected(RejectInvalidSeed)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.generator == nil {
		return rejected(RejectNotStarted)
	}
	if v.finalized {
		return rejected(RejectFrozen)
	}
	if len(v.contributions) >= MaxContributionsPerVehicle {
		return rejected(RejectCapacity)
	}
	for _, existing := range v.contributions {
		if existing.UserID == c.UserID {
			return rejected(RejectDuplicate)
		}
	}

	v.contributions = append(v.contributions, c)
	v.clientSeed.WriteString(c.Seed)
	return accepted()
}

// Finalize reveals the outcome. With no contributions the client seed
// defaults to "duox:<kind>" so the round stays well defined.
func (v *VehicleEngine) Finalize() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.generator == nil {
		return fmt.Errorf("%s: finalize: %w", v.kind, ErrEngineNotStarted)
	}

	clientSeed := v.clientSeed.String()
	if len(v.contributions) == 0 {
		clientSeed = DefaultClientSeed(v.kind)
	}

	rec, err := v.generator.Reveal(clientSeed, v.contributions)
	if err != nil {
		return fmt.Errorf("%s: finalize: %w", v.kind, err)
	}
	v.finalMultiplier = rec.FinalMultiplier
	v.finalized = true
	return nil
}

// Tick advances the live multiplier one step, crashing the vehicle when the
// step reaches the final multiplier.
func (v *VehicleEngine) Tick() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.status == StatusCrashed {
		return nil
	}
	if !v.finalized {
		return fmt.Errorf("%s: tick: %w", v.kind, ErrNotFinalized)
	}

	// explicit conversion keeps the compiler from fusing into an FMA
	next := v.currentMultiplier + float64(v.currentMultiplier*GrowthRate)
	if next >= v.finalMultiplier {
		v.currentMultiplier = v.finalMultiplier
		v.status = StatusCrashed
		return nil
	}

	v.status = StatusRunning
	v.currentMultiplier = roundTo(next, liveDecimals)
	return nil
}

func (v *VehicleEngine) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked()
}

func (v *VehicleEngine) resetLocked() {
	v.currentMultiplier = InitialMultiplier
	v.finalMultiplier = 0
	v.status = StatusPending
	v.totalPlayers = 0
	v.totalBetAmount = 0
	v.contributions = nil
	v.clientSeed.Reset()
	v.generator = nil
	v.finalized = false
}

// UpdatePlayerStats stores aggregates owned by bet accounting.
func (v *VehicleEngine) UpdatePlayerStats(totalPlayers int, totalBetAmount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalPlayers = totalPlayers
	v.totalBetAmount = totalBetAmount
}

func (v *VehicleEngine) CurrentMultiplier() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.currentMultiplier
}

func (v *VehicleEngine) HasCrashed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status == StatusCrashed
}

func (v *VehicleEngine) Status() VehicleStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// Commitment returns the published hash, if StartEngine has run this round.
func (v *VehicleEngine) Commitment() (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.generator == nil {
		return "", false
	}
	return v.generator.Record().HashedServerSeed, true
}

// Record returns the full provably-fair record once the vehicle is revealed.
func (v *VehicleEngine) Record() (ProvablyFairRecord, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.generator == nil || !v.generator.Revealed() {
		return ProvablyFairRecord{}, false
	}
	return v.generator.Record(), true
}

// Snapshot is safe for broadcast: secrets appear only after the crash.
func (v *VehicleEngine) Snapshot() VehicleSnapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	snap := VehicleSnapshot{
		Kind:              v.kind,
		CurrentMultiplier: v.currentMultiplier,
		Status:            v.status,
		TotalPlayers:      v.totalPlayers,
		TotalBetAmount:    v.totalBetAmount,
		Contributions:     append([]SeedContribution(nil), v.contributions...),
	}
	if v.generator == nil {
		return snap
	}

	rec := v.generator.Record()
	snap.HashedServerSeed = rec.HashedServerSeed
	snap.ClientSeed = v.clientSeed.String()
	if v.finalized {
		snap.ClientSeed = rec.ClientSeed
	}
	if v.status == StatusCrashed {
		final := v.finalMultiplier
		snap.FinalMultiplier = &final
		snap.Fairness = &rec
	}
	return snap
}

// DefaultClientSeed is the seed used when nobody contributed to a vehicle.
func DefaultClientSeed(kind VehicleKind) string {
	return DefaultSeedPrefix + ":" + string(kind)
}
