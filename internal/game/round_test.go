package game

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestCoordinator(opts ...CoordinatorOption) *RoundCoordinator {
	rc := NewRoundCoordinator(testFairness, opts...)
	for _, v := range rc.vehicles {
		v.newSeed = func() string { return testServerSeed }
	}
	return rc
}

// walk drives rc through phases, failing the test on the first error.
func walk(t *testing.T, rc *RoundCoordinator, phases ...Phase) {
	t.Helper()
	for _, p := range phases {
		if err := rc.SetPhase(p); err != nil {
			t.Fatalf("SetPhase(%s) error = %v", p, err)
		}
	}
}

func TestCanTransition_Table(t *testing.T) {
	legal := map[Phase][]Phase{
		PhaseIdle:      {PhaseBetting, PhaseError},
		PhaseBetting:   {PhasePreparing, PhaseError},
		PhasePreparing: {PhaseRunning, PhaseError},
		PhaseRunning:   {PhaseEnded, PhaseError},
		PhaseEnded:     {PhaseBetting, PhaseError},
		PhaseError:     {PhaseError},
	}

	for _, from := range Phases {
		for _, to := range Phases {
			want := false
			for _, p := range legal[from] {
				if p == to {
					want = true
				}
			}
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRoundCoordinator_SetPhase(t *testing.T) {
	// reach every phase, then try every target from it
	paths := map[Phase][]Phase{
		PhaseIdle:      {},
		PhaseBetting:   {PhaseBetting},
		PhasePreparing: {PhaseBetting, PhasePreparing},
		PhaseRunning:   {PhaseBetting, PhasePreparing, PhaseRunning},
		PhaseEnded:     {PhaseBetting, PhasePreparing, PhaseRunning, PhaseEnded},
		PhaseError:     {PhaseError},
	}

	for _, from := range Phases {
		for _, to := range Phases {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				rc := newTestCoordinator()
				walk(t, rc, paths[from]...)

				err := rc.SetPhase(to)
				if CanTransition(from, to) {
					if err != nil {
						t.Fatalf("SetPhase() error = %v", err)
					}
					if rc.Phase() != to {
						t.Errorf("Phase() = %s, want %s", rc.Phase(), to)
					}
					return
				}
				if !IsInvalidTransition(err) {
					t.Fatalf("SetPhase() error = %v, want ErrInvalidTransition", err)
				}
				if rc.Phase() != from {
					t.Errorf("phase changed to %s on a rejected transition", rc.Phase())
				}
			})
		}
	}
}

func TestRoundCoordinator_StartsIdle(t *testing.T) {
	rc := newTestCoordinator()
	if rc.Phase() != PhaseIdle {
		t.Errorf("Phase() = %s, want idle", rc.Phase())
	}
	if rc.RoundID() == "" {
		t.Error("RoundID() is empty")
	}
	if rc.IsBettingOpen() {
		t.Error("betting open before the first round")
	}
	if len(rc.Kinds()) != len(VehicleKinds) {
		t.Errorf("Kinds() = %v, want %v", rc.Kinds(), VehicleKinds)
	}
}

func TestRoundCoordinator_CommitRequiresBetting(t *testing.T) {
	rc := newTestCoordinator()
	if _, err := rc.CommitAllVehicles(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("CommitAllVehicles() error = %v, want ErrWrongPhase", err)
	}

	walk(t, rc, PhaseBetting)
	if rc.IsBettingOpen() {
		t.Error("betting open before the commitments are published")
	}
	hashes, err := rc.CommitAllVehicles()
	if err != nil {
		t.Fatalf("CommitAllVehicles() error = %v", err)
	}
	for _, kind := range VehicleKinds {
		if hashes[kind] != HashCommitment(testServerSeed) {
			t.Errorf("hash[%s] = %v", kind, hashes[kind])
		}
	}
	if !rc.IsBettingOpen() {
		t.Error("betting should be open after commit")
	}

	if _, err := rc.CommitAllVehicles(); !IsSequencingViolation(err) {
		t.Errorf("second CommitAllVehicles() error = %v, want a sequencing violation", err)
	}
}

func TestRoundCoordinator_FinalizeRequiresPreparing(t *testing.T) {
	rc := newTestCoordinator()
	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()

	if err := rc.FinalizeAllVehicles(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("FinalizeAllVehicles() in betting error = %v, want ErrWrongPhase", err)
	}

	walk(t, rc, PhasePreparing)
	if err := rc.FinalizeAllVehicles(); err != nil {
		t.Fatalf("FinalizeAllVehicles() error = %v", err)
	}
}

func TestRoundCoordinator_SubmitContributionToRound(t *testing.T) {
	rc := newTestCoordinator()
	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()

	first := rc.RoundID()
	id, res := rc.SubmitContributionToRound(VehicleMatatu, "u1", "lucky")
	if !res.Accepted || id != first {
		t.Errorf("SubmitContributionToRound() = %v, %+v, want %v, accepted", id, res, first)
	}

	rc.ResetRound()
	id, res = rc.SubmitContributionToRound(VehicleMatatu, "u2", "seven")
	if id == first || id != rc.RoundID() {
		t.Errorf("round id after reset = %v, want %v", id, rc.RoundID())
	}
	// the new round has no commitments yet
	if res.Reason != RejectBettingClosed {
		t.Errorf("after reset: got %+v, want %v", res, RejectBettingClosed)
	}
}

func TestRoundCoordinator_FullRound(t *testing.T) {
	rc := newTestCoordinator()
	roundID := rc.RoundID()

	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()

	if res := rc.SubmitContribution(VehicleMatatu, "u1", "lucky"); !res.Accepted {
		t.Fatalf("SubmitContribution() = %+v", res)
	}
	if res := rc.SubmitContribution(VehicleMatatu, "u2", "seven"); !res.Accepted {
		t.Fatalf("SubmitContribution() = %+v", res)
	}
	if res := rc.SubmitContribution("tuktuk", "u1", "x"); res.Reason != RejectUnknownVehicle {
		t.Errorf("unknown vehicle: got %+v", res)
	}

	walk(t, rc, PhasePreparing)
	if res := rc.SubmitContribution(VehicleBodaboda, "u3", "late"); res.Reason != RejectBettingClosed {
		t.Errorf("after betting: got %+v, want %v", res, RejectBettingClosed)
	}
	if err := rc.FinalizeAllVehicles(); err != nil {
		t.Fatalf("FinalizeAllVehicles() error = %v", err)
	}

	if _, err := rc.Audit(); !errors.Is(err, ErrNotFinalized) {
		t.Errorf("Audit() before crash error = %v, want ErrNotFinalized", err)
	}

	walk(t, rc, PhaseRunning)
	for !rc.AllVehiclesCrashed() {
		if err := rc.TickAllVehicles(); err != nil {
			t.Fatalf("TickAllVehicles() error = %v", err)
		}
	}

	finals := rc.Multipliers()
	if finals[VehicleMatatu] != 3.01 || finals[VehicleBodaboda] != 8.1 {
		t.Errorf("Multipliers() = %v, want matatu 3.01 and bodaboda 8.1", finals)
	}

	walk(t, rc, PhaseEnded)
	audit, err := rc.Audit()
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if audit.RoundID != roundID || len(audit.Vehicles) != 2 {
		t.Fatalf("Audit() = %+v", audit)
	}
	for _, va := range audit.Vehicles {
		if va.RoundID != roundID {
			t.Errorf("%s: RoundID = %v, want %v", va.VehicleKind, va.RoundID, roundID)
		}
		v, _ := VerifyRecord(va.ProvablyFairRecord, testFairness)
		if !v.Valid() {
			t.Errorf("%s: audit record does not verify", va.VehicleKind)
		}
	}

	rc.ResetRound()
	if rc.RoundID() == roundID {
		t.Error("ResetRound() kept the round id")
	}
	if rc.Phase() != PhaseEnded {
		t.Errorf("ResetRound() changed the phase to %s", rc.Phase())
	}
	for _, v := range rc.Snapshot().Vehicles {
		if v.CurrentMultiplier != InitialMultiplier || v.HashedServerSeed != "" {
			t.Errorf("%s not reset: %+v", v.Kind, v)
		}
	}
	walk(t, rc, PhaseBetting)
}

func TestRoundCoordinator_StatsAndStakers(t *testing.T) {
	rc := newTestCoordinator()

	if err := rc.UpdatePlayerStats(VehicleMatatu, 4, 250); err != nil {
		t.Fatalf("UpdatePlayerStats() error = %v", err)
	}
	if err := rc.UpdatePlayerStats("tuktuk", 1, 1); !errors.Is(err, ErrUnknownVehicle) {
		t.Errorf("UpdatePlayerStats() error = %v, want ErrUnknownVehicle", err)
	}
	rc.SetTopStakers([]TopStaker{{UserID: "u1", Vehicle: VehicleMatatu, Stake: 200}})

	snap := rc.Snapshot()
	if len(snap.TopStakers) != 1 {
		t.Errorf("TopStakers = %v", snap.TopStakers)
	}
	if snap.Vehicles[0].TotalPlayers != 4 || snap.Vehicles[0].TotalBetAmount != 250 {
		t.Errorf("vehicle stats = %+v", snap.Vehicles[0])
	}

	rc.ResetRound()
	if len(rc.Snapshot().TopStakers) != 0 {
		t.Error("ResetRound() kept the top stakers")
	}
}

func TestRoundCoordinator_WithVehicles(t *testing.T) {
	rc := newTestCoordinator(WithVehicles(VehicleBodaboda))
	if kinds := rc.Kinds(); len(kinds) != 1 || kinds[0] != VehicleBodaboda {
		t.Errorf("Kinds() = %v", kinds)
	}
	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()
	if res := rc.SubmitContribution(VehicleMatatu, "u1", "x"); res.Reason != RejectUnknownVehicle {
		t.Errorf("got %+v, want %v", res, RejectUnknownVehicle)
	}
}

type recordingObserver struct {
	mu            sync.Mutex
	phases        []Phase
	contributions []ContributionResult
	completed     []RoundAudit
	failures      int
}

func (o *recordingObserver) PhaseChanged(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, p)
}

func (o *recordingObserver) ContributionSubmitted(_ VehicleKind, r ContributionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.contributions = append(o.contributions, r)
}

func (o *recordingObserver) RoundCompleted(a RoundAudit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, a)
}

func (o *recordingObserver) LoopFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func TestRoundCoordinator_Observer(t *testing.T) {
	obs := &recordingObserver{}
	rc := newTestCoordinator(WithCoordinatorObserver(obs))

	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()
	rc.SubmitContribution(VehicleMatatu, "u1", "seed")
	rc.SetPhase(PhaseIdle)

	if len(obs.phases) != 1 || obs.phases[0] != PhaseBetting {
		t.Errorf("phases = %v, want only the accepted transition", obs.phases)
	}
	if len(obs.contributions) != 1 || !obs.contributions[0].Accepted {
		t.Errorf("contributions = %v", obs.contributions)
	}
}

func TestRoundCoordinator_ConcurrentReaders(t *testing.T) {
	rc := newTestCoordinator()
	walk(t, rc, PhaseBetting)
	rc.CommitAllVehicles()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = rc.Snapshot()
				_ = rc.Multipliers()
				_ = rc.IsBettingOpen()
				rc.SubmitContribution(VehicleKinds[n%2], fmt.Sprintf("u%d", n), "s")
			}
		}(i)
	}

	walk(t, rc, PhasePreparing)
	if err := rc.FinalizeAllVehicles(); err != nil {
		t.Fatalf("FinalizeAllVehicles() error = %v", err)
	}
	wg.Wait()

	for _, v := range rc.Snapshot().Vehicles {
		if len(v.Contributions) > MaxContributionsPerVehicle {
			t.Errorf("%s: %d contributions", v.Kind, len(v.Contributions))
		}
	}
	// the revealed client seed is exactly the frozen contributions
	for _, kind := range rc.Kinds() {
		rec, _ := rc.vehicles[kind].Record()
		seed := ""
		for _, c := range rec.Contributions {
			seed += c.Seed
		}
		if seed == "" {
			seed = DefaultClientSeed(kind)
		}
		if rec.ClientSeed != seed {
			t.Errorf("%s: client seed %q, contributions give %q", kind, rec.ClientSeed, seed)
		}
	}
}
