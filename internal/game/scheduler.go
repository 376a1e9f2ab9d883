package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	BETTING_WINDOW  = 5 * time.Second
	COUNTDOWN_TICK  = 100 * time.Millisecond
	MULTIPLIER_TICK = 100 * time.Millisecond
	END_HOLD        = 2500 * time.Millisecond

	archiveTimeout = 5 * time.Second
)

// RoundArchiver persists the audit records of a completed round.
type RoundArchiver interface {
	ArchiveRound(ctx context.Context, audit RoundAudit) error
}

type SchedulerConfig struct {
	BettingWindow  time.Duration
	CountdownTick  time.Duration
	MultiplierTick time.Duration
	EndHold        time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BettingWindow:  BETTING_WINDOW,
		CountdownTick:  COUNTDOWN_TICK,
		MultiplierTick: MULTIPLIER_TICK,
		EndHold:        END_HOLD,
	}
}

// Scheduler is the process's single control loop. It drives the
// coordinator through BETTING, PREPARING, RUNNING and ENDED forever and is
// the only caller of phase-mutating operations.
type Scheduler struct {
	round     *RoundCoordinator
	emitter   Emitter
	archivers []RoundArchiver
	observer  Observer
	cfg       SchedulerConfig
	log       *slog.Logger

	running   atomic.Bool
	drain     chan struct{}
	drainOnce sync.Once
	archiveWG sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithArchivers(archivers ...RoundArchiver) SchedulerOption {
	return func(s *Scheduler) { s.archivers = append(s.archivers, archivers...) }
}

func WithSchedulerObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func NewScheduler(round *RoundCoordinator, emitter Emitter, cfg SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		round:    round,
		emitter:  emitter,
		observer: nopObserver{},
		cfg:      cfg,
		log:      slog.Default().With("component", "scheduler"),
		drain:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until Drain is honoured (returns nil), ctx is cancelled
// (returns ctx.Err(), abandoning the in-flight round) or a phase fails. A
// phase failure traps the coordinator in ERROR and is returned to the caller,
// which is expected to exit; there is no in-process recovery.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.archiveWG.Wait()

	for {
		select {
		case <-s.drain:
			s.log.Info("drained, stopping before next round")
			return nil
		default:
		}

		if err := s.runRound(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				s.log.Warn("round abandoned", "round_id", s.round.RoundID(), "reason", ctxErr)
				return ctxErr
			}
			s.fail(err)
			return err
		}
	}
}

// Drain asks Run to stop once the in-flight round has ended.
func (s *Scheduler) Drain() {
	s.drainOnce.Do(func() { close(s.drain) })
}

func (s *Scheduler) fail(err error) {
	// ERROR is reachable from every phase, including itself.
	_ = s.round.SetPhase(PhaseError)
	s.observer.LoopFailed()
	s.log.Error("game loop failed", "round_id", s.round.RoundID(), "error", err)
}

func (s *Scheduler) runRound(ctx context.Context) error {
	if err := s.bettingPhase(ctx); err != nil {
		return fmt.Errorf("betting phase: %w", err)
	}
	if err := s.preparingPhase(); err != nil {
		return fmt.Errorf("preparing phase: %w", err)
	}
	if err := s.runningPhase(ctx); err != nil {
		return fmt.Errorf("running phase: %w", err)
	}
	if err := s.endPhase(ctx); err != nil {
		return fmt.Errorf("end phase: %w", err)
	}
	return nil
}

func (s *Scheduler) bettingPhase(ctx context.Context) error {
	if err := s.round.SetPhase(PhaseBetting); err != nil {
		return err
	}
	roundID := s.round.RoundID()

	seeds, err := s.round.CommitAllVehicles()
	if err != nil {
		return err
	}
	s.emitter.Emit(EventHashedServerSeed, HashedServerSeedPayload{
		RoundID: roundID,
		Seeds:   seeds,
		Phase:   PhaseBetting,
	})
	if !s.round.IsBettingOpen() {
		return fmt.Errorf("%w after commit", ErrBettingNotOpen)
	}

	s.log.Info("round started", "round_id", roundID, "commitments", truncateSeeds(seeds))

	endTime := time.Now().Add(s.cfg.BettingWindow)
	for !time.Now().After(endTime) {
		remaining := time.Until(endTime)
		if remaining < 0 {
			remaining = 0
		}
		s.emitter.Emit(EventCountdown, CountdownPayload{
			RoundID:   roundID,
			Countdown: roundTo(remaining.Seconds(), 1),
			Phase:     PhaseBetting,
		})
		if err := sleep(ctx, s.cfg.CountdownTick); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) preparingPhase() error {
	if err := s.round.SetPhase(PhasePreparing); err != nil {
		return err
	}
	s.emitter.Emit(EventPreparing, PreparingPayload{
		RoundID: s.round.RoundID(),
		Phase:   PhasePreparing,
	})
	return s.round.FinalizeAllVehicles()
}

func (s *Scheduler) runningPhase(ctx context.Context) error {
	if err := s.round.SetPhase(PhaseRunning); err != nil {
		return err
	}
	roundID := s.round.RoundID()

	for !s.round.AllVehiclesCrashed() {
		if err := s.round.TickAllVehicles(); err != nil {
			return err
		}
		s.emitter.Emit(EventMultiplier, MultiplierPayload{
			RoundID:     roundID,
			Multipliers: s.round.Multipliers(),
			Phase:       PhaseRunning,
		})
		if err := sleep(ctx, s.cfg.MultiplierTick); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) endPhase(ctx context.Context) error {
	if err := s.round.SetPhase(PhaseEnded); err != nil {
		return err
	}

	audit, err := s.round.Audit()
	if err != nil {
		return err
	}

	fairness := make(map[VehicleKind]ProvablyFairRecord, len(audit.Vehicles))
	finals := make(map[VehicleKind]float64, len(audit.Vehicles))
	for _, v := range audit.Vehicles {
		fairness[v.VehicleKind] = v.ProvablyFairRecord
		finals[v.VehicleKind] = v.FinalMultiplier
	}
	s.emitter.Emit(EventEnd, EndPayload{
		RoundID:     audit.RoundID,
		Multipliers: finals,
		Fairness:    fairness,
		Phase:       PhaseEnded,
	})
	s.observer.RoundCompleted(audit)
	s.archive(audit)

	s.log.Info("round ended", "round_id", audit.RoundID, "multipliers", finals)

	if err := sleep(ctx, s.cfg.EndHold); err != nil {
		return err
	}
	s.round.ResetRound()
	return nil
}

// archive hands the audit to every archiver off the control loop; archive
// failures are logged, never fatal to the round.
func (s *Scheduler) archive(audit RoundAudit) {
	for _, a := range s.archivers {
		s.archiveWG.Add(1)
		go func(a RoundArchiver) {
			defer s.archiveWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := a.ArchiveRound(ctx, audit); err != nil {
				s.log.Error("archive round failed", "round_id", audit.RoundID, "archiver", fmt.Sprintf("%T", a), "error", err)
			}
		}(a)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncateSeeds(seeds map[VehicleKind]string) map[VehicleKind]string {
	out := make(map[VehicleKind]string, len(seeds))
	for k, v := range seeds {
		if len(v) > 16 {
			v = v[:16] + "..."
		}
		out[k] = v
	}
	return out
}
