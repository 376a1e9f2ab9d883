package game

import "errors"

// Transition errors
var (
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrWrongPhase        = errors.New("operation not allowed in current phase")
	ErrBettingNotOpen    = errors.New("betting is not open")
)

// Sequencing errors
var (
	ErrAlreadyCommitted = errors.New("server seed already committed")
	ErrNotCommitted     = errors.New("server seed not committed")
	ErrAlreadyRevealed  = errors.New("round already revealed")
	ErrEmptyClientSeed  = errors.New("client seed is empty")
	ErrEngineNotStarted = errors.New("engine not started")
	ErrNotFinalized     = errors.New("vehicle not finalized")
)

var (
	ErrUnknownVehicle   = errors.New("unknown vehicle")
	ErrAlreadyRunning   = errors.New("scheduler already running")
	ErrInvalidSeedValue = errors.New("invalid seed value")
)

// IsSequencingViolation reports whether err comes from an operation called out of order.
func IsSequencingViolation(err error) bool {
	for _, target := range []error{
		ErrAlreadyCommitted,
		ErrNotCommitted,
		ErrAlreadyRevealed,
		ErrEngineNotStarted,
		ErrNotFinalized,
		ErrWrongPhase,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsInvalidTransition reports whether err is a rejected phase change.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
