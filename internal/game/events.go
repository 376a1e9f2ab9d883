package game

// Socket event names, one per phase or tick transition.
const (
	EventHashedServerSeed = "round:hashedServerSeed"
	EventCountdown        = "round:countdown"
	EventPreparing        = "round:preparing"
	EventMultiplier       = "round:multiplier"
	EventEnd              = "round:end"

	EventInitialState = "round:state"
	EventSeedResult   = "seed:result"
	EventPong         = "pong"
)

// Emitter delivers a named event to every connected client. Delivery is
// fire-and-forget; events must leave in the order Emit is called.
type Emitter interface {
	Emit(event string, payload any)
}

type EmitterFunc func(event string, payload any)

func (f EmitterFunc) Emit(event string, payload any) { f(event, payload) }

type HashedServerSeedPayload struct {
	RoundID string                 `json:"round_id"`
	Seeds   map[VehicleKind]string `json:"seeds"`
	Phase   Phase                  `json:"phase"`
}

type CountdownPayload struct {
	RoundID   string  `json:"round_id"`
	Countdown float64 `json:"countdown"`
	Phase     Phase   `json:"phase"`
}

type PreparingPayload struct {
	RoundID string `json:"round_id"`
	Phase   Phase  `json:"phase"`
}

type MultiplierPayload struct {
	RoundID     string                  `json:"round_id"`
	Multipliers map[VehicleKind]float64 `json:"multipliers"`
	Phase       Phase                   `json:"phase"`
}

// EndPayload reveals the full provably-fair record of every vehicle.
type EndPayload struct {
	RoundID     string                             `json:"round_id"`
	Multipliers map[VehicleKind]float64            `json:"multipliers"`
	Fairness    map[VehicleKind]ProvablyFairRecord `json:"fairness"`
	Phase       Phase                              `json:"phase"`
}

// Observer receives engine lifecycle notifications for instrumentation.
type Observer interface {
	PhaseChanged(phase Phase)
	ContributionSubmitted(kind VehicleKind, result ContributionResult)
	RoundCompleted(audit RoundAudit)
	LoopFailed()
}

type nopObserver struct{}

func (nopObserver) PhaseChanged(Phase)                                    {}
func (nopObserver) ContributionSubmitted(VehicleKind, ContributionResult) {}
func (nopObserver) RoundCompleted(RoundAudit)                             {}
func (nopObserver) LoopFailed()                                           {}
