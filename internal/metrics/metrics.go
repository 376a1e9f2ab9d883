package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duox/internal/game"
)

const namespace = "duox"

// Recorder exports round lifecycle metrics. It implements game.Observer.
type Recorder struct {
	registry *prometheus.Registry

	phase         *prometheus.GaugeVec
	rounds        prometheus.Counter
	contributions *prometheus.CounterVec
	crashPoints   *prometheus.HistogramVec
	failures      prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_phase",
			Help:      "1 for the current round phase, 0 otherwise.",
		}, []string{"phase"}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_completed_total",
			Help:      "Rounds that reached the ended phase.",
		}),
		contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seed_contributions_total",
			Help:      "Client seed submissions by vehicle and outcome.",
		}, []string{"vehicle", "outcome"}),
		crashPoints: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crash_multiplier",
			Help:      "Final multiplier of each vehicle.",
			Buckets:   []float64{1.01, 1.5, 2, 3, 5, 10, 30, 100, 1000},
		}, []string{"vehicle"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_loop_failures_total",
			Help:      "Times the control loop stopped in the error phase.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.phase,
		r.rounds,
		r.contributions,
		r.crashPoints,
		r.failures,
	)
	for _, p := range game.Phases {
		r.phase.WithLabelValues(string(p)).Set(0)
	}
	return r
}

// TrackClients exports the live websocket client count.
func (r *Recorder) TrackClients(count func() int) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected websocket clients.",
	}, func() float64 { return float64(count()) }))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) PhaseChanged(phase game.Phase) {
	for _, p := range game.Phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.phase.WithLabelValues(string(p)).Set(v)
	}
}

func (r *Recorder) ContributionSubmitted(kind game.VehicleKind, result game.ContributionResult) {
	outcome := "accepted"
	if !result.Accepted {
		outcome = string(result.Reason)
	}
	vehicle := string(kind)
	if _, ok := game.ParseVehicleKind(vehicle); !ok {
		// client supplied; keep label cardinality bounded
		vehicle = "unknown"
	}
	r.contributions.WithLabelValues(vehicle, outcome).Inc()
}

func (r *Recorder) RoundCompleted(audit game.RoundAudit) {
	r.rounds.Inc()
	for _, v := range audit.Vehicles {
		r.crashPoints.WithLabelValues(string(v.VehicleKind)).Observe(v.FinalMultiplier)
	}
}

func (r *Recorder) LoopFailed() {
	r.failures.Inc()
}
