package game

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// DistributionBucket counts crash points in [MinInc, MaxExc). A zero MaxExc
// leaves the bucket open-ended.
type DistributionBucket struct {
	Label       string  `json:"label"`
	MinInc      float64 `json:"min_inclusive"`
	MaxExc      float64 `json:"max_exclusive,omitempty"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
}

func (b DistributionBucket) contains(v float64) bool {
	return v >= b.MinInc && (b.MaxExc == 0 || v < b.MaxExc)
}

// MultiplierDistribution is the bucket table used to summarise simulated crash points.
var MultiplierDistribution = []DistributionBucket{
	{Label: "1-2", MinInc: 1, MaxExc: 2},
	{Label: "2-3", MinInc: 2, MaxExc: 3},
	{Label: "3-5", MinInc: 3, MaxExc: 5},
	{Label: "5-10", MinInc: 5, MaxExc: 10},
	{Label: "10-30", MinInc: 10, MaxExc: 30},
	{Label: "30-50", MinInc: 30, MaxExc: 50},
	{Label: "50-100", MinInc: 50, MaxExc: 100},
	{Label: "100-500", MinInc: 100, MaxExc: 500},
	{Label: "500-1000", MinInc: 500, MaxExc: 1000},
	{Label: "1000-5000", MinInc: 1000, MaxExc: 5000},
	{Label: "5000+", MinInc: 5000},
}

type SimulationStats struct {
	Distribution []DistributionBucket `json:"distribution"`
	MinSeen      float64              `json:"min_seen"`
	MaxSeen      float64              `json:"max_seen"`
	Mean         float64              `json:"mean"`
	Median       float64              `json:"median"`
	SampleSize   int                  `json:"sample_size"`
	TotalRounds  int                  `json:"total_rounds"`
}

// Simulate runs rounds full commit-reveal cycles with fresh server seeds and
// the default client seed, and summarises the resulting crash points. The
// median is taken over a reservoir sample of at most sampleSize values.
func Simulate(cfg FairnessConfig, rounds, sampleSize int) (SimulationStats, error) {
	if rounds < 0 {
		return SimulationStats{}, fmt.Errorf("rounds must not be negative, got %d", rounds)
	}
	if sampleSize <= 0 || sampleSize > rounds {
		sampleSize = rounds
	}

	buckets := make([]DistributionBucket, len(MultiplierDistribution))
	copy(buckets, MultiplierDistribution)

	var (
		total     float64
		minSeen   = math.Inf(1)
		maxSeen   = math.Inf(-1)
		reservoir = make([]float64, 0, sampleSize)
	)

	for i := 0; i < rounds; i++ {
		gen := NewFairnessGenerator(cfg)
		if _, err := gen.Commit(); err != nil {
			return SimulationStats{}, err
		}
		rec, err := gen.Reveal(DefaultSeedPrefix+":testing", nil)
		if err != nil {
			return SimulationStats{}, err
		}

		value := rec.FinalMultiplier
		total += value
		minSeen = math.Min(minSeen, value)
		maxSeen = math.Max(maxSeen, value)

		if len(reservoir) < sampleSize {
			reservoir = append(reservoir, value)
		} else if j := rand.IntN(i + 1); j < sampleSize {
			reservoir[j] = value
		}

		for b := range buckets {
			if buckets[b].contains(value) {
				buckets[b].Count++
				break
			}
		}
	}

	stats := SimulationStats{
		Distribution: buckets,
		SampleSize:   len(reservoir),
		TotalRounds:  rounds,
	}
	if rounds == 0 {
		return stats, nil
	}
	for b := range buckets {
		buckets[b].Probability = roundTo(float64(buckets[b].Count)/float64(rounds)*100, 2)
	}
	stats.MinSeen = roundTo(minSeen, 2)
	stats.MaxSeen = roundTo(maxSeen, 2)
	stats.Mean = roundTo(total/float64(rounds), 2)
	stats.Median = roundTo(median(reservoir), 2)
	return stats, nil
}

func median(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
