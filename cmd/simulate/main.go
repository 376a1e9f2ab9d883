package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"duox/internal/game"
	"duox/internal/logger"
)

func main() {
	var (
		rounds    = flag.Int("rounds", 100000, "number of rounds to simulate")
		sample    = flag.Int("sample", 10000, "reservoir size used for the median")
		houseEdge = flag.Float64("house-edge", 0.03, "house edge in [0, 1)")
		minMult   = flag.Float64("min", 1, "minimum multiplier")
		maxMult   = flag.Float64("max", 1000, "maximum multiplier")
		asJSON    = flag.Bool("json", false, "print the stats as JSON")
	)
	flag.Parse()

	for _, v := range []float64{*houseEdge, *minMult, *maxMult} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			flag.Usage()
			os.Exit(2)
		}
	}
	if *rounds <= 0 || *houseEdge < 0 || *houseEdge >= 1 || *minMult < 1 || *maxMult <= *minMult {
		flag.Usage()
		os.Exit(2)
	}

	stats, err := game.Simulate(game.FairnessConfig{
		HouseEdge:     *houseEdge,
		MinMultiplier: *minMult,
		MaxMultiplier: *maxMult,
	}, *rounds, *sample)
	if err != nil {
		logger.Fatal("simulation failed", "error", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			logger.Fatal("encode stats", "error", err)
		}
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "range\tcount\tprobability %\t")
	for _, b := range stats.Distribution {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t\n", b.Label, b.Count, b.Probability)
	}
	w.Flush()

	fmt.Printf("\nrounds %d  min %.2f  max %.2f  mean %.2f  median %.2f (sample %d)\n",
		stats.TotalRounds, stats.MinSeen, stats.MaxSeen, stats.Mean, stats.Median, stats.SampleSize)
}
