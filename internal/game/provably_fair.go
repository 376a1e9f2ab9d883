package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// 13 hex chars = 52 bits, exactly representable in a float64 mantissa.
	hashSliceLen = 13
	hashBits     = hashSliceLen * 4
	seedBytes    = 32

	multiplierDecimals = 2
)

var maxHashValue = math.Pow(2, hashBits) - 1

// FairnessConfig is copied into every record at generation time.
type FairnessConfig struct {
	HouseEdge     float64
	MinMultiplier float64
	MaxMultiplier float64
}

// ProvablyFairRecord is everything a third party needs to recompute a
// vehicle's crash point.
type ProvablyFairRecord struct {
	ServerSeed       string             `json:"server_seed"`
	HashedServerSeed string             `json:"hashed_server_seed"`
	ClientSeed       string             `json:"client_seed"`
	Contributions    []SeedContribution `json:"contributions"`
	CombinedHash     string             `json:"combined_hash"`
	HashAsDecimal    uint64             `json:"hash_as_decimal"`
	NormalizedValue  float64            `json:"normalized_value"`
	RawMultiplier    float64            `json:"raw_multiplier"`
	FinalMultiplier  float64            `json:"final_multiplier"`
	HouseEdge        float64            `json:"house_edge"`
}

// Derivation holds the intermediate values of the hash-to-multiplier pipeline.
type Derivation struct {
	CombinedHash    string  `json:"combined_hash"`
	HashAsDecimal   uint64  `json:"hash_as_decimal"`
	NormalizedValue float64 `json:"normalized_value"`
	RawMultiplier   float64 `json:"raw_multiplier"`
	FinalMultiplier float64 `json:"final_multiplier"`
}

// DeriveMultiplier maps serverSeed‖clientSeed to a crash multiplier using
// the inverse-exponential distribution. It is a pure function.
func DeriveMultiplier(serverSeed, clientSeed string, cfg FairnessConfig) (Derivation, error) {
	if strings.TrimSpace(clientSeed) == "" {
		return Derivation{}, ErrEmptyClientSeed
	}

	combinedHash := HashCommitment(serverSeed + clientSeed)

	hashAsDecimal, err := strconv.ParseUint(combinedHash[:hashSliceLen], 16, 64)
	if err != nil {
		return Derivation{}, fmt.Errorf("parse combined hash: %w", err)
	}
	normalized := float64(hashAsDecimal) / maxHashValue

	rawMultiplier := 1 / (1 - normalized)
	if math.IsInf(rawMultiplier, 1) {
		// all-ones prefix; keep the record encodable, the clamp caps the result
		rawMultiplier = math.MaxFloat64
	} else {
		rawMultiplier = roundTo(rawMultiplier, multiplierDecimals)
	}
	finalMultiplier := roundTo(rawMultiplier*(1-cfg.HouseEdge), multiplierDecimals)
	finalMultiplier = math.Max(cfg.MinMultiplier, math.Min(cfg.MaxMultiplier, finalMultiplier))

	return Derivation{
		CombinedHash:    combinedHash,
		HashAsDecimal:   hashAsDecimal,
		NormalizedValue: normalized,
		RawMultiplier:   rawMultiplier,
		FinalMultiplier: finalMultiplier,
	}, nil
}

// GenerateSeed creates a cryptographically secure random seed
func GenerateSeed() string {
	b := make([]byte, seedBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment creates a SHA256 hash of the seed for commitment
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// FairnessGenerator runs commit-reveal for a single vehicle and round.
// It is not safe for concurrent use; VehicleEngine serialises access.
type FairnessGenerator struct {
	cfg       FairnessConfig
	record    ProvablyFairRecord
	committed bool
	revealed  bool
}

func NewFairnessGenerator(cfg FairnessConfig) *FairnessGenerator {
	return &FairnessGenerator{
		cfg:    cfg,
		record: ProvablyFairRecord{HouseEdge: cfg.HouseEdge},
	}
}

// Commit draws a fresh server seed and returns its public hash.
func (g *FairnessGenerator) Commit() (string, error) {
	return g.CommitSeed(GenerateSeed())
}

// CommitSeed commits to a caller-supplied server seed. A published
// commitment can never be replaced.
func (g *FairnessGenerator) CommitSeed(serverSeed string) (string, error) {
	if g.committed {
		return "", ErrAlreadyCommitted
	}
	if serverSeed == "" {
		return "", fmt.Errorf("%w: empty server seed", ErrInvalidSeedValue)
	}

	g.record.ServerSeed = serverSeed
	g.record.HashedServerSeed = HashCommitment(serverSeed)
	g.committed = true
	return g.record.HashedServerSeed, nil
}

// Reveal combines the committed server seed with the client seed and fixes
// the final multiplier. The record is immutable afterwards.
func (g *FairnessGenerator) Reveal(clientSeed string, contributions []SeedContribution) (ProvablyFairRecord, error) {
	if !g.committed {
		return ProvablyFairRecord{}, ErrNotCommitted
	}
	if g.revealed {
		return ProvablyFairRecord{}, ErrAlreadyRevealed
	}

	d, err := DeriveMultiplier(g.record.ServerSeed, clientSeed, g.cfg)
	if err != nil {
		return ProvablyFairRecord{}, err
	}

	g.record.ClientSeed = clientSeed
	g.record.Contributions = append([]SeedContribution(nil), contributions...)
	g.record.CombinedHash = d.CombinedHash
	g.record.HashAsDecimal = d.HashAsDecimal
	g.record.NormalizedValue = d.NormalizedValue
	g.record.RawMultiplier = d.RawMultiplier
	g.record.FinalMultiplier = d.FinalMultiplier
	g.revealed = true

	return g.Record(), nil
}

func (g *FairnessGenerator) Committed() bool { return g.committed }
func (g *FairnessGenerator) Revealed() bool  { return g.revealed }

// Record returns a copy of the current record.
func (g *FairnessGenerator) Record() ProvablyFairRecord {
	rec := g.record
	rec.Contributions = append([]SeedContribution(nil), g.record.Contributions...)
	return rec
}

// Verification is the result of recomputing a published record.
type Verification struct {
	CommitmentValid bool       `json:"commitment_valid"`
	MultiplierValid bool       `json:"multiplier_valid"`
	Expected        Derivation `json:"expected"`
}

func (v Verification) Valid() bool { return v.CommitmentValid && v.MultiplierValid }

// VerifyRecord lets anyone check a revealed round: the server seed must hash
// to the commitment and the derivation must reproduce the final multiplier.
// The house edge is taken from the record; bounds come from cfg.
func VerifyRecord(rec ProvablyFairRecord, cfg FairnessConfig) (Verification, error) {
	cfg.HouseEdge = rec.HouseEdge

	d, err := DeriveMultiplier(rec.ServerSeed, rec.ClientSeed, cfg)
	if err != nil {
		return Verification{}, err
	}

	return Verification{
		CommitmentValid: HashCommitment(rec.ServerSeed) == rec.HashedServerSeed,
		MultiplierValid: d.CombinedHash == rec.CombinedHash && d.FinalMultiplier == rec.FinalMultiplier,
		Expected:        d,
	}, nil
}

func roundTo(v float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(v*factor) / factor
}
