package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duox/internal/game"
)

var ErrRoundNotFound = errors.New("round not found")

// RoundRepository is the durable audit store for completed rounds. It
// implements game.RoundArchiver.
type RoundRepository struct {
	pool *pgxpool.Pool
}

func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

const insertRound = `
INSERT INTO rounds (
    round_id, vehicle_kind, server_seed, hashed_server_seed, client_seed, round_hash,
    hash_as_decimal, normalized_value, raw_multiplier, final_multiplier, house_edge, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (round_id, vehicle_kind) DO NOTHING`

const insertContribution = `
INSERT INTO client_seed_details (id, round_id, vehicle_kind, position, user_id, seed)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT DO NOTHING`

// ArchiveRound writes every vehicle record of the round in one transaction.
// Archiving the same round twice is a no-op.
func (r *RoundRepository) ArchiveRound(ctx context.Context, audit game.RoundAudit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive %s: %w", audit.RoundID, err)
	}
	defer tx.Rollback(ctx)

	for _, v := range audit.Vehicles {
		_, err := tx.Exec(ctx, insertRound,
			audit.RoundID, string(v.VehicleKind), v.ServerSeed, v.HashedServerSeed, v.ClientSeed,
			v.CombinedHash, int64(v.HashAsDecimal), v.NormalizedValue, v.RawMultiplier,
			v.FinalMultiplier, v.HouseEdge, audit.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("insert round %s/%s: %w", audit.RoundID, v.VehicleKind, err)
		}

		for i, c := range v.Contributions {
			_, err := tx.Exec(ctx, insertContribution,
				uuid.NewString(), audit.RoundID, string(v.VehicleKind), i, c.UserID, c.Seed)
			if err != nil {
				return fmt.Errorf("insert seed detail %s/%s: %w", audit.RoundID, v.VehicleKind, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit archive %s: %w", audit.RoundID, err)
	}
	return nil
}

// GetRound loads the audit of one completed round, vehicles in race order.
func (r *RoundRepository) GetRound(ctx context.Context, roundID string) (game.RoundAudit, error) {
	if _, err := uuid.Parse(roundID); err != nil {
		return game.RoundAudit{}, ErrRoundNotFound
	}

	rows, err := r.pool.Query(ctx, `
SELECT vehicle_kind, server_seed, hashed_server_seed, client_seed, round_hash,
       hash_as_decimal, normalized_value, raw_multiplier, final_multiplier, house_edge, completed_at
FROM rounds WHERE round_id = $1`, roundID)
	if err != nil {
		return game.RoundAudit{}, fmt.Errorf("query round %s: %w", roundID, err)
	}
	defer rows.Close()

	audit := game.RoundAudit{RoundID: roundID}
	byKind := make(map[game.VehicleKind]*game.VehicleAudit)
	for rows.Next() {
		var (
			v       game.VehicleAudit
			kind    string
			decimal int64
		)
		if err := rows.Scan(&kind, &v.ServerSeed, &v.HashedServerSeed, &v.ClientSeed, &v.CombinedHash,
			&decimal, &v.NormalizedValue, &v.RawMultiplier, &v.FinalMultiplier, &v.HouseEdge,
			&audit.CompletedAt); err != nil {
			return game.RoundAudit{}, fmt.Errorf("scan round %s: %w", roundID, err)
		}
		v.RoundID = roundID
		v.VehicleKind = game.VehicleKind(kind)
		v.HashAsDecimal = uint64(decimal)
		byKind[v.VehicleKind] = &v
	}
	if err := rows.Err(); err != nil {
		return game.RoundAudit{}, fmt.Errorf("read round %s: %w", roundID, err)
	}
	if len(byKind) == 0 {
		return game.RoundAudit{}, ErrRoundNotFound
	}

	if err := r.loadContributions(ctx, roundID, byKind); err != nil {
		return game.RoundAudit{}, err
	}

	for _, kind := range game.VehicleKinds {
		if v, ok := byKind[kind]; ok {
			audit.Vehicles = append(audit.Vehicles, *v)
			delete(byKind, kind)
		}
	}
	for _, v := range byKind {
		audit.Vehicles = append(audit.Vehicles, *v)
	}
	audit.CompletedAt = audit.CompletedAt.UTC()
	return audit, nil
}

func (r *RoundRepository) loadContributions(ctx context.Context, roundID string, byKind map[game.VehicleKind]*game.VehicleAudit) error {
	rows, err := r.pool.Query(ctx, `
SELECT vehicle_kind, user_id, seed FROM client_seed_details
WHERE round_id = $1 ORDER BY vehicle_kind, position`, roundID)
	if err != nil {
		return fmt.Errorf("query seed details %s: %w", roundID, err)
	}

	var (
		kind string
		c    game.SeedContribution
	)
	_, err = pgx.ForEachRow(rows, []any{&kind, &c.UserID, &c.Seed}, func() error {
		if v, ok := byKind[game.VehicleKind(kind)]; ok {
			v.Contributions = append(v.Contributions, c)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read seed details %s: %w", roundID, err)
	}
	return nil
}
