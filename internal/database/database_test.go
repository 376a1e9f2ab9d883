package database

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"duox/internal/config"
	"duox/internal/game"
)

var testConfig = config.Database{
	Name:     "database",
	Password: "password",
	Username: "user",
	Schema:   "public",
}

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	// Create context with timeout to prevent hanging
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(testConfig.Name),
		postgres.WithUsername(testConfig.Username),
		postgres.WithPassword(testConfig.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testConfig.Host = dbHost
	testConfig.Port = dbPort.Port()

	return dbContainer.Terminate, err
}

func TestMain(m *testing.M) {
	// Skip integration tests if SKIP_INTEGRATION env var is set
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	// Skip if Docker is not available
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		// Don't fail, just skip tests if container can't start
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}

	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func migrationsPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// migrated returns a service whose schema is at the latest version.
func migrated(t *testing.T) Service {
	t.Helper()
	srv, err := New(testConfig)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	db := stdlib.OpenDBFromPool(srv.Pool())
	require.NoError(t, RunMigrations(db, migrationsPath(t)))
	return srv
}

func testAudit() game.RoundAudit {
	id := uuid.NewString()
	return game.RoundAudit{
		RoundID:     id,
		CompletedAt: time.Now().UTC().Truncate(time.Microsecond),
		Vehicles: []game.VehicleAudit{
			{
				RoundID:     id,
				VehicleKind: game.VehicleMatatu,
				ProvablyFairRecord: game.ProvablyFairRecord{
					ServerSeed:       "aaaa",
					HashedServerSeed: game.HashCommitment("aaaa"),
					ClientSeed:       "luckyseven",
					Contributions: []game.SeedContribution{
						{UserID: "u1", Seed: "lucky"},
						{UserID: "u2", Seed: "seven"},
					},
					CombinedHash:    "ad81e26df26d4259d13ad121381fe06be5067e09987508b6b80cffc2f8d75381",
					HashAsDecimal:   3052373779883732,
					NormalizedValue: 0.6777,
					RawMultiplier:   3.1,
					FinalMultiplier: 3.01,
					HouseEdge:       0.03,
				},
			},
			{
				RoundID:     id,
				VehicleKind: game.VehicleBodaboda,
				ProvablyFairRecord: game.ProvablyFairRecord{
					ServerSeed:       "bbbb",
					HashedServerSeed: game.HashCommitment("bbbb"),
					ClientSeed:       "duox:bodaboda",
					CombinedHash:     "e155529ce63f0912b998248a03a33971784fdc252cf8ae48e16e5801ec42ba23",
					HashAsDecimal:    3964105191744496,
					NormalizedValue:  0.8802,
					RawMultiplier:    8.35,
					FinalMultiplier:  8.1,
					HouseEdge:        0.03,
				},
			},
		},
	}
}

func TestNew(t *testing.T) {
	srv, err := New(testConfig)
	require.NoError(t, err)
	require.NotNil(t, srv)
	srv.Close()
}

func TestNew_Unreachable(t *testing.T) {
	cfg := testConfig
	cfg.Port = "1"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv, err := New(testConfig)
	require.NoError(t, err)
	defer srv.Close()

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}

	if _, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present")
	}

	if stats["message"] != "It's healthy" {
		t.Fatalf("expected message to be 'It's healthy', got %s", stats["message"])
	}
}

func TestClose(t *testing.T) {
	srv, err := New(testConfig)
	require.NoError(t, err)

	if srv.Close() != nil {
		t.Fatalf("expected Close() to return nil")
	}
}

func TestMigrations_Version(t *testing.T) {
	srv := migrated(t)
	db := stdlib.OpenDBFromPool(srv.Pool())

	version, dirty, err := GetMigrationVersion(db, migrationsPath(t))
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// applying again is a no-op
	require.NoError(t, RunMigrations(db, migrationsPath(t)))
}

func TestRoundRepository_ArchiveAndGet(t *testing.T) {
	srv := migrated(t)
	repo := NewRoundRepository(srv.Pool())
	ctx := context.Background()

	audit := testAudit()
	require.NoError(t, repo.ArchiveRound(ctx, audit))

	got, err := repo.GetRound(ctx, audit.RoundID)
	require.NoError(t, err)
	assert.Equal(t, audit, got)

	// archiving twice keeps one copy
	require.NoError(t, repo.ArchiveRound(ctx, audit))
	got, err = repo.GetRound(ctx, audit.RoundID)
	require.NoError(t, err)
	assert.Len(t, got.Vehicles[0].Contributions, 2)
}

func TestRoundRepository_NotFound(t *testing.T) {
	srv := migrated(t)
	repo := NewRoundRepository(srv.Pool())

	_, err := repo.GetRound(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = repo.GetRound(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestRoundRepository_ImplementsArchiver(t *testing.T) {
	var _ game.RoundArchiver = (*RoundRepository)(nil)
}
