package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Game     Game
	Redis    Redis
	Database Database
}

// Game holds the fairness parameters and the scheduler cadences.
type Game struct {
	HouseEdge     float64
	MinMultiplier float64
	MaxMultiplier float64

	BettingWindow  time.Duration
	CountdownTick  time.Duration
	MultiplierTick time.Duration
	EndHold        time.Duration
	ShutdownGrace  time.Duration

	HistorySize int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Database struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	Schema   string
}

var (
	ErrMissing = errors.New("missing required variable")
	ErrInvalid = errors.New("invalid variable")
)

// Load reads the environment (and .env, via autoload) into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Redis: Redis{
			Addr:     getEnv("REDIS_URL", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Database: LoadDatabase(),
	}

	var err error
	if cfg.Redis.DB, err = getEnvAsInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Game.HouseEdge, err = requireFloat("HOUSE_EDGE"); err != nil {
		return nil, err
	}
	if cfg.Game.MinMultiplier, err = requireFloat("MIN_MULTIPLIER"); err != nil {
		return nil, err
	}
	if cfg.Game.MaxMultiplier, err = requireFloat("MAX_MULTIPLIER"); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"BETTING_WINDOW", 5 * time.Second, &cfg.Game.BettingWindow},
		{"COUNTDOWN_TICK", 100 * time.Millisecond, &cfg.Game.CountdownTick},
		{"MULTIPLIER_TICK", 100 * time.Millisecond, &cfg.Game.MultiplierTick},
		{"END_HOLD", 2500 * time.Millisecond, &cfg.Game.EndHold},
		{"SHUTDOWN_GRACE", 10 * time.Second, &cfg.Game.ShutdownGrace},
	}
	for _, d := range durations {
		if *d.dest, err = getEnvAsDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.Game.HistorySize, err = getEnvAsInt("HISTORY_SIZE", 50); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the round engine relies on.
func (c *Config) Validate() error {
	g := c.Game
	for name, v := range map[string]float64{
		"HOUSE_EDGE":     g.HouseEdge,
		"MIN_MULTIPLIER": g.MinMultiplier,
		"MAX_MULTIPLIER": g.MaxMultiplier,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalid, name, v)
		}
	}
	if g.HouseEdge < 0 || g.HouseEdge >= 1 {
		return fmt.Errorf("%w: HOUSE_EDGE must be in [0, 1), got %v", ErrInvalid, g.HouseEdge)
	}
	if g.MinMultiplier < 1 {
		return fmt.Errorf("%w: MIN_MULTIPLIER must be >= 1, got %v", ErrInvalid, g.MinMultiplier)
	}
	if g.MaxMultiplier <= g.MinMultiplier {
		return fmt.Errorf("%w: MAX_MULTIPLIER (%v) must exceed MIN_MULTIPLIER (%v)", ErrInvalid, g.MaxMultiplier, g.MinMultiplier)
	}
	for name, d := range map[string]time.Duration{
		"BETTING_WINDOW":  g.BettingWindow,
		"COUNTDOWN_TICK":  g.CountdownTick,
		"MULTIPLIER_TICK": g.MultiplierTick,
		"END_HOLD":        g.EndHold,
		"SHUTDOWN_GRACE":  g.ShutdownGrace,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, name, d)
		}
	}
	if g.HistorySize <= 0 {
		return fmt.Errorf("%w: HISTORY_SIZE must be positive, got %d", ErrInvalid, g.HistorySize)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("%w: REDIS_DB must not be negative, got %d", ErrInvalid, c.Redis.DB)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: LOG_FORMAT must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	return nil
}

// LoadDatabase reads only the postgres settings, for tools that never run the game.
func LoadDatabase() Database {
	return Database{
		Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
		Port:     getEnv("BLUEPRINT_DB_PORT", "5432"),
		Name:     getEnv("BLUEPRINT_DB_DATABASE", "crashdb"),
		Username: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		Password: getEnv("BLUEPRINT_DB_PASSWORD", "postgres"),
		Schema:   getEnv("BLUEPRINT_DB_SCHEMA", "public"),
	}
}

// DSN builds the postgres connection string the way cmd/migrate always has.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, d.Schema)
}

func requireFloat(key string) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, fmt.Errorf("%w: %s", ErrMissing, key)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s=%q is not a finite number", ErrInvalid, key, val)
	}
	return f, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, val)
	}
	return intVal, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, val)
	}
	return d, nil
}
