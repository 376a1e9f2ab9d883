package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"duox/internal/game"
)

const (
	roundKeyPrefix = "crash:round:"
	historyKey     = "crash:history"

	DefaultRoundTTL = 24 * time.Hour
)

var ErrRoundNotFound = errors.New("round not found in cache")

// RoundStore keeps the audit of recent rounds for fast lookups. It
// implements game.RoundArchiver.
type RoundStore struct {
	client      redis.Cmdable
	historySize int
	ttl         time.Duration
}

func NewRoundStore(client redis.Cmdable, historySize int, ttl time.Duration) *RoundStore {
	if ttl <= 0 {
		ttl = DefaultRoundTTL
	}
	return &RoundStore{client: client, historySize: historySize, ttl: ttl}
}

func roundKey(roundID string) string { return roundKeyPrefix + roundID }

// ArchiveRound stores the audit and pushes its id onto the bounded history list.
func (s *RoundStore) ArchiveRound(ctx context.Context, audit game.RoundAudit) error {
	data, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal round %s: %w", audit.RoundID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roundKey(audit.RoundID), data, s.ttl)
		pipe.LPush(ctx, historyKey, audit.RoundID)
		pipe.LTrim(ctx, historyKey, 0, int64(s.historySize-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache round %s: %w", audit.RoundID, err)
	}
	return nil
}

func (s *RoundStore) GetRound(ctx context.Context, roundID string) (game.RoundAudit, error) {
	data, err := s.client.Get(ctx, roundKey(roundID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.RoundAudit{}, ErrRoundNotFound
	}
	if err != nil {
		return game.RoundAudit{}, fmt.Errorf("get round %s: %w", roundID, err)
	}

	var audit game.RoundAudit
	if err := json.Unmarshal(data, &audit); err != nil {
		return game.RoundAudit{}, fmt.Errorf("decode round %s: %w", roundID, err)
	}
	return audit, nil
}

// RecentRounds returns up to limit rounds, newest first. Ids whose record
// has expired are skipped.
func (s *RoundStore) RecentRounds(ctx context.Context, limit int) ([]game.RoundAudit, error) {
	if limit <= 0 || limit > s.historySize {
		limit = s.historySize
	}

	ids, err := s.client.LRange(ctx, historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read round history: %w", err)
	}
	if len(ids) == 0 {
		return []game.RoundAudit{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = roundKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read rounds: %w", err)
	}

	rounds := make([]game.RoundAudit, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var audit game.RoundAudit
		if err := json.Unmarshal([]byte(raw), &audit); err != nil {
			return nil, fmt.Errorf("decode round %s: %w", ids[i], err)
		}
		rounds = append(rounds, audit)
	}
	return rounds, nil
}
