package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"TradeLoop/internal/domain/models"
	domrepo "TradeLoop/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// LearningRate bounds how far one settled outcome moves a producer weight.
type LearningRate struct {
	Rate      float64 // fraction of the weight moved by a saturated outcome
	PnLScale  float64 // pnl at which tanh saturation sets in
	MinWeight float64
	MaxWeight float64
}

func DefaultLearningRate() LearningRate {
	return LearningRate{Rate: 0.05, PnLScale: 1000, MinWeight: 0.1, MaxWeight: 5}
}

// RedisParameterStore keeps the versioned producer weights in Redis. Feedback is applied
// at most once per cycle id and every version is kept in a capped history list.
type RedisParameterStore struct {
	client  redis.Cmdable
	prefix  string
	lr      LearningRate
	dedup   time.Duration
	history int64
	now     func() time.Time
}

func NewRedisParameterStore(client redis.Cmdable, prefix string, lr LearningRate) *RedisParameterStore {
	if prefix == "" {
		prefix = "tradeloop"
	}
	return &RedisParameterStore{
		client:  client,
		prefix:  prefix,
		lr:      lr,
		dedup:   7 * 24 * time.Hour,
		history: 100,
		now:     time.Now,
	}
}

func (s *RedisParameterStore) key() string        { return s.prefix + ":params" }
func (s *RedisParameterStore) historyKey() string { return s.prefix + ":params:history" }
func (s *RedisParameterStore) appliedKey(cycleID string) string {
	return s.prefix + ":params:applied:" + cycleID
}

// Current returns the latest parameters, the defaults when none were ever written.
func (s *RedisParameterStore) Current(ctx context.Context) (models.Parameters, error) {
	b, err := s.client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DefaultParameters(), nil
	}
	if err != nil {
		return models.Parameters{}, fmt.Errorf("get parameters: %w", err)
	}
	var p models.Parameters
	if err := json.Unmarshal(b, &p); err != nil {
		return models.Parameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	if p.Weights == nil {
		p.Weights = map[string]float64{}
	}
	return p, nil
}

// Apply moves the weight of every producer that backed the settled strategy in the
// direction of its pnl and writes the result as a new version. Feedback for a cycle
// already applied returns the current parameters unchanged.
func (s *RedisParameterStore) Apply(ctx context.Context, fb models.Feedback) (models.Parameters, error) {
	first, err := s.client.SetNX(ctx, s.appliedKey(fb.CycleID), "1", s.dedup).Result()
	if err != nil {
		return models.Parameters{}, fmt.Errorf("feedback dedup: %w", err)
	}
	cur, err := s.Current(ctx)
	if err != nil {
		return models.Parameters{}, err
	}
	if !first {
		return cur, nil
	}

	next := s.update(cur, fb)
	b, err := json.Marshal(next)
	if err != nil {
		return models.Parameters{}, fmt.Errorf("marshal parameters: %w", err)
	}
	val := string(b)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(), val, 0)
		pipe.LPush(ctx, s.historyKey(), val)
		pipe.LTrim(ctx, s.historyKey(), 0, s.history-1)
		return nil
	})
	if err != nil {
		return models.Parameters{}, fmt.Errorf("write parameters: %w", err)
	}
	return next, nil
}

func (s *RedisParameterStore) update(cur models.Parameters, fb models.Feedback) models.Parameters {
	return s.lr.Next(cur, fb, s.now().UTC())
}

// Next moves the weight of every producer named in fb by Rate·tanh(pnl/PnLScale),
// clamped to [MinWeight, MaxWeight], and bumps the version.
func (lr LearningRate) Next(cur models.Parameters, fb models.Feedback, at time.Time) models.Parameters {
	next := models.Parameters{
		Version:   cur.Version + 1,
		Weights:   make(map[string]float64, len(cur.Weights)+len(fb.Producers)),
		UpdatedAt: at,
	}
	for k, v := range cur.Weights {
		next.Weights[k] = v
	}
	step := lr.Rate * math.Tanh(fb.PnL/lr.PnLScale)
	for _, id := range fb.Producers {
		w := cur.Weight(id) * (1 + step)
		next.Weights[id] = models.Clamp(w, lr.MinWeight, lr.MaxWeight)
	}
	return next
}

var _ domrepo.ParameterStore = (*RedisParameterStore)(nil)
