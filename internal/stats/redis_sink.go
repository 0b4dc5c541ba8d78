package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/outcome"
)

// RedisSink persists only the aggregate attempt/success/failure
// counters to Redis, using HINCRBY against one hash per processor plus
// a totals hash. It never stores breaker state or request payloads —
// the circuit breaker stays process-local; this sink exists purely so
// the business-facing counters in GET /stats can survive a process
// restart, via namespaced key isolation.
type RedisSink struct {
	client    *redis.Client
	namespace string
	since     time.Time
	logger    logging.Logger
}

// NewRedisSink connects to redisURL and returns a sink namespacing its
// keys under "switchboard:stats:".
func NewRedisSink(ctx context.Context, redisURL string, logger logging.Logger) (*RedisSink, error) {
	if logger == nil {
		logger = logging.NoOp{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis stats sink: connect: %w", err)
	}

	logger.WithComponent("stats.redis").Info("connected to redis stats backend", nil)

	return &RedisSink{
		client:    client,
		namespace: "switchboard:stats",
		since:     time.Now(),
		logger:    logger.WithComponent("stats.redis"),
	}, nil
}

func (s *RedisSink) totalsKey() string          { return s.namespace + ":totals" }
func (s *RedisSink) processorKey(name string) string { return s.namespace + ":processor:" + name }

func (s *RedisSink) Record(ctx context.Context, o Observation) {
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, s.totalsKey(), "attempts", 1)
	pipe.HIncrBy(ctx, s.processorKey(o.Processor), "attempts", 1)

	if o.Kind == outcome.Success {
		pipe.HIncrBy(ctx, s.totalsKey(), "successes", 1)
		pipe.HIncrBy(ctx, s.processorKey(o.Processor), "successes", 1)
	} else {
		pipe.HIncrBy(ctx, s.totalsKey(), "failures", 1)
		pipe.HIncrBy(ctx, s.processorKey(o.Processor), "failures", 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("failed to record observation to redis", map[string]interface{}{
			"error":     err.Error(),
			"processor": o.Processor,
		})
	}
}

func (s *RedisSink) Snapshot(ctx context.Context) Report {
	report := Report{ByProcessor: make(map[string]ProcessorCounters), Since: s.since}

	totals, err := s.client.HGetAll(ctx, s.totalsKey()).Result()
	if err != nil {
		s.logger.Warn("failed to read redis totals", map[string]interface{}{"error": err.Error()})
		return report
	}
	report.TotalAttempts = parseInt(totals["attempts"])
	report.TotalSuccesses = parseInt(totals["successes"])
	report.TotalFailures = parseInt(totals["failures"])

	return report
}

func parseInt(s string) int64 {
	var n int64
	_, _ = fmt.Sscanf(s, "%d", &n)
	return n
}
