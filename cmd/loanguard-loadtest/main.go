// Command loanguard-loadtest drives the login rate limiter from many goroutines and
// checks that no key is admitted past its attempt budget.
//
// Configuration comes from LOANGUARD_* variables (and an optional .env file). Without
// -redis-addr or LOANGUARD_REDIS_ADDR an in-process miniredis is started.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	loanGuard "github.com/MrEthical07/loanGuard"
	"github.com/MrEthical07/loanGuard/internal/authtest"
	"github.com/MrEthical07/loanGuard/internal/logging"
	"github.com/MrEthical07/loanGuard/ratelimit"
	"github.com/MrEthical07/loanGuard/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		keys        = flag.Int("keys", 2000, "number of distinct login identifiers")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase")
		engines     = flag.Int("engines", 2, "engines sharing one redis ledger")
		redisAddr   = flag.String("redis-addr", "", "redis address; empty uses LOANGUARD_REDIS_ADDR or miniredis")
		envFile     = flag.String("env", ".env", "optional dotenv file")
	)
	flag.Parse()

	if *keys <= 0 || *concurrency <= 0 || *ops <= 0 || *engines <= 0 {
		fmt.Fprintln(os.Stderr, "keys, concurrency, ops and engines must be > 0")
		os.Exit(2)
	}

	cfg, err := loanGuard.ConfigFromEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	addr := *redisAddr
	if addr == "" {
		addr = cfg.Store.RedisAddr
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("start miniredis", zap.Error(err))
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Info("using miniredis", zap.String("addr", addr))
	} else {
		logger.Info("using redis", zap.String("addr", addr))
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis ping", zap.Error(err))
	}

	cfg.Metrics.Enabled = true
	be := authtest.NewBackend(
		&session.Identity{ID: "u-load", Email: "load@lender.example", OrganizationID: "org-load"},
		"load-test-password",
		"viewer",
	)
	be.SetLatency(2 * time.Millisecond)

	pool := make([]*loanGuard.Engine, *engines)
	for i := range pool {
		engine, err := loanGuard.New().
			WithConfig(cfg).
			WithBackend(be).
			WithRedis(client).
			WithLogger(logger.With(zap.Int("engine", i))).
			Build()
		if err != nil {
			logger.Fatal("build engine", zap.Error(err))
		}
		defer engine.Close()
		pool[i] = engine
	}

	ids := make([]string, *keys)
	for i := range ids {
		ids[i] = fmt.Sprintf("borrower-%d@lender.example", i)
	}

	attemptStats, admitted := runAttemptPhase(ctx, pool, ids, *ops, *concurrency)
	budget := cfg.RateLimit.MaxAttempts - 1
	var overAdmitted int
	for _, n := range admitted {
		if n > int64(budget) {
			overAdmitted++
		}
	}

	for _, id := range ids {
		pool[0].ResetAttempts(ctx, ratelimit.LoginKey(id))
	}
	loginStats, blocked := runLoginPhase(ctx, pool, ids, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("attempt", attemptStats)
	printStats("login", loginStats)
	fmt.Printf("keys over budget (%d): %d\n", budget, overAdmitted)
	fmt.Printf("logins refused while blocked: %d\n", blocked)
	for i, engine := range pool {
		snap := engine.MetricsSnapshot()
		fmt.Printf("engine %d: login_failure=%d login_blocked=%d login_rate_limited=%d\n",
			i,
			snap.Counters[loanGuard.MetricLoginFailure],
			snap.Counters[loanGuard.MetricLoginBlocked],
			snap.Counters[loanGuard.MetricLoginRateLimited],
		)
	}

	if overAdmitted > 0 {
		os.Exit(1)
	}
}

// runAttemptPhase records attempts directly through the limiter facade and returns
// how many were admitted per key.
func runAttemptPhase(ctx context.Context, pool []*loanGuard.Engine, ids []string, ops, concurrency int) (phaseStats, []int64) {
	admitted := make([]int64, len(ids))
	run := func(r *rand.Rand, i int) error {
		idx := r.Intn(len(ids))
		engine := pool[i%len(pool)]
		if engine.Attempt(ctx, ratelimit.LoginKey(ids[idx])) {
			atomic.AddInt64(&admitted[idx], 1)
		}
		return nil
	}
	return runPhase(ops, concurrency, run), admitted
}

// runLoginPhase submits wrong passwords through the full login flow and counts how
// many were refused by an active block.
func runLoginPhase(ctx context.Context, pool []*loanGuard.Engine, ids []string, ops, concurrency int) (phaseStats, int64) {
	var blocked int64
	run := func(r *rand.Rand, i int) error {
		engine := pool[i%len(pool)]
		_, err := engine.Login(ctx, ids[r.Intn(len(ids))], "wrong")
		var blockedErr *loanGuard.LoginBlockedError
		switch {
		case errors.As(err, &blockedErr):
			atomic.AddInt64(&blocked, 1)
			return nil
		case errors.Is(err, loanGuard.ErrInvalidCredentials):
			return nil
		default:
			return err
		}
	}
	return runPhase(ops, concurrency, run), blocked
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
