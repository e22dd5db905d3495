// Command authcore-loadtest measures bearer verification and access token
// refresh throughput against an in-memory store and a Redis revocation cache.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	mathrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const seedPassword = "loadtest-password-1"

type principalState struct {
	id      string
	access  string
	refresh string
}

func main() {
	var (
		principals  = pflag.Int("principals", 200, "number of principals to seed")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		ops         = pflag.Int("ops", 100000, "operations per phase (verify + refresh)")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	pflag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{mr.Addr()},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]principalState, *principals)
	fmt.Printf("seeding %d principals...\n", *principals)
	startSeed := time.Now()
	for i := range states {
		state, err := seed(ctx, engine, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = state
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *mathrand.Rand) error {
		s := states[r.Intn(len(states))]
		_, err := engine.VerifyAccessToken(ctx, s.access)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *mathrand.Rand) error {
		s := states[r.Intn(len(states))]
		_, err := engine.RefreshAccessToken(ctx, s.id, s.refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	var observed uint64
	for _, n := range snap.Histograms[authcore.MetricValidateLatency] {
		observed += n
	}
	fmt.Printf("engine: verify_success=%d verify_failure=%d histogram_observations=%d\n",
		snap.Counters[authcore.MetricBearerVerifySuccess],
		snap.Counters[authcore.MetricBearerVerifyFailure],
		observed,
	)
}

func newEngine(client redis.UniversalClient) (*authcore.Engine, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = secret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Notification.BufferSize = 64

	return authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithStore(memory.New()).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
}

func seed(ctx context.Context, engine *authcore.Engine, i int) (principalState, error) {
	email := fmt.Sprintf("load-%d@example.com", i)
	principal, err := engine.CreateUser(ctx, authcore.CreateUserInput{
		Email:    email,
		Password: seedPassword,
		Roles:    []string{"member"},
		Active:   true,
	})
	if err != nil {
		return principalState{}, err
	}
	res, err := engine.Login(ctx, email, seedPassword)
	if err != nil {
		return principalState{}, err
	}
	if res.MFARequired() {
		return principalState{}, fmt.Errorf("principal %s unexpectedly requires mfa", email)
	}
	return principalState{
		id:      principal.ID,
		access:  res.Tokens.AccessToken,
		refresh: res.Tokens.RefreshToken,
	}, nil
}

func runPhase(ops, concurrency int, salt int64, op func(*mathrand.Rand) error) phaseStats {
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
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*salt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
	if len(samples) == 0 {
		return 0
	}
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
