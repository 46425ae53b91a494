package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/identity"
	"github.com/MrEthical07/goShield/throttle"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loadEmail    = "load@example.com"
	loadPassword = "Load Passw0rd!"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (session, token, throttle)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
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
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goShield.DefaultConfig()
	// Seeding logs in once per session; keep hashing cheap so the phases
	// measure the Redis paths.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goShield.New().
		WithConfig(cfg).
		WithRedis(client).
		WithRepository(identity.NewMemoryRepository()).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	sids, token, err := seed(ctx, engine, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	throttler, err := throttle.New(throttle.NewRedisBackend(client, "loadtest:throttle"), cfg.Throttle.Policy(), time.Now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "throttle: %v\n", err)
		os.Exit(1)
	}

	sessionStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		sid := sids[r.Intn(len(sids))]
		ok, err := engine.Auth(&goShield.Request{SessionID: sid}).Default().LoggedIn(ctx)
		if err == nil && !ok {
			err = goShield.ErrAuthenticationFailed
		}
		return err
	})
	tokenStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		h, err := engine.Auth(&goShield.Request{BearerToken: token}).Use(goShield.AuthenticatorTokens)
		if err != nil {
			return err
		}
		ok, err := h.LoggedIn(ctx)
		if err == nil && !ok {
			err = goShield.ErrAuthenticationFailed
		}
		return err
	})
	throttleStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		key := throttle.LoginOriginKey(fmt.Sprintf("10.0.%d.%d", r.Intn(256), r.Intn(256)))
		_, err := throttler.RecordFailure(ctx, key)
		return err
	})

	fmt.Println("---- results ----")
	printStats("session", sessionStats)
	printStats("token", tokenStats)
	printStats("throttle", throttleStats)
}

// seed creates one active user, logs it in n times and issues one access
// token.
func seed(ctx context.Context, engine *goShield.Engine, n int) ([]string, string, error) {
	admin := engine.Admin()
	u, err := admin.CreateUser(ctx, "load", loadEmail, loadPassword)
	if err != nil {
		return nil, "", err
	}
	if err := admin.Activate(ctx, u.ID); err != nil {
		return nil, "", err
	}

	sids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		req := &goShield.Request{}
		if _, err := engine.Auth(req).Default().Attempt(ctx, goShield.Credentials{Email: loadEmail, Password: loadPassword}); err != nil {
			return nil, "", err
		}
		sids = append(sids, req.SessionID)
	}

	token, _, err := admin.GenerateAccessToken(ctx, u.ID, "loadtest", nil, 0)
	if err != nil {
		return nil, "", err
	}
	return sids, token, nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
