package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/cacheperf"
	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/model"
)

type request struct {
	page int
	size int
}

func main() {
	ctx := context.Background()

	// Use PostgreSQL for realistic testing
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "host=localhost user=postgres password=postgres dbname=postgres port=5432 sslmode=disable"
	}

	db := must(gorm.Open(postgres.Open(dsn), &gorm.Config{}))

	// Clean up existing test data
	mustDo(db.Exec("DROP TABLE IF EXISTS clips CASCADE").Error)
	mustDo(db.AutoMigrate(&model.Clip{}))

	const (
		clipCount  = 20000
		hotTallies = 2000 // clips with live tally hashes on top of canonical rows
		ttlMinutes = 10
		dbDelay    = 0 * time.Millisecond // No artificial delay with real DB
	)

	fmt.Println("Setting up test data...")

	clips := make([]model.Clip, clipCount)
	base := time.Now()
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < clipCount; i++ {
		id := uuid.NewString()
		clips[i] = model.Clip{
			ID:            id,
			AuthorID:      fmt.Sprintf("author_%d", i%500),
			Title:         fmt.Sprintf("clip_%d", i),
			VoteCount:     int64(rnd.Intn(5000)),
			WeightedScore: int64(rnd.Intn(40000)),
			CreatedAt:     base.Add(-time.Duration(i) * time.Second),
			UpdatedAt:     base,
		}
	}
	mustDo(db.CreateInBatches(&clips, 1000).Error)

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
	}
	client.FlushAll(ctx)

	// Give the hottest clips live tallies ahead of all canonical rows, so
	// the overlay actually changes what the page shows.
	counters := counter.New(client)
	for i := 0; i < hotTallies; i++ {
		mustDo(counters.RecordVote(ctx, clips[i].ID, int64(1+rnd.Intn(10)), counter.Cast))
	}
	fmt.Printf("Test data ready: %d clips, %d with live tallies\n", clipCount, hotTallies)

	svc := cacheperf.NewTrendingService(db, client, counters, ttlMinutes*time.Minute, dbDelay)

	reqs := makeRequests(9000)

	noCache := runScenario(ctx, svc, reqs, false, func(ctx context.Context, r request) ([]cacheperf.ClipCard, error) {
		return svc.FetchTrendingNoCache(ctx, r.page, r.size)
	}, client, counters, clips[:hotTallies])

	naive := runScenario(ctx, svc, reqs, true, func(ctx context.Context, r request) ([]cacheperf.ClipCard, error) {
		return svc.FetchTrendingNaiveCache(ctx, r.page, r.size)
	}, client, counters, clips[:hotTallies])

	optimized := runScenario(ctx, svc, reqs, true, func(ctx context.Context, r request) ([]cacheperf.ClipCard, error) {
		return svc.FetchTrendingOptimized(ctx, r.page, r.size)
	}, client, counters, clips[:hotTallies])

	fmt.Println("\nTrending page latency (9k req, 20k clips, PostgreSQL + Redis)")
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_page=%d db_index=%d db_meta_bulk=%d cache_keys=%d mem=%s\n",
		"No cache", avg(noCache.durations), pct(noCache.durations, 0.95), pct(noCache.durations, 0.99),
		noCache.counters.PageQueries, noCache.counters.IndexLoads, noCache.counters.MetaBulkLoad,
		noCache.cacheKeys, formatBytes(noCache.memoryBytes),
	)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_page=%d db_index=%d db_meta_bulk=%d cache_keys=%d mem=%s\n",
		"Naive page cache", avg(naive.durations), pct(naive.durations, 0.95), pct(naive.durations, 0.99),
		naive.counters.PageQueries, naive.counters.IndexLoads, naive.counters.MetaBulkLoad,
		naive.cacheKeys, formatBytes(naive.memoryBytes),
	)
	fmt.Printf("%-18s avg=%v p95=%v p99=%v db_page=%d db_index=%d db_meta_bulk=%d cache_keys=%d mem=%s\n",
		"Index + overlay", avg(optimized.durations), pct(optimized.durations, 0.95), pct(optimized.durations, 0.99),
		optimized.counters.PageQueries, optimized.counters.IndexLoads, optimized.counters.MetaBulkLoad,
		optimized.cacheKeys, formatBytes(optimized.memoryBytes),
	)
}

type scenarioResult struct {
	durations   []time.Duration
	counters    cacheperf.TrendingDBCounters
	cacheKeys   int
	memoryBytes int64
}

func runScenario(ctx context.Context, svc *cacheperf.TrendingService, reqs []request, warm bool, call func(context.Context, request) ([]cacheperf.ClipCard, error), client *redis.Client, counters *counter.Store, hot []model.Clip) scenarioResult {
	// Clear Redis, then restore the live tallies the page overlay reads from
	client.FlushAll(ctx)
	rnd := rand.New(rand.NewSource(7))
	for i := range hot {
		if err := counters.RecordVote(ctx, hot[i].ID, int64(1+rnd.Intn(10)), counter.Cast); err != nil {
			panic(err)
		}
	}
	svc.ResetCounters()

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			if _, err := call(ctx, r); err != nil {
				panic(err)
			}
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		if _, err := call(ctx, r); err != nil {
			panic(err)
		}
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")

	// Measure Redis memory usage
	keys, _ := client.Keys(ctx, "*").Result()
	keyCount := len(keys)

	info, err := client.Info(ctx, "memory").Result()
	var memBytes int64
	if err == nil {
		memBytes = parseRedisMemory(info)
	}

	return scenarioResult{
		durations:   out,
		counters:    svc.Counters(),
		cacheKeys:   keyCount,
		memoryBytes: memBytes,
	}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	lines := []rune(info)
	var result int64

	for i := 0; i < len(lines); {
		if i+12 < len(lines) && string(lines[i:i+12]) == "used_memory:" {
			i += 12
			var num int64
			for i < len(lines) && lines[i] >= '0' && lines[i] <= '9' {
				num = num*10 + int64(lines[i]-'0')
				i++
			}
			result = num
			break
		}
		i++
	}
	return result
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func makeRequests(n int) []request {
	sizes := []int{20, 40, 60}
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		size := sizes[rnd.Intn(len(sizes))]
		page := 1
		if rnd.Float64() > 0.72 {
			// simulate deep pagination or different views
			page = 2 + rnd.Intn(120)
		}
		out[i] = request{page: page, size: size}
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
