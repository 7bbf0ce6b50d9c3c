package main

import (
    "context"
    "fmt"
    "math"
    "os"
    "sort"
    "strconv"
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/d60-Lab/clipvote/config"
    "github.com/d60-Lab/clipvote/internal/counter"
    "github.com/d60-Lab/clipvote/internal/lock"
    "github.com/d60-Lab/clipvote/internal/model"
    "github.com/d60-Lab/clipvote/internal/queue"
    "github.com/d60-Lab/clipvote/internal/repository"
    "github.com/d60-Lab/clipvote/internal/service"
    "github.com/d60-Lab/clipvote/pkg/cache"
    "github.com/d60-Lab/clipvote/pkg/database"
)

func must[T any](v T, err error) T { if err != nil { panic(err) }; return v }

func main() {
    cfg := must(config.Load())
    db := must(database.InitDB(cfg))
    if err := database.AutoMigrate(db); err != nil { panic(err) }
    rdb := must(cache.InitRedis(cfg))
    defer rdb.Close()

    ctx := context.Background()

    N := 10000
    if s := os.Getenv("N"); s != "" {
        if n, err := strconv.Atoi(s); err == nil && n > 0 { N = n }
    }
    CONC := 8
    if s := os.Getenv("CONC"); s != "" {
        if c, err := strconv.Atoi(s); err == nil && c > 0 { CONC = c }
    }
    HOT := 3
    if s := os.Getenv("HOT"); s != "" {
        if h, err := strconv.Atoi(s); err == nil && h > 0 { HOT = h }
    }
    BATCH := cfg.Pipeline.BatchSize

    // 干净起点：队列、票边、计数器都在 Redis 里
    rdb.FlushAll(ctx)

    counters := counter.New(rdb)
    voteQueue := queue.New(rdb, queue.VoteQueue)
    locks := lock.NewManager(db)

    clipRepo := repository.NewClipRepository(db)
    voteRepo := repository.NewVoteRepository(db)

    voteSvc := service.NewVoteService(rdb, counters, voteRepo, clipRepo, voteQueue, true)
    processor := service.NewQueueProcessor(
        voteQueue, service.NewVoteApplier(voteRepo), locks,
        true, BATCH, cfg.Pipeline.MaxRetries, cfg.Pipeline.LockTTL,
    ).WithSynchronizer(service.NewCounterSynchronizer(counters, clipRepo))

    // 热点场景：全部投票砸向少数 clip
    hot := make([]string, HOT)
    for i := 0; i < HOT; i++ {
        id := uuid.NewString()
        hot[i] = id
        if err := clipRepo.Create(ctx, &model.Clip{ID: id, AuthorID: "bench", Title: fmt.Sprintf("hot_%d", i)}); err != nil {
            panic(err)
        }
    }

    // 采样队列深度
    maxQ := int64(0)
    quitSample := make(chan struct{})
    go func() {
        ticker := time.NewTicker(50 * time.Millisecond)
        defer ticker.Stop()
        for {
            select {
            case <-ticker.C:
                if h, err := voteQueue.Health(ctx); err == nil && h.Pending > maxQ { maxQ = h.Pending }
            case <-quitSample:
                return
            }
        }
    }()

    // 异步路径：计数器自增 + 入队，不碰 Postgres
    asyncRecs := make([]time.Duration, 0, N)
    asyncCh := make(chan time.Duration, N)
    feed := make(chan int, N)
    for i := 0; i < N; i++ { feed <- i }
    close(feed)
    workers := CONC
    if workers > N { workers = N }
    errCh := make(chan error, workers)
    t0 := time.Now()
    for w := 0; w < workers; w++ {
        go func() {
            for i := range feed {
                actor := "user:" + uuid.NewString()
                st := time.Now()
                _, _ = voteSvc.Cast(ctx, hot[i%HOT], actor, int64(1+i%10))
                asyncCh <- time.Since(st)
            }
            errCh <- nil
        }()
    }
    for w := 0; w < workers; w++ { <-errCh }
    close(asyncCh)
    for d := range asyncCh { asyncRecs = append(asyncRecs, d) }
    asyncDur := time.Since(t0)
    close(quitSample)

    // 排水：循环跑处理器直到队列见底
    drainStart := time.Now()
    runs, applied, synced := 0, 0, 0
    for {
        res, err := processor.Run(ctx)
        if err != nil { panic(err) }
        runs++
        applied += res.Applied
        synced += res.Synced
        if res.Drained == 0 && res.Recovered == 0 { break }
    }
    drainDur := time.Since(drainStart)

    // 对照组：同步路径，每票一条 INSERT + 热点行 UPDATE
    syncRecs := make([]time.Duration, 0, N)
    t1 := time.Now()
    for i := 0; i < N; i++ {
        actor := "sync:" + uuid.NewString()
        st := time.Now()
        _ = voteRepo.Create(ctx, &model.Vote{ID: uuid.NewString(), ClipID: hot[i%HOT], ActorKey: actor, Weight: int64(1 + i%10)})
        _ = db.Model(&model.Clip{}).Where("id = ?", hot[i%HOT]).
            UpdateColumns(map[string]interface{}{
                "vote_count":     gorm.Expr("vote_count + 1"),
                "weighted_score": gorm.Expr("weighted_score + ?", 1+i%10),
            }).Error
        syncRecs = append(syncRecs, time.Since(st))
    }
    syncDur := time.Since(t1)

    // 读路径
    q0 := time.Now()
    _, _ = counters.GetCounts(ctx, hot)
    tallyDur := time.Since(q0)

    q1 := time.Now()
    _, _ = clipRepo.List(ctx, 0, 50)
    listDur := time.Since(q1)

    pct := func(vs []time.Duration, p float64) time.Duration {
        if len(vs) == 0 { return 0 }
        xs := append([]time.Duration(nil), vs...)
        sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
        k := int(math.Ceil(p*float64(len(xs)))) - 1
        if k < 0 { k = 0 }
        if k >= len(xs) { k = len(xs)-1 }
        return xs[k]
    }

    fmt.Printf("N=%d, CONC=%d, HOT=%d, BATCH=%d\n", N, CONC, HOT, BATCH)
    fmt.Printf("Async cast latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
        asyncDur, asyncDur/time.Duration(N), pct(asyncRecs, 0.50), pct(asyncRecs, 0.95), pct(asyncRecs, 0.99))
    fmt.Printf("Drain: runs=%d, applied=%d, synced=%d, total=%v, maxQueue=%d\n",
        runs, applied, synced, drainDur, maxQ)
    fmt.Printf("Sync (INSERT + hot row UPDATE) total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
        syncDur, syncDur/time.Duration(N), pct(syncRecs, 0.50), pct(syncRecs, 0.95), pct(syncRecs, 0.99))
    fmt.Printf("Query live tallies(%d) latency: %v\n", HOT, tallyDur)
    fmt.Printf("Query trending(50) latency: %v\n", listDur)
}
