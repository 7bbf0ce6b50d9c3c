package repository

import (
    "context"
    "fmt"
    "testing"

    "gorm.io/driver/sqlite"
    "gorm.io/gorm"

    "github.com/d60-Lab/clipvote/internal/model"
)

func setupVoteBenchDB(b *testing.B) *gorm.DB {
    db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
    if err != nil {
        b.Fatalf("open db: %v", err)
    }
    sqlDB, err := db.DB()
    if err != nil {
        b.Fatalf("unwrap db: %v", err)
    }
    sqlDB.SetMaxOpenConns(1)
    if err := db.AutoMigrate(&model.Clip{}, &model.Vote{}); err != nil {
        b.Fatalf("migrate: %v", err)
    }
    return db
}

func BenchmarkVoteInsert_SingleVsBatch(b *testing.B) {
    db := setupVoteBenchDB(b)
    votes := NewVoteRepository(db)
    ctx := context.Background()

    // 预创建热点 clip
    clip := model.Clip{ID: "c0", AuthorID: "a0", Title: "c0"}
    if err := db.Create(&clip).Error; err != nil { b.Fatalf("seed clip: %v", err) }

    b.Run("Single", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            v := model.Vote{ID: fmt.Sprintf("s%08d", i), ClipID: clip.ID, ActorKey: fmt.Sprintf("actor-s%08d", i), Weight: int64(1 + i%10)}
            _ = votes.Create(ctx, &v)
        }
    })

    b.Run("Batch200", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            rows := make([]*model.Vote, 200)
            for j := range rows {
                rows[j] = &model.Vote{ID: fmt.Sprintf("b%08d-%03d", i, j), ClipID: clip.ID, ActorKey: fmt.Sprintf("actor-b%08d-%03d", i, j), Weight: 1}
            }
            _ = votes.CreateBatch(ctx, rows)
        }
    })
}

func BenchmarkClipReads(b *testing.B) {
    db := setupVoteBenchDB(b)
    clips := NewClipRepository(db)
    votes := NewVoteRepository(db)
    ctx := context.Background()

    // 构造：N 个 clip 带聚合列，热点 clip 另有 N 票
    const N = 5000
    for i := 0; i < N; i++ {
        cid := fmt.Sprintf("c%05d", i)
        _ = clips.Create(ctx, &model.Clip{ID: cid, AuthorID: "a0", Title: cid, VoteCount: int64(i), WeightedScore: int64(i * 3)})
    }
    for i := 0; i < N; i++ {
        _ = votes.Create(ctx, &model.Vote{ID: fmt.Sprintf("v%05d", i), ClipID: "c00000", ActorKey: fmt.Sprintf("actor-%05d", i), Weight: 1})
    }

    b.ResetTimer()
    b.Run("ListTrending", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            _, _ = clips.List(ctx, 0, 50)
        }
    })

    b.Run("CountForClip", func(b *testing.B) {
        for i := 0; i < b.N; i++ {
            _, _ = votes.CountForClip(ctx, "c00000")
        }
    })
}
