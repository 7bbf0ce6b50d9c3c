package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/clipvote/internal/model"
)

func setupRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.Clip{}, &model.Vote{}, &model.Comment{}, &model.CommentLike{},
	))
	return db
}

func TestVoteCreateIsIdempotent(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewVoteRepository(db)
	ctx := context.Background()

	vote := &model.Vote{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Weight: 3}
	require.NoError(t, repo.Create(ctx, vote))
	// 同一事件重复投递
	require.NoError(t, repo.Create(ctx, vote))
	// 同一 actor 的第二票（不同事件）也被唯一键吸收
	require.NoError(t, repo.Create(ctx, &model.Vote{
		ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Weight: 5,
	}))

	cnt, err := repo.CountForClip(ctx, "clip-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, cnt)

	got, err := repo.GetByActor(ctx, "clip-1", "user:1")
	require.NoError(t, err)
	require.EqualValues(t, 3, got.Weight)
}

func TestVoteCreateBatchSkipsDuplicates(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewVoteRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Vote{
		ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Weight: 1,
	}))

	batch := []*model.Vote{
		{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Weight: 9},
		{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:2", Weight: 2},
	}
	require.NoError(t, repo.CreateBatch(ctx, batch))

	cnt, err := repo.CountForClip(ctx, "clip-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, cnt)
}

func TestVoteDeleteMissingIsNoop(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewVoteRepository(db)
	require.NoError(t, repo.Delete(context.Background(), "clip-1", "user:ghost"))
}

func TestCommentLikeCountsOnce(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	comment := &model.Comment{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Body: "nice"}
	require.NoError(t, repo.Create(ctx, comment))

	require.NoError(t, repo.Like(ctx, comment.ID, "user:2", uuid.New().String()))
	// 重复点赞：行被唯一键吸收，计数不追加
	require.NoError(t, repo.Like(ctx, comment.ID, "user:2", uuid.New().String()))
	require.NoError(t, repo.Like(ctx, comment.ID, "user:3", uuid.New().String()))

	got, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.LikeCount)
}

func TestCommentUnlikeNeverGoesNegative(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	comment := &model.Comment{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Body: "hm"}
	require.NoError(t, repo.Create(ctx, comment))
	require.NoError(t, repo.Like(ctx, comment.ID, "user:2", uuid.New().String()))

	require.NoError(t, repo.Unlike(ctx, comment.ID, "user:2"))
	require.NoError(t, repo.Unlike(ctx, comment.ID, "user:2"))
	require.NoError(t, repo.Unlike(ctx, comment.ID, "user:never-liked"))

	got, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	require.Zero(t, got.LikeCount)
}

func TestCommentDeleteRemovesLikes(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewCommentRepository(db)
	ctx := context.Background()

	comment := &model.Comment{ID: uuid.New().String(), ClipID: "clip-1", ActorKey: "user:1", Body: "bye"}
	require.NoError(t, repo.Create(ctx, comment))
	require.NoError(t, repo.Like(ctx, comment.ID, "user:2", uuid.New().String()))

	require.NoError(t, repo.Delete(ctx, comment.ID))
	require.NoError(t, repo.Delete(ctx, comment.ID))

	_, err := repo.GetByID(ctx, comment.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var likes int64
	require.NoError(t, db.Model(&model.CommentLike{}).Where("comment_id = ?", comment.ID).Count(&likes).Error)
	require.Zero(t, likes)
}

func TestClipUpsertCountsLastWriteWins(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewClipRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.Clip{ID: "clip-1", AuthorID: "author-1", Title: "first"}))

	require.NoError(t, repo.UpsertCounts(ctx, []*model.Clip{
		{ID: "clip-1", VoteCount: 10, WeightedScore: 25},
	}))
	require.NoError(t, repo.UpsertCounts(ctx, []*model.Clip{
		{ID: "clip-1", VoteCount: 12, WeightedScore: 31},
	}))
	// 重跑同一份快照必须安全
	require.NoError(t, repo.UpsertCounts(ctx, []*model.Clip{
		{ID: "clip-1", VoteCount: 12, WeightedScore: 31},
	}))

	got, err := repo.GetByID(ctx, "clip-1")
	require.NoError(t, err)
	require.EqualValues(t, 12, got.VoteCount)
	require.EqualValues(t, 31, got.WeightedScore)
	// 覆盖写只触碰聚合列
	require.Equal(t, "first", got.Title)
	require.Equal(t, "author-1", got.AuthorID)
}

func TestClipUpsertCountsEmptyIsNoop(t *testing.T) {
	db := setupRepoDB(t)
	repo := NewClipRepository(db)
	require.NoError(t, repo.UpsertCounts(context.Background(), nil))
}
