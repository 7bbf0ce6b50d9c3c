package cacheperf

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/clipvote/internal/counter"
	"github.com/d60-Lab/clipvote/internal/model"
)

// ClipCard contains the fields a trending page renders per clip. Vote
// numbers are overlaid from the live tally hashes where available, so
// the card can be fresher than the canonical clips row.
type ClipCard struct {
	ID            string `json:"id"`
	AuthorID      string `json:"author_id"`
	Title         string `json:"title"`
	VoteCount     int64  `json:"vote_count"`
	WeightedScore int64  `json:"weighted_score"`
}

// TrendingService demonstrates different caching strategies for trending
// clip list reads. The tension: whole-page caches freeze vote numbers
// until TTL expiry, while uncached reads hammer the clips table on every
// page view.
type TrendingService struct {
	db       *gorm.DB
	cache    *redis.Client
	counters *counter.Store
	ttl      time.Duration
	dbDelay  time.Duration

	pageQueries  atomic.Int64
	indexLoads   atomic.Int64
	metaBulkLoad atomic.Int64
}

// NewTrendingService builds a demo service using the provided DB + Redis client.
// dbDelay simulates the round-trip cost of hitting the primary store.
func NewTrendingService(db *gorm.DB, cache *redis.Client, counters *counter.Store, ttl, dbDelay time.Duration) *TrendingService {
	return &TrendingService{db: db, cache: cache, counters: counters, ttl: ttl, dbDelay: dbDelay}
}

// FetchTrendingNoCache pages the clips table directly and overlays live
// tallies. Every request costs one DB page query.
func (s *TrendingService) FetchTrendingNoCache(ctx context.Context, page, size int) ([]ClipCard, error) {
	cards, err := s.queryTrending(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return s.overlayTallies(ctx, cards)
}

// FetchTrendingNaiveCache caches the fully rendered page as one JSON blob.
// Cheap when hot, but vote numbers are frozen until the TTL expires and
// every page/size combination owns its own key.
func (s *TrendingService) FetchTrendingNaiveCache(ctx context.Context, page, size int) ([]ClipCard, error) {
	key := fmt.Sprintf("trending:page:%d:%d", page, size)
	if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
		var out []ClipCard
		if uErr := json.Unmarshal(data, &out); uErr == nil {
			return out, nil
		}
	}

	cards, err := s.queryTrending(ctx, page, size)
	if err != nil {
		return nil, err
	}
	cards, err = s.overlayTallies(ctx, cards)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(cards); err == nil {
		_ = s.cache.Set(ctx, key, payload, s.ttl).Err()
	}
	return cards, nil
}

// FetchTrendingOptimized keeps one ranked ID index as a Redis list and
// per-clip metadata as individual keys. Pages slice the index with LRANGE,
// metadata comes from MGET, and vote numbers are overlaid from the live
// tally hashes on every read, so cached pages still show fresh counts.
func (s *TrendingService) FetchTrendingOptimized(ctx context.Context, page, size int) ([]ClipCard, error) {
	const indexKey = "trending:index"

	start := (page - 1) * size
	end := start + size - 1

	exists, _ := s.cache.Exists(ctx, indexKey).Result()
	var ids []string
	if exists > 0 {
		ids, _ = s.cache.LRange(ctx, indexKey, int64(start), int64(end)).Result()
	}

	if len(ids) == 0 {
		allIDs, err := s.loadRankedIDsAndCache(ctx)
		if err != nil {
			return nil, err
		}
		if start >= len(allIDs) {
			return []ClipCard{}, nil
		}
		endIdx := start + size
		if endIdx > len(allIDs) {
			endIdx = len(allIDs)
		}
		ids = allIDs[start:endIdx]
	}

	cards, err := s.loadClipMeta(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.overlayTallies(ctx, cards)
}

func (s *TrendingService) loadRankedIDsAndCache(ctx context.Context) ([]string, error) {
	time.Sleep(s.dbDelay)
	s.indexLoads.Add(1)

	var ids []string
	if err := s.db.WithContext(ctx).
		Table("clips").
		Select("id").
		Order("weighted_score DESC, created_at DESC").
		Scan(&ids).Error; err != nil {
		return nil, err
	}

	const indexKey = "trending:index"
	if len(ids) > 0 {
		pipe := s.cache.Pipeline()
		pipe.Del(ctx, indexKey)
		pipe.RPush(ctx, indexKey, interfaceSlice(ids)...)
		pipe.Expire(ctx, indexKey, s.ttl)
		pipe.Exec(ctx)
	}

	return ids, nil
}

func (s *TrendingService) queryTrending(ctx context.Context, page, size int) ([]ClipCard, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	time.Sleep(s.dbDelay)
	s.pageQueries.Add(1)

	var rows []ClipCard
	err := s.db.WithContext(ctx).
		Table("clips").
		Select("id", "author_id", "title", "vote_count", "weighted_score").
		Order("weighted_score DESC, created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TrendingService) loadClipMeta(ctx context.Context, ids []string) ([]ClipCard, error) {
	if len(ids) == 0 {
		return []ClipCard{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = fmt.Sprintf("clipmeta:%s", id)
	}

	cached := make(map[string]ClipCard, len(ids))
	if vals, err := s.cache.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			if v == nil {
				continue
			}
			if str, ok := v.(string); ok {
				var card ClipCard
				if uErr := json.Unmarshal([]byte(str), &card); uErr == nil {
					cached[ids[i]] = card
				}
			}
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		s.metaBulkLoad.Add(1)
		time.Sleep(s.dbDelay)

		var clips []model.Clip
		if err := s.db.WithContext(ctx).Where("id IN ?", missing).Find(&clips).Error; err != nil {
			return nil, err
		}
		for _, c := range clips {
			card := ClipCard{
				ID:            c.ID,
				AuthorID:      c.AuthorID,
				Title:         c.Title,
				VoteCount:     c.VoteCount,
				WeightedScore: c.WeightedScore,
			}
			cached[c.ID] = card
			if payload, err := json.Marshal(card); err == nil {
				_ = s.cache.Set(ctx, fmt.Sprintf("clipmeta:%s", c.ID), payload, s.ttl).Err()
			}
		}
	}

	result := make([]ClipCard, 0, len(ids))
	for _, id := range ids {
		if card, ok := cached[id]; ok {
			result = append(result, card)
		}
	}
	return result, nil
}

// overlayTallies replaces canonical vote numbers with the live hash values
// for clips that have a tally. Clips without one keep the DB numbers.
func (s *TrendingService) overlayTallies(ctx context.Context, cards []ClipCard) ([]ClipCard, error) {
	if len(cards) == 0 {
		return cards, nil
	}
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	live, err := s.counters.GetCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if snap, ok := live[cards[i].ID]; ok {
			cards[i].VoteCount = snap.RawCount
			cards[i].WeightedScore = snap.WeightedScore
		}
	}
	return cards, nil
}

func interfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// ResetCounters clears recorded db call counters.
func (s *TrendingService) ResetCounters() {
	s.pageQueries.Store(0)
	s.indexLoads.Store(0)
	s.metaBulkLoad.Store(0)
}

// Counters reports how many underlying DB loads were executed.
func (s *TrendingService) Counters() TrendingDBCounters {
	return TrendingDBCounters{
		PageQueries:  s.pageQueries.Load(),
		IndexLoads:   s.indexLoads.Load(),
		MetaBulkLoad: s.metaBulkLoad.Load(),
	}
}

// TrendingDBCounters summarises DB hits during a run.
type TrendingDBCounters struct {
	PageQueries  int64
	IndexLoads   int64
	MetaBulkLoad int64
}
