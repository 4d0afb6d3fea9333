package progress

import (
	"context"

	"github.com/agriapp/server/cache"
)

const likesRankingKey = "ranking:progress_likes"

// RankEntry is one row of the likes leaderboard.
type RankEntry struct {
	Rank       int    `json:"rank"`
	ProgressID string `json:"progress_id"`
	Likes      int64  `json:"likes"`
}

// Ranking keeps a sorted set of progress records by like count.
type Ranking struct {
	c    cache.Cache
	size int
}

// NewRanking creates a Ranking that keeps at most size entries on rebuild.
func NewRanking(c cache.Cache, size int) *Ranking {
	if size <= 0 {
		size = 100
	}
	return &Ranking{c: c, size: size}
}

// Record sets the score of progressID to likes.
func (r *Ranking) Record(ctx context.Context, progressID string, likes int64) error {
	return r.c.ZAdd(ctx, likesRankingKey, float64(likes), progressID)
}

// Remove drops progressID from the ranking.
func (r *Ranking) Remove(ctx context.Context, progressID string) error {
	return r.c.ZRem(ctx, likesRankingKey, progressID)
}

// Top returns up to limit entries, most liked first.
func (r *Ranking) Top(ctx context.Context, limit int) ([]RankEntry, error) {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	members, scores, err := r.c.ZRevRangeWithScores(ctx, likesRankingKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	entries := make([]RankEntry, len(members))
	for i, m := range members {
		entries[i] = RankEntry{Rank: i + 1, ProgressID: m, Likes: int64(scores[i])}
	}
	return entries, nil
}

// Rebuild replaces the ranking with the store's most liked records.
func (r *Ranking) Rebuild(ctx context.Context, store ProgressStore) (int, error) {
	recs, err := store.FindTopLiked(ctx, r.size)
	if err != nil {
		return 0, err
	}
	if err := r.c.Del(ctx, likesRankingKey); err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := r.Record(ctx, rec.ID, rec.Likes); err != nil {
			return 0, err
		}
	}
	return len(recs), nil
}
