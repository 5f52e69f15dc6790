package repositories

import (
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// RateLimitBucketRepository holds one fixed-window bucket per key
type RateLimitBucketRepository struct {
	store *ShardedStore[models.RateLimitBucket]
}

// NewRateLimitBucketRepository creates an empty repository
func NewRateLimitBucketRepository() *RateLimitBucketRepository {
	return &RateLimitBucketRepository{
		store: NewShardedStore(DefaultShardCount, func(key string) *models.RateLimitBucket {
			return &models.RateLimitBucket{Key: key}
		}),
	}
}

// Update atomically mutates the bucket for key, creating it if needed
func (r *RateLimitBucketRepository) Update(key string, fn func(bucket *models.RateLimitBucket)) {
	r.store.Update(key, fn)
}

// Get returns a copy of the bucket for key
func (r *RateLimitBucketRepository) Get(key string) (models.RateLimitBucket, bool) {
	var out models.RateLimitBucket
	ok := r.store.View(key, func(b *models.RateLimitBucket) {
		out = *b
	})
	return out, ok
}

// DeleteExpired removes buckets whose window started before cutoff
func (r *RateLimitBucketRepository) DeleteExpired(cutoff time.Time) int {
	return r.store.Sweep(func(_ string, b *models.RateLimitBucket) bool {
		return b.WindowStart.Before(cutoff)
	})
}

// Count returns the number of live buckets
func (r *RateLimitBucketRepository) Count() int {
	return r.store.Len()
}
