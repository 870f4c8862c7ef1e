package questionbank

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Repository caches question sets with a TTL so repeated quiz starts in
// the same category do not hammer the backing store. Concurrent misses
// for one slug collapse into a single load.
type Repository struct {
	loader Loader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       QuestionSet
	expiresAt time.Time
}

func NewRepository(loader Loader, ttl time.Duration) *Repository {
	return &Repository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *Repository) GetQuestionSet(ctx context.Context, categorySlug string) (QuestionSet, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[categorySlug]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.set, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(categorySlug, func() (any, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[categorySlug]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.set, nil
		}
		r.mu.RUnlock()

		set, err := r.loader.LoadQuestionSet(ctx, categorySlug)
		if err != nil {
			return QuestionSet{}, err
		}

		r.mu.Lock()
		r.cache[categorySlug] = cachedSet{
			set:       set,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return QuestionSet{}, err
	}
	return result.(QuestionSet), nil
}

// ttlWithJitter spreads expirations by up to 10% so hot categories do
// not all reload in the same instant.
func (r *Repository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
