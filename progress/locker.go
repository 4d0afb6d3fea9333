package progress

import (
	"context"
	"sync"
	"time"

	"github.com/agriapp/server/cache"
	"github.com/google/uuid"
)

// Locker serializes read-modify-write cycles on one record.
// The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex. Entries are dropped once no
// caller holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, conflict("timed out waiting for lock on", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// held returns the number of keys currently tracked.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// CacheLocker takes a SetNX lock in the shared cache so several server
// processes can coordinate on the same record. Locks expire after ttl in
// case the holder dies; callers poll until wait elapses.
type CacheLocker struct {
	c    cache.Cache
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
}

// NewCacheLocker creates a CacheLocker.
func NewCacheLocker(c cache.Cache, ttl, wait time.Duration) *CacheLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &CacheLocker{c: c, ttl: ttl, wait: wait, poll: 10 * time.Millisecond}
}

func lockKey(key string) string {
	return "lock:progress:" + key
}

func (l *CacheLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	token := uuid.NewString()
	k := lockKey(key)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.c.SetNX(ctx, k, token, l.ttl)
		if err != nil {
			return nil, storageFailure("acquire lock", err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, conflict("timed out waiting for lock on", key)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be done; release on a fresh one.
			relCtx, relCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer relCancel()
			_, _ = l.c.CompareAndDelete(relCtx, k, token)
		})
	}, nil
}
