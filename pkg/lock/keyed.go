// Package lock provides per-resource mutual exclusion with a bounded wait.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a key could not be acquired within the wait budget.
var ErrTimeout = errors.New("lock wait timeout")

// Observer receives the outcome of every acquisition attempt.
type Observer func(scope string, waited time.Duration, err error)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// KeyedLocker serialises work per key. Different keys never block each other.
type KeyedLocker struct {
	mu       sync.Mutex
	entries  map[string]*entry
	wait     time.Duration
	observer Observer
}

// Option configures a KeyedLocker.
type Option func(*KeyedLocker)

// WithObserver attaches an observer, typically a metrics recorder.
func WithObserver(o Observer) Option {
	return func(l *KeyedLocker) {
		l.observer = o
	}
}

// NewKeyedLocker builds a locker whose acquisitions give up after wait.
func NewKeyedLocker(wait time.Duration, opts ...Option) *KeyedLocker {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	l := &KeyedLocker{entries: make(map[string]*entry), wait: wait}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Key joins a scope and identifier, e.g. Key("course", id) => "course:<id>".
func Key(scope, id string) string {
	return scope + ":" + id
}

// Acquire blocks until key is held, the wait budget elapses (ErrTimeout), or
// ctx is done (ctx.Err()). The returned release func is safe to call twice.
func (l *KeyedLocker) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.ref(key)
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		l.unref(key, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.observe(key, time.Since(start), ctxErr)
			return nil, ctxErr
		}
		err = fmt.Errorf("%w: %s", ErrTimeout, key)
		l.observe(key, time.Since(start), err)
		return nil, err
	}
	l.observe(key, time.Since(start), nil)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key, e)
		})
	}, nil
}

// held reports how many keys currently have holders or waiters.
func (l *KeyedLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *KeyedLocker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *KeyedLocker) observe(key string, waited time.Duration, err error) {
	if l.observer == nil {
		return
	}
	scope := key
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		scope = key[:idx]
	}
	l.observer(scope, waited, err)
}
