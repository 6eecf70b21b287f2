package aggcache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status describes the lifecycle state of a cache entry.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Fetcher performs the actual remote aggregation call. The cache treats the
// payload as opaque and makes no assumptions about retries or timeouts.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, endpoint string, filters Filters) (T, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc[T any] func(ctx context.Context, endpoint string, filters Filters) (T, error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, endpoint string, filters Filters) (T, error) {
	return f(ctx, endpoint, filters)
}

// inflight carries the outcome of a single fetch to every caller coalesced
// onto it. The outcome is recorded here, not read back from the entry, so
// that coalesced callers observe this fetch's result even if the entry is
// invalidated or overwritten while they wake up.
type inflight[T any] struct {
	done  chan struct{}
	value T
	err   error
}

type entry[T any] struct {
	endpoint  string
	status    Status
	value     T
	err       error
	fetchedAt time.Time
	pending   *inflight[T]

	// stale is set when the entry is invalidated while a fetch is in
	// flight. The in-flight result still populates the entry when it
	// settles, but the next Get refetches instead of trusting it.
	stale bool
}

// Cache is a session-scoped, request-coalescing cache in front of a Fetcher.
// Entries never expire on their own; they are cleared only by explicit
// invalidation. Any number of goroutines may call Get concurrently: for each
// key at most one fetch is in flight at a time, and every concurrent caller
// for that key observes the same outcome.
type Cache[T any] struct {
	fetcher Fetcher[T]
	now     func() time.Time

	mu          sync.Mutex
	entries     map[string]*entry[T]
	subscribers map[int]func()
	nextSubID   int
}

func New[T any](fetcher Fetcher[T]) *Cache[T] {
	return &Cache[T]{
		fetcher:     fetcher,
		now:         time.Now,
		entries:     make(map[string]*entry[T]),
		subscribers: make(map[int]func()),
	}
}

// Get returns the aggregate for (endpoint, filters), fetching it if no fresh
// value is cached. A caller arriving while a fetch for the same key is in
// flight waits for that fetch instead of starting its own. Fetch errors are
// returned to every waiting caller and leave the entry retryable.
//
// Cancelling ctx only stops the wait: the fetch itself runs on a detached
// context and still settles the entry for the other coalesced callers.
func (c *Cache[T]) Get(ctx context.Context, endpoint string, filters Filters) (T, error) {
	var zero T

	key, err := Key(endpoint, filters)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{endpoint: endpoint, status: StatusEmpty}
		c.entries[key] = e
	}

	if e.status == StatusReady && !e.stale {
		value := e.value
		c.mu.Unlock()
		metrics.hitCount.Add(ctx, 1, endpointAttribute(endpoint))
		return value, nil
	}

	if e.status == StatusPending {
		fl := e.pending
		c.mu.Unlock()
		metrics.coalescedCount.Add(ctx, 1, endpointAttribute(endpoint))
		return awaitInflight(ctx, fl)
	}

	// Miss: empty, errored, or invalidated while a previous fetch was in
	// flight. This caller starts the fetch; everyone else coalesces.
	fl := &inflight[T]{done: make(chan struct{})}
	e.status = StatusPending
	e.pending = fl
	e.stale = false
	c.mu.Unlock()
	metrics.missCount.Add(ctx, 1, endpointAttribute(endpoint))

	go func() {
		value, err := c.fetcher.Fetch(context.WithoutCancel(ctx), endpoint, filters)
		fl.value = value
		fl.err = err
		close(fl.done)
		c.settle(key, fl)
	}()

	return awaitInflight(ctx, fl)
}

func awaitInflight[T any](ctx context.Context, fl *inflight[T]) (T, error) {
	select {
	case <-fl.done:
		if fl.err != nil {
			var zero T
			return zero, fmt.Errorf("fetch failed: %w", fl.err)
		}
		return fl.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// settle records the outcome of a fetch and notifies subscribers. If the
// entry was removed or replaced while the fetch was in flight the outcome is
// discarded (the coalesced callers already have it via the inflight handle).
func (c *Cache[T]) settle(key string, fl *inflight[T]) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.pending == fl {
		e.pending = nil
		if fl.err != nil {
			var zero T
			e.status = StatusError
			e.err = fl.err
			e.value = zero
		} else {
			e.status = StatusReady
			e.value = fl.value
			e.err = nil
			e.fetchedAt = c.now()
		}
		// e.stale is left untouched: an invalidation that raced this
		// fetch still forces a refetch on the next Get.
	}
	callbacks := make([]func(), 0, len(c.subscribers))
	for _, callback := range c.subscribers {
		callbacks = append(callbacks, callback)
	}
	c.mu.Unlock()

	for _, callback := range callbacks {
		callback()
	}
}

// Invalidate clears every entry in the cache.
func (c *Cache[T]) Invalidate() {
	c.invalidateMatching(func(e *entry[T]) bool { return true })
}

// InvalidateEndpoint clears all entries for the given endpoint, regardless
// of their filters.
func (c *Cache[T]) InvalidateEndpoint(endpoint string) {
	c.invalidateMatching(func(e *entry[T]) bool { return e.endpoint == endpoint })
}

// InvalidateKey clears exactly the entry for (endpoint, filters).
func (c *Cache[T]) InvalidateKey(endpoint string, filters Filters) error {
	key, err := Key(endpoint, filters)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateEntryLocked(key)
	return nil
}

func (c *Cache[T]) invalidateMatching(match func(e *entry[T]) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if match(e) {
			c.invalidateEntryLocked(key)
		}
	}
}

func (c *Cache[T]) invalidateEntryLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.status == StatusPending {
		// Keep the entry so coalesced callers still get their result,
		// but never serve that result to later callers.
		e.stale = true
		return
	}
	delete(c.entries, key)
}

// Subscribe registers a callback invoked after every settled fetch, whether
// it succeeded or failed. Subscribers receive no payload; they are expected
// to re-read through Get. The returned function removes this subscription
// without affecting others.
func (c *Cache[T]) Subscribe(callback func()) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = callback
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// EntryStatus reports the state of the entry for (endpoint, filters).
// Entries that were never requested, or that have been invalidated, report
// StatusEmpty.
func (c *Cache[T]) EntryStatus(endpoint string, filters Filters) (Status, error) {
	key, err := Key(endpoint, filters)
	if err != nil {
		return StatusEmpty, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return StatusEmpty, nil
	}
	if e.status == StatusReady && e.stale {
		// Invalidated while its fetch was in flight: not trusted.
		return StatusEmpty, nil
	}
	return e.status, nil
}

// LastFetched returns when the entry for (endpoint, filters) was last
// successfully fetched. ok is false if there is no trusted value.
func (c *Cache[T]) LastFetched(endpoint string, filters Filters) (fetchedAt time.Time, ok bool, err error) {
	key, err := Key(endpoint, filters)
	if err != nil {
		return time.Time{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[key]
	if !found || e.status != StatusReady || e.stale {
		return time.Time{}, false, nil
	}
	return e.fetchedAt, true, nil
}
