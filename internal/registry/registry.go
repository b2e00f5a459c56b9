// Package registry holds the handlers a bus dispatches to, indexed by topic.
//
// Each topic owns a bucket whose entries live in an immutable slice that is
// swapped atomically on every write. Readers load the current slice without
// taking a lock and may keep using it for as long as they like; writers copy,
// modify and publish a new slice while holding a mutex that only other
// writers contend on.
package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
)

// Kind tags how an entry participates in attribute matching.
type Kind uint8

const (
	// Plain entries have no attribute requirement.
	Plain Kind = iota
	// Attributed entries carry a required attribute set.
	Attributed
)

func (k Kind) String() string {
	switch k {
	case Plain:
		return "plain"
	case Attributed:
		return "attributed"
	default:
		return "unknown"
	}
}

// Entry is a registered value together with its cached matching descriptor.
type Entry[T comparable] struct {
	Value    T
	Kind     Kind
	Required map[string]any
}

type bucket[T comparable] struct {
	entries atomic.Pointer[[]Entry[T]]
}

func (b *bucket[T]) load() []Entry[T] {
	if p := b.entries.Load(); p != nil {
		return *p
	}
	return nil
}

type Registry[T comparable] struct {
	topics *haxmap.Map[string, *bucket[T]]
	mu     sync.Mutex
	size   atomic.Int64
}

func New[T comparable]() *Registry[T] {
	return &Registry[T]{
		topics: haxmap.New[string, *bucket[T]](),
	}
}

// Add appends entry to the topic. Adding the same value twice yields two
// entries.
func (r *Registry[T]) Add(topic string, entry Entry[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, _ := r.topics.GetOrCompute(topic, func() *bucket[T] { return &bucket[T]{} })

	cur := b.load()
	next := make([]Entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry)
	b.entries.Store(&next)
	r.size.Add(1)
}

// Remove drops the first entry on topic whose value equals v. A topic left
// without entries is dropped from the index.
func (r *Registry[T]) Remove(topic string, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.topics.Get(topic)
	if !ok {
		return false
	}
	cur := b.load()
	idx := slices.IndexFunc(cur, func(e Entry[T]) bool { return e.Value == v })
	if idx < 0 {
		return false
	}
	next := slices.Concat(cur[:idx], cur[idx+1:])
	b.entries.Store(&next)
	r.size.Add(-1)
	if len(next) == 0 {
		r.topics.Del(topic)
	}
	return true
}

// Snapshot returns the entries registered on topic at call time. The slice is
// shared and must not be modified.
func (r *Registry[T]) Snapshot(topic string) []Entry[T] {
	b, ok := r.topics.Get(topic)
	if !ok {
		return nil
	}
	return b.load()
}

// Topics reports how many topics have at least one entry.
func (r *Registry[T]) Topics() int {
	return int(r.topics.Len())
}

// Len reports the number of entries across all topics.
func (r *Registry[T]) Len() int {
	return int(r.size.Load())
}
