package cache

import (
	"container/list"
	"errors"
	"sync"

	"github.com/golang/glog"
)

// DefaultEvictionThreshold is the number of unretained entries kept cached by default.
const DefaultEvictionThreshold = 5

// ErrReleaseWithoutRetain is returned when a key is released more often than it was retained.
var ErrReleaseWithoutRetain = errors.New("release without matching retain")

// EvictFunc deletes an evicted key from the cache the policy governs.
type EvictFunc func(key string)

// evictionPolicy is the implementation of the EvictionPolicy interface.
type evictionPolicy struct {
	mu        sync.Mutex
	evict     EvictFunc
	threshold int
	retainers map[string]int

	// idle holds the keys without retainers, least recently released first.
	idle    *list.List
	idlePos map[string]*list.Element
}

// EvictionPolicy tracks retainers per cache key and evicts unretained keys once
// more of them are held than the eviction threshold allows. Unretained keys are
// evicted in the order they lost their last retainer.
type EvictionPolicy interface {
	// Retain adds a retainer to key.
	//
	// Parameters:
	//   - key: the cache key
	Retain(key string)

	// Release removes a retainer from key. The count never goes below zero.
	//
	// Parameters:
	//   - key: the cache key
	//
	// Returns:
	//   - error: ErrReleaseWithoutRetain if key had no retainers
	Release(key string) error

	// RetainerCount returns the number of retainers of key, 0 for unknown keys.
	//
	// Parameters:
	//   - key: the cache key
	//
	// Returns:
	//   - int: the retainer count
	RetainerCount(key string) int

	// EvictionThreshold returns how many unretained keys stay cached.
	//
	// Returns:
	//   - int: the threshold
	EvictionThreshold() int

	// SetEvictionThreshold changes the threshold and evicts anything now beyond it.
	//
	// Parameters:
	//   - threshold: the number of unretained keys to keep, negative values count as 0
	SetEvictionThreshold(threshold int)

	// Evictable returns the unretained keys, least recently released first.
	//
	// Returns:
	//   - []string: the keys
	Evictable() []string

	// Forget stops tracking key without evicting it.
	//
	// Parameters:
	//   - key: the cache key
	Forget(key string)

	// Reset forgets every key. Use only when every retainer has been accounted for.
	Reset()
}

var _ EvictionPolicy = &evictionPolicy{}

// NewEvictionPolicy creates an EvictionPolicy that calls evict for each key it evicts.
// evict runs without the policy lock held, so it may call back into the policy.
//
// Parameters:
//   - evict: deletes an evicted key from the cache
//   - options: a variadic list of EvictionPolicyBuilderOption functions
//
// Returns:
//   - EvictionPolicy: the policy
func NewEvictionPolicy(evict EvictFunc, options ...EvictionPolicyBuilderOption) EvictionPolicy {
	p := &evictionPolicy{
		evict:     evict,
		threshold: DefaultEvictionThreshold,
		retainers: make(map[string]int),
		idle:      list.New(),
		idlePos:   make(map[string]*list.Element),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *evictionPolicy) Retain(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retainers[key]++
	if el, ok := p.idlePos[key]; ok {
		p.idle.Remove(el)
		delete(p.idlePos, key)
	}
}

func (p *evictionPolicy) Release(key string) error {
	p.mu.Lock()
	count := p.retainers[key]
	if count == 0 {
		p.mu.Unlock()
		glog.Warningf("[Cache] release of %q without a retainer", key)
		return ErrReleaseWithoutRetain
	}
	p.retainers[key] = count - 1
	if count == 1 {
		p.idlePos[key] = p.idle.PushBack(key)
	}
	evicted := p.collect()
	p.mu.Unlock()

	p.run(evicted)
	return nil
}

func (p *evictionPolicy) RetainerCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retainers[key]
}

func (p *evictionPolicy) EvictionThreshold() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.threshold
}

func (p *evictionPolicy) SetEvictionThreshold(threshold int) {
	p.mu.Lock()
	p.threshold = max(threshold, 0)
	evicted := p.collect()
	p.mu.Unlock()

	p.run(evicted)
}

func (p *evictionPolicy) Evictable() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, p.idle.Len())
	for el := p.idle.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(string))
	}
	return keys
}

func (p *evictionPolicy) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.retainers, key)
	if el, ok := p.idlePos[key]; ok {
		p.idle.Remove(el)
		delete(p.idlePos, key)
	}
}

func (p *evictionPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retainers = make(map[string]int)
	p.idle.Init()
	p.idlePos = make(map[string]*list.Element)
}

// collect removes the keys beyond the threshold from tracking. Must be called with the lock held.
func (p *evictionPolicy) collect() []string {
	var evicted []string
	for p.idle.Len() > p.threshold {
		key := p.idle.Remove(p.idle.Front()).(string)
		delete(p.idlePos, key)
		delete(p.retainers, key)
		evicted = append(evicted, key)
	}
	return evicted
}

func (p *evictionPolicy) run(keys []string) {
	for _, key := range keys {
		glog.V(1).Infof("[Cache] evicting %q", key)
		if p.evict != nil {
			p.evict(key)
		}
	}
}
