package core

import (
	"container/list"
	"sync"
)

// LRUPolicy is a size-bound least-recently-used eviction policy.
type LRUPolicy struct {
	mu       sync.Mutex
	maxBytes int
	total    int
	order    *list.List
	index    map[string]*list.Element
}

type lruItem struct {
	key  string
	size int
}

// NewLRUPolicy bounds the cache to roughly maxBytes of body bytes.
func NewLRUPolicy(maxBytes int) *LRUPolicy {
	return &LRUPolicy{
		maxBytes: maxBytes,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (p *LRUPolicy) Touched(key string) {
	p.mu.Lock()
	if el, ok := p.index[key]; ok {
		p.order.MoveToFront(el)
	}
	p.mu.Unlock()
}

func (p *LRUPolicy) Stored(key string, size int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if el, ok := p.index[key]; ok {
		p.total -= el.Value.(*lruItem).size
		p.order.Remove(el)
	}
	p.index[key] = p.order.PushFront(&lruItem{key: key, size: size})
	p.total += size

	var evict []string
	for p.total > p.maxBytes && p.order.Len() > 1 {
		back := p.order.Back()
		item := back.Value.(*lruItem)
		evict = append(evict, item.key)
		p.total -= item.size
		p.order.Remove(back)
		delete(p.index, item.key)
	}
	return evict
}

func (p *LRUPolicy) Evicted(key string) {
	p.mu.Lock()
	if el, ok := p.index[key]; ok {
		p.total -= el.Value.(*lruItem).size
		p.order.Remove(el)
		delete(p.index, key)
	}
	p.mu.Unlock()
}
