// Copyright 2016 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package cache provides a small thread-safe LRU cache keyed by
// string.  Routers and dispatchers use it to keep compiled URI
// templates for patterns they format on every call.
package cache

import (
	"container/list"
	"sync"
)

// LRU is a least-recently-used cache with a fixed capacity.  The cache
// can be safely accessed from multiple goroutines.
type LRU struct {
	size      int
	lock      sync.RWMutex
	evictList *list.List
	index     map[string]*list.Element
}

type entry struct {
	key   string
	value interface{}
}

// NewLRU creates a cache holding at most size items.
func NewLRU(size int) *LRU {
	if size < 1 {
		size = 1
	}
	return &LRU{
		size:      size,
		evictList: list.New(),
		index:     make(map[string]*list.Element),
	}
}

// Get retrieves an item from the cache.  If it is not present, calls
// the fetch function, and if that succeeds, saves the item and returns
// it.  This returns an error only if the item is not present and the
// fetch function returns an error.
func (lru *LRU) Get(key string, fetch func(string) (interface{}, error)) (interface{}, error) {
	// This sadly happens under a writer lock, since we need to move
	// the item to the front of the list if it is present
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[key]; present {
		lru.evictList.MoveToBack(element)
		return element.Value.(*entry).value, nil
	}

	value, err := fetch(key)
	if err != nil {
		return value, err
	}
	lru.add(key, value)
	return value, nil
}

// Peek returns an item if it is present, without affecting its
// recency.  This runs under a reader lock.
func (lru *LRU) Peek(key string) (interface{}, bool) {
	lru.lock.RLock()
	defer lru.lock.RUnlock()

	if element, present := lru.index[key]; present {
		return element.Value.(*entry).value, true
	}
	return nil, false
}

// Put adds an item to the cache, possibly evicting something.
func (lru *LRU) Put(key string, value interface{}) {
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[key]; present {
		element.Value.(*entry).value = value
		lru.evictList.MoveToBack(element)
		return
	}
	lru.add(key, value)
}

// Remove takes an item out of the cache.  It does nothing if the key
// does not exist.
func (lru *LRU) Remove(key string) {
	lru.lock.Lock()
	defer lru.lock.Unlock()

	if element, present := lru.index[key]; present {
		delete(lru.index, key)
		lru.evictList.Remove(element)
	}
}

// Len returns the number of cached items.
func (lru *LRU) Len() int {
	lru.lock.RLock()
	defer lru.lock.RUnlock()
	return len(lru.index)
}

// add runs under the write lock; key is known to be absent.
func (lru *LRU) add(key string, value interface{}) {
	element := lru.evictList.PushBack(&entry{key: key, value: value})
	lru.index[key] = element

	for len(lru.index) > lru.size {
		head := lru.evictList.Front()
		delete(lru.index, head.Value.(*entry).key)
		lru.evictList.Remove(head)
	}
}
