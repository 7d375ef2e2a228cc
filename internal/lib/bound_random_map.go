package lib

import (
	"bytes"
	"fmt"
	"math/rand"
)

// BoundRandomMap is a keyed collection with a fixed capacity. Inserting a new key into
// a full map evicts one existing key picked uniformly at random.
type BoundRandomMap[T any] struct {
	capacity int
	keys     []string
	index    map[string]int
	data     map[string]T
	rnd      *rand.Rand
}

func NewBoundRandomMap[T any](size int, rnd *rand.Rand) *BoundRandomMap[T] {
	return &BoundRandomMap[T]{
		capacity: size,
		keys:     make([]string, 0, size),
		index:    make(map[string]int, size),
		data:     make(map[string]T, size),
		rnd:      rnd,
	}
}

// Put inserts or updates the item. When a key had to be evicted to make room
// it is returned together with its item and ok set to true
func (bm *BoundRandomMap[T]) Put(key string, item T) (evictedKey string, evicted T, ok bool) {
	if _, exists := bm.index[key]; exists {
		bm.data[key] = item
		return "", evicted, false
	}

	if bm.capacity <= 0 {
		return key, item, true
	}

	if len(bm.keys) == bm.capacity {
		i := bm.rnd.Intn(len(bm.keys))
		evictedKey = bm.keys[i]
		evicted = bm.data[evictedKey]
		ok = true
		bm.removeAt(i)
	}

	bm.index[key] = len(bm.keys)
	bm.keys = append(bm.keys, key)
	bm.data[key] = item
	return evictedKey, evicted, ok
}

func (bm *BoundRandomMap[T]) Get(key string) (T, bool) {
	item, ok := bm.data[key]
	return item, ok
}

func (bm *BoundRandomMap[T]) Remove(key string) (T, bool) {
	i, ok := bm.index[key]
	if !ok {
		return *new(T), false
	}
	item := bm.data[key]
	bm.removeAt(i)
	return item, true
}

// removeAt swaps the last key into position i
func (bm *BoundRandomMap[T]) removeAt(i int) {
	key := bm.keys[i]
	last := len(bm.keys) - 1
	if i != last {
		bm.keys[i] = bm.keys[last]
		bm.index[bm.keys[i]] = i
	}
	bm.keys = bm.keys[:last]
	delete(bm.index, key)
	delete(bm.data, key)
}

func (bm *BoundRandomMap[T]) Clear() {
	bm.keys = make([]string, 0, bm.capacity)
	bm.index = make(map[string]int, bm.capacity)
	bm.data = make(map[string]T, bm.capacity)
}

func (bm *BoundRandomMap[T]) Count() int {
	return len(bm.keys)
}

func (bm *BoundRandomMap[T]) Capacity() int {
	return bm.capacity
}

// Keys returns a copy of the stored keys, order is not stable across evictions
func (bm *BoundRandomMap[T]) Keys() []string {
	keys := make([]string, len(bm.keys))
	copy(keys, bm.keys)
	return keys
}

func (bm *BoundRandomMap[T]) String() string {
	b := new(bytes.Buffer)
	for index, key := range bm.keys {
		fmt.Fprintf(b, "(%d) %s: %v\n", index, key, bm.data[key])
	}
	return b.String()
}
