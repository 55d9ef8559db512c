// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diriter implements the parallel directory traversal spec.md
// §4.I describes: a shared work queue of (path, kind, attrs) items drained
// by N worker goroutines, depth-first by default (items pop from the tail)
// or breadth-first when configured (items pop from the head), with a
// visitor callback that can skip a directory's subtree.
package diriter

import (
	"os"
	"path/filepath"
	"sync"
)

// Kind distinguishes a directory item from a file item.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Item is one unit of traversal work.
type Item struct {
	Path  string
	Kind  Kind
	Attrs os.FileMode
}

// Visitor is called once per Item from a worker goroutine. Returning false
// for a directory item skips enqueuing its children.
type Visitor func(Item) bool

// Order selects which end of the queue workers pop from.
type Order int

const (
	// DepthFirst pops from the queue's tail (LIFO).
	DepthFirst Order = iota
	// BreadthFirst pops from the queue's head (FIFO).
	BreadthFirst
)

// Iterator runs a Visitor over a directory tree using a bounded pool of
// worker goroutines.
type Iterator struct {
	workers int
	order   Order
	visit   Visitor

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Item
	inFlight int
	done     bool
}

// New returns an Iterator with the given worker count (at least 1),
// queue order, and visitor.
func New(workers int, order Order, visit Visitor) *Iterator {
	if workers <= 0 {
		workers = 1
	}
	it := &Iterator{workers: workers, order: order, visit: visit}
	it.cond = sync.NewCond(&it.mu)
	return it
}

// Run seeds the queue with root and blocks until every item (and every
// item it transitively enqueues) has been visited.
func (it *Iterator) Run(root string, rootKind Kind, rootAttrs os.FileMode) {
	it.push(Item{Path: root, Kind: rootKind, Attrs: rootAttrs})

	var wg sync.WaitGroup
	for i := 0; i < it.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			it.worker()
		}()
	}
	wg.Wait()
}

func (it *Iterator) push(item Item) {
	it.mu.Lock()
	it.queue = append(it.queue, item)
	it.inFlight++
	it.mu.Unlock()
	it.cond.Broadcast()
}

// pop removes and returns the next item per it.order, or reports false
// when the traversal has completed: the queue is empty and no worker
// holds an in-flight item.
func (it *Iterator) pop() (Item, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	for len(it.queue) == 0 {
		if it.inFlight == 0 {
			it.done = true
			it.cond.Broadcast()
			return Item{}, false
		}
		it.cond.Wait()
		if it.done {
			return Item{}, false
		}
	}

	var item Item
	if it.order == BreadthFirst {
		item = it.queue[0]
		it.queue = it.queue[1:]
	} else {
		last := len(it.queue) - 1
		item = it.queue[last]
		it.queue = it.queue[:last]
	}
	return item, true
}

func (it *Iterator) finishItem() {
	it.mu.Lock()
	it.inFlight--
	if it.inFlight == 0 && len(it.queue) == 0 {
		it.done = true
		it.cond.Broadcast()
	}
	it.mu.Unlock()
}

func (it *Iterator) worker() {
	for {
		item, ok := it.pop()
		if !ok {
			return
		}
		it.process(item)
	}
}

func (it *Iterator) process(item Item) {
	defer it.finishItem()

	descend := it.visit(item)
	if item.Kind != KindDir || !descend {
		return
	}

	entries, err := os.ReadDir(item.Path)
	if err != nil {
		return
	}
	for _, e := range entries {
		childKind := KindFile
		if e.IsDir() {
			childKind = KindDir
		}
		info, err := e.Info()
		var mode os.FileMode
		if err == nil {
			mode = info.Mode()
		}
		it.push(Item{Path: filepath.Join(item.Path, e.Name()), Kind: childKind, Attrs: mode})
	}
}
