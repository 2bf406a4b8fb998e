// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package heap

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

type Elem[T constraints.Ordered, W constraints.Ordered] struct {
	Value  T
	Weight W
}

// better reports whether a ranks before b: higher weight first, then smaller value.
func better[T constraints.Ordered, W constraints.Ordered](a, b Elem[T, W]) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Value < b.Value
}

// _heap keeps the worst element at the root.
type _heap[T constraints.Ordered, W constraints.Ordered] struct {
	elems []Elem[T, W]
}

func (h *_heap[T, W]) Len() int { return len(h.elems) }

func (h *_heap[T, W]) Less(i, j int) bool { return better(h.elems[j], h.elems[i]) }

func (h *_heap[T, W]) Swap(i, j int) { h.elems[i], h.elems[j] = h.elems[j], h.elems[i] }

func (h *_heap[T, W]) Push(x any) { h.elems = append(h.elems, x.(Elem[T, W])) }

func (h *_heap[T, W]) Pop() any {
	old := h.elems
	n := len(old)
	x := old[n-1]
	h.elems = old[:n-1]
	return x
}

// TopKFilter filters out top k items with maximum weights. Items with equal
// weights are ranked by value ascending, so the output is deterministic.
type TopKFilter[T constraints.Ordered, W constraints.Ordered] struct {
	_heap[T, W]
	k int
}

// NewTopKFilter creates a top k filter. A non-positive k keeps every item.
func NewTopKFilter[T constraints.Ordered, W constraints.Ordered](k int) *TopKFilter[T, W] {
	return &TopKFilter[T, W]{k: k}
}

// Push pushes the element x onto the heap.
// The complexity is O(log n) where n = h.Count().
func (filter *TopKFilter[T, W]) Push(item T, weight W) {
	heap.Push(&filter._heap, Elem[T, W]{item, weight})
	if filter.k > 0 && filter.Len() > filter.k {
		heap.Pop(&filter._heap)
	}
}

// PopAll pops all items in the filter with decreasing order.
func (filter *TopKFilter[T, W]) PopAll() []Elem[T, W] {
	elems := make([]Elem[T, W], filter.Len())
	for i := len(elems) - 1; i >= 0; i-- {
		elems[i] = heap.Pop(&filter._heap).(Elem[T, W])
	}
	return elems
}
