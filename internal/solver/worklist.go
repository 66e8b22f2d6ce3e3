package solver

import (
	"container/heap"
)

// pair asks the solver to reduce scope to by the requirement of scope from.
type pair struct {
	from, to int
}

// pairSet is the pending reduction work-set of a phase. Pairs are unique
// and pop in ascending (from, to) order, so draining is deterministic.
type pairSet struct {
	heap    pairHeap
	members map[pair]struct{}
}

func newPairSet() *pairSet {
	return &pairSet{members: make(map[pair]struct{})}
}

func (s *pairSet) add(from, to int) {
	if from == to {
		return
	}
	p := pair{from: from, to: to}
	if _, ok := s.members[p]; ok {
		return
	}
	s.members[p] = struct{}{}
	heap.Push(&s.heap, p)
}

// addFrom queues every scope for reduction by scope i.
func (s *pairSet) addFrom(i, n int) {
	for k := 0; k < n; k++ {
		s.add(i, k)
	}
}

// addTo queues scope i for reduction by every other scope.
func (s *pairSet) addTo(i, n int) {
	for k := 0; k < n; k++ {
		s.add(k, i)
	}
}

func (s *pairSet) addAll(n int) {
	for i := 0; i < n; i++ {
		s.addFrom(i, n)
	}
}

func (s *pairSet) pop() (pair, bool) {
	if len(s.heap) == 0 {
		return pair{}, false
	}
	p := heap.Pop(&s.heap).(pair)
	delete(s.members, p)
	return p, true
}

func (s *pairSet) len() int {
	return len(s.heap)
}

func (s *pairSet) clone() *pairSet {
	c := &pairSet{
		heap:    append(pairHeap(nil), s.heap...),
		members: make(map[pair]struct{}, len(s.members)),
	}
	for p := range s.members {
		c.members[p] = struct{}{}
	}
	return c
}

type pairHeap []pair

func (h pairHeap) Len() int { return len(h) }

func (h pairHeap) Less(i, j int) bool {
	if h[i].from != h[j].from {
		return h[i].from < h[j].from
	}
	return h[i].to < h[j].to
}

func (h pairHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pairHeap) Push(x any) { *h = append(*h, x.(pair)) }

func (h *pairHeap) Pop() any {
	old := *h
	p := old[len(old)-1]
	*h = old[:len(old)-1]
	return p
}
