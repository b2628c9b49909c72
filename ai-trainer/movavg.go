package main

import "golang.org/x/exp/constraints"

type number interface {
	constraints.Integer | constraints.Float
}

// movingAvg averages the last n values added. The window starts out full of
// zeros, so early averages are pulled toward zero.
type movingAvg[T number] struct {
	total T
	vals  []T
	head  int
}

func newMovingAvg[T number](n int) *movingAvg[T] {
	if n < 1 {
		n = 1
	}
	return &movingAvg[T]{vals: make([]T, n)}
}

// Add pushes v and drops the oldest value.
func (m *movingAvg[T]) Add(v T) {
	m.total += v - m.vals[m.head]
	m.vals[m.head] = v
	m.head = (m.head + 1) % len(m.vals)
}

func (m *movingAvg[T]) Avg() T {
	return m.total / T(len(m.vals))
}

func (m *movingAvg[T]) Window() int {
	return len(m.vals)
}
