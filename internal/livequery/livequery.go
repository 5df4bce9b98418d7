// Package livequery turns a fetch function into an observable query. Every
// refresh moves the query through Pending and then Completed or Failed, and
// every transition is delivered to the registered callbacks.
package livequery

import (
	"context"
	"encoding/json"
	"sync"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "error"
)

type State[T any] struct {
	Status Status
	Data   []T
	Err    error
}

func (s State[T]) MarshalJSON() ([]byte, error) {
	out := struct {
		Status Status `json:"status"`
		Data   []T    `json:"data,omitempty"`
		Error  string `json:"error,omitempty"`
	}{Status: s.Status, Data: s.Data}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return json.Marshal(out)
}

type Fetcher[T any] func(ctx context.Context) ([]T, error)

type Query[T any] struct {
	fetch Fetcher[T]

	refreshMu sync.Mutex

	mu        sync.Mutex
	state     State[T]
	callbacks map[int]func(State[T])
	nextID    int
}

func New[T any](fetch Fetcher[T]) *Query[T] {
	return &Query[T]{
		fetch:     fetch,
		state:     State[T]{Status: StatusPending},
		callbacks: map[int]func(State[T]){},
	}
}

// Subscribe registers cb and immediately replays the current state to it.
// The returned function removes the callback.
func (q *Query[T]) Subscribe(cb func(State[T])) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.callbacks[id] = cb
	current := q.state
	q.mu.Unlock()

	cb(current)

	return func() {
		q.mu.Lock()
		delete(q.callbacks, id)
		q.mu.Unlock()
	}
}

func (q *Query[T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Refresh re-runs the fetch. Concurrent refreshes are serialised.
func (q *Query[T]) Refresh(ctx context.Context) {
	q.refreshMu.Lock()
	defer q.refreshMu.Unlock()

	q.transition(State[T]{Status: StatusPending, Data: q.State().Data})

	data, err := q.fetch(ctx)
	if err != nil {
		q.transition(State[T]{Status: StatusFailed, Err: err})
		return
	}
	q.transition(State[T]{Status: StatusCompleted, Data: data})
}

// Watch refreshes once, then again on every event, until ctx is done or
// events is closed.
func (q *Query[T]) Watch(ctx context.Context, events <-chan []byte) {
	q.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			q.Refresh(ctx)
		}
	}
}

func (q *Query[T]) transition(next State[T]) {
	q.mu.Lock()
	q.state = next
	cbs := make([]func(State[T]), 0, len(q.callbacks))
	for _, cb := range q.callbacks {
		cbs = append(cbs, cb)
	}
	q.mu.Unlock()

	for _, cb := range cbs {
		cb(next)
	}
}
