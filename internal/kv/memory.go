package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memorySpace is the shared map behind one or more Memory handles.
type memorySpace struct {
	mu       sync.RWMutex
	data     map[string][]byte
	nextID   uint64
	watchers map[uint64]memoryWatcher
}

type memoryWatcher struct {
	handle uint64
	ch     chan Change
	done   <-chan struct{}
}

// Memory is an in-process Store. Handles obtained with Share see the same
// data and receive each other's writes through Watch, which is how tests
// model several tabs on one origin.
type Memory struct {
	space  *memorySpace
	handle uint64
}

// NewMemory creates an empty space and returns its first handle.
func NewMemory() *Memory {
	space := &memorySpace{data: map[string][]byte{}, watchers: map[uint64]memoryWatcher{}}
	return space.newHandle()
}

// Share returns another handle on the same data.
func (m *Memory) Share() *Memory {
	return m.space.newHandle()
}

func (s *memorySpace) newHandle() *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &Memory{space: s, handle: s.nextID}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.space.mu.RLock()
	defer m.space.mu.RUnlock()
	v, ok := m.space.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	cp := append([]byte(nil), value...)
	m.space.mu.Lock()
	m.space.data[key] = cp
	m.space.mu.Unlock()

	m.notify(Change{Key: key, Value: cp})
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.space.mu.Lock()
	_, existed := m.space.data[key]
	delete(m.space.data, key)
	m.space.mu.Unlock()

	if existed {
		m.notify(Change{Key: key, Deleted: true})
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.space.mu.RLock()
	defer m.space.mu.RUnlock()
	keys := make([]string, 0, len(m.space.data))
	for k := range m.space.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch delivers changes made through other handles until ctx ends.
// fn runs on a dedicated goroutine, in write order.
func (m *Memory) Watch(ctx context.Context, fn func(Change)) error {
	w := memoryWatcher{handle: m.handle, ch: make(chan Change, 64), done: ctx.Done()}

	m.space.mu.Lock()
	m.space.nextID++
	id := m.space.nextID
	m.space.watchers[id] = w
	m.space.mu.Unlock()

	go func() {
		defer func() {
			m.space.mu.Lock()
			delete(m.space.watchers, id)
			m.space.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-w.ch:
				fn(c)
			}
		}
	}()
	return nil
}

func (m *Memory) notify(c Change) {
	m.space.mu.RLock()
	targets := make([]memoryWatcher, 0, len(m.space.watchers))
	for _, w := range m.space.watchers {
		if w.handle != m.handle {
			targets = append(targets, w)
		}
	}
	m.space.mu.RUnlock()

	for _, w := range targets {
		select {
		case w.ch <- c:
		case <-w.done:
		}
	}
}

func (m *Memory) Close() error { return nil }
