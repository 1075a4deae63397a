// Package memory is an in-process RemoteStore. Subscribers are called on the
// writing goroutine after the write is applied, in write order per path.
package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/zlnvch/duo/store"
)

type MemoryStore struct {
	mu    sync.Mutex
	nodes map[string]map[string][]byte
	subs  map[string][]*subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string][]byte),
		subs:  make(map[string][]*subscription),
	}
}

func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.nodes[parent][child]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return clone(value), nil
}

func (s *MemoryStore) GetNode(ctx context.Context, path string) (map[string][]byte, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneChildren(s.nodes[path]), nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, value []byte) error {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	node := s.nodes[parent]
	if node == nil {
		node = make(map[string][]byte)
		s.nodes[parent] = node
	}
	node[child] = clone(value)
	pending := s.enqueueLocked(parent)
	s.mu.Unlock()

	drain(pending)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	s.mu.Lock()
	node := s.nodes[path]
	if node == nil {
		node = make(map[string][]byte)
		s.nodes[path] = node
	}
	for k, v := range children {
		if v == nil {
			delete(node, k)
			continue
		}
		node[k] = clone(v)
	}
	if len(node) == 0 {
		delete(s.nodes, path)
	}
	pending := s.enqueueLocked(path)
	s.mu.Unlock()

	drain(pending)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	parent, child, err := store.Split(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.nodes, path)
	pending := s.enqueueLocked(path)
	if parent != "" {
		if node, ok := s.nodes[parent]; ok {
			delete(node, child)
			if len(node) == 0 {
				delete(s.nodes, parent)
			}
		}
		pending = append(pending, s.enqueueLocked(parent)...)
	}
	s.mu.Unlock()

	drain(pending)
	return nil
}

func (s *MemoryStore) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *MemoryStore) SubscribeValue(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return nil, err
	}
	return s.subscribe(parent, &subscription{path: path, child: child, leaf: true, fn: fn}), nil
}

func (s *MemoryStore) SubscribeNode(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	return s.subscribe(path, &subscription{path: path, fn: fn}), nil
}

func (s *MemoryStore) subscribe(nodePath string, sub *subscription) store.Unsubscribe {
	s.mu.Lock()
	s.subs[nodePath] = append(s.subs[nodePath], sub)
	sub.enqueue(s.nodes[nodePath])
	s.mu.Unlock()

	sub.drain()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			subs := s.subs[nodePath]
			for i, other := range subs {
				if other == sub {
					s.subs[nodePath] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(s.subs[nodePath]) == 0 {
				delete(s.subs, nodePath)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
}

// enqueueLocked queues the current state of nodePath on each of its
// subscribers. Caller holds s.mu and must drain the result after unlocking.
func (s *MemoryStore) enqueueLocked(nodePath string) []*subscription {
	subs := s.subs[nodePath]
	if len(subs) == 0 {
		return nil
	}
	node := s.nodes[nodePath]
	pending := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		sub.enqueue(node)
		pending = append(pending, sub)
	}
	return pending
}

func drain(subs []*subscription) {
	for _, sub := range subs {
		sub.drain()
	}
}

type subscription struct {
	path  string
	child string
	leaf  bool
	fn    func(store.Snapshot)

	mu       sync.Mutex
	queue    []store.Snapshot
	draining bool
	closed   bool
	last     []byte
	hasLast  bool
}

func (sub *subscription) enqueue(node map[string][]byte) {
	snap := store.Snapshot{Path: sub.path}
	if sub.leaf {
		value, ok := node[sub.child]
		snap.Exists = ok
		snap.Value = clone(value)
	} else {
		snap.Exists = len(node) > 0
		snap.Children = cloneChildren(node)
	}

	sub.mu.Lock()
	if !sub.closed {
		sub.queue = append(sub.queue, snap)
	}
	sub.mu.Unlock()
}

// drain delivers queued snapshots. A drain started from inside a callback
// returns at once and the outer drain delivers what it queued.
func (sub *subscription) drain() {
	sub.mu.Lock()
	if sub.draining {
		sub.mu.Unlock()
		return
	}
	sub.draining = true
	for len(sub.queue) > 0 && !sub.closed {
		next := sub.queue[0]
		sub.queue = sub.queue[1:]
		if sub.leaf {
			if sub.hasLast && next.Exists == (sub.last != nil) && bytes.Equal(next.Value, sub.last) {
				continue
			}
			sub.hasLast = true
			sub.last = nil
			if next.Exists {
				sub.last = clone(next.Value)
				if sub.last == nil {
					sub.last = []byte{}
				}
			}
		}
		sub.mu.Unlock()
		sub.fn(next)
		sub.mu.Lock()
	}
	sub.draining = false
	sub.mu.Unlock()
}

func (sub *subscription) close() {
	sub.mu.Lock()
	sub.closed = true
	sub.queue = nil
	sub.mu.Unlock()
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

func cloneChildren(node map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(node))
	for k, v := range node {
		out[k] = clone(v)
	}
	return out
}
