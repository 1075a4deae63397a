package redis

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"github.com/zlnvch/duo/store"
)

// RedisStore keeps every node of the tree in one hash and announces changes
// to a node on its own pub/sub channel.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(ctx context.Context, devMode bool, redisEndpoint string) (*RedisStore, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// Managed endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func buildNodeKey(nodePath string) string {
	return "tree:" + nodePath
}

func buildNodeChannel(nodePath string) string {
	return "tree-events:" + nodePath
}

func (r *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return nil, err
	}

	value, err := r.client.HGet(ctx, buildNodeKey(parent), child).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrItemNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *RedisStore) GetNode(ctx context.Context, path string) (map[string][]byte, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}
	return r.readNode(ctx, path)
}

func (r *RedisStore) readNode(ctx context.Context, nodePath string) (map[string][]byte, error) {
	fields, err := r.client.HGetAll(ctx, buildNodeKey(nodePath)).Result()
	if err != nil {
		return nil, err
	}
	children := make(map[string][]byte, len(fields))
	for k, v := range fields {
		children[k] = []byte(v)
	}
	return children, nil
}

func (r *RedisStore) Set(ctx context.Context, path string, value []byte) error {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, buildNodeKey(parent), child, value)
	pipe.Publish(ctx, buildNodeChannel(parent), child)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	if err := store.ValidatePath(path); err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	key := buildNodeKey(path)
	// HSet accepts a flat list of field, value pairs
	setValues := make([]interface{}, 0, len(children)*2)
	var deleted []string
	for k, v := range children {
		if v == nil {
			deleted = append(deleted, k)
			continue
		}
		setValues = append(setValues, k, v)
	}

	pipe := r.client.TxPipeline()
	if len(setValues) > 0 {
		pipe.HSet(ctx, key, setValues...)
	}
	if len(deleted) > 0 {
		pipe.HDel(ctx, key, deleted...)
	}
	pipe.Publish(ctx, buildNodeChannel(path), "")
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Delete(ctx context.Context, path string) error {
	parent, child, err := store.Split(path)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, buildNodeKey(path))
	pipe.Publish(ctx, buildNodeChannel(path), "")
	if parent != "" {
		pipe.HDel(ctx, buildNodeKey(parent), child)
		pipe.Publish(ctx, buildNodeChannel(parent), child)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (r *RedisStore) SubscribeValue(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	parent, child, err := store.SplitLeaf(path)
	if err != nil {
		return nil, err
	}

	var last []byte
	delivered := false
	read := func(ctx context.Context) (store.Snapshot, bool, error) {
		value, err := r.client.HGet(ctx, buildNodeKey(parent), child).Bytes()
		exists := true
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return store.Snapshot{}, false, err
			}
			exists = false
			value = nil
		}
		// Other children of the parent share its channel
		if delivered && exists == (last != nil) && bytes.Equal(value, last) {
			return store.Snapshot{}, false, nil
		}
		delivered = true
		last = nil
		if exists {
			last = append([]byte{}, value...)
		}
		return store.Snapshot{Path: path, Exists: exists, Value: value}, true, nil
	}
	return r.subscribe(ctx, parent, read, fn)
}

func (r *RedisStore) SubscribeNode(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	if err := store.ValidatePath(path); err != nil {
		return nil, err
	}

	read := func(ctx context.Context) (store.Snapshot, bool, error) {
		children, err := r.readNode(ctx, path)
		if err != nil {
			return store.Snapshot{}, false, err
		}
		return store.Snapshot{Path: path, Exists: len(children) > 0, Children: children}, true, nil
	}
	return r.subscribe(ctx, path, read, fn)
}

// subscribe listens on the node channel and re-reads the node after every
// event. All reads and callbacks happen on one goroutine, so deliveries keep
// the order in which the writes were published.
func (r *RedisStore) subscribe(
	ctx context.Context,
	nodePath string,
	read func(ctx context.Context) (store.Snapshot, bool, error),
	fn func(store.Snapshot),
) (store.Unsubscribe, error) {
	channel := buildNodeChannel(nodePath)
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := r.client.Subscribe(subCtx, channel)
	// Ensure subscription is established before the initial read
	if _, err := pubsub.Receive(subCtx); err != nil {
		pubsub.Close()
		cancel()
		return nil, err
	}

	var closed atomic.Bool
	deliver := func() {
		snap, ok, err := read(subCtx)
		if err != nil {
			if subCtx.Err() == nil {
				log.Printf("Failed to read %s: %v", nodePath, err)
			}
			return
		}
		if ok && !closed.Load() {
			fn(snap)
		}
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		deliver()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					log.Printf("Pubsub channel closed: %s", channel)
					return
				}
				deliver()
			}
		}
	}()

	return func() {
		closed.Store(true)
		cancel()
	}, nil
}
