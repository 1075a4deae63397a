package canvas_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/duo/canvas"
	"github.com/zlnvch/duo/store"
	"github.com/zlnvch/duo/store/memory"
	redisstore "github.com/zlnvch/duo/store/redis"
)

func setupRedisStore(t *testing.T) *redisstore.RedisStore {
	mr := miniredis.RunT(t)
	s := redisstore.NewRedisStoreWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s
}

// The redis store delivers its first snapshot from a goroutine, so input
// right after Start must still see the partner's drawing.
func TestStart_FillAfterStartRespectsRemoteWall(t *testing.T) {
	remote := setupRedisStore(t)
	ctx := context.Background()

	wall := make(map[string][]byte, canvas.GridSize)
	for y := 0; y < canvas.GridSize; y++ {
		wall[canvas.Cell{X: 5, Y: y}.Key()] = []byte("#00ff00")
	}
	require.NoError(t, remote.Update(ctx, store.PixelsPath(pairId), wall))

	e := canvas.NewEngine(remote, pairId, "alice", canvas.Options{})
	require.NoError(t, e.Start(ctx))
	assert.Len(t, e.Snapshot(), canvas.GridSize)

	require.NoError(t, e.SetColor("#ff0000"))
	require.NoError(t, e.Fill(canvas.Cell{X: 0, Y: 0}))
	e.Close()

	pixels, err := remote.GetNode(ctx, store.PixelsPath(pairId))
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", string(pixels["5_0"]))
	assert.Equal(t, "#ff0000", string(pixels["0_0"]))
	assert.Equal(t, "#ff0000", string(pixels["4_23"]))
	assert.NotContains(t, pixels, "10_10")
	assert.Len(t, pixels, 6*canvas.GridSize)
}

func TestStart_StrokePreimageSeesRemoteCells(t *testing.T) {
	remote := setupRedisStore(t)
	ctx := context.Background()
	require.NoError(t, remote.Update(ctx, store.PixelsPath(pairId), map[string][]byte{
		"2_2": []byte("#00ff00"),
	}))

	e, _ := setupEngine(t, remote, "alice")
	require.NoError(t, e.SetColor("#ff0000"))
	require.NoError(t, e.Begin(canvas.Cell{X: 2, Y: 2}))
	e.End()
	assert.Equal(t, "#ff0000", e.Snapshot()[canvas.Cell{X: 2, Y: 2}])

	assert.True(t, e.Undo())
	assert.Equal(t, "#00ff00", e.Snapshot()[canvas.Cell{X: 2, Y: 2}])
}

// silentStore accepts subscriptions but never delivers.
type silentStore struct {
	*memory.MemoryStore
}

func (silentStore) SubscribeNode(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	return func() {}, nil
}

func TestStart_GivesUpWhenContextEnds(t *testing.T) {
	e := canvas.NewEngine(silentStore{memory.NewMemoryStore()}, pairId, "alice", canvas.Options{})
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Start(ctx)
	assert.ErrorIs(t, err, canvas.ErrNotSynced)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
