package canvas_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/duo/canvas"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/store"
	"github.com/zlnvch/duo/store/memory"
)

const pairId = "alice_bob"

// manualScheduler holds timers until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	fn      func()
	fired   bool
	stopped bool
}

func (s *manualScheduler) Schedule(delay time.Duration, fn func()) func() bool {
	t := &manualTimer{fn: fn}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

func (s *manualScheduler) FireAll() int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			t.fired = true
			due = append(due, t)
		}
	}
	s.timers = nil
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// countingStore counts pixel merges.
type countingStore struct {
	*memory.MemoryStore
	mu      sync.Mutex
	updates int
}

func (c *countingStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.MemoryStore.Update(ctx, path, children)
}

func (c *countingStore) Updates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

type failingStore struct {
	*memory.MemoryStore
}

func (f failingStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	return errors.New("network down")
}

func setupEngine(t *testing.T, remote store.RemoteStore, userId string) (*canvas.Engine, *manualScheduler) {
	sched := &manualScheduler{}
	e := canvas.NewEngine(remote, pairId, userId, canvas.Options{
		Schedule: sched.Schedule,
		Now:      func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	return e, sched
}

func TestStroke_UndoRestoresPreStrokeColors(t *testing.T) {
	remote := memory.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, remote.Update(ctx, store.PixelsPath(pairId), map[string][]byte{
		"3_3": []byte("#00ff00"),
	}))

	e, _ := setupEngine(t, remote, "alice")
	before := e.Snapshot()

	require.NoError(t, e.SetColor("#ff0000"))
	require.NoError(t, e.SetBrush(2))
	require.NoError(t, e.Begin(canvas.Cell{X: 3, Y: 3}))
	e.Move(canvas.Cell{X: 4, Y: 4})
	// Repaint cells already touched in this stroke with another color
	require.NoError(t, e.SetColor("#0000ff"))
	e.Move(canvas.Cell{X: 3, Y: 3})
	e.Move(canvas.Cell{X: 3, Y: 3})
	e.End()

	after := e.Snapshot()
	assert.Equal(t, "#0000ff", after[canvas.Cell{X: 3, Y: 3}])
	assert.Equal(t, "#0000ff", after[canvas.Cell{X: 4, Y: 4}])
	assert.Equal(t, "#ff0000", after[canvas.Cell{X: 5, Y: 5}])
	assert.Equal(t, 1, e.UndoDepth())

	assert.True(t, e.Undo())
	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, 0, e.UndoDepth())
	assert.False(t, e.Undo())
}

func nthCell(i int) canvas.Cell {
	return canvas.Cell{X: i % canvas.GridSize, Y: i / canvas.GridSize}
}

func TestUndo_BoundedToTwentyStrokes(t *testing.T) {
	e, _ := setupEngine(t, memory.NewMemoryStore(), "alice")
	require.NoError(t, e.SetColor("#ff0000"))

	for i := 0; i < 25; i++ {
		require.NoError(t, e.Begin(nthCell(i)))
		e.End()
	}
	assert.Equal(t, canvas.MaxUndo, e.UndoDepth())

	for i := 0; i < canvas.MaxUndo; i++ {
		assert.True(t, e.Undo())
	}
	assert.False(t, e.Undo())

	// The five oldest strokes survive
	pixels := e.Snapshot()
	assert.Len(t, pixels, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "#ff0000", pixels[nthCell(i)])
	}
}

func TestFill_IsOneUndoEntry(t *testing.T) {
	e, _ := setupEngine(t, memory.NewMemoryStore(), "alice")
	require.NoError(t, e.SetColor("#ff0000"))

	require.NoError(t, e.Fill(canvas.Cell{X: 0, Y: 0}))
	assert.Len(t, e.Snapshot(), canvas.GridSize*canvas.GridSize)
	assert.Equal(t, 1, e.UndoDepth())

	// Filling again with the same color changes nothing
	require.NoError(t, e.Fill(canvas.Cell{X: 10, Y: 10}))
	assert.Equal(t, 1, e.UndoDepth())

	assert.True(t, e.Undo())
	assert.Empty(t, e.Snapshot())

	assert.ErrorIs(t, e.Fill(canvas.Cell{X: 24, Y: 0}), canvas.ErrOutOfBounds)
}

func TestFillTool_BeginFills(t *testing.T) {
	e, _ := setupEngine(t, memory.NewMemoryStore(), "alice")
	require.NoError(t, e.SetTool(canvas.ToolFill))
	require.NoError(t, e.SetColor("#123456"))

	require.NoError(t, e.Begin(canvas.Cell{X: 1, Y: 1}))
	assert.Len(t, e.Snapshot(), canvas.GridSize*canvas.GridSize)
}

func TestEraser(t *testing.T) {
	e, _ := setupEngine(t, memory.NewMemoryStore(), "alice")
	require.NoError(t, e.Begin(canvas.Cell{X: 2, Y: 2}))
	e.End()
	assert.Len(t, e.Snapshot(), 1)

	require.NoError(t, e.SetTool(canvas.ToolEraser))
	require.NoError(t, e.Begin(canvas.Cell{X: 2, Y: 2}))
	e.End()
	assert.Empty(t, e.Snapshot())

	assert.True(t, e.Undo())
	assert.Len(t, e.Snapshot(), 1)
}

func TestOutOfGridSamplesAreIgnored(t *testing.T) {
	e, sched := setupEngine(t, memory.NewMemoryStore(), "alice")
	require.NoError(t, e.Begin(canvas.Cell{X: -1, Y: 5}))
	e.Move(canvas.Cell{X: 30, Y: 30})
	e.End()

	assert.Empty(t, e.Snapshot())
	assert.Equal(t, 0, e.UndoDepth())
	assert.Equal(t, 0, sched.FireAll())
}

func TestSettersValidate(t *testing.T) {
	e, _ := setupEngine(t, memory.NewMemoryStore(), "alice")
	assert.ErrorIs(t, e.SetBrush(0), canvas.ErrInvalidBrush)
	assert.ErrorIs(t, e.SetBrush(4), canvas.ErrInvalidBrush)
	assert.ErrorIs(t, e.SetColor("red"), canvas.ErrInvalidColor)
	assert.ErrorIs(t, e.SetTool(canvas.ToolCount), canvas.ErrInvalidTool)
}

func TestFlush_CoalescesStrokeIntoOneWrite(t *testing.T) {
	remote := &countingStore{MemoryStore: memory.NewMemoryStore()}
	e, sched := setupEngine(t, remote, "alice")

	require.NoError(t, e.Begin(canvas.Cell{X: 0, Y: 0}))
	for x := 1; x < 10; x++ {
		e.Move(canvas.Cell{X: x, Y: 0})
	}
	e.End()

	assert.Equal(t, canvas.StateArmed, e.FlushState())
	assert.Equal(t, 0, remote.Updates())

	assert.Equal(t, 1, sched.FireAll())
	assert.Equal(t, 1, remote.Updates())
	assert.Equal(t, canvas.StateIdle, e.FlushState())

	node, err := remote.GetNode(context.Background(), store.PixelsPath(pairId))
	require.NoError(t, err)
	assert.Len(t, node, 10)
	assert.Equal(t, canvas.Stats{Flushes: 1, CellsWritten: 10}, e.Stats())
}

func TestFlush_WritesActivityMarker(t *testing.T) {
	remote := memory.NewMemoryStore()
	e, sched := setupEngine(t, remote, "alice")

	var seen []models.CanvasActivity
	unsub, err := canvas.WatchActivity(context.Background(), remote, pairId, func(a models.CanvasActivity) {
		seen = append(seen, a)
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, e.Begin(canvas.Cell{X: 0, Y: 0}))
	e.End()
	sched.FireAll()

	require.Len(t, seen, 1)
	assert.Equal(t, "alice", seen[0].UserId)
	assert.Equal(t, int64(1700000000000), seen[0].Timestamp)
}

func TestFlush_FailureIsSwallowed(t *testing.T) {
	e, sched := setupEngine(t, failingStore{MemoryStore: memory.NewMemoryStore()}, "alice")

	require.NoError(t, e.Begin(canvas.Cell{X: 7, Y: 7}))
	e.End()
	sched.FireAll()

	stats := e.Stats()
	assert.Equal(t, 1, stats.Flushes)
	assert.Equal(t, 1, stats.DroppedFlushes)
	assert.Equal(t, canvas.StateIdle, e.FlushState())

	// The local view keeps the edit even though it never reached the store
	assert.Equal(t, "#000000", e.Snapshot()[canvas.Cell{X: 7, Y: 7}])
	assert.Empty(t, e.Confirmed())
}

func TestDisjointCellsFromBothUsersMerge(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice, aliceSched := setupEngine(t, remote, "alice")
	bob, bobSched := setupEngine(t, remote, "bob")

	require.NoError(t, alice.SetColor("#ff0000"))
	require.NoError(t, alice.Begin(canvas.Cell{X: 2, Y: 3}))
	alice.End()

	require.NoError(t, bob.SetColor("#0000ff"))
	require.NoError(t, bob.Begin(canvas.Cell{X: 5, Y: 5}))
	bob.End()

	// Both edits are pending in the same window
	aliceSched.FireAll()
	bobSched.FireAll()

	node, err := remote.GetNode(context.Background(), store.PixelsPath(pairId))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"2_3": []byte("#ff0000"),
		"5_5": []byte("#0000ff"),
	}, node)

	expected := canvas.Pixels{
		{X: 2, Y: 3}: "#ff0000",
		{X: 5, Y: 5}: "#0000ff",
	}
	assert.Equal(t, expected, alice.Snapshot())
	assert.Equal(t, expected, bob.Snapshot())
}

func TestSameCellLastDeliveredWins(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice, aliceSched := setupEngine(t, remote, "alice")
	bob, bobSched := setupEngine(t, remote, "bob")

	require.NoError(t, alice.SetColor("#ff0000"))
	require.NoError(t, alice.Begin(canvas.Cell{X: 1, Y: 1}))
	alice.End()
	require.NoError(t, bob.SetColor("#0000ff"))
	require.NoError(t, bob.Begin(canvas.Cell{X: 1, Y: 1}))
	bob.End()

	aliceSched.FireAll()
	bobSched.FireAll()

	assert.Equal(t, "#0000ff", alice.Snapshot()[canvas.Cell{X: 1, Y: 1}])
	assert.Equal(t, "#0000ff", bob.Snapshot()[canvas.Cell{X: 1, Y: 1}])
}

func TestClear(t *testing.T) {
	remote := memory.NewMemoryStore()
	alice, aliceSched := setupEngine(t, remote, "alice")
	bob, _ := setupEngine(t, remote, "bob")

	require.NoError(t, alice.Begin(canvas.Cell{X: 1, Y: 1}))
	alice.End()
	aliceSched.FireAll()
	assert.Len(t, bob.Snapshot(), 1)

	// A pending edit is discarded by the clear
	require.NoError(t, alice.Begin(canvas.Cell{X: 9, Y: 9}))
	alice.End()

	require.NoError(t, alice.Clear(context.Background()))
	assert.Equal(t, 0, alice.UndoDepth())
	assert.False(t, alice.Undo())
	assert.Empty(t, alice.Snapshot())
	assert.Empty(t, bob.Snapshot())
	assert.Equal(t, 0, aliceSched.FireAll())
}

// gatedStore holds pixel merges until the test releases them.
type gatedStore struct {
	*memory.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	g.entered <- struct{}{}
	<-g.release
	return g.MemoryStore.Update(ctx, path, children)
}

func TestClear_InflightBatchDoesNotResurrectCells(t *testing.T) {
	remote := &gatedStore{
		MemoryStore: memory.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	e, sched := setupEngine(t, remote, "alice")

	require.NoError(t, e.Begin(canvas.Cell{X: 1, Y: 1}))
	e.End()
	go sched.FireAll()

	select {
	case <-remote.entered:
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for flush")
	}
	assert.Equal(t, canvas.StateFlushing, e.FlushState())

	cleared := make(chan error, 1)
	go func() { cleared <- e.Clear(context.Background()) }()

	// Let Clear reach the flusher before the write completes
	time.Sleep(20 * time.Millisecond)
	close(remote.release)

	select {
	case err := <-cleared:
		require.NoError(t, err)
	case <-time.After(time.Second):
		require.Fail(t, "timed out waiting for clear")
	}

	pixels, err := remote.GetNode(context.Background(), store.PixelsPath(pairId))
	require.NoError(t, err)
	assert.Empty(t, pixels)
	assert.Empty(t, e.Snapshot())
	assert.Equal(t, canvas.StateIdle, e.FlushState())
}

func TestOnChangeReceivesRemoteUpdates(t *testing.T) {
	remote := memory.NewMemoryStore()
	var mu sync.Mutex
	var last canvas.Pixels

	e := canvas.NewEngine(remote, pairId, "alice", canvas.Options{
		OnChange: func(p canvas.Pixels) {
			mu.Lock()
			last = p
			mu.Unlock()
		},
	})
	require.NoError(t, e.Start(context.Background()))
	defer e.Close()

	require.NoError(t, remote.Update(context.Background(), store.PixelsPath(pairId), map[string][]byte{
		"4_4":   []byte("#abcdef"),
		"bad":   []byte("#abcdef"),
		"30_30": []byte("#abcdef"),
		"5_5":   []byte("not a color"),
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, canvas.Pixels{{X: 4, Y: 4}: "#abcdef"}, last)
}

func TestClose_FlushesPending(t *testing.T) {
	remote := memory.NewMemoryStore()
	sched := &manualScheduler{}
	e := canvas.NewEngine(remote, pairId, "alice", canvas.Options{Schedule: sched.Schedule})
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Begin(canvas.Cell{X: 0, Y: 0}))
	e.Move(canvas.Cell{X: 1, Y: 0})
	e.Close()

	node, err := remote.GetNode(context.Background(), store.PixelsPath(pairId))
	require.NoError(t, err)
	assert.Len(t, node, 2)
	assert.ErrorIs(t, e.Begin(canvas.Cell{X: 3, Y: 3}), canvas.ErrClosed)
}
