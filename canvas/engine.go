package canvas

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/store"
)

type Tool int

const (
	ToolPencil Tool = iota
	ToolEraser
	ToolFill
	ToolCount
)

const (
	MinBrush = 1
	MaxBrush = 3
)

var (
	ErrOutOfBounds  = errors.New("cell is outside the grid")
	ErrInvalidTool  = errors.New("invalid tool")
	ErrInvalidBrush = errors.New("invalid brush size")
	ErrInvalidColor = errors.New("invalid color")
	ErrClosed       = errors.New("canvas is closed")
	ErrNotSynced    = errors.New("canvas has not received its first snapshot")
)

type Options struct {
	FlushDelay time.Duration
	Schedule   ScheduleFunc
	Now        func() time.Time
	// OnChange receives a copy of the local view after every change
	OnChange func(Pixels)
}

// Engine is one device's view of the shared canvas of a pair. Input methods
// apply to the local view at once and queue the change for the next flush.
// The local view is the last remote snapshot overlaid with changes that have
// not been confirmed by the store yet.
type Engine struct {
	remote   store.RemoteStore
	pairId   string
	userId   string
	now      func() time.Time
	onChange func(Pixels)
	opts     Options

	mu       sync.Mutex
	base     Pixels
	view     Pixels
	undo     *UndoStack
	flusher  *Flusher
	tool     Tool
	color    string
	brush    int
	preimage Changes // non-nil while a stroke is in progress
	unsub    store.Unsubscribe
	closed   bool

	ready     chan struct{} // closed by the first remote snapshot
	readyOnce sync.Once
}

func NewEngine(remote store.RemoteStore, pairId string, userId string, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		remote:   remote,
		pairId:   pairId,
		userId:   userId,
		now:      now,
		onChange: opts.OnChange,
		opts:     opts,
		base:     Pixels{},
		view:     Pixels{},
		undo:     NewUndoStack(MaxUndo),
		tool:     ToolPencil,
		color:    "#000000",
		brush:    MinBrush,
		ready:    make(chan struct{}),
	}
}

// Start subscribes to the pair's pixels and returns once the first snapshot
// has been applied. The flusher uses ctx for its writes.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.flusher = NewFlusher(ctx, e.opts.FlushDelay, e.opts.Schedule, e.writeBatch)
	e.mu.Unlock()

	unsub, err := e.remote.SubscribeNode(ctx, store.PixelsPath(e.pairId), e.onRemote)
	if err != nil {
		return fmt.Errorf("subscribe canvas %s: %w", e.pairId, err)
	}

	e.mu.Lock()
	e.unsub = unsub
	e.mu.Unlock()

	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		unsub()
		return fmt.Errorf("%w: %s: %w", ErrNotSynced, e.pairId, ctx.Err())
	}
}

// Close unsubscribes and writes any pending changes.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.commitStrokeLocked()
	unsub := e.unsub
	flusher := e.flusher
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if flusher != nil {
		flusher.Close()
	}
}

func (e *Engine) onRemote(snap store.Snapshot) {
	base := make(Pixels, len(snap.Children))
	for key, value := range snap.Children {
		c, ok := ParseCellKey(key)
		if !ok || !models.IsHexColor(string(value)) {
			continue
		}
		base[c] = string(value)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.base = base
	e.view = base.Clone()
	if e.flusher != nil {
		e.view.Apply(e.flusher.Overlay())
	}
	view := e.view.Clone()
	e.mu.Unlock()

	e.readyOnce.Do(func() { close(e.ready) })
	e.notify(view)
}

func (e *Engine) notify(view Pixels) {
	if e.onChange != nil {
		e.onChange(view)
	}
}

func (e *Engine) writeBatch(ctx context.Context, batch Changes) error {
	children := make(map[string][]byte, len(batch))
	for c, color := range batch {
		if color == "" {
			children[c.Key()] = nil
			continue
		}
		children[c.Key()] = []byte(color)
	}
	if err := e.remote.Update(ctx, store.PixelsPath(e.pairId), children); err != nil {
		return fmt.Errorf("pair %s: %w", e.pairId, err)
	}

	marker, err := models.EncodeCanvasActivity(models.CanvasActivity{
		UserId:    e.userId,
		Timestamp: e.now().UnixMilli(),
	})
	if err == nil {
		err = e.remote.Set(ctx, store.ActivityPath(e.pairId), marker)
	}
	if err != nil {
		log.Printf("Failed to write canvas activity for pair %s: %v", e.pairId, err)
	}
	return nil
}

func (e *Engine) SetTool(tool Tool) error {
	if tool < 0 || tool >= ToolCount {
		return ErrInvalidTool
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tool = tool
	return nil
}

func (e *Engine) SetColor(color string) error {
	if !models.IsHexColor(color) {
		return ErrInvalidColor
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.color = color
	return nil
}

func (e *Engine) SetBrush(brush int) error {
	if brush < MinBrush || brush > MaxBrush {
		return ErrInvalidBrush
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.brush = brush
	return nil
}

// Begin starts a stroke at c. With the fill tool it fills from c instead.
func (e *Engine) Begin(c Cell) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.tool == ToolFill {
		e.mu.Unlock()
		return e.Fill(c)
	}

	e.commitStrokeLocked()
	e.preimage = Changes{}
	view := e.paintLocked(c)
	e.mu.Unlock()

	if view != nil {
		e.notify(view)
	}
	return nil
}

// Move adds a sampled point to the current stroke.
func (e *Engine) Move(c Cell) {
	e.mu.Lock()
	if e.closed || e.preimage == nil {
		e.mu.Unlock()
		return
	}
	view := e.paintLocked(c)
	e.mu.Unlock()

	if view != nil {
		e.notify(view)
	}
}

// End commits the current stroke as one undo entry.
func (e *Engine) End() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitStrokeLocked()
}

func (e *Engine) commitStrokeLocked() {
	if e.preimage == nil {
		return
	}
	e.undo.Push(e.preimage)
	e.preimage = nil
}

// paintLocked applies the brush footprint at c. The first touch of a cell in
// a stroke records its pre-image; later touches leave it alone.
func (e *Engine) paintLocked(c Cell) Pixels {
	if !c.InBounds() {
		return nil
	}

	color := e.color
	if e.tool == ToolEraser {
		color = ""
	}

	changes := Changes{}
	for _, cell := range Footprint(c, e.brush) {
		if _, seen := e.preimage[cell]; !seen {
			e.preimage[cell] = e.view[cell]
		}
		if e.view[cell] != color {
			changes[cell] = color
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return e.applyLocked(changes)
}

func (e *Engine) applyLocked(changes Changes) Pixels {
	e.view.Apply(changes)
	if e.flusher != nil {
		e.flusher.Add(changes)
	}
	return e.view.Clone()
}

// Fill flood-fills the region at c with the current color as one undo entry.
func (e *Engine) Fill(c Cell) error {
	if !c.InBounds() {
		return ErrOutOfBounds
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.commitStrokeLocked()

	changes := FloodFill(e.view, c, e.color)
	if len(changes) == 0 {
		e.mu.Unlock()
		return nil
	}
	preimage := make(Changes, len(changes))
	for cell := range changes {
		preimage[cell] = e.view[cell]
	}
	e.undo.Push(preimage)
	view := e.applyLocked(changes)
	e.mu.Unlock()

	e.notify(view)
	return nil
}

// Undo reverts the most recent stroke or fill. It does not push an entry of
// its own.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.commitStrokeLocked()

	preimage, ok := e.undo.Pop()
	if !ok {
		e.mu.Unlock()
		return false
	}
	view := e.applyLocked(preimage)
	e.mu.Unlock()

	e.notify(view)
	return true
}

// Clear erases the shared grid for both users and resets the undo stack.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.preimage = nil
	e.undo.Reset()
	flusher := e.flusher
	e.mu.Unlock()

	// The delete must land after any batch already being written. Hold runs
	// without e.mu as the write can deliver a snapshot synchronously.
	if flusher != nil {
		flusher.Hold()
		defer flusher.Resume()
	}

	e.mu.Lock()
	e.base = Pixels{}
	e.view = Pixels{}
	if flusher != nil {
		e.view.Apply(flusher.Overlay())
	}
	view := e.view.Clone()
	e.mu.Unlock()
	e.notify(view)

	if err := e.remote.Delete(ctx, store.PixelsPath(e.pairId)); err != nil {
		return fmt.Errorf("clear canvas %s: %w", e.pairId, err)
	}
	return nil
}

func (e *Engine) Snapshot() Pixels {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view.Clone()
}

func (e *Engine) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.undo.Len()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	flusher := e.flusher
	e.mu.Unlock()
	if flusher == nil {
		return Stats{}
	}
	return flusher.Stats()
}

func (e *Engine) FlushState() FlushState {
	e.mu.Lock()
	flusher := e.flusher
	e.mu.Unlock()
	if flusher == nil {
		return StateIdle
	}
	return flusher.State()
}

// Flush writes pending changes without waiting for the delay.
func (e *Engine) Flush() {
	e.mu.Lock()
	flusher := e.flusher
	e.mu.Unlock()
	if flusher != nil {
		flusher.Flush()
	}
}

// Confirmed returns the last pixels delivered by the store, without local
// changes.
func (e *Engine) Confirmed() Pixels {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base.Clone()
}
