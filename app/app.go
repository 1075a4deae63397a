// Package app wires the engines of one device to their collaborators and
// runs the background workers.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/zlnvch/duo/archive"
	"github.com/zlnvch/duo/archive/dynamo"
	"github.com/zlnvch/duo/canvas"
	"github.com/zlnvch/duo/config"
	"github.com/zlnvch/duo/device"
	"github.com/zlnvch/duo/device/sqlite"
	"github.com/zlnvch/duo/messaging"
	"github.com/zlnvch/duo/mq"
	"github.com/zlnvch/duo/mq/sqsmq"
	"github.com/zlnvch/duo/notify"
	"github.com/zlnvch/duo/pairing"
	"github.com/zlnvch/duo/presence"
	"github.com/zlnvch/duo/session"
	"github.com/zlnvch/duo/store"
	"github.com/zlnvch/duo/store/redis"
	"github.com/zlnvch/duo/widget"
	"github.com/zlnvch/duo/worker"
)

// Deps are the external collaborators. Archive and the queues are optional.
type Deps struct {
	Remote      store.RemoteStore
	Device      device.Store
	Archive     archive.Archive
	NotifyQueue mq.MessageQueue
	ExpiryQueue mq.MessageQueue
	Close       func()
}

// Connect opens the collaborators named by cfg.
func Connect(ctx context.Context, cfg *config.Config) (Deps, error) {
	var deps Deps
	var closers []func() error

	fail := func(err error) (Deps, error) {
		for _, c := range closers {
			c()
		}
		return Deps{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DevicePath), 0o700); err != nil {
		return fail(fmt.Errorf("create device dir: %w", err))
	}
	dev, err := sqlite.Open(cfg.DevicePath)
	if err != nil {
		return fail(fmt.Errorf("open device store: %w", err))
	}
	closers = append(closers, dev.Close)
	deps.Device = dev

	remote, err := redis.NewRedisStore(ctx, cfg.DevMode, cfg.RedisEndpoint)
	if err != nil {
		return fail(fmt.Errorf("connect redis: %w", err))
	}
	closers = append(closers, remote.Close)
	deps.Remote = remote

	if cfg.ArchiveTable != "" {
		a, err := dynamo.NewDynamoArchive(ctx, cfg.DevMode, cfg.DynamoDBEndpoint, cfg.ArchiveTable)
		if err != nil {
			return fail(fmt.Errorf("create dynamodb archive: %w", err))
		}
		deps.Archive = a
	}

	if cfg.NotifyQueue != "" {
		q, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.NotifyQueue)
		if err != nil {
			return fail(fmt.Errorf("create notify queue: %w", err))
		}
		deps.NotifyQueue = q
	}

	if cfg.CodeExpiryQueue != "" {
		q, err := sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.SQSEndpoint, cfg.CodeExpiryQueue)
		if err != nil {
			return fail(fmt.Errorf("create code expiry queue: %w", err))
		}
		deps.ExpiryQueue = q
	}

	deps.Close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Printf("Failed to close: %v", err)
			}
		}
	}
	return deps, nil
}

type App struct {
	cfg  *config.Config
	deps Deps

	Session  *session.Session
	Pairing  *pairing.Engine
	Messages *messaging.Engine
	Presence *presence.Engine
	Widget   *widget.Bridge

	workers sync.WaitGroup
}

// New initialises the session and the engines. Workers run until
// shutdownCtx is done; Wait blocks until they have finished.
func New(shutdownCtx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	sess, err := session.Init(shutdownCtx, deps.Device, deps.Remote)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	a := &App{cfg: cfg, deps: deps, Session: sess}

	pairingOpts := []pairing.Option{}
	if deps.ExpiryQueue != nil {
		pairingOpts = append(pairingOpts, pairing.WithExpiryQueue(deps.ExpiryQueue, cfg.CodeTTL))

		codeReaper := worker.NewCodeReaper(deps.ExpiryQueue, deps.Remote)
		a.run(shutdownCtx, codeReaper.Run)
	}
	a.Pairing = pairing.NewEngine(deps.Remote, pairingOpts...)

	var notifier notify.Notifier = notify.Nop{}
	if deps.NotifyQueue != nil {
		notifier = notify.NewQueueNotifier(deps.NotifyQueue)
	}
	dispatcher := notify.NewDispatcher(a.Pairing, notifier)

	a.Widget = widget.NewBridge(
		widget.NewFileSurface(cfg.WidgetDir, nil),
		widget.NewDeviceSurface(deps.Device),
	)

	msgOpts := messaging.Options{
		Notifier:           dispatcher,
		Widget:             a.Widget,
		EnforceDailyDoodle: cfg.EnforceDailyDoodle,
	}
	if deps.Archive != nil {
		historyArchiver := worker.NewHistoryArchiver(deps.Archive, cfg.ArchiveFlushMillis)
		a.run(shutdownCtx, historyArchiver.Run)
		msgOpts.Archive = deps.Archive
		msgOpts.Archiver = historyArchiver
	}
	a.Messages = messaging.NewEngine(deps.Remote, msgOpts)

	a.Presence = presence.NewEngine(deps.Remote, cfg.NudgeInterval, dispatcher)

	return a, nil
}

func (a *App) run(ctx context.Context, fn func(context.Context)) {
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn(ctx)
	}()
}

func (a *App) Remote() store.RemoteStore {
	return a.deps.Remote
}

func (a *App) Device() device.Store {
	return a.deps.Device
}

// Canvas starts a canvas engine for the current pair. The caller closes it.
func (a *App) Canvas(ctx context.Context, onChange func(canvas.Pixels)) (*canvas.Engine, error) {
	pairId, err := a.Session.RequirePair()
	if err != nil {
		return nil, err
	}
	e := canvas.NewEngine(a.deps.Remote, pairId, a.Session.UserId(), canvas.Options{
		FlushDelay: a.cfg.FlushDelay,
		OnChange:   onChange,
	})
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Wait blocks until the workers have returned.
func (a *App) Wait() {
	a.workers.Wait()
}

// Close waits for the workers and releases the collaborators. shutdownCtx
// must be done before Close is called.
func (a *App) Close() {
	a.Wait()
	if a.deps.Close != nil {
		a.deps.Close()
	}
}
