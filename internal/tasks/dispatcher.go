package tasks

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Task is a unit of asynchronous work. Tasks sharing a key are
// serialized; tasks with different keys run concurrently. Runs are
// at-least-once: a retried task must be idempotent.
type Task struct {
	Key string
	Run func(ctx context.Context) error
}

// Dispatcher enqueues tasks for execution outside the caller's
// transaction.
type Dispatcher interface {
	Enqueue(task Task)
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Locker *Locker `optional:"true"`
}

// AsyncDispatcher runs each task on its own goroutine, holding the
// task's mutex key for the duration when a locker is configured.
type AsyncDispatcher struct {
	log     *zap.Logger
	locker  *Locker
	timeout time.Duration
	lockTTL time.Duration
}

func NewDispatcher(p Params) Dispatcher {
	return &AsyncDispatcher{
		log:     p.Log.Named("tasks.dispatcher"),
		locker:  p.Locker,
		timeout: 2 * time.Minute,
		lockTTL: 5 * time.Minute,
	}
}

func (d *AsyncDispatcher) Enqueue(task Task) {
	if task.Run == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if d.locker != nil && task.Key != "" {
			token, err := d.locker.Lock(ctx, task.Key, d.lockTTL)
			if err != nil {
				d.log.Error("failed to acquire task lock", zap.String("key", task.Key), zap.Error(err))
				return
			}
			defer func() {
				if err := d.locker.Release(context.Background(), task.Key, token); err != nil {
					d.log.Warn("failed to release task lock", zap.String("key", task.Key), zap.Error(err))
				}
			}()
		}

		if err := task.Run(ctx); err != nil {
			// Task failures are logged, never propagated; the runner's
			// retry policy owns recovery and the work is idempotent.
			d.log.Error("task failed", zap.String("key", task.Key), zap.Error(err))
		}
	}()
}

// InlineDispatcher runs tasks synchronously on the caller's goroutine.
// Tests use it to observe task effects deterministically.
type InlineDispatcher struct {
	Log *zap.Logger
}

func (d InlineDispatcher) Enqueue(task Task) {
	if task.Run == nil {
		return
	}
	if err := task.Run(context.Background()); err != nil && d.Log != nil {
		d.Log.Error("inline task failed", zap.String("key", task.Key), zap.Error(err))
	}
}

// Module wires the async dispatcher and its redis-backed locker.
var Module = fx.Module("tasks",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewDispatcher),
)
