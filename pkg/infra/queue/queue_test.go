package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/hubsync/pkg/domain/interfaces"
	"github.com/m-mizutani/hubsync/pkg/infra/queue"
)

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects enqueue without handler", func(t *testing.T) {
		q := queue.New()
		err := q.Enqueue(ctx, 0, interfaces.Task{Kind: interfaces.TaskRunSyncJob})
		gt.Error(t, err)
	})

	t.Run("inline mode runs the task synchronously", func(t *testing.T) {
		q := queue.New(queue.WithInline())

		var handled []interfaces.TaskKind
		q.SetHandler(func(ctx context.Context, task interfaces.Task) error {
			handled = append(handled, task.Kind)
			return nil
		})

		gt.NoError(t, q.Enqueue(ctx, time.Hour, interfaces.Task{Kind: interfaces.TaskSyncPRFiles}))
		gt.V(t, len(handled)).Equal(1)
		gt.V(t, handled[0]).Equal(interfaces.TaskSyncPRFiles)
	})

	t.Run("async task runs after enqueue", func(t *testing.T) {
		q := queue.New()

		var count atomic.Int32
		q.SetHandler(func(ctx context.Context, task interfaces.Task) error {
			count.Add(1)
			return nil
		})

		gt.NoError(t, q.Enqueue(ctx, 0, interfaces.Task{Kind: interfaces.TaskRunSyncJob}))
		q.Wait()
		gt.V(t, count.Load()).Equal(int32(1))
	})

	t.Run("failed task is re-dispatched up to max attempts", func(t *testing.T) {
		q := queue.New(
			queue.WithMaxAttempts(3),
			queue.WithRetryDelay(time.Millisecond),
		)

		var mu sync.Mutex
		attempts := 0
		q.SetHandler(func(ctx context.Context, task interfaces.Task) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return goerr.New("handler failure")
		})

		gt.NoError(t, q.Enqueue(ctx, 0, interfaces.Task{Kind: interfaces.TaskRunSyncJob}))
		q.Wait()

		mu.Lock()
		defer mu.Unlock()
		gt.V(t, attempts).Equal(3)
	})

	t.Run("recovers after a transient failure", func(t *testing.T) {
		q := queue.New(
			queue.WithMaxAttempts(3),
			queue.WithRetryDelay(time.Millisecond),
		)

		var count atomic.Int32
		q.SetHandler(func(ctx context.Context, task interfaces.Task) error {
			if count.Add(1) == 1 {
				return goerr.New("transient failure")
			}
			return nil
		})

		gt.NoError(t, q.Enqueue(ctx, 0, interfaces.Task{Kind: interfaces.TaskRunSyncJob}))
		q.Wait()
		gt.V(t, count.Load()).Equal(int32(2))
	})
}
