package pipeline

import (
	"context"
	"errors"
	"sync"

	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/tasks"
)

// TaskProcessor 处理一个入库任务。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// ErrQueueClosed 表示队列已关闭，不再接受任务。
var ErrQueueClosed = errors.New("ingest queue closed")

// InlineQueue 是未配置 Kafka 时使用的进程内队列。单个 worker 顺序处理，
// 同一文档的任务因此不会并发执行；失败不重试，由 Sweeper 兜底。
type InlineQueue struct {
	processor TaskProcessor
	tasks     chan tasks.IngestTask

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewInlineQueue 启动 worker，ctx 取消后 worker 在处理完当前任务时退出。
func NewInlineQueue(ctx context.Context, processor TaskProcessor, capacity int) *InlineQueue {
	if capacity <= 0 {
		capacity = 64
	}
	q := &InlineQueue{
		processor: processor,
		tasks:     make(chan tasks.IngestTask, capacity),
		done:      make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

func (q *InlineQueue) run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			if err := q.processor.Process(ctx, task); err != nil {
				log.Errorf("[InlineQueue] 处理入库任务失败: DocumentID=%s, Error: %v", task.DocumentID, err)
			}
		}
	}
}

func (q *InlineQueue) Enqueue(ctx context.Context, task tasks.IngestTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 停止接收任务，并等待已入队的任务处理完毕。
func (q *InlineQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	<-q.done
}
