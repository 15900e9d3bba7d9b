// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"legal-rag-go/internal/config"
	"legal-rag-go/pkg/log"
	"legal-rag-go/pkg/tasks"
)

// TaskProcessor 处理一个入库任务。消费者与具体流水线实现解耦。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IngestTask) error
}

// Producer 向入库主题发送任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。同一文档的任务按 DocumentID 哈希到同一分区。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Enqueue 发送一个入库任务到 Kafka。
func (p *Producer) Enqueue(ctx context.Context, task tasks.IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.DocumentID),
		Value: taskBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AttemptsKey 是任务失败计数在 Redis 中的键。
func AttemptsKey(documentID string) string {
	return fmt.Sprintf("kafka:attempts:%s", documentID)
}

// StartConsumer 启动一个 Kafka 消费者来处理入库任务，ctx 取消后退出。
// Reader 不会重投已取出的消息，失败的任务在本地按退避重试，成功或放弃后才提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, rdb *redis.Client) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	h := &taskHandler{
		processor:   processor,
		attempts:    newAttemptCounter(rdb),
		maxAttempts: int64(cfg.MaxAttempts),
		backoff:     2 * time.Second,
	}
	if h.maxAttempts <= 0 {
		h.maxAttempts = 3
	}

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者收到退出信号")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("开始处理入库任务: DocumentID=%s, offset=%d", task.DocumentID, m.Offset)
		if err := h.handle(ctx, task); err != nil && ctx.Err() != nil {
			// 停机中断：不提交，重启后从该 offset 继续
			log.Warnf("入库任务被中断，未提交 offset: DocumentID=%s", task.DocumentID)
			return
		}
		commit(ctx, r, m)
	}
}

// taskHandler 对同一条消息做有限次重试。
type taskHandler struct {
	processor   TaskProcessor
	attempts    attemptCounter
	maxAttempts int64
	backoff     time.Duration
}

// handle 返回 nil 表示任务成功；返回错误表示已放弃或 ctx 被取消。
func (h *taskHandler) handle(ctx context.Context, task tasks.IngestTask) error {
	for {
		attempt, err := h.attempts.Incr(ctx, task.DocumentID)
		if err != nil {
			return err
		}
		if attempt > h.maxAttempts {
			// 重启前已用完次数
			log.Errorf("入库任务已达重试上限(%d)，放弃: DocumentID=%s", h.maxAttempts, task.DocumentID)
			h.attempts.Reset(ctx, task.DocumentID)
			return errAttemptsExhausted
		}

		err = h.processor.Process(ctx, task)
		if err == nil {
			log.Infof("入库任务处理成功: DocumentID=%s, attempt=%d", task.DocumentID, attempt)
			h.attempts.Reset(ctx, task.DocumentID)
			return nil
		}
		log.Errorf("处理入库任务失败: DocumentID=%s, attempt=%d/%d, Error: %v", task.DocumentID, attempt, h.maxAttempts, err)
		if attempt >= h.maxAttempts {
			log.Errorf("入库任务多次失败(>=%d)，提交 offset 终止重试: DocumentID=%s", h.maxAttempts, task.DocumentID)
			h.attempts.Reset(ctx, task.DocumentID)
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.backoff * time.Duration(attempt)):
		}
	}
}

var errAttemptsExhausted = errors.New("ingest task attempts exhausted")

// attemptCounter 记录每个文档的处理次数，Redis 实现可跨重启保留。
type attemptCounter interface {
	Incr(ctx context.Context, documentID string) (int64, error)
	Reset(ctx context.Context, documentID string)
}

func newAttemptCounter(rdb *redis.Client) attemptCounter {
	if rdb == nil {
		return &memoryAttempts{counts: map[string]int64{}}
	}
	return &redisAttempts{rdb: rdb, local: &memoryAttempts{counts: map[string]int64{}}}
}

type redisAttempts struct {
	rdb   *redis.Client
	local *memoryAttempts
}

// Incr Redis 不可用时退化为进程内计数，重试仍然有上限。
func (a *redisAttempts) Incr(ctx context.Context, documentID string) (int64, error) {
	key := AttemptsKey(documentID)
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("Redis 计数失败，使用进程内计数: %v", err)
		return a.local.Incr(ctx, documentID)
	}
	_ = a.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a *redisAttempts) Reset(ctx context.Context, documentID string) {
	a.local.Reset(ctx, documentID)
	_ = a.rdb.Del(ctx, AttemptsKey(documentID)).Err()
}

type memoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (a *memoryAttempts) Incr(_ context.Context, documentID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[documentID]++
	return a.counts[documentID], nil
}

func (a *memoryAttempts) Reset(_ context.Context, documentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.counts, documentID)
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
