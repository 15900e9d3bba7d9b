package pipeline

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"legal-rag-go/internal/config"
	"legal-rag-go/internal/repository"
	"legal-rag-go/pkg/log"
)

const (
	sweepTag    = "stale-documents"
	staleReason = "processing did not finish in time, please upload the document again"
)

// Sweeper 定期把卡在 pending/processing 的文档标记为 failed，
// 覆盖 worker 崩溃、任务丢失或重试耗尽的情况。
type Sweeper struct {
	repo       repository.DocumentRepository
	staleAfter time.Duration
	interval   time.Duration
	scheduler  *gocron.Scheduler
	now        func() time.Time
}

func NewSweeper(repo repository.DocumentRepository, cfg config.PipelineConfig) *Sweeper {
	staleAfter := time.Duration(cfg.StaleAfterMinutes) * time.Minute
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	interval := time.Duration(cfg.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Sweeper{repo: repo, staleAfter: staleAfter, interval: interval, scheduler: s, now: time.Now}
}

// Start 注册定时任务并异步启动调度器。
func (s *Sweeper) Start() error {
	_, err := s.scheduler.Every(s.interval).Tag(sweepTag).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			log.Errorf("[Sweeper] 清理超时文档失败: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	log.Infof("[Sweeper] 已启动, 每 %s 检查一次, 超时阈值 %s", s.interval, s.staleAfter)
	return nil
}

// Sweep 执行一次清理，返回被标记为 failed 的文档数。
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.repo.FailStale(ctx, s.now().Add(-s.staleAfter), staleReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warnf("[Sweeper] %d 个文档处理超时, 已标记为 failed", n)
	}
	return n, nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}
