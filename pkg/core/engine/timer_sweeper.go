package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSweepSpec 默认扫描周期
	DefaultSweepSpec = "@every 5s"
	// DefaultSweepBatch 单次扫描最多领取的定时器数
	DefaultSweepBatch = 100
)

// TimerSweeper 定时扫描到期定时器并以超时信号恢复运行（对外导出）
// 同时清理过期的幂等记录
type TimerSweeper struct {
	cron     *cron.Cron
	executor *Executor
	spec     string
	batch    int
	entryID  cron.EntryID
	running  bool
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewTimerSweeper 创建定时器扫描器，spec 支持秒级cron表达式和 @every 描述符
func NewTimerSweeper(executor *Executor, spec string) (*TimerSweeper, error) {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("定时器扫描周期无效: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TimerSweeper{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		executor: executor,
		spec:     spec,
		batch:    DefaultSweepBatch,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 启动周期扫描
func (ts *TimerSweeper) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.running {
		return nil
	}

	entryID, err := ts.cron.AddFunc(ts.spec, func() {
		if _, err := ts.SweepOnce(ts.ctx); err != nil {
			log.Printf("❌ [Timer] 扫描定时器失败: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("添加定时器扫描任务失败: %w", err)
	}
	ts.entryID = entryID
	ts.cron.Start()
	ts.running = true
	log.Printf("✅ [Timer] 定时器扫描已启动: Spec=%s", ts.spec)
	return nil
}

// Stop 停止扫描并等待进行中的扫描结束
func (ts *TimerSweeper) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.running {
		return
	}
	<-ts.cron.Stop().Done()
	ts.cron.Remove(ts.entryID)
	ts.cancel()
	ts.running = false
	log.Println("✅ [Timer] 定时器扫描已停止")
}

// SweepOnce 领取并触发到期定时器，返回触发数
func (ts *TimerSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	timers, err := ts.executor.store.ClaimDueTimers(ctx, now, ts.batch)
	if err != nil {
		return 0, fmt.Errorf("领取到期定时器失败: %w", err)
	}

	fired := 0
	for _, timer := range timers {
		log.Printf("⏰ [Timer] 定时器到期: TimerID=%s, RunID=%s, StepID=%s, Signal=%s",
			timer.ID, timer.RunID, timer.StepID, timer.SignalName)
		if err := ts.executor.FireTimer(ctx, timer); err != nil {
			log.Printf("❌ [Timer] 触发定时器失败: TimerID=%s, RunID=%s, Error=%v", timer.ID, timer.RunID, err)
			continue
		}
		fired++
	}

	if removed, err := ts.executor.store.DeleteExpired(ctx, now); err != nil {
		log.Printf("⚠️ [Timer] 清理过期幂等记录失败: %v", err)
	} else if removed > 0 {
		log.Printf("🧹 [Timer] 已清理过期幂等记录: %d", removed)
	}
	return fired, nil
}
