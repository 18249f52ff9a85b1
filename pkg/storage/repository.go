package storage

import (
	"context"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// DefinitionRepository 工作流定义及版本Repository（对外导出）
// 查询不存在的记录返回 nil, nil
type DefinitionRepository interface {
	// SaveDefinition 创建或更新定义（按ID幂等）
	SaveDefinition(ctx context.Context, def *workflow.Definition) error
	// GetDefinitionByCode 根据编码获取定义
	GetDefinitionByCode(ctx context.Context, code string) (*workflow.Definition, error)
	// ListDefinitions 列出全部定义，按编码排序
	ListDefinitions(ctx context.Context) ([]*workflow.Definition, error)

	// SaveVersion 创建或更新版本（按ID幂等，创建后只允许更新发布状态）
	SaveVersion(ctx context.Context, v *workflow.DefinitionVersion) error
	// GetVersion 获取指定版本号
	GetVersion(ctx context.Context, definitionID string, versionNumber int) (*workflow.DefinitionVersion, error)
	// GetLatestPublishedVersion 获取版本号最大的已发布版本
	GetLatestPublishedVersion(ctx context.Context, definitionID string) (*workflow.DefinitionVersion, error)
	// ListVersions 列出定义的全部版本，按版本号升序
	ListVersions(ctx context.Context, definitionID string) ([]*workflow.DefinitionVersion, error)
	// NextVersionNumber 下一个可用版本号（从1开始）
	NextVersionNumber(ctx context.Context, definitionID string) (int, error)
}

// RunFilter 运行实例查询条件
type RunFilter struct {
	DefinitionCode string
	Status         workflow.RunStatus
	CorrelationID  string
	Limit          int
	Offset         int
}

// RunRepository 运行实例Repository（对外导出）
type RunRepository interface {
	// CreateRun 创建运行实例
	CreateRun(ctx context.Context, run *workflow.Run) error
	// GetRun 根据ID获取运行实例
	GetRun(ctx context.Context, id string) (*workflow.Run, error)
	// UpdateRun 按乐观锁版本更新运行实例，冲突返回 ErrConcurrentUpdate，成功后 run.Version 自增
	UpdateRun(ctx context.Context, run *workflow.Run) error
	// FindLatestActiveRunByCorrelation 相关ID下最近创建的Running/Paused运行实例
	FindLatestActiveRunByCorrelation(ctx context.Context, correlationID string) (*workflow.Run, error)
	// ListRuns 按条件列出运行实例，按创建时间倒序
	ListRuns(ctx context.Context, filter RunFilter) ([]*workflow.Run, error)
	// ListRunsByStatus 列出指定状态的运行实例
	ListRunsByStatus(ctx context.Context, statuses ...workflow.RunStatus) ([]*workflow.Run, error)

	// InsertRunStep 插入步骤执行记录
	InsertRunStep(ctx context.Context, step *workflow.RunStep) error
	// ListRunSteps 运行的全部步骤记录，按开始时间升序
	ListRunSteps(ctx context.Context, runID string) ([]*workflow.RunStep, error)
	// CountRunSteps 某步骤已有的执行记录数
	CountRunSteps(ctx context.Context, runID, stepID string) (int, error)

	// SaveRunState 单事务内按乐观锁更新运行实例、更新步骤记录并追加流转轨迹（transition可为nil）
	SaveRunState(ctx context.Context, run *workflow.Run, steps []*workflow.RunStep, transition *workflow.Transition) error

	// AppendSignal 追加信号记录
	AppendSignal(ctx context.Context, signal *workflow.Signal) error
	// ListSignals 运行收到的全部信号，按处理时间升序
	ListSignals(ctx context.Context, runID string) ([]*workflow.Signal, error)
	// ListTransitions 运行的流转轨迹，按创建时间升序
	ListTransitions(ctx context.Context, runID string) ([]*workflow.Transition, error)
}

// TimerRepository 定时器Repository（对外导出）
type TimerRepository interface {
	// ScheduleTimer 保存定时器
	ScheduleTimer(ctx context.Context, timer *workflow.Timer) error
	// ClaimDueTimers 领取到期未触发的定时器并标记已触发，同一定时器只会被领取一次
	ClaimDueTimers(ctx context.Context, now time.Time, limit int) ([]*workflow.Timer, error)
}

// IdempotencyRepository 幂等记录Repository（对外导出）
type IdempotencyRepository interface {
	// Lookup 查询幂等记录，已过期视为不存在
	Lookup(ctx context.Context, route, key string) (*workflow.IdempotencyRecord, error)
	// Save 创建或覆盖幂等记录
	Save(ctx context.Context, record *workflow.IdempotencyRecord) error
	// DeleteExpired 删除过期记录，返回删除条数
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store 全部Repository的组合（对外导出）
type Store interface {
	DefinitionRepository
	RunRepository
	TimerRepository
	IdempotencyRepository
	saga.Ledger

	// Dialect 当前数据库方言
	Dialect() Dialect
	// Close 关闭数据库连接
	Close() error
}
