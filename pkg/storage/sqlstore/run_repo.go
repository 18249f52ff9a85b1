package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage"
	"github.com/LENAX/workflow-engine/pkg/storage/dao"
)

var (
	runStepColumns = []string{"id", "run_id", "step_id", "step_type", "status", "attempts", "execution_key", "started_at", "ended_at", "error_message"}
)

const insertRunSQL = `INSERT INTO workflow_runs (
		id, definition_code, version_number, status, context_json, correlation_id, current_step_id,
		resume_signal, error_message, cancel_reason, version, created_at, updated_at, completed_at
	) VALUES (
		:id, :definition_code, :version_number, :status, :context_json, :correlation_id, :current_step_id,
		:resume_signal, :error_message, :cancel_reason, :version, :created_at, :updated_at, :completed_at
	)`

// 乐观锁更新：version 不匹配时影响行数为0
const updateRunSQL = `UPDATE workflow_runs SET
		status = :status,
		context_json = :context_json,
		current_step_id = :current_step_id,
		resume_signal = :resume_signal,
		error_message = :error_message,
		cancel_reason = :cancel_reason,
		updated_at = :updated_at,
		completed_at = :completed_at,
		version = version + 1
	WHERE id = :id AND version = :version`

const insertRunStepSQL = `INSERT INTO workflow_run_steps (
		id, run_id, step_id, step_type, status, attempts, execution_key, started_at, ended_at, error_message
	) VALUES (
		:id, :run_id, :step_id, :step_type, :status, :attempts, :execution_key, :started_at, :ended_at, :error_message
	)`

const insertTransitionSQL = `INSERT INTO workflow_transitions (id, run_id, from_step_id, to_step_id, reason, created_at)
	VALUES (:id, :run_id, :from_step_id, :to_step_id, :reason, :created_at)`

const insertSignalSQL = `INSERT INTO workflow_signals (id, run_id, name, payload_json, handled_at)
	VALUES (:id, :run_id, :name, :payload_json, :handled_at)`

// CreateRun 创建运行实例
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	if _, err := s.db.NamedExecContext(ctx, insertRunSQL, dao.FromRun(run)); err != nil {
		return fmt.Errorf("创建运行实例失败: %w", err)
	}
	return nil
}

// GetRun 根据ID获取运行实例，不存在返回 nil, nil
func (s *Store) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	var d dao.RunDAO
	if err := s.db.GetContext(ctx, &d, s.db.Rebind(`SELECT * FROM workflow_runs WHERE id = ?`), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询运行实例失败: %w", err)
	}
	return d.ToEntity(), nil
}

// UpdateRun 按乐观锁版本更新运行实例
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	if err := updateRun(ctx, s.db, run); err != nil {
		return err
	}
	run.Version++
	return nil
}

func updateRun(ctx context.Context, ext sqlx.ExtContext, run *workflow.Run) error {
	res, err := sqlx.NamedExecContext(ctx, ext, updateRunSQL, dao.FromRun(run))
	if err != nil {
		return fmt.Errorf("更新运行实例失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取影响行数失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("运行实例 %s 版本 %d: %w", run.ID, run.Version, storage.ErrConcurrentUpdate)
	}
	return nil
}

// FindLatestActiveRunByCorrelation 相关ID下最近创建的活跃运行实例，不存在返回 nil, nil
func (s *Store) FindLatestActiveRunByCorrelation(ctx context.Context, correlationID string) (*workflow.Run, error) {
	var d dao.RunDAO
	query := s.db.Rebind(`SELECT * FROM workflow_runs
		WHERE correlation_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`)
	err := s.db.GetContext(ctx, &d, query, correlationID,
		workflow.RunStatusRunning.String(), workflow.RunStatusPaused.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("按相关ID查询运行实例失败: %w", err)
	}
	return d.ToEntity(), nil
}

// ListRuns 按条件列出运行实例
func (s *Store) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*workflow.Run, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DefinitionCode != "" {
		conds = append(conds, "definition_code = ?")
		args = append(args, filter.DefinitionCode)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status.String())
	}
	if filter.CorrelationID != "" {
		conds = append(conds, "correlation_id = ?")
		args = append(args, filter.CorrelationID)
	}

	query := "SELECT * FROM workflow_runs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	return s.selectRuns(ctx, s.db.Rebind(query), args...)
}

// ListRunsByStatus 列出指定状态的运行实例
func (s *Store) ListRunsByStatus(ctx context.Context, statuses ...workflow.RunStatus) ([]*workflow.Run, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = st.String()
	}
	query, args, err := sqlx.In(`SELECT * FROM workflow_runs WHERE status IN (?) ORDER BY created_at`, values)
	if err != nil {
		return nil, fmt.Errorf("构建查询失败: %w", err)
	}
	return s.selectRuns(ctx, s.db.Rebind(query), args...)
}

func (s *Store) selectRuns(ctx context.Context, query string, args ...any) ([]*workflow.Run, error) {
	var rows []dao.RunDAO
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("查询运行实例列表失败: %w", err)
	}
	runs := make([]*workflow.Run, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].ToEntity())
	}
	return runs, nil
}

// InsertRunStep 插入步骤执行记录
func (s *Store) InsertRunStep(ctx context.Context, step *workflow.RunStep) error {
	if _, err := s.db.NamedExecContext(ctx, insertRunStepSQL, dao.FromRunStep(step)); err != nil {
		return fmt.Errorf("插入步骤记录失败: %w", err)
	}
	return nil
}

// ListRunSteps 运行的全部步骤记录
func (s *Store) ListRunSteps(ctx context.Context, runID string) ([]*workflow.RunStep, error) {
	var rows []dao.RunStepDAO
	query := s.db.Rebind(`SELECT * FROM workflow_run_steps WHERE run_id = ? ORDER BY started_at, attempts`)
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("查询步骤记录失败: %w", err)
	}
	steps := make([]*workflow.RunStep, 0, len(rows))
	for i := range rows {
		steps = append(steps, rows[i].ToEntity())
	}
	return steps, nil
}

// CountRunSteps 某步骤已有的执行记录数
func (s *Store) CountRunSteps(ctx context.Context, runID, stepID string) (int, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(*) FROM workflow_run_steps WHERE run_id = ? AND step_id = ?`)
	if err := s.db.GetContext(ctx, &n, query, runID, stepID); err != nil {
		return 0, fmt.Errorf("统计步骤记录失败: %w", err)
	}
	return n, nil
}

// SaveRunState 单事务保存运行实例、步骤记录和流转轨迹
func (s *Store) SaveRunState(ctx context.Context, run *workflow.Run, steps []*workflow.RunStep, transition *workflow.Transition) error {
	upsertStep := s.dialect.UpsertSQL("workflow_run_steps", runStepColumns, []string{"id"},
		[]string{"status", "ended_at", "error_message"})

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateRun(ctx, tx, run); err != nil {
			return err
		}
		for _, step := range steps {
			if _, err := tx.NamedExecContext(ctx, upsertStep, dao.FromRunStep(step)); err != nil {
				return fmt.Errorf("保存步骤记录失败: %w", err)
			}
		}
		if transition != nil {
			if _, err := tx.NamedExecContext(ctx, insertTransitionSQL, dao.FromTransition(transition)); err != nil {
				return fmt.Errorf("保存流转轨迹失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	run.Version++
	return nil
}

// AppendSignal 追加信号记录
func (s *Store) AppendSignal(ctx context.Context, signal *workflow.Signal) error {
	if _, err := s.db.NamedExecContext(ctx, insertSignalSQL, dao.FromSignal(signal)); err != nil {
		return fmt.Errorf("保存信号记录失败: %w", err)
	}
	return nil
}

// ListSignals 运行收到的全部信号
func (s *Store) ListSignals(ctx context.Context, runID string) ([]*workflow.Signal, error) {
	var rows []dao.SignalDAO
	query := s.db.Rebind(`SELECT * FROM workflow_signals WHERE run_id = ? ORDER BY handled_at`)
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("查询信号记录失败: %w", err)
	}
	signals := make([]*workflow.Signal, 0, len(rows))
	for i := range rows {
		signals = append(signals, rows[i].ToEntity())
	}
	return signals, nil
}

// ListTransitions 运行的流转轨迹
func (s *Store) ListTransitions(ctx context.Context, runID string) ([]*workflow.Transition, error) {
	var rows []dao.TransitionDAO
	query := s.db.Rebind(`SELECT * FROM workflow_transitions WHERE run_id = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("查询流转轨迹失败: %w", err)
	}
	transitions := make([]*workflow.Transition, 0, len(rows))
	for i := range rows {
		transitions = append(transitions, rows[i].ToEntity())
	}
	return transitions, nil
}
