package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
	"github.com/LENAX/workflow-engine/pkg/storage/dao"
)

var (
	idempotencyColumns = []string{"route", "idem_key", "body_hash", "status_code", "response_json", "created_at", "expires_at"}
	ledgerColumns      = []string{"execution_key", "run_id", "step_id", "action_index", "action_type", "status", "attempts", "error_message", "updated_at"}
)

const insertTimerSQL = `INSERT INTO workflow_timers (id, run_id, step_id, signal_name, due_at, fired_at)
	VALUES (:id, :run_id, :step_id, :signal_name, :due_at, :fired_at)`

// ScheduleTimer 保存定时器
func (s *Store) ScheduleTimer(ctx context.Context, timer *workflow.Timer) error {
	if _, err := s.db.NamedExecContext(ctx, insertTimerSQL, dao.FromTimer(timer)); err != nil {
		return fmt.Errorf("保存定时器失败: %w", err)
	}
	return nil
}

// ClaimDueTimers 领取到期定时器
// 逐条以 fired_at IS NULL 为条件标记，多实例并发扫描时同一定时器只会被一个实例领取
func (s *Store) ClaimDueTimers(ctx context.Context, now time.Time, limit int) ([]*workflow.Timer, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []dao.TimerDAO
	query := s.db.Rebind(`SELECT * FROM workflow_timers
		WHERE fired_at IS NULL AND due_at <= ?
		ORDER BY due_at LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, now.UTC(), limit); err != nil {
		return nil, fmt.Errorf("查询到期定时器失败: %w", err)
	}

	claim := s.db.Rebind(`UPDATE workflow_timers SET fired_at = ? WHERE id = ? AND fired_at IS NULL`)
	claimed := make([]*workflow.Timer, 0, len(rows))
	for i := range rows {
		firedAt := now.UTC()
		res, err := s.db.ExecContext(ctx, claim, firedAt, rows[i].ID)
		if err != nil {
			return claimed, fmt.Errorf("标记定时器失败: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		timer := rows[i].ToEntity()
		timer.FiredAt = &firedAt
		claimed = append(claimed, timer)
	}
	return claimed, nil
}

// Lookup 查询幂等记录，不存在或已过期返回 nil, nil
func (s *Store) Lookup(ctx context.Context, route, key string) (*workflow.IdempotencyRecord, error) {
	var d dao.IdempotencyDAO
	query := s.db.Rebind(`SELECT * FROM idempotency_keys WHERE route = ? AND idem_key = ?`)
	if err := s.db.GetContext(ctx, &d, query, route, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询幂等记录失败: %w", err)
	}
	if d.ExpiresAt.Valid && !d.ExpiresAt.Time.After(time.Now()) {
		return nil, nil
	}
	return d.ToEntity(), nil
}

// Save 创建或覆盖幂等记录
func (s *Store) Save(ctx context.Context, record *workflow.IdempotencyRecord) error {
	query := s.dialect.UpsertSQL("idempotency_keys", idempotencyColumns, []string{"route", "idem_key"},
		[]string{"body_hash", "status_code", "response_json", "created_at", "expires_at"})
	if _, err := s.db.NamedExecContext(ctx, query, dao.FromIdempotencyRecord(record)); err != nil {
		return fmt.Errorf("保存幂等记录失败: %w", err)
	}
	return nil
}

// DeleteExpired 删除过期幂等记录
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := s.db.Rebind(`DELETE FROM idempotency_keys WHERE expires_at IS NOT NULL AND expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理过期幂等记录失败: %w", err)
	}
	return res.RowsAffected()
}

// GetLedgerEntry 查询补偿台账，不存在返回 nil, nil
func (s *Store) GetLedgerEntry(ctx context.Context, executionKey string) (*saga.LedgerEntry, error) {
	var d dao.LedgerEntryDAO
	query := s.db.Rebind(`SELECT * FROM compensation_ledger WHERE execution_key = ?`)
	if err := s.db.GetContext(ctx, &d, query, executionKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询补偿台账失败: %w", err)
	}
	return d.ToEntity(), nil
}

// SaveLedgerEntry 创建或更新补偿台账
func (s *Store) SaveLedgerEntry(ctx context.Context, entry *saga.LedgerEntry) error {
	query := s.dialect.UpsertSQL("compensation_ledger", ledgerColumns, []string{"execution_key"},
		[]string{"status", "attempts", "error_message", "updated_at"})
	if _, err := s.db.NamedExecContext(ctx, query, dao.FromLedgerEntry(entry)); err != nil {
		return fmt.Errorf("保存补偿台账失败: %w", err)
	}
	return nil
}

// ListLedgerEntries 运行的全部补偿台账
func (s *Store) ListLedgerEntries(ctx context.Context, runID string) ([]*saga.LedgerEntry, error) {
	var rows []dao.LedgerEntryDAO
	query := s.db.Rebind(`SELECT * FROM compensation_ledger WHERE run_id = ? ORDER BY updated_at, action_index`)
	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("查询补偿台账失败: %w", err)
	}
	entries := make([]*saga.LedgerEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].ToEntity())
	}
	return entries, nil
}
