package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/workflow-engine/pkg/core/saga"
	"github.com/LENAX/workflow-engine/pkg/core/workflow"
)

// RunDAO workflow_runs 表映射
type RunDAO struct {
	ID             string       `db:"id"`
	DefinitionCode string       `db:"definition_code"`
	VersionNumber  int          `db:"version_number"`
	Status         string       `db:"status"`
	ContextJSON    string       `db:"context_json"`
	CorrelationID  string       `db:"correlation_id"`
	CurrentStepID  string       `db:"current_step_id"`
	ResumeSignal   string       `db:"resume_signal"`
	ErrorMessage   string       `db:"error_message"`
	CancelReason   string       `db:"cancel_reason"`
	Version        int64        `db:"version"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	CompletedAt    sql.NullTime `db:"completed_at"`
}

// FromRun 实体转DAO
func FromRun(r *workflow.Run) *RunDAO {
	return &RunDAO{
		ID:             r.ID,
		DefinitionCode: r.DefinitionCode,
		VersionNumber:  r.VersionNumber,
		Status:         r.Status.String(),
		ContextJSON:    r.ContextJSON,
		CorrelationID:  r.CorrelationID,
		CurrentStepID:  r.CurrentStepID,
		ResumeSignal:   r.ResumeSignal,
		ErrorMessage:   r.Error,
		CancelReason:   r.CancelReason,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
		CompletedAt:    nullTime(r.CompletedAt),
	}
}

// ToEntity DAO转实体
func (d *RunDAO) ToEntity() *workflow.Run {
	return &workflow.Run{
		ID:             d.ID,
		DefinitionCode: d.DefinitionCode,
		VersionNumber:  d.VersionNumber,
		Status:         workflow.RunStatus(d.Status),
		ContextJSON:    d.ContextJSON,
		CorrelationID:  d.CorrelationID,
		CurrentStepID:  d.CurrentStepID,
		ResumeSignal:   d.ResumeSignal,
		Error:          d.ErrorMessage,
		CancelReason:   d.CancelReason,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
		CompletedAt:    timePtr(d.CompletedAt),
	}
}

// RunStepDAO workflow_run_steps 表映射
type RunStepDAO struct {
	ID           string       `db:"id"`
	RunID        string       `db:"run_id"`
	StepID       string       `db:"step_id"`
	StepType     string       `db:"step_type"`
	Status       string       `db:"status"`
	Attempts     int          `db:"attempts"`
	ExecutionKey string       `db:"execution_key"`
	StartedAt    time.Time    `db:"started_at"`
	EndedAt      sql.NullTime `db:"ended_at"`
	ErrorMessage string       `db:"error_message"`
}

// FromRunStep 实体转DAO
func FromRunStep(s *workflow.RunStep) *RunStepDAO {
	return &RunStepDAO{
		ID:           s.ID,
		RunID:        s.RunID,
		StepID:       s.StepID,
		StepType:     s.StepType,
		Status:       string(s.Status),
		Attempts:     s.Attempts,
		ExecutionKey: s.ExecutionKey,
		StartedAt:    s.StartedAt.UTC(),
		EndedAt:      nullTime(s.EndedAt),
		ErrorMessage: s.Error,
	}
}

// ToEntity DAO转实体
func (d *RunStepDAO) ToEntity() *workflow.RunStep {
	return &workflow.RunStep{
		ID:           d.ID,
		RunID:        d.RunID,
		StepID:       d.StepID,
		StepType:     d.StepType,
		Status:       workflow.StepStatus(d.Status),
		Attempts:     d.Attempts,
		ExecutionKey: d.ExecutionKey,
		StartedAt:    d.StartedAt.UTC(),
		EndedAt:      timePtr(d.EndedAt),
		Error:        d.ErrorMessage,
	}
}

// SignalDAO workflow_signals 表映射
type SignalDAO struct {
	ID          string    `db:"id"`
	RunID       string    `db:"run_id"`
	Name        string    `db:"name"`
	PayloadJSON string    `db:"payload_json"`
	HandledAt   time.Time `db:"handled_at"`
}

// FromSignal 实体转DAO
func FromSignal(s *workflow.Signal) *SignalDAO {
	return &SignalDAO{ID: s.ID, RunID: s.RunID, Name: s.Name, PayloadJSON: s.PayloadJSON, HandledAt: s.HandledAt.UTC()}
}

// ToEntity DAO转实体
func (d *SignalDAO) ToEntity() *workflow.Signal {
	return &workflow.Signal{ID: d.ID, RunID: d.RunID, Name: d.Name, PayloadJSON: d.PayloadJSON, HandledAt: d.HandledAt.UTC()}
}

// TransitionDAO workflow_transitions 表映射
type TransitionDAO struct {
	ID         string    `db:"id"`
	RunID      string    `db:"run_id"`
	FromStepID string    `db:"from_step_id"`
	ToStepID   string    `db:"to_step_id"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

// FromTransition 实体转DAO
func FromTransition(t *workflow.Transition) *TransitionDAO {
	return &TransitionDAO{ID: t.ID, RunID: t.RunID, FromStepID: t.FromStepID, ToStepID: t.ToStepID, Reason: t.Reason, CreatedAt: t.CreatedAt.UTC()}
}

// ToEntity DAO转实体
func (d *TransitionDAO) ToEntity() *workflow.Transition {
	return &workflow.Transition{ID: d.ID, RunID: d.RunID, FromStepID: d.FromStepID, ToStepID: d.ToStepID, Reason: d.Reason, CreatedAt: d.CreatedAt.UTC()}
}

// TimerDAO workflow_timers 表映射
type TimerDAO struct {
	ID         string       `db:"id"`
	RunID      string       `db:"run_id"`
	StepID     string       `db:"step_id"`
	SignalName string       `db:"signal_name"`
	DueAt      time.Time    `db:"due_at"`
	FiredAt    sql.NullTime `db:"fired_at"`
}

// FromTimer 实体转DAO
func FromTimer(t *workflow.Timer) *TimerDAO {
	return &TimerDAO{ID: t.ID, RunID: t.RunID, StepID: t.StepID, SignalName: t.SignalName, DueAt: t.DueAt.UTC(), FiredAt: nullTime(t.FiredAt)}
}

// ToEntity DAO转实体
func (d *TimerDAO) ToEntity() *workflow.Timer {
	return &workflow.Timer{ID: d.ID, RunID: d.RunID, StepID: d.StepID, SignalName: d.SignalName, DueAt: d.DueAt.UTC(), FiredAt: timePtr(d.FiredAt)}
}

// LedgerEntryDAO compensation_ledger 表映射
type LedgerEntryDAO struct {
	ExecutionKey string    `db:"execution_key"`
	RunID        string    `db:"run_id"`
	StepID       string    `db:"step_id"`
	ActionIndex  int       `db:"action_index"`
	ActionType   string    `db:"action_type"`
	Status       string    `db:"status"`
	Attempts     int       `db:"attempts"`
	ErrorMessage string    `db:"error_message"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// FromLedgerEntry 实体转DAO
func FromLedgerEntry(e *saga.LedgerEntry) *LedgerEntryDAO {
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return &LedgerEntryDAO{
		ExecutionKey: e.ExecutionKey,
		RunID:        e.RunID,
		StepID:       e.StepID,
		ActionIndex:  e.ActionIndex,
		ActionType:   e.ActionType,
		Status:       string(e.Status),
		Attempts:     e.Attempts,
		ErrorMessage: e.Error,
		UpdatedAt:    updated.UTC(),
	}
}

// ToEntity DAO转实体
func (d *LedgerEntryDAO) ToEntity() *saga.LedgerEntry {
	return &saga.LedgerEntry{
		ExecutionKey: d.ExecutionKey,
		RunID:        d.RunID,
		StepID:       d.StepID,
		ActionIndex:  d.ActionIndex,
		ActionType:   d.ActionType,
		Status:       saga.CompensationState(d.Status),
		Attempts:     d.Attempts,
		Error:        d.ErrorMessage,
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
