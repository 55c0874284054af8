package models

import (
	"fmt"
	"time"
)

// Operation names the facade call that produced a [SyncRun].
type Operation string

const (
	OpGet     Operation = "get"
	OpRefresh Operation = "refresh"
	OpStream  Operation = "stream"
)

// RunStatus is the terminal state of a [SyncRun].
type RunStatus string

const (
	RunSucceeded  RunStatus = "success"
	RunFailed     RunStatus = "error"
	RunSuperseded RunStatus = "superseded" // finished after a newer token was issued; output discarded
)

// SyncRun is one journal entry. Identity and timestamps are managed by the repository.
type SyncRun struct {
	id        string
	sequence  int
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time

	Kind        Kind
	Scope       string
	Operation   Operation
	Token       string
	Status      RunStatus
	ItemCount   int
	FailedUnits int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// NewSyncRun creates an unsaved run for kind/scope/op.
func NewSyncRun(kind Kind, scope Scope, op Operation, token string, startedAt time.Time) *SyncRun {
	now := time.Now()
	return &SyncRun{
		createdAt: now,
		updatedAt: now,
		Kind:      kind,
		Scope:     scope.String(),
		Operation: op,
		Token:     token,
		StartedAt: startedAt,
	}
}

// RestoreSyncRun rebuilds a run read from storage.
func RestoreSyncRun(id string, sequence int, createdAt, updatedAt time.Time, deletedAt *time.Time) *SyncRun {
	return &SyncRun{id: id, sequence: sequence, createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt}
}

func (r *SyncRun) ID() string            { return r.id }
func (r *SyncRun) Sequence() int         { return r.sequence }
func (r *SyncRun) CreatedAt() time.Time  { return r.createdAt }
func (r *SyncRun) UpdatedAt() time.Time  { return r.updatedAt }
func (r *SyncRun) DeletedAt() *time.Time { return r.deletedAt }

func (r *SyncRun) SetID(id string)           { r.id = id }
func (r *SyncRun) SetSequence(seq int)       { r.sequence = seq }
func (r *SyncRun) SetUpdatedAt(t time.Time)  { r.updatedAt = t }
func (r *SyncRun) SetDeletedAt(t *time.Time) { r.deletedAt = t }

// Duration is the wall time the operation took.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Validate implements [Model].
func (r *SyncRun) Validate() error {
	switch {
	case r.Kind != KindHomework && r.Kind != KindDocuments:
		return fmt.Errorf("invalid kind %q", r.Kind)
	case r.Operation != OpGet && r.Operation != OpRefresh && r.Operation != OpStream:
		return fmt.Errorf("invalid operation %q", r.Operation)
	case r.Status != RunSucceeded && r.Status != RunFailed && r.Status != RunSuperseded:
		return fmt.Errorf("invalid status %q", r.Status)
	case r.Scope == "":
		return fmt.Errorf("scope is required")
	case r.StartedAt.IsZero():
		return fmt.Errorf("start time is required")
	}
	return nil
}
