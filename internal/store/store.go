// Package store persists the durable action log, temporary-action records, commissions
// and staff notes.
package store

import (
	"context"
	"errors"
	"time"

	"modbot/internal/modal"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidTransition is returned when a commission is not in the status a transition requires.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store is the persistence contract the workflows and views depend on. Every write is a
// single atomic statement or transaction.
type Store interface {
	ActionLog
	TempActions
	Commissions
	Notes
	Close() error
}

type ActionLog interface {
	ActionIDExists(ctx context.Context, actionID string) (bool, error)
	// AppendAction writes the record and, when temp is non-nil, its temporary-action
	// pointer in one transaction.
	AppendAction(ctx context.Context, rec modal.ActionRecord, temp *modal.TempActionRecord) error
	// QueryActions returns matching records oldest first.
	QueryActions(ctx context.Context, q modal.ActionQuery) ([]modal.ActionRecord, error)
	// GetAction returns ErrNotFound when no record has actionID.
	GetAction(ctx context.Context, actionID string) (modal.ActionRecord, error)
	Stats(ctx context.Context, since time.Time, topN int) (modal.ActionStats, error)
}

type TempActions interface {
	ExpiredTempActions(ctx context.Context, now time.Time) ([]modal.TempActionRecord, error)
	// DeleteTempAction reports whether a row was removed.
	DeleteTempAction(ctx context.Context, actionID string) (bool, error)
	DeleteTempActionsForSubject(ctx context.Context, scopeID, subjectID string) (int, error)
}

type Commissions interface {
	CommissionExists(ctx context.Context, commissionID string) (bool, error)
	CreateCommission(ctx context.Context, c modal.Commission) error
	GetCommission(ctx context.Context, commissionID string) (modal.Commission, error)
	ConfirmCommission(ctx context.Context, commissionID, channelID string, at time.Time) error
	DeleteCommission(ctx context.Context, commissionID string) error
}

type Notes interface {
	AddNote(ctx context.Context, n modal.Note) (modal.Note, error)
	ListNotes(ctx context.Context, subjectID string) ([]modal.Note, error)
}
