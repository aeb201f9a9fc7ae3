// Package repository persists one extraction record per case id.
package repository

import (
	"context"
	"time"

	"casetrace/internal/entity"
)

// PutOutcome reports whether a Put created the row or lost to an earlier
// writer. Duplicate keys are an expected outcome, never an error: the caller
// can assert on the variant instead of relying on an absent failure.
type PutOutcome int

const (
	Created PutOutcome = iota
	AlreadyExists
)

func (o PutOutcome) String() string {
	if o == AlreadyExists {
		return "already_exists"
	}
	return "created"
}

// CaseRepository is the persistence port. GetByCaseID returns (nil, nil) when
// the case is absent; Put never errors on a duplicate case id.
type CaseRepository interface {
	GetByCaseID(ctx context.Context, caseID string) (*entity.ExtractionRecord, error)
	Put(ctx context.Context, rec *entity.ExtractionRecord) (PutOutcome, error)
}

// Store is what the daemon needs from a concrete adapter: the persistence
// port plus lifecycle. Both the sqlite and postgres adapters satisfy it.
type Store interface {
	CaseRepository
	HealthCheck(ctx context.Context, timeout time.Duration) error
	Close() error
}
