package app

import (
	"errors"

	"phofmit/internal/phofmit"
)

// Operation tracks the CLI command being run. Operations are created in
// memory with ID=0. Only commands that scan or move files persist them
// (giving them an auto-increment ID in the run history).
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string // "success", "error" or "aborted"
	Moved      int
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed by err. A declined config mismatch
// counts as aborted rather than failed.
func (op *Operation) Fail(err error) {
	if errors.Is(err, phofmit.ErrConfigMismatch) {
		op.Status = "aborted"
		return
	}
	op.Status = "error"
}
