package store

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrConflict         = errors.New("conflicting record")
	ErrLeadAlreadySet   = errors.New("job already has a lead technician")
	ErrNotAssigned      = errors.New("technician not assigned to job")
	ErrInvalidReference = errors.New("referenced record does not exist")
)
