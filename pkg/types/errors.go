package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptySourceKey     = errors.New("source key cannot be empty")
	ErrInvalidOrdinal     = errors.New("chunk ordinal must be >= 0")
	ErrEmptyContent       = errors.New("content cannot be empty")
	ErrChunkIDMismatch    = errors.New("chunk id does not match source and ordinal")
	ErrEmptyVector        = errors.New("vector cannot be empty")
	ErrInvalidRank        = errors.New("rank must be >= 1")
	ErrMissingMetadataSrc = errors.New("metadata source is required")
)
