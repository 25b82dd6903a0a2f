package errors

import "errors"

var (
	ErrSeasonNotFound   = errors.New("season not found")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrLockUnavailable  = errors.New("progression lock held by another run")
	ErrStoreUnavailable = errors.New("tournament store unavailable")
)
