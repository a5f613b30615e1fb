package domain

import "errors"

var (
	ErrUnknownJob   = errors.New("jobsched: unknown job")
	ErrDuplicateJob = errors.New("jobsched: duplicate job name")
	ErrInvalidJob   = errors.New("jobsched: invalid job definition")
	ErrLeaseLost    = errors.New("jobsched: lease lost")
)
