package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")

	// refresh engine errors
	ErrRunInProgress     = errors.New("a refresh run is already in progress")
	ErrNoFailingAccounts = errors.New("no currently failing accounts to retry")

	// schedule errors
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrIntervalOutOfRange    = errors.New("interval days must be between 1 and 90")
	ErrInvalidScheduleMode   = errors.New("invalid schedule mode")
)
