package repository

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input parameters")
	ErrAlreadyClassified = errors.New("message already classified or no longer pending")
)

// errBudgetRefused rolls back a partial reservation; never returned to callers
var errBudgetRefused = errors.New("budget refused")
