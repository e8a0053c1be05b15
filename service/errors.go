package service

import (
	"errors"
	"fmt"

	"sidebet/models"
)

// Rule violation codes
const (
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeInvalidState      = "invalid_state"
	CodeInvalidInput      = "invalid_input"
	CodeCooldown          = "cooldown"
	CodeLimitExceeded     = "limit_exceeded"
	CodeInsufficientFunds = "insufficient_funds"
	CodeTrustRestricted   = "trust_restricted"
	CodeConflict          = "conflict"
)

// RuleViolation is returned when a request breaks a business rule. Nothing is
// mutated when a RuleViolation is returned.
type RuleViolation struct {
	Code   string
	Reason string
}

func (e *RuleViolation) Error() string {
	return e.Reason
}

func newRuleViolation(code, format string, args ...any) *RuleViolation {
	return &RuleViolation{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsRuleViolation reports whether err is or wraps a RuleViolation
func IsRuleViolation(err error) bool {
	var rv *RuleViolation
	return errors.As(err, &rv)
}

// ViolationCode returns the code of a wrapped RuleViolation, or ""
func ViolationCode(err error) string {
	var rv *RuleViolation
	if errors.As(err, &rv) {
		return rv.Code
	}
	return ""
}

// asRuleViolation turns model validation and optimistic-lock failures into rule
// violations and passes everything else through unchanged
func asRuleViolation(err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return &RuleViolation{Code: CodeInvalidInput, Reason: err.Error()}
	case errors.Is(err, models.ErrConcurrentModification):
		return &RuleViolation{Code: CodeConflict, Reason: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		return &RuleViolation{Code: CodeNotFound, Reason: err.Error()}
	}
	return err
}
