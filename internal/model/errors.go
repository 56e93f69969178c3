package model

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Error kinds. Every typed error below matches exactly one of these through errors.Is.
var (
	ErrEntityNotFound        = errors.New("model: entity not found")
	ErrInvalidFilterField    = errors.New("model: invalid filter field")
	ErrInvalidFilterOperator = errors.New("model: invalid filter operator")
	ErrConstraintViolation   = errors.New("model: constraint violation")
	ErrInvalidTransition     = errors.New("model: invalid transition")
	ErrValidation            = errors.New("model: validation failed")
	ErrTimeout               = errors.New("model: operation timed out")
	ErrStoreUnavailable      = errors.New("model: store unavailable")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// EntityNotFoundError reports a missing row.
type EntityNotFoundError struct {
	Entity string
	ID     int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *EntityNotFoundError) Is(target error) bool {
	return target == ErrEntityNotFound
}

// InvalidFilterFieldError reports a filter or ordering on an undeclared field.
type InvalidFilterFieldError struct {
	Entity string
	Field  string
}

func (e *InvalidFilterFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is not filterable", e.Entity, e.Field)
}

func (e *InvalidFilterFieldError) Is(target error) bool {
	return target == ErrInvalidFilterField
}

// InvalidFilterOperatorError reports an operator the field does not permit, or a malformed value.
type InvalidFilterOperatorError struct {
	Entity string
	Field  string
	Op     Operator
	Reason string
}

func (e *InvalidFilterOperatorError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: operator %q not allowed on %q", e.Entity, e.Op, e.Field)
	}
	return fmt.Sprintf("%s: operator %q on %q: %s", e.Entity, e.Op, e.Field, e.Reason)
}

func (e *InvalidFilterOperatorError) Is(target error) bool {
	return target == ErrInvalidFilterOperator
}

// ConstraintViolationError reports a uniqueness or reference constraint failure.
type ConstraintViolationError struct {
	Entity string
	Field  string
	err    error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%s: constraint violated on %q", e.Entity, e.Field)
}

func (e *ConstraintViolationError) Is(target error) bool {
	return target == ErrConstraintViolation
}

func (e *ConstraintViolationError) Unwrap() error {
	return e.err
}

// InvalidTransitionError reports an update rejected by an entity rule.
type InvalidTransitionError struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("%s %d: %s is terminal", e.Entity, e.ID, e.From)
	}
	return fmt.Sprintf("%s %d: cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError wraps payload rule failures.
type ValidationError struct {
	Entity string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Entity, e.err)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// StoreError wraps unclassified primary store failures with an operation.reason code.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: operation + "." + reason, err: cause}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%v: %v", e.kind, e.err)
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

func (e *kindError) Unwrap() error {
	return e.err
}

var (
	sqliteUniquePattern = regexp.MustCompile(`UNIQUE constraint failed: ([\w.]+)`)
	pgKeyPattern        = regexp.MustCompile(`Key \(([^)]+)\)`)
)

// classifyStoreError maps driver failures onto the error taxonomy.
// Errors already classified by the engine pass through untouched.
func classifyStoreError(entity, operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrEntityNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrConstraintViolation),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidFilterField),
		errors.Is(err, ErrInvalidFilterOperator),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &kindError{kind: ErrTimeout, err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgForeignKeyViolation:
			return &ConstraintViolationError{Entity: entity, Field: postgresConstraintField(pgErr), err: err}
		}
	}

	message := err.Error()
	if match := sqliteUniquePattern.FindStringSubmatch(message); match != nil {
		column := match[1]
		if dot := strings.LastIndex(column, "."); dot >= 0 {
			column = column[dot+1:]
		}
		return &ConstraintViolationError{Entity: entity, Field: column, err: err}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ConstraintViolationError{Entity: entity, Field: "unknown", err: err}
	}
	if strings.Contains(message, "FOREIGN KEY constraint failed") || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &ConstraintViolationError{Entity: entity, Field: "reference", err: err}
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		strings.Contains(message, "database is closed") {
		return &kindError{kind: ErrStoreUnavailable, err: err}
	}

	return newStoreError(operation, "query_failed", err)
}

func postgresConstraintField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if match := pgKeyPattern.FindStringSubmatch(pgErr.Detail); match != nil {
		return match[1]
	}
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "unknown"
}
