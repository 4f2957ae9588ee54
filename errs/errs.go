// Package errs classifies failures of the ingestion pipeline so the queue
// consumer can decide between acknowledging, dropping and redelivering.
package errs

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Class is the handling category of an error.
type Class int

const (
	// ClassTransient errors may succeed on redelivery (broker/store outages, timeouts).
	ClassTransient Class = iota
	// ClassPoison marks a message whose envelope cannot be decoded at all.
	ClassPoison
	// ClassInvalid marks deterministic failures: bad records, constraint violations.
	ClassInvalid
	// ClassFatal stops the process.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPoison:
		return "poison"
	case ClassInvalid:
		return "invalid"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// Message errors
	ErrPoisonMessage     = errors.New("poison message")
	ErrUnknownSensorKind = errors.New("unknown sensor kind")

	// Validation errors
	ErrEmptyRecord     = errors.New("empty record")
	ErrMissingRequired = errors.New("missing required fields")
	ErrNoMeasurement   = errors.New("no measurement data")
	ErrOutOfRange      = errors.New("value out of domain range")
	ErrUnparseable     = errors.New("record could not be transformed")

	// Infrastructure errors
	ErrConnectionLost    = errors.New("connection lost")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrMaxRetriesReached = errors.New("maximum retries exceeded")
)

// ClassifiedError wraps an error with its handling class.
type ClassifiedError struct {
	Class Class
	Op    string
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func wrap(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Op: op, Err: err}
}

// Poison marks err as an undecodable message.
func Poison(op string, err error) error { return wrap(ClassPoison, op, err) }

// Invalid marks err as deterministic.
func Invalid(op string, err error) error { return wrap(ClassInvalid, op, err) }

// Transient marks err as retryable.
func Transient(op string, err error) error { return wrap(ClassTransient, op, err) }

// Fatal marks err as unrecoverable.
func Fatal(op string, err error) error { return wrap(ClassFatal, op, err) }

// ClassOf returns the class of err. Unclassified errors are treated as transient
// so that an unexpected failure leads to redelivery rather than data loss.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrPoisonMessage):
		return ClassPoison
	case errors.Is(err, ErrEmptyRecord),
		errors.Is(err, ErrMissingRequired),
		errors.Is(err, ErrNoMeasurement),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrUnparseable),
		errors.Is(err, ErrUnknownSensorKind):
		return ClassInvalid
	}
	return ClassTransient
}

func IsPoison(err error) bool    { return err != nil && ClassOf(err) == ClassPoison }
func IsInvalid(err error) bool   { return err != nil && ClassOf(err) == ClassInvalid }
func IsTransient(err error) bool { return err != nil && ClassOf(err) == ClassTransient }
func IsFatal(err error) bool     { return err != nil && ClassOf(err) == ClassFatal }

// ClassifyStore wraps a durable-store error with its class. Constraint and data
// errors repeat on every redelivery and are invalid; connection failures and
// timeouts are transient.
func ClassifyStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return err
	}
	if isDeterministicStoreError(err) {
		return Invalid(op, err)
	}
	return Transient(op, fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

func isDeterministicStoreError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 22xxx data exception, 23xxx integrity constraint violation
		return strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}

	// sqlite reports constraint failures as plain strings
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "constraint violation")
}
