package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"infortic-scraper/models"
)

var (
	// ErrInvalidInput rejects a batch before any I/O happens.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNothingInserted means the backend accepted the call but stored no
	// rows. After a clean this leaves the table empty.
	ErrNothingInserted = errors.New("no rows were inserted")
)

// Transient error kinds.
const (
	KindTimeout    = "timeout"
	KindConnection = "connection"
)

// TransientError is a failure that may succeed on retry.
type TransientError struct {
	Kind string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StructuralError is a failure that will not succeed regardless of
// retries: API errors, HTTP status >= 400, schema or constraint errors.
type StructuralError struct {
	StatusCode int
	API        *APIError
	Err        error
}

func (e *StructuralError) Error() string {
	detail := "unknown error"
	switch {
	case e.API != nil:
		detail = e.API.Error()
	case e.Err != nil:
		detail = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote store rejected the request (status %d): %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("remote store rejected the request: %s", detail)
}

func (e *StructuralError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.API != nil {
		return e.API
	}
	return nil
}

// CleanError is raised by every failed clean. It is always fatal.
type CleanError struct {
	Table  string
	Result models.CleanResult
	Err    error
}

func (e *CleanError) Error() string {
	return fmt.Sprintf("critical error during table cleaning of %q: %v; scraper cannot continue with stale data", e.Table, e.Err)
}

func (e *CleanError) Unwrap() error {
	return e.Err
}

// Classify sorts a raw call error into TransientError or StructuralError.
// Errors that are already classified, and context cancellation, pass
// through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var transient *TransientError
	var structural *StructuralError
	if errors.As(err, &transient) || errors.As(err, &structural) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Kind: KindTimeout, Err: err}
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, driver.ErrBadConn) {
		return &TransientError{Kind: KindConnection, Err: err}
	}

	return &StructuralError{Err: err}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, ErrInvalidInput) {
		return "invalid_input"
	}
	if errors.Is(err, ErrNothingInserted) {
		return "nothing_inserted"
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return transient.Kind
	}
	var structural *StructuralError
	if errors.As(err, &structural) {
		return "structural"
	}
	return "other"
}
