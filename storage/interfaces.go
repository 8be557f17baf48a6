package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"infortic-scraper/models"
)

// Backend is the table-oriented remote store the RecordStore talks to.
//
// A returned error means the call itself failed (network, timeout, driver).
// API-level failures come back as a Response with Error set or a status
// code of 400 and above.
type Backend interface {
	Delete(ctx context.Context, table string, where Predicate) (*Response, error)
	InsertMany(ctx context.Context, spec models.TableSpec, rows []models.Record) (*Response, error)
	Close() error
}

// RawRecordWriter persists an unprocessed batch for later inspection.
type RawRecordWriter interface {
	WriteRaw(table string, batch models.Batch) error
	Close() error
}

// Response is what a backend reports for one call.
type Response struct {
	StatusCode int
	// Affected is the number of rows deleted or inserted.
	Affected int
	Data     []models.Record
	Raw      []byte
	Error    *APIError
	// RowErrors lists rows the backend rejected individually.
	RowErrors []models.RowError
}

// Failed reports whether the response signals an API or HTTP level error.
func (r *Response) Failed() bool {
	return r.Error != nil || r.StatusCode >= 400
}

// APIError is the structured error object of a PostgREST style API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// UnmarshalJSON accepts details as either a string or any JSON value.
func (e *APIError) UnmarshalJSON(b []byte) error {
	var raw struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
		Hint    json.RawMessage `json:"hint"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Code = jsonText(raw.Code)
	e.Message = raw.Message
	e.Details = jsonText(raw.Details)
	e.Hint = jsonText(raw.Hint)
	return nil
}

func jsonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Predicate selects rows of a table. Only "column is not null" exists: a
// full-table delete must match every row with an identifier, never a
// sentinel value.
type Predicate struct {
	Column string
}

// NotNull matches every row whose column is not null.
func NotNull(column string) Predicate {
	return Predicate{Column: column}
}

// PostgREST renders the predicate as a query parameter pair.
func (p Predicate) PostgREST() (key, value string) {
	return p.Column, "not.is.null"
}

// SQL renders the predicate as a WHERE clause body.
func (p Predicate) SQL() string {
	return quoteIdent(p.Column) + " IS NOT NULL"
}

func (p Predicate) String() string {
	return p.Column + " is not null"
}
