// Package api defines the wire types of the pivot service.
package api

import (
	"context"
	"time"

	"github.com/sievedata/pivot"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

type Error struct {
	Type    string      `json:"type"`
	Kind    string      `json:"kind"`
	Message string      `json:"error"`
	Info    interface{} `json:"info,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// PivotRequest is the body of a compute call.
type PivotRequest = pivot.Request

// PivotResult is a computed pivot table plus its cache bookkeeping.
type PivotResult struct {
	ConfigID  string    `json:"config_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	pivot.Result
}

// StatusRecord tracks one configuration's compute lifecycle.  It is
// written as pending when compute starts and overwritten with success
// or failed when compute finishes.
type StatusRecord struct {
	ConfigID  string    `json:"config_id"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Message   string    `json:"message,omitempty"`
	Rows      *int      `json:"rows,omitempty"`
}

// ConfigRecord is the last computed request for a configuration merged
// with export bookkeeping.
type ConfigRecord struct {
	pivot.Request
	// Path is the resolved absolute location of the data source.
	Path           string     `json:"path,omitempty"`
	LastSavedPath  string     `json:"last_saved_path,omitempty"`
	LastSavedAt    *time.Time `json:"last_saved_at,omitempty"`
	FirstSavedPath string     `json:"first_saved_path,omitempty"`
	FirstSavedAt   *time.Time `json:"first_saved_at,omitempty"`
}

type SaveRequest struct {
	Filename string `json:"filename,omitempty"`
}

type SaveResponse struct {
	ObjectName string    `json:"object_name"`
	Rows       int       `json:"rows"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type VersionResponse struct {
	Version string `json:"version"`
}
