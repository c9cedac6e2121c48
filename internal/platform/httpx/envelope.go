// Package httpx provides the JSON envelope every endpoint responds with.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response shape. Data is omitted when nil.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *T     `json:"data,omitempty"`
}

// NoData is the payload type of envelopes that carry only a message.
type NoData = struct{}

// FieldErrors is the payload attached to validation failures.
type FieldErrors struct {
	Fields map[string]string `json:"fields"`
}

// Messages shared by handlers and middleware.
const (
	MsgInternalError    = "Internal server error"
	MsgValidationFailed = "Validation failed"
	MsgInvalidID        = "Invalid ID"
	MsgUnauthorized     = "Unauthorized"
	MsgForbidden        = "Forbidden"
	MsgNotFound         = "Not found"
	MsgBadRequest       = "Bad request"
	MsgTooManyRequests  = "Too many requests"
	MsgMethodNotAllowed = "Method not allowed"
	MsgTimeout          = "Request timed out"
)

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a success envelope carrying data.
func OK[T any](w http.ResponseWriter, status int, message string, data T) {
	JSON(w, status, Envelope[T]{Success: true, Message: message, Data: &data})
}

// Message writes a success envelope without payload.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope[NoData]{Success: true, Message: message})
}

// Fail writes a failure envelope.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope[NoData]{Success: false, Message: message})
}

// FailFields writes a failure envelope listing rejected fields.
func FailFields(w http.ResponseWriter, status int, message string, fields map[string]string) {
	JSON(w, status, Envelope[FieldErrors]{Success: false, Message: message, Data: &FieldErrors{Fields: fields}})
}

// InternalError writes the generic 500 envelope.
func InternalError(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, MsgInternalError)
}
