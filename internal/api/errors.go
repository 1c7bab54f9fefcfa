package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code identifies a machine-checkable error category. Presentation
// layers and host callbacks branch on these, never on transport detail.
type Code string

const (
	CodeOffline          Code = "OFFLINE"
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeSlotConflict     Code = "SLOT_CONFLICT"
	CodeSlotLocked       Code = "SLOT_LOCKED"
	CodeTemplateInvalid  Code = "TEMPLATE_INVALID"
	CodeNoSavedTemplate  Code = "NO_SAVED_TEMPLATE"
	CodeBookingCancelled Code = "BOOKING_CANCELLED"
	CodeValidation       Code = "VALIDATION"
	CodeGeneric          Code = "GENERIC"
)

// Error is the normalized form of every scheduling API failure. It is
// built exactly once, at the transport boundary; everything above the
// client stores and inspects it as-is.
type Error struct {
	Code       Code
	Message    string
	Status     int
	RetryAfter time.Duration

	// Alternatives carries open slots returned inline with a
	// SLOT_CONFLICT response body.
	Alternatives []Slot
	// Suggestions carries alternate saved templates returned with
	// TEMPLATE_INVALID / NO_SAVED_TEMPLATE responses.
	Suggestions []Template

	// FieldErrors is set only on local validation failures.
	FieldErrors map[string]string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("calemly: %s (code=%s status=%d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("calemly: %s (code=%s)", e.Message, e.Code)
}

// Retryable reports whether the transport layer may retry the request.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeRateLimited:
		return true
	case CodeGeneric:
		return e.Status == 0 || e.Status >= 500
	default:
		return false
	}
}

// AsError unwraps a normalized *Error from err, or wraps err into a
// GENERIC one so callers always observe the same shape.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Code: CodeGeneric, Message: err.Error()}
}

// errorBody is the wire shape of a non-2xx response body.
type errorBody struct {
	Message      string     `json:"message"`
	Error        string     `json:"error"`
	Code         string     `json:"code"`
	RetryAfter   float64    `json:"retry_after,omitempty"`
	Alternatives []Slot     `json:"alternatives,omitempty"`
	Suggestions  []Template `json:"suggestions,omitempty"`
}

func genericMessage(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "too many requests, please slow down"
	case status >= 500:
		return "the scheduling service is temporarily unavailable"
	case status == http.StatusNotFound:
		return "the requested resource was not found"
	case status >= 400:
		return "the request could not be processed"
	default:
		return "unexpected response from the scheduling service"
	}
}

// normalizeError converts a non-2xx response into a *Error. The body
// may be empty or non-JSON; the status-derived message covers that.
func normalizeError(status int, body errorBody, retryAfter time.Duration) *Error {
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	if msg == "" {
		msg = genericMessage(status)
	}

	code := Code(body.Code)
	switch code {
	case CodeSlotConflict, CodeSlotLocked, CodeTemplateInvalid, CodeNoSavedTemplate:
	default:
		if status == http.StatusTooManyRequests {
			code = CodeRateLimited
		} else {
			code = CodeGeneric
		}
	}

	if retryAfter <= 0 && body.RetryAfter > 0 {
		retryAfter = time.Duration(body.RetryAfter * float64(time.Second))
	}
	if code == CodeRateLimited && retryAfter > 0 && body.Message == "" && body.Error == "" {
		msg = fmt.Sprintf("too many requests, retry in %d seconds", int(retryAfter.Round(time.Second)/time.Second))
	}

	return &Error{
		Code:         code,
		Message:      msg,
		Status:       status,
		RetryAfter:   retryAfter,
		Alternatives: body.Alternatives,
		Suggestions:  body.Suggestions,
	}
}

// OfflineError is returned without touching the network when the host
// reports no connectivity.
func OfflineError() *Error {
	return &Error{
		Code:    CodeOffline,
		Message: "you appear to be offline, check your connection and try again",
	}
}
