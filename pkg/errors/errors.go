/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the request error taxonomy shared by the HTTP
// handlers. Each kind maps to a single status code; anything that is not a
// RequestError is reported as an internal error.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	// KindConflict marks a guarded update that affected zero rows: the
	// caller acted on stale state and is expected to re-read.
	KindConflict
	KindExternalUnavailable
)

// RequestError is a typed error carrying the taxonomy kind and optional
// structured details merged into the HTTP response body.
type RequestError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a key/value pair surfaced in the response body.
func (e *RequestError) WithDetail(key string, value any) *RequestError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func Validation(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindUnauthenticated, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *RequestError {
	return &RequestError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func External(err error, format string, args ...any) *RequestError {
	return &RequestError{Kind: KindExternalUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

func is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind == kind
	}
	return false
}

func IsValidation(err error) bool      { return is(err, KindValidation) }
func IsUnauthenticated(err error) bool { return is(err, KindUnauthenticated) }
func IsForbidden(err error) bool       { return is(err, KindForbidden) }
func IsNotFound(err error) bool        { return is(err, KindNotFound) }
func IsConflict(err error) bool        { return is(err, KindConflict) }
func IsExternal(err error) bool        { return is(err, KindExternalUnavailable) }

// HTTPStatus maps an error to its response status. Conflicts surface as 500
// with the taxonomy label since the client holds stale state it cannot fix
// with the same request.
func HTTPStatus(err error) int {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return http.StatusInternalServerError
	}
	switch reqErr.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindExternalUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Label returns the taxonomy label attached to error responses.
func Label(err error) string {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return "INTERNAL"
	}
	switch reqErr.Kind {
	case KindValidation:
		return "VALIDATION"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONSISTENCY_CONFLICT"
	case KindExternalUnavailable:
		return "EXTERNAL_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
