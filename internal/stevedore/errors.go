// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sapcc/go-bits/logg"
)

// RegistryV2ErrorCode is the closed set of error codes that can appear in type
// RegistryV2Error.
type RegistryV2ErrorCode string

// Possible values for RegistryV2ErrorCode.
const (
	ErrBlobUnknown         RegistryV2ErrorCode = "BLOB_UNKNOWN"
	ErrBlobUploadInvalid   RegistryV2ErrorCode = "BLOB_UPLOAD_INVALID"
	ErrBlobUploadUnknown   RegistryV2ErrorCode = "BLOB_UPLOAD_UNKNOWN"
	ErrDigestInvalid       RegistryV2ErrorCode = "DIGEST_INVALID"
	ErrManifestBlobUnknown RegistryV2ErrorCode = "MANIFEST_BLOB_UNKNOWN"
	ErrManifestInvalid     RegistryV2ErrorCode = "MANIFEST_INVALID"
	ErrManifestUnknown     RegistryV2ErrorCode = "MANIFEST_UNKNOWN"
	ErrNameInvalid         RegistryV2ErrorCode = "NAME_INVALID"
	ErrNameUnknown         RegistryV2ErrorCode = "NAME_UNKNOWN"
	ErrPaginationInvalid   RegistryV2ErrorCode = "PAGINATION_NUMBER_INVALID"
	ErrRangeInvalid        RegistryV2ErrorCode = "RANGE_INVALID"
	ErrSizeInvalid         RegistryV2ErrorCode = "SIZE_INVALID"
	ErrTagInvalid          RegistryV2ErrorCode = "TAG_INVALID"
	ErrUnauthorized        RegistryV2ErrorCode = "UNAUTHORIZED"
	ErrDenied              RegistryV2ErrorCode = "DENIED"
	ErrUnsupported         RegistryV2ErrorCode = "UNSUPPORTED"

	// ErrUnknown is not part of the API contract. It is only rendered for
	// unexpected server-side failures, in which case the status code is 500.
	ErrUnknown RegistryV2ErrorCode = "UNKNOWN"
)

var apiErrorMessages = map[RegistryV2ErrorCode]string{
	ErrBlobUnknown:         "blob unknown to registry",
	ErrBlobUploadInvalid:   "blob upload invalid",
	ErrBlobUploadUnknown:   "blob upload unknown to registry",
	ErrDigestInvalid:       "provided digest did not match uploaded content",
	ErrManifestBlobUnknown: "manifest references a blob unknown to registry",
	ErrManifestInvalid:     "manifest invalid",
	ErrManifestUnknown:     "manifest unknown",
	ErrNameInvalid:         "invalid repository name",
	ErrNameUnknown:         "repository name not known to registry",
	ErrPaginationInvalid:   "invalid number of results requested",
	ErrRangeInvalid:        "invalid content range",
	ErrSizeInvalid:         "provided length did not match content length",
	ErrTagInvalid:          "manifest tag did not match URI",
	ErrUnauthorized:        "authentication required",
	ErrDenied:              "requested access to the resource is denied",
	ErrUnsupported:         "operation is unsupported",
	ErrUnknown:             "unknown error",
}

var apiErrorStatusCodes = map[RegistryV2ErrorCode]int{
	ErrBlobUnknown:         http.StatusNotFound,
	ErrBlobUploadInvalid:   http.StatusBadRequest,
	ErrBlobUploadUnknown:   http.StatusNotFound,
	ErrDigestInvalid:       http.StatusBadRequest,
	ErrManifestBlobUnknown: http.StatusBadRequest,
	ErrManifestInvalid:     http.StatusBadRequest,
	ErrManifestUnknown:     http.StatusNotFound,
	ErrNameInvalid:         http.StatusBadRequest,
	ErrNameUnknown:         http.StatusNotFound,
	ErrPaginationInvalid:   http.StatusBadRequest,
	ErrRangeInvalid:        http.StatusRequestedRangeNotSatisfiable,
	ErrSizeInvalid:         http.StatusBadRequest,
	ErrTagInvalid:          http.StatusBadRequest,
	ErrUnauthorized:        http.StatusUnauthorized,
	ErrDenied:              http.StatusForbidden,
	ErrUnsupported:         http.StatusMethodNotAllowed,
	ErrUnknown:             http.StatusInternalServerError,
}

// With is a convenience function for constructing type RegistryV2Error.
func (c RegistryV2ErrorCode) With(msg string, args ...any) *RegistryV2Error {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return &RegistryV2Error{
		Code:    c,
		Message: msg,
		Status:  apiErrorStatusCodes[c],
	}
}

// RegistryV2Error is the error type expected by clients of the Registry v2
// API.
type RegistryV2Error struct {
	Code RegistryV2ErrorCode
	// Message is the human-readable message. When empty, the standard message
	// for this error code is rendered instead.
	Message string
	// Detail appears in the JSON response if non-nil.
	Detail any
	// Status is the HTTP status code of the response.
	Status int
	// Headers are additional headers to set on the response, e.g.
	// WWW-Authenticate on 401 responses.
	Headers http.Header
}

// AsRegistryV2Error casts `err` into the RegistryV2Error type if possible, and
// otherwise wraps it in an ErrUnknown error.
func AsRegistryV2Error(err error) *RegistryV2Error {
	var rerr *RegistryV2Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return ErrUnknown.With(err.Error())
}

// WithDetail adds detail information to this error.
func (e *RegistryV2Error) WithDetail(detail any) *RegistryV2Error {
	e.Detail = detail
	return e
}

// WithStatus changes the HTTP status code of this error.
func (e *RegistryV2Error) WithStatus(status int) *RegistryV2Error {
	e.Status = status
	return e
}

// WithHeader adds a header to the eventual HTTP response for this error.
func (e *RegistryV2Error) WithHeader(key string, values ...string) *RegistryV2Error {
	if e.Headers == nil {
		e.Headers = make(http.Header)
	}
	e.Headers[http.CanonicalHeaderKey(key)] = values
	return e
}

// WriteAsRegistryV2ResponseTo renders this error in the format used by the
// Registry v2 API.
func (e *RegistryV2Error) WriteAsRegistryV2ResponseTo(w http.ResponseWriter, r *http.Request) {
	e.logLine(r)
	buf, _ := json.Marshal(struct {
		Errors []*RegistryV2Error `json:"errors"`
	}{
		Errors: []*RegistryV2Error{e},
	})
	for key, values := range e.Headers {
		w.Header()[key] = values
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if r.Method != http.MethodHead {
		w.Write(append(buf, '\n')) //nolint:errcheck
	}
}

// Validation failures and lookup misses are business as usual and stay out of
// the logs unless debug logging is on. Server-side failures always get logged.
func (e *RegistryV2Error) logLine(r *http.Request) {
	switch {
	case e.Status >= 500:
		logg.Error("during %s %s: %s", r.Method, r.URL.Path, e.Error())
	case e.Code == ErrUnauthorized || e.Code == ErrDenied:
		logg.Info("during %s %s: %s", r.Method, r.URL.Path, e.Error())
	default:
		logg.Debug("during %s %s: %s", r.Method, r.URL.Path, e.Error())
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (e *RegistryV2Error) MarshalJSON() ([]byte, error) {
	msg := e.Message
	if msg == "" {
		msg = apiErrorMessages[e.Code]
	}
	data := struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  any    `json:"detail,omitempty"`
	}{
		Code:    string(e.Code),
		Message: msg,
		Detail:  e.Detail,
	}
	return json.Marshal(data)
}

// Error implements the builtin/error interface.
func (e *RegistryV2Error) Error() string {
	text := apiErrorMessages[e.Code]
	if e.Message != "" {
		text += ": " + e.Message
	}
	return text
}
