// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// ErrorCode wraps stevedore.RegistryV2ErrorCode with an implementation of the
// assert.HTTPResponseBody interface.
type ErrorCode stevedore.RegistryV2ErrorCode

// AssertResponseBody implements the assert.HTTPResponseBody interface.
func (e ErrorCode) AssertResponseBody(t *testing.T, requestInfo string, responseBody []byte) bool {
	t.Helper()
	wrapped := ErrorCodeWithMessage{stevedore.RegistryV2ErrorCode(e), ""}
	return wrapped.AssertResponseBody(t, requestInfo, responseBody)
}

// ErrorCodeWithMessage extends ErrorCode with an expected message string.
type ErrorCodeWithMessage struct {
	Code    stevedore.RegistryV2ErrorCode
	Message string
}

// AssertResponseBody implements the assert.HTTPResponseBody interface.
func (e ErrorCodeWithMessage) AssertResponseBody(t *testing.T, requestInfo string, responseBody []byte) bool {
	t.Helper()
	var data struct {
		Errors []struct {
			Code    stevedore.RegistryV2ErrorCode `json:"code"`
			Message string                        `json:"message"`
		} `json:"errors"`
	}
	err := json.Unmarshal(responseBody, &data)
	if err != nil {
		t.Errorf("%s: cannot decode JSON: %s", requestInfo, err.Error())
		t.Logf("\tresponse body = %q", string(responseBody))
		return false
	}

	expectedStr := string(e.Code)
	if e.Message != "" {
		expectedStr = fmt.Sprintf("%s with message: %s", e.Code, e.Message)
	}

	matches := len(data.Errors) == 1 && data.Errors[0].Code == e.Code
	if matches {
		matches = e.Message == "" || data.Errors[0].Message == e.Message
	}
	if !matches {
		t.Errorf("%s: got unexpected error", requestInfo)
		t.Logf("\texpected = %q\n", expectedStr)
		t.Logf("\tactual = %q\n", string(responseBody))
	}
	return matches
}
