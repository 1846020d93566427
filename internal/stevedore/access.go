// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"net/http"

	"github.com/sapcc/go-bits/pluggable"
)

// Action enumerates the permissions that an AccessChecker can grant on a
// repository.
type Action string

const (
	// ReadAction allows pulling blobs and manifests and listing tags.
	ReadAction Action = "read"
	// WriteAction allows pushing blobs and manifests and setting tags.
	WriteAction Action = "write"
	// DeleteAction allows deleting blobs, manifests and tags.
	DeleteAction Action = "delete"
)

// Subject is an API client as identified by the AccessChecker.
type Subject interface {
	// Name returns a string that identifies this client in log messages.
	// Anonymous clients return the empty string.
	Name() string
	// IsAnonymous tells whether the client supplied any credentials. The
	// distinction decides between 401 and 403 when access is denied.
	IsAnonymous() bool
}

// AccessChecker is the abstract interface for the authentication and
// authorization backend. The registry core does not manage users or
// permissions itself; it only asks this interface.
type AccessChecker interface {
	pluggable.Plugin

	// Init is called before any other method to give the driver a chance to
	// validate its configuration.
	Init() error

	// AuthenticateRequest identifies the client making the given request. A
	// request without credentials yields an anonymous Subject, not an error.
	// An error is only returned for malformed or rejected credentials.
	AuthenticateRequest(r *http.Request) (Subject, *RegistryV2Error)
	// Check decides whether the subject may perform the given action on the
	// given repository.
	Check(subject Subject, repoName string, action Action) bool
	// Challenge returns the WWW-Authenticate header value that is sent along
	// with 401 responses.
	Challenge(r *http.Request) string
}

// AccessCheckerRegistry is a pluggable.Registry for AccessChecker implementations.
var AccessCheckerRegistry pluggable.Registry[AccessChecker]

// NewAccessChecker creates a new AccessChecker using one of the plugins
// registered with AccessCheckerRegistry.
func NewAccessChecker(configJSON string) (AccessChecker, error) {
	return newDriver("access checker", AccessCheckerRegistry, configJSON,
		func(ac AccessChecker) error { return ac.Init() })
}
