// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package trivial

import (
	"net/http"
	"slices"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func init() {
	stevedore.AccessCheckerRegistry.Add(func() stevedore.AccessChecker { return &AccessChecker{} })
}

// subject is the stevedore.Subject produced by AccessChecker.
type subject struct {
	userName string
}

func (s subject) Name() string      { return s.userName }
func (s subject) IsAnonymous() bool { return s.userName == "" }

// AccessChecker (driver ID "trivial") is a stevedore.AccessChecker that allows
// everything to everyone. It is intended for single-user deployments behind a
// separate authenticating proxy, and for development setups.
//
// Repositories listed in DeniedRepoNames are rejected for all subjects and
// actions. Unit tests use this to exercise the 401/403 responses.
type AccessChecker struct {
	DeniedRepoNames []string `json:"deny_repos"`
}

// PluginTypeID implements the stevedore.AccessChecker interface.
func (a *AccessChecker) PluginTypeID() string { return "trivial" }

// Init implements the stevedore.AccessChecker interface.
func (a *AccessChecker) Init() error { return nil }

// AuthenticateRequest implements the stevedore.AccessChecker interface.
//
// Basic auth credentials are accepted without verification; the user name only
// shows up in log messages. Requests without credentials are anonymous.
func (a *AccessChecker) AuthenticateRequest(r *http.Request) (stevedore.Subject, *stevedore.RegistryV2Error) {
	userName, _, ok := r.BasicAuth()
	if !ok {
		return subject{}, nil
	}
	return subject{userName: userName}, nil
}

// Check implements the stevedore.AccessChecker interface.
func (a *AccessChecker) Check(s stevedore.Subject, repoName string, action stevedore.Action) bool {
	return !slices.Contains(a.DeniedRepoNames, repoName)
}

// Challenge implements the stevedore.AccessChecker interface.
func (a *AccessChecker) Challenge(r *http.Request) string {
	return `Basic realm="stevedore"`
}
