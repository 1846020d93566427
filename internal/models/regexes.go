// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"regexp"
)

var (
	// RepoPathComponentRx is the grammar for a single path component of a
	// repository name, as defined by the Registry v2 API.
	repoPathComponentRx = `[a-z0-9]+(?:[._-][a-z0-9]+)*`

	// RepoPathRx matches a full repository name (one or more path components
	// joined with slashes).
	RepoPathRx = regexp.MustCompile(`^` + repoPathComponentRx + `(?:/` + repoPathComponentRx + `)*$`)

	// TagNameRx matches a valid tag name.
	TagNameRx = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

// maximum length of a full repository name; longer names are rejected to keep
// Location URLs and DB indexes at a sane size
const maxRepoPathLength = 255

// IsRepoPath returns whether the given string is a well-formed repository
// name. This does not check whether the repository actually exists in the DB.
func IsRepoPath(input string) bool {
	if len(input) > maxRepoPathLength {
		return false
	}
	return RepoPathRx.MatchString(input)
}

// IsTagName returns whether the given string is a well-formed tag name.
func IsTagName(input string) bool {
	return TagNameRx.MatchString(input)
}
