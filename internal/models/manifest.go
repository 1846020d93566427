// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Manifest contains a record from the `manifests` table.
type Manifest struct {
	RepositoryID int64         `db:"repo_id"`
	Digest       digest.Digest `db:"digest"`
	MediaType    string        `db:"media_type"`
	SizeBytes    uint64        `db:"size_bytes"`
	PushedAt     time.Time     `db:"pushed_at"`
}

// Tag contains a record from the `tags` table.
type Tag struct {
	RepositoryID int64         `db:"repo_id"`
	Name         string        `db:"name"`
	Digest       digest.Digest `db:"digest"`
	PushedAt     time.Time     `db:"pushed_at"`
}

// ManifestContent contains a record from the `manifest_contents` table.
//
// Manifests are small (the API enforces a size limit well below 16 MiB), so we
// keep their raw bytes in the database instead of the content store. Clients
// expect byte-for-byte identical manifests on GET because the digest is
// computed over the raw representation.
type ManifestContent struct {
	RepositoryID int64  `db:"repo_id"`
	Digest       string `db:"digest"`
	Content      []byte `db:"content"`
}
