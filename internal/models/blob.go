// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Blob contains a record from the `blobs` table.
//
// Blobs are deduplicated across the entire registry: the `blobs` table has one
// row per digest, and the connection to repos is in the `blob_mounts` table.
// The content store addresses blob contents by digest, so there is no separate
// storage ID.
type Blob struct {
	ID             int64         `db:"id"`
	Digest         digest.Digest `db:"digest"`
	SizeBytes      uint64        `db:"size_bytes"`
	MediaType      string        `db:"media_type"`
	PushedAt       time.Time     `db:"pushed_at"`
	CanBeDeletedAt *time.Time    `db:"can_be_deleted_at"` // see tasks.BlobSweepJob
}

// SafeMediaType returns the MediaType field, but falls back to "application/octet-stream" if it is empty.
func (b Blob) SafeMediaType() string {
	if b.MediaType == "" {
		return "application/octet-stream"
	}
	return b.MediaType
}

// BlobMount contains a record from the `blob_mounts` table.
type BlobMount struct {
	BlobID       int64 `db:"blob_id"`
	RepositoryID int64 `db:"repo_id"`
}
