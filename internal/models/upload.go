// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"
)

// Upload contains a record from the `uploads` table.
//
// While an upload session is open, its bytes live in a scratch area of the
// content store, keyed by the session UUID. The digest of the uploaded data is
// not tracked here; it is computed by the content store when the scratch area
// is promoted into a blob at the end of the session. This allows a client to
// retry a failed finalize (e.g. after supplying a wrong digest) without losing
// the uploaded bytes.
type Upload struct {
	RepositoryID int64     `db:"repo_id"`
	UUID         string    `db:"uuid"`
	SizeBytes    uint64    `db:"size_bytes"`
	NumChunks    uint32    `db:"num_chunks"`
	StartedAt    time.Time `db:"started_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}
