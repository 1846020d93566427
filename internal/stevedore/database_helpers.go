// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"database/sql"
	"errors"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/models"
)

// FindOrCreateRepository works similar to db.SelectOne(), but autovivifies a
// Repository record when none exists yet. Concurrent creates of the same name
// are resolved by the unique constraint on the name column: the loser of the
// race just selects the row that the winner inserted.
func FindOrCreateRepository(db gorp.SqlExecutor, name string) (*models.Repository, error) {
	_, err := db.Exec(
		`INSERT INTO repos (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return nil, err
	}
	return FindRepository(db, name)
}

// FindRepository is a convenience wrapper around db.SelectOne(). If the
// repository in question does not exist, sql.ErrNoRows is returned.
func FindRepository(db gorp.SqlExecutor, name string) (*models.Repository, error) {
	var repo models.Repository
	err := db.SelectOne(&repo,
		"SELECT * FROM repos WHERE name = $1", name)
	return &repo, err
}

var blobGetQueryByRepoID = sqlext.SimplifyWhitespace(`
	SELECT b.*
	  FROM blobs b
	  JOIN blob_mounts bm ON b.id = bm.blob_id
	 WHERE b.digest = $1 AND bm.repo_id = $2
`)

// FindBlobByRepository is a convenience wrapper around db.SelectOne(). Only
// blobs that are mounted into the given repository are considered. If the blob
// in question does not exist, sql.ErrNoRows is returned.
func FindBlobByRepository(db gorp.SqlExecutor, blobDigest digest.Digest, repo models.Repository) (*models.Blob, error) {
	var blob models.Blob
	err := db.SelectOne(&blob, blobGetQueryByRepoID, blobDigest.String(), repo.ID)
	return &blob, err
}

// FindBlobByDigest works similar to db.SelectOne(), but returns nil instead of
// sql.ErrNoRows if no blob exists with this digest. Blobs are deduplicated
// across repositories, so this lookup is global.
func FindBlobByDigest(db gorp.SqlExecutor, blobDigest digest.Digest) (*models.Blob, error) {
	var blob models.Blob
	err := db.SelectOne(&blob,
		"SELECT * FROM blobs WHERE digest = $1", blobDigest.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &blob, err
}

// MountBlobIntoRepo creates an entry in the blob_mounts database table.
func MountBlobIntoRepo(db gorp.SqlExecutor, blob models.Blob, repo models.Repository) error {
	_, err := db.Exec(
		`INSERT INTO blob_mounts (blob_id, repo_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		blob.ID, repo.ID,
	)
	return err
}

// FindUploadByRepository is a convenience wrapper around db.SelectOne(). If
// the upload in question does not exist, sql.ErrNoRows is returned.
func FindUploadByRepository(db gorp.SqlExecutor, uuid string, repo models.Repository) (*models.Upload, error) {
	var upload models.Upload
	err := db.SelectOne(&upload,
		"SELECT * FROM uploads WHERE repo_id = $1 AND uuid = $2", repo.ID, uuid)
	return &upload, err
}

// FindManifest is a convenience wrapper around db.SelectOne(). If the
// manifest in question does not exist, sql.ErrNoRows is returned.
func FindManifest(db gorp.SqlExecutor, repo models.Repository, manifestDigest digest.Digest) (*models.Manifest, error) {
	var manifest models.Manifest
	err := db.SelectOne(&manifest,
		"SELECT * FROM manifests WHERE repo_id = $1 AND digest = $2", repo.ID, manifestDigest)
	return &manifest, err
}

// FindTag is a convenience wrapper around db.SelectOne(). If the tag in
// question does not exist, sql.ErrNoRows is returned.
func FindTag(db gorp.SqlExecutor, repo models.Repository, tagName string) (*models.Tag, error) {
	var tag models.Tag
	err := db.SelectOne(&tag,
		"SELECT * FROM tags WHERE repo_id = $1 AND name = $2", repo.ID, tagName)
	return &tag, err
}

// AtLeastZero safely converts int or int64 values (which might come from
// DB.SelectInt() or from IO reads/writes) to uint64 by clamping negative values to 0.
func AtLeastZero[I interface{ int | int64 }](x I) uint64 {
	if x < 0 {
		return 0
	}
	return uint64(x)
}
