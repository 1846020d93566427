// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"context"
	"database/sql"
	"errors"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

var tagUpsertQuery = sqlext.SimplifyWhitespace(`
	INSERT INTO tags (repo_id, name, digest, pushed_at) VALUES ($1, $2, $3, $4)
	ON CONFLICT (repo_id, name) DO UPDATE SET digest = EXCLUDED.digest, pushed_at = EXCLUDED.pushed_at
`)

// PutManifest validates and stores a manifest. If the reference is a tag, the
// tag is created or moved in the same database transaction.
//
// The contents are stored byte-for-byte as submitted: the manifest digest is
// computed over the raw representation, so any reserialization would break it.
func (p *Processor) PutManifest(ctx context.Context, repo models.Repository, reference models.ManifestReference, mediaType string, contents []byte) (*models.Manifest, error) {
	if mediaType == "" {
		return nil, stevedore.ErrManifestInvalid.With("manifest does not declare a media type")
	}

	manifestDigest := digest.Canonical.FromBytes(contents)
	if reference.IsDigest() && reference.Digest != manifestDigest {
		return nil, stevedore.ErrDigestInvalid.With("actual manifest digest is %s", manifestDigest)
	}
	if reference.IsTag() && !models.IsTagName(reference.Tag) {
		return nil, stevedore.ErrTagInvalid.With("").WithDetail(reference.Tag)
	}

	// manifests with an unknown media type are stored verbatim without
	// inspection; `parsed` stays empty for those, so the referential checks
	// below turn into no-ops
	var parsed stevedore.ParsedManifest
	if stevedore.IsManifestMediaType(mediaType) {
		var err error
		parsed, err = stevedore.ParseManifest(mediaType, contents)
		if err != nil {
			return nil, stevedore.ErrManifestInvalid.With(err.Error())
		}
	}

	manifest := &models.Manifest{
		RepositoryID: repo.ID,
		Digest:       manifestDigest,
		MediaType:    mediaType,
		SizeBytes:    uint64(len(contents)),
		PushedAt:     p.timeNow(),
	}
	err := p.insideTransaction(func(tx *gorp.Transaction) error {
		// referential checks run inside the same transaction as the insert, so
		// a concurrent delete of a referenced object cannot slip in between
		for _, desc := range parsed.BlobReferences {
			_, err := stevedore.FindBlobByRepository(tx, desc.Digest, repo)
			if errors.Is(err, sql.ErrNoRows) {
				return stevedore.ErrManifestBlobUnknown.With("").WithDetail(desc.Digest.String())
			}
			if err != nil {
				return err
			}
		}
		for _, desc := range parsed.ManifestReferences {
			_, err := stevedore.FindManifest(tx, repo, desc.Digest)
			if errors.Is(err, sql.ErrNoRows) {
				return stevedore.ErrManifestBlobUnknown.With("").WithDetail(desc.Digest.String())
			}
			if err != nil {
				return err
			}
		}

		_, err := stevedore.FindManifest(tx, repo, manifestDigest)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			err = tx.Insert(manifest)
			if err != nil {
				return err
			}
			err = tx.Insert(&models.ManifestContent{
				RepositoryID: repo.ID,
				Digest:       manifestDigest.String(),
				Content:      contents,
			})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// idempotent re-push of an existing (repo, digest) pair; only the
			// tag below may change
		}

		if reference.IsTag() {
			_, err = tx.Exec(tagUpsertQuery, repo.ID, reference.Tag, manifestDigest.String(), p.timeNow())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.emitEvent(stevedore.EventManifestPushed, repo.Name, func(event *stevedore.Event) {
		event.Digest = manifestDigest.String()
		event.SizeBytes = manifest.SizeBytes
	})
	if reference.IsTag() {
		p.emitEvent(stevedore.EventTagSet, repo.Name, func(event *stevedore.Event) {
			event.Digest = manifestDigest.String()
			event.Tag = reference.Tag
		})
	}
	return manifest, nil
}

// GetManifest retrieves a manifest and its raw contents. The reference may be
// either a tag name or a digest.
func (p *Processor) GetManifest(repo models.Repository, reference models.ManifestReference) (*models.Manifest, []byte, error) {
	manifestDigest := reference.Digest
	if reference.IsTag() {
		tag, err := stevedore.FindTag(p.db, repo, reference.Tag)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, stevedore.ErrManifestUnknown.With("").WithDetail(reference.Tag)
		}
		if err != nil {
			return nil, nil, err
		}
		manifestDigest = tag.Digest
	}

	manifest, err := stevedore.FindManifest(p.db, repo, manifestDigest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, stevedore.ErrManifestUnknown.With("").WithDetail(reference.String())
	}
	if err != nil {
		return nil, nil, err
	}

	var content models.ManifestContent
	err = p.db.SelectOne(&content,
		`SELECT * FROM manifest_contents WHERE repo_id = $1 AND digest = $2`,
		repo.ID, manifestDigest.String())
	if err != nil {
		return nil, nil, err
	}
	return manifest, content.Content, nil
}

// DeleteManifest deletes a manifest by digest. All tags pointing at this
// manifest disappear with it.
func (p *Processor) DeleteManifest(ctx context.Context, repo models.Repository, manifestDigest digest.Digest) error {
	err := p.insideTransaction(func(tx *gorp.Transaction) error {
		// tags and manifest contents are cleaned up by ON DELETE CASCADE
		result, err := tx.Exec(
			`DELETE FROM manifests WHERE repo_id = $1 AND digest = $2`,
			repo.ID, manifestDigest.String())
		if err != nil {
			return err
		}
		rowsDeleted, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsDeleted == 0 {
			return stevedore.ErrManifestUnknown.With("").WithDetail(manifestDigest.String())
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.emitEvent(stevedore.EventManifestDeleted, repo.Name, func(event *stevedore.Event) {
		event.Digest = manifestDigest.String()
	})
	return nil
}

// DeleteTag deletes a tag. The manifest that the tag points at stays in place.
func (p *Processor) DeleteTag(ctx context.Context, repo models.Repository, tagName string) error {
	result, err := p.db.Exec(
		`DELETE FROM tags WHERE repo_id = $1 AND name = $2`,
		repo.ID, tagName)
	if err != nil {
		return err
	}
	rowsDeleted, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsDeleted == 0 {
		return stevedore.ErrManifestUnknown.With("no such tag").WithDetail(tagName)
	}

	p.emitEvent(stevedore.EventTagDeleted, repo.Name, func(event *stevedore.Event) {
		event.Tag = tagName
	})
	return nil
}
