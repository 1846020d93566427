// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"context"
	"database/sql"
	"errors"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/opencontainers/go-digest"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Blobs may be shared between repositories, so a DELETE on the API only
// unlinks the blob from the repository in question. Once the last link is
// gone, the blob is marked for deletion and the janitor reclaims the actual
// bytes after this delay. The delay gives in-flight readers (which do not take
// any locks) time to drain.
const BlobReclaimDelay = 1 * time.Hour

// DeleteBlobFromRepo unlinks a blob from the given repository. The blob record
// and its bytes survive as long as other repositories still link to it;
// otherwise they are scheduled for reclamation by the janitor.
func (p *Processor) DeleteBlobFromRepo(ctx context.Context, repo models.Repository, blobDigest digest.Digest) error {
	err := p.insideTransaction(func(tx *gorp.Transaction) error {
		blob, err := stevedore.FindBlobByRepository(tx, blobDigest, repo)
		if errors.Is(err, sql.ErrNoRows) {
			return stevedore.ErrBlobUnknown.With("").WithDetail(blobDigest.String())
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(
			`DELETE FROM blob_mounts WHERE blob_id = $1 AND repo_id = $2`,
			blob.ID, repo.ID)
		if err != nil {
			return err
		}

		mountCount, err := tx.SelectInt(
			`SELECT COUNT(*) FROM blob_mounts WHERE blob_id = $1`, blob.ID)
		if err != nil {
			return err
		}
		if mountCount == 0 {
			_, err = tx.Exec(
				`UPDATE blobs SET can_be_deleted_at = $1 WHERE id = $2`,
				p.timeNow().Add(BlobReclaimDelay), blob.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.emitEvent(stevedore.EventBlobDeleted, repo.Name, func(event *stevedore.Event) {
		event.Digest = blobDigest.String()
	})
	return nil
}
