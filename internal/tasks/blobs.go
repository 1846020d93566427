// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/models"
)

// query that finds the next unreferenced blob whose grace period has passed
var sweepableBlobSearchQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM blobs WHERE can_be_deleted_at < $1
	ORDER BY can_be_deleted_at ASC
	FOR UPDATE SKIP LOCKED -- block concurrent sweeps and concurrent re-pushes
	LIMIT 1                -- one at a time
`)

// BlobSweepJob deletes blobs that were marked for deletion when their last
// repository link was removed, once their grace period has passed. A re-push
// during the grace period clears the marker, so marked blobs reaching this job
// are truly unreferenced; the mount count check is only a safety net.
func (j *Janitor) BlobSweepJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.TxGuardedJob[*gorp.Transaction, models.Blob]{
		Metadata: jobloop.JobMetadata{
			ReadableName: "blob sweep",
			CounterOpts: prometheus.CounterOpts{
				Name: "stevedore_blob_sweeps",
				Help: "Counter for deletions of unreferenced blobs.",
			},
		},
		BeginTx: j.db.Begin,
		DiscoverRow: func(_ context.Context, tx *gorp.Transaction, _ prometheus.Labels) (blob models.Blob, err error) {
			err = tx.SelectOne(&blob, sweepableBlobSearchQuery, j.timeNow())
			return blob, err
		},
		ProcessRow: j.processSweepableBlob,
	}).Setup(registerer)
}

func (j *Janitor) processSweepableBlob(ctx context.Context, tx *gorp.Transaction, blob models.Blob, _ prometheus.Labels) error {
	mountCount, err := tx.SelectInt(
		`SELECT COUNT(*) FROM blob_mounts WHERE blob_id = $1`, blob.ID)
	if err != nil {
		return err
	}
	if mountCount > 0 {
		// the blob was relinked while waiting for its grace period to end
		blob.CanBeDeletedAt = nil
		_, err = tx.Update(&blob)
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	err = j.cs.DeleteBlob(ctx, blob.Digest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// the bytes are already gone (e.g. a previous sweep was interrupted
		// between content store and DB); proceed to delete the record
		logg.Info("no bytes in content store for blob %s", blob.Digest)
	case err != nil:
		// postpone this blob and let the sweep move on to other blobs instead
		// of retrying this one in a tight loop
		retryAt := j.timeNow().Add(j.addJitter(5 * time.Minute))
		blob.CanBeDeletedAt = &retryAt
		_, updateErr := tx.Update(&blob)
		if updateErr == nil {
			updateErr = tx.Commit()
		}
		if updateErr != nil {
			return fmt.Errorf("cannot delete blob %s from content store: %w (also could not postpone retry: %s)", blob.Digest, err, updateErr.Error())
		}
		return fmt.Errorf("cannot delete blob %s from content store: %w", blob.Digest, err)
	}

	_, err = tx.Delete(&blob)
	if err != nil {
		return err
	}
	return tx.Commit()
}
