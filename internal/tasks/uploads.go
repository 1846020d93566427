// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"context"
	"fmt"

	gorp "github.com/go-gorp/gorp/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/models"
)

// query that finds the next expired upload session to be cleaned up
var expiredUploadSearchQuery = sqlext.SimplifyWhitespace(`
	SELECT * FROM uploads WHERE expires_at < $1
	ORDER BY expires_at ASC -- oldest sessions first
	FOR UPDATE SKIP LOCKED  -- block concurrent cleanup of the same session
	LIMIT 1                 -- one at a time
`)

// ExpiredUploadCleanupJob deletes upload sessions that have passed their
// expiry deadline, including their scratch areas in the content store. The API
// already rejects requests on expired sessions, so this only reclaims space.
func (j *Janitor) ExpiredUploadCleanupJob(registerer prometheus.Registerer) jobloop.Job {
	return (&jobloop.TxGuardedJob[*gorp.Transaction, models.Upload]{
		Metadata: jobloop.JobMetadata{
			ReadableName: "expired upload cleanup",
			CounterOpts: prometheus.CounterOpts{
				Name: "stevedore_expired_upload_cleanups",
				Help: "Counter for cleanups of expired upload sessions.",
			},
		},
		BeginTx: j.db.Begin,
		DiscoverRow: func(_ context.Context, tx *gorp.Transaction, _ prometheus.Labels) (upload models.Upload, err error) {
			err = tx.SelectOne(&upload, expiredUploadSearchQuery, j.timeNow())
			return upload, err
		},
		ProcessRow: j.processExpiredUpload,
	}).Setup(registerer)
}

func (j *Janitor) processExpiredUpload(ctx context.Context, tx *gorp.Transaction, upload models.Upload, _ prometheus.Labels) error {
	// scratch deletion is idempotent, so a failure after this point (which
	// leaves the DB row in place for a retry) is safe
	err := j.cs.DeleteScratch(ctx, upload.UUID)
	if err != nil {
		return fmt.Errorf("cannot delete scratch area of expired upload %s: %w", upload.UUID, err)
	}

	_, err = tx.Delete(&upload)
	if err != nil {
		return err
	}
	return tx.Commit()
}
