// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	gorp "github.com/go-gorp/gorp/v3"
	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/logg"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func uploadLockKey(repo models.Repository, uploadID string) string {
	return fmt.Sprintf("%d/%s", repo.ID, uploadID)
}

// CreateUpload starts a new upload session in the given repository. The
// session's expiry deadline is fixed at this point; appending more chunks
// later does not extend it.
func (p *Processor) CreateUpload(ctx context.Context, repo models.Repository) (*models.Upload, error) {
	now := p.timeNow()
	upload := &models.Upload{
		RepositoryID: repo.ID,
		UUID:         p.generateUploadID(),
		SizeBytes:    0,
		NumChunks:    0,
		StartedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(p.cfg.UploadLifetime),
	}

	err := p.cs.CreateScratch(ctx, upload.UUID)
	if err != nil {
		return nil, err
	}
	err = p.db.Insert(upload)
	if err != nil {
		cleanupErr := p.cs.DeleteScratch(ctx, upload.UUID)
		if cleanupErr != nil {
			logg.Error("could not clean up scratch area for upload %s: %s", upload.UUID, cleanupErr.Error())
		}
		return nil, err
	}
	return upload, nil
}

// FindOpenUpload looks up an upload session. Sessions that have passed their
// expiry deadline are reported as unknown even before the janitor gets around
// to sweeping them.
func (p *Processor) FindOpenUpload(repo models.Repository, uploadID string) (*models.Upload, error) {
	return p.findOpenUpload(p.db, repo, uploadID)
}

func (p *Processor) findOpenUpload(dbi gorp.SqlExecutor, repo models.Repository, uploadID string) (*models.Upload, error) {
	upload, err := stevedore.FindUploadByRepository(dbi, uploadID, repo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stevedore.ErrBlobUploadUnknown.With("").WithDetail(uploadID)
	}
	if err != nil {
		return nil, err
	}
	if upload.ExpiresAt.Before(p.timeNow()) {
		return nil, stevedore.ErrBlobUploadUnknown.With("upload session has expired").WithDetail(uploadID)
	}
	return upload, nil
}

// AppendToUpload appends a chunk of bytes to an upload session.
//
// If requestedOffset is given (i.e. the client sent a Content-Range header),
// it must match the current session size exactly; the session contents form a
// single contiguous byte string at all times. If chunkLengthBytes is given,
// the chunk reader must yield exactly that many bytes.
func (p *Processor) AppendToUpload(ctx context.Context, repo models.Repository, uploadID string, requestedOffset, chunkLengthBytes Option[uint64], chunk io.Reader) (*models.Upload, error) {
	unlock := p.uploadLocks.Lock(uploadLockKey(repo, uploadID))
	defer unlock()

	upload, err := p.findOpenUpload(p.db, repo, uploadID)
	if err != nil {
		return nil, err
	}
	err = p.appendToUploadLocked(ctx, upload, requestedOffset, chunkLengthBytes, chunk)
	if err != nil {
		return nil, err
	}
	return upload, nil
}

// Returned through the chunk reader when an append would push the session past
// the blob size limit.
var errChunkExceedsSizeLimit = errors.New("chunk exceeds blob size limit")

// sizeLimitGuard fails the read once more than `remaining` bytes have been
// consumed. Failing inside the read (instead of checking the scratch size
// afterwards) lets AppendToScratch discard the partial chunk through its
// regular rollback path, so the session stays resumable at its old offset.
type sizeLimitGuard struct {
	reader    io.Reader
	remaining uint64
}

// Read implements the io.Reader interface.
func (g *sizeLimitGuard) Read(buf []byte) (int, error) {
	n, err := g.reader.Read(buf)
	if stevedore.AtLeastZero(int64(n)) > g.remaining {
		return 0, errChunkExceedsSizeLimit
	}
	g.remaining -= uint64(n)
	return n, err
}

// The core of AppendToUpload(), also used for the optional trailing chunk
// during FinalizeUpload(). The caller must hold the session lock.
func (p *Processor) appendToUploadLocked(ctx context.Context, upload *models.Upload, requestedOffset, chunkLengthBytes Option[uint64], chunk io.Reader) error {
	if offset, ok := requestedOffset.Unpack(); ok && offset != upload.SizeBytes {
		return stevedore.ErrRangeInvalid.With(
			"upload resumes at offset %d, but Content-Range header indicates offset %d",
			upload.SizeBytes, offset)
	}

	remainingBytes := p.cfg.MaxBlobSizeBytes - upload.SizeBytes
	if declared, ok := chunkLengthBytes.Unpack(); ok && declared > remainingBytes {
		return stevedore.ErrSizeInvalid.With("blob exceeds size limit of %d bytes", p.cfg.MaxBlobSizeBytes)
	}
	// when the chunk length is not declared upfront (e.g. chunked transfer
	// encoding), the guard rejects the chunk as soon as the limit is crossed
	guardedChunk := &sizeLimitGuard{reader: chunk, remaining: remainingBytes}

	newSizeBytes, err := p.cs.AppendToScratch(ctx, upload.UUID, upload.SizeBytes, chunkLengthBytes, guardedChunk)
	if err != nil {
		// the content store has rolled the scratch area back to the previous
		// offset; the session stays open for a resume
		if errors.Is(err, errChunkExceedsSizeLimit) {
			return stevedore.ErrSizeInvalid.With("blob exceeds size limit of %d bytes", p.cfg.MaxBlobSizeBytes)
		}
		return err
	}

	upload.SizeBytes = newSizeBytes
	upload.NumChunks++
	upload.UpdatedAt = p.timeNow()
	_, err = p.db.Update(upload)
	return err
}

// FinalizeUpload turns an upload session into a blob. If trailingChunk is
// non-nil, its contents are appended before the digest check (this implements
// the monolithic PUT-with-body upload flow).
//
// On digest mismatch, ErrDigestInvalid is returned and the session stays open
// with its contents untouched, so that the client can diagnose the problem and
// either retry the finalize or cancel explicitly.
func (p *Processor) FinalizeUpload(ctx context.Context, repo models.Repository, uploadID string, expectedDigest digest.Digest, trailingChunk io.Reader, trailingLengthBytes Option[uint64]) (*models.Blob, error) {
	unlock := p.uploadLocks.Lock(uploadLockKey(repo, uploadID))
	defer unlock()

	upload, err := p.findOpenUpload(p.db, repo, uploadID)
	if err != nil {
		return nil, err
	}
	if trailingChunk != nil {
		err = p.appendToUploadLocked(ctx, upload, None[uint64](), trailingLengthBytes, trailingChunk)
		if err != nil {
			return nil, err
		}
	}

	// the scratch contents become permanent before the DB knows about the
	// blob; the reverse order could yield a blob record whose bytes do not
	// exist yet
	sizeBytes, err := p.cs.PromoteScratch(ctx, upload.UUID, expectedDigest)
	if err != nil {
		var dmErr stevedore.DigestMismatchError
		if errors.As(err, &dmErr) {
			return nil, stevedore.ErrDigestInvalid.With(dmErr.Error())
		}
		return nil, err
	}

	var blob *models.Blob
	err = p.insideTransaction(func(tx *gorp.Transaction) error {
		var err error
		blob, err = stevedore.FindBlobByDigest(tx, expectedDigest)
		if err != nil {
			return err
		}
		if blob == nil {
			blob = &models.Blob{
				Digest:    expectedDigest,
				SizeBytes: sizeBytes,
				MediaType: "",
				PushedAt:  p.timeNow(),
			}
			err = tx.Insert(blob)
			if err != nil {
				return err
			}
		} else if blob.CanBeDeletedAt != nil {
			// the blob was scheduled for deletion, but this push revives it
			blob.CanBeDeletedAt = nil
			_, err = tx.Update(blob)
			if err != nil {
				return err
			}
		}

		err = stevedore.MountBlobIntoRepo(tx, *blob, repo)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`DELETE FROM uploads WHERE repo_id = $1 AND uuid = $2`,
			upload.RepositoryID, upload.UUID)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.emitEvent(stevedore.EventBlobPushed, repo.Name, func(event *stevedore.Event) {
		event.Digest = blob.Digest.String()
		event.SizeBytes = blob.SizeBytes
	})
	return blob, nil
}

// CancelUpload deletes an upload session together with its scratch area.
func (p *Processor) CancelUpload(ctx context.Context, repo models.Repository, uploadID string) error {
	unlock := p.uploadLocks.Lock(uploadLockKey(repo, uploadID))
	defer unlock()

	upload, err := p.findOpenUpload(p.db, repo, uploadID)
	if err != nil {
		return err
	}
	err = p.cs.DeleteScratch(ctx, upload.UUID)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(
		`DELETE FROM uploads WHERE repo_id = $1 AND uuid = $2`,
		upload.RepositoryID, upload.UUID)
	return err
}
