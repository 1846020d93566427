// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"context"
	"fmt"
	"io"

	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/pluggable"
)

// ByteRange identifies a contiguous part of a blob for a partial read. Both
// bounds are inclusive, like in HTTP range headers. The caller is responsible
// for resolving open-ended ranges and validating bounds against the blob size
// before handing the range to the content store.
type ByteRange struct {
	Start uint64
	End   uint64
}

// Length returns how many bytes this range covers.
func (br ByteRange) Length() uint64 {
	return br.End - br.Start + 1
}

// DigestMismatchError is returned by ContentStore.PromoteScratch() when the
// uploaded bytes do not hash to the digest declared by the client.
type DigestMismatchError struct {
	Expected digest.Digest
	Actual   digest.Digest
}

// Error implements the builtin/error interface.
func (e DigestMismatchError) Error() string {
	return fmt.Sprintf("expected digest %s, but got %s", e.Expected, e.Actual)
}

// ContentStore is the abstract interface for the content-addressed blob
// backend. Committed blobs are keyed by their digest; bytes of in-progress
// uploads live in a separate scratch namespace keyed by the upload UUID.
//
// Blob contents are immutable once committed, so reads never require
// coordination with writers. Lookup failures are reported as errors matching
// fs.ErrNotExist.
type ContentStore interface {
	pluggable.Plugin

	// Init is called before any other method to give the driver a chance to
	// validate its configuration.
	Init() error

	// ReadBlob returns a stream of the blob's contents and the length of that
	// stream. If a byte range is given, only that part of the blob is
	// streamed and the returned length is the length of the range.
	ReadBlob(ctx context.Context, blobDigest digest.Digest, byteRange Option[ByteRange]) (io.ReadCloser, uint64, error)
	// BlobExists checks if a blob is present without opening it.
	BlobExists(ctx context.Context, blobDigest digest.Digest) (bool, error)
	// DeleteBlob removes a committed blob.
	DeleteBlob(ctx context.Context, blobDigest digest.Digest) error

	// CreateScratch allocates an empty scratch area for a new upload session.
	// This makes zero-byte uploads (create followed directly by finalize) work
	// the same as uploads with actual contents.
	CreateScratch(ctx context.Context, uploadID string) error
	// AppendToScratch writes a chunk at the end of the scratch area and
	// returns the new total size. `offset` must equal the current scratch
	// size; this guards against concurrent appends slipping past the
	// session lock. If chunkLengthBytes is given, the chunk reader must yield
	// exactly that many bytes.
	AppendToScratch(ctx context.Context, uploadID string, offset uint64, chunkLengthBytes Option[uint64], chunk io.Reader) (newSizeBytes uint64, err error)
	// PromoteScratch turns the scratch area into a committed blob. The
	// scratch contents are streamed through a digest verifier; on match, they
	// move to the blob's canonical location in one atomic step and the scratch
	// area is gone afterwards. On DigestMismatchError the scratch area remains
	// intact so that the client can retry the finalize or resume appending.
	//
	// If a blob with this digest already exists, the promote succeeds and the
	// scratch area is discarded. (Two concurrent uploads of the same contents
	// race on this; the loser must observe success.)
	PromoteScratch(ctx context.Context, uploadID string, expectedDigest digest.Digest) (sizeBytes uint64, err error)
	// DeleteScratch discards the scratch area of a cancelled or expired
	// upload session. Deleting an already-deleted scratch area is not an
	// error.
	DeleteScratch(ctx context.Context, uploadID string) error
}

// ContentStoreRegistry is a pluggable.Registry for ContentStore implementations.
var ContentStoreRegistry pluggable.Registry[ContentStore]

// NewContentStore creates a new ContentStore using one of the plugins
// registered with ContentStoreRegistry.
func NewContentStore(configJSON string) (ContentStore, error) {
	return newDriver("content store", ContentStoreRegistry, configJSON,
		func(cs ContentStore) error { return cs.Init() })
}
