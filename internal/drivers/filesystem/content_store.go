// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/osext"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func init() {
	stevedore.ContentStoreRegistry.Add(func() stevedore.ContentStore { return &ContentStore{} })
}

// ContentStore (driver ID "filesystem") is a stevedore.ContentStore that
// stores its contents in the local filesystem.
//
// Committed blobs live at `blobs/<algo>/<first-two-hex>/<hex>` below the root
// path. The two-character prefix directory bounds directory fan-out. Scratch
// areas live at `uploads/<uuid>`, on the same filesystem, so that a promote
// can move the bytes into place with a single rename.
type ContentStore struct {
	Path string `json:"path"`
}

// PluginTypeID implements the stevedore.ContentStore interface.
func (d *ContentStore) PluginTypeID() string { return "filesystem" }

// Init implements the stevedore.ContentStore interface.
func (d *ContentStore) Init() (err error) {
	if d.Path == "" {
		d.Path = osext.MustGetenv("STEVEDORE_FILESYSTEM_PATH")
	}
	d.Path, err = filepath.Abs(d.Path)
	return err
}

func (d *ContentStore) blobPath(blobDigest digest.Digest) string {
	hex := blobDigest.Encoded()
	return filepath.Join(d.Path, "blobs", string(blobDigest.Algorithm()), hex[:2], hex)
}

func (d *ContentStore) scratchPath(uploadID string) string {
	return filepath.Join(d.Path, "uploads", uploadID)
}

// limitedReadCloser wraps a section of an open file. Closing it closes the
// underlying file.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}

// ReadBlob implements the stevedore.ContentStore interface.
func (d *ContentStore) ReadBlob(ctx context.Context, blobDigest digest.Digest, byteRange Option[stevedore.ByteRange]) (io.ReadCloser, uint64, error) {
	f, err := os.Open(d.blobPath(blobDigest))
	if err != nil {
		return nil, 0, err
	}

	br, ok := byteRange.Unpack()
	if !ok {
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, stevedore.AtLeastZero(stat.Size()), nil
	}

	_, err = f.Seek(int64(br.Start), io.SeekStart)
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return limitedReadCloser{
		Reader: io.LimitReader(f, int64(br.Length())),
		Closer: f,
	}, br.Length(), nil
}

// BlobExists implements the stevedore.ContentStore interface.
func (d *ContentStore) BlobExists(ctx context.Context, blobDigest digest.Digest) (bool, error) {
	_, err := os.Stat(d.blobPath(blobDigest))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// DeleteBlob implements the stevedore.ContentStore interface.
func (d *ContentStore) DeleteBlob(ctx context.Context, blobDigest digest.Digest) error {
	return os.Remove(d.blobPath(blobDigest))
}

// CreateScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) CreateScratch(ctx context.Context, uploadID string) error {
	path := d.scratchPath(uploadID)
	err := os.MkdirAll(filepath.Dir(path), 0777) // subject to umask
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666) // subject to umask
	if err != nil {
		return err
	}
	return f.Close()
}

// AppendToScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) AppendToScratch(ctx context.Context, uploadID string, offset uint64, chunkLengthBytes Option[uint64], chunk io.Reader) (uint64, error) {
	path := d.scratchPath(uploadID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0666) // subject to umask
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	currentSize := stevedore.AtLeastZero(stat.Size())
	if currentSize != offset {
		return 0, fmt.Errorf("scratch area for upload %s has %d bytes, but chunk starts at offset %d",
			uploadID, currentSize, offset)
	}

	written, err := io.Copy(f, chunk)
	if err == nil {
		if expected, ok := chunkLengthBytes.Unpack(); ok && stevedore.AtLeastZero(written) != expected {
			err = fmt.Errorf("expected chunk with %d bytes, but got %d bytes", expected, written)
		}
	}
	if err != nil {
		// do not keep half a chunk: roll the scratch area back to the last
		// known-good offset so that the client can resume from there
		truncateErr := f.Truncate(int64(offset))
		if truncateErr != nil {
			return 0, fmt.Errorf("%w (and could not roll back partial chunk: %s)", err, truncateErr.Error())
		}
		return 0, err
	}
	return offset + stevedore.AtLeastZero(written), nil
}

// PromoteScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) PromoteScratch(ctx context.Context, uploadID string, expectedDigest digest.Digest) (uint64, error) {
	path := d.scratchPath(uploadID)
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	// no full-blob buffering: the digest is computed by streaming the scratch
	// file once
	digester := expectedDigest.Algorithm().Digester()
	sizeBytes, err := io.Copy(digester.Hash(), f)
	f.Close()
	if err != nil {
		return 0, err
	}
	actualDigest := digester.Digest()
	if actualDigest != expectedDigest {
		// leave the scratch area alone; the caller decides whether to retry or cancel
		return 0, stevedore.DigestMismatchError{Expected: expectedDigest, Actual: actualDigest}
	}

	targetPath := d.blobPath(expectedDigest)
	_, err = os.Stat(targetPath)
	if err == nil {
		// blob already exists (e.g. same contents uploaded concurrently); the
		// canonical copy wins and the scratch area is redundant
		return stevedore.AtLeastZero(sizeBytes), os.Remove(path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}

	err = os.MkdirAll(filepath.Dir(targetPath), 0777) // subject to umask
	if err != nil {
		return 0, err
	}
	return stevedore.AtLeastZero(sizeBytes), os.Rename(path, targetPath)
}

// DeleteScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) DeleteScratch(ctx context.Context, uploadID string) error {
	err := os.Remove(d.scratchPath(uploadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
