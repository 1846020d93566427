// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package inmemory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"

	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func init() {
	stevedore.ContentStoreRegistry.Add(func() stevedore.ContentStore { return NewContentStore() })
}

// ContentStore (driver ID "in-memory-for-testing") is a stevedore.ContentStore
// for use in test suites, where blobs and scratch areas are only held in RAM
// without any persistence.
type ContentStore struct {
	mutex     sync.Mutex
	blobs     map[digest.Digest][]byte
	scratches map[string][]byte
}

// NewContentStore creates a ContentStore instance for tests that want to poke
// at its internals directly instead of going through the registry.
func NewContentStore() *ContentStore {
	return &ContentStore{
		blobs:     make(map[digest.Digest][]byte),
		scratches: make(map[string][]byte),
	}
}

// PluginTypeID implements the stevedore.ContentStore interface.
func (d *ContentStore) PluginTypeID() string { return "in-memory-for-testing" }

// Init implements the stevedore.ContentStore interface.
func (d *ContentStore) Init() error { return nil }

// ReadBlob implements the stevedore.ContentStore interface.
func (d *ContentStore) ReadBlob(ctx context.Context, blobDigest digest.Digest, byteRange Option[stevedore.ByteRange]) (io.ReadCloser, uint64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	contents, exists := d.blobs[blobDigest]
	if !exists {
		return nil, 0, fmt.Errorf("no such blob: %s: %w", blobDigest, fs.ErrNotExist)
	}
	if br, ok := byteRange.Unpack(); ok {
		contents = contents[br.Start : br.End+1]
	}
	return io.NopCloser(bytes.NewReader(contents)), uint64(len(contents)), nil
}

// BlobExists implements the stevedore.ContentStore interface.
func (d *ContentStore) BlobExists(ctx context.Context, blobDigest digest.Digest) (bool, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, exists := d.blobs[blobDigest]
	return exists, nil
}

// DeleteBlob implements the stevedore.ContentStore interface.
func (d *ContentStore) DeleteBlob(ctx context.Context, blobDigest digest.Digest) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, exists := d.blobs[blobDigest]
	if !exists {
		return fmt.Errorf("no such blob: %s: %w", blobDigest, fs.ErrNotExist)
	}
	delete(d.blobs, blobDigest)
	return nil
}

// CreateScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) CreateScratch(ctx context.Context, uploadID string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	_, exists := d.scratches[uploadID]
	if exists {
		return fmt.Errorf("scratch area already exists for upload %s", uploadID)
	}
	d.scratches[uploadID] = nil
	return nil
}

// AppendToScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) AppendToScratch(ctx context.Context, uploadID string, offset uint64, chunkLengthBytes Option[uint64], chunk io.Reader) (uint64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	contents, exists := d.scratches[uploadID]
	if !exists {
		return 0, fmt.Errorf("no such scratch area: %s: %w", uploadID, fs.ErrNotExist)
	}
	if uint64(len(contents)) != offset {
		return 0, fmt.Errorf("scratch area for upload %s has %d bytes, but chunk starts at offset %d",
			uploadID, len(contents), offset)
	}
	chunkBytes, err := io.ReadAll(chunk)
	if err != nil {
		return 0, err
	}
	if expected, ok := chunkLengthBytes.Unpack(); ok && uint64(len(chunkBytes)) != expected {
		return 0, fmt.Errorf("expected chunk with %d bytes, but got %d bytes", expected, len(chunkBytes))
	}
	d.scratches[uploadID] = append(contents, chunkBytes...)
	return uint64(len(contents) + len(chunkBytes)), nil
}

// PromoteScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) PromoteScratch(ctx context.Context, uploadID string, expectedDigest digest.Digest) (uint64, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	contents, exists := d.scratches[uploadID]
	if !exists {
		return 0, fmt.Errorf("no such scratch area: %s: %w", uploadID, fs.ErrNotExist)
	}
	actualDigest := expectedDigest.Algorithm().FromBytes(contents)
	if actualDigest != expectedDigest {
		return 0, stevedore.DigestMismatchError{Expected: expectedDigest, Actual: actualDigest}
	}
	if _, exists := d.blobs[expectedDigest]; !exists {
		d.blobs[expectedDigest] = contents
	}
	delete(d.scratches, uploadID)
	return uint64(len(contents)), nil
}

// DeleteScratch implements the stevedore.ContentStore interface.
func (d *ContentStore) DeleteScratch(ctx context.Context, uploadID string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.scratches, uploadID)
	return nil
}

// BlobCount returns how many blobs exist in this content store. This is mostly
// used to validate that failure cases do not commit data to the storage.
func (d *ContentStore) BlobCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.blobs)
}

// ScratchCount returns how many scratch areas exist in this content store.
// This is mostly used to validate that upload sessions clean up after
// themselves.
func (d *ContentStore) ScratchCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.scratches)
}
