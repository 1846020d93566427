// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package filesystem

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/assert"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func setupDriver(t *testing.T) *ContentStore {
	t.Helper()
	d := &ContentStore{Path: t.TempDir()}
	err := d.Init()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestScratchLifecycle(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	contents := []byte("hello content store")
	contentsDigest := digest.Canonical.FromBytes(contents)

	err := d.CreateScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}

	// upload in two chunks
	newSize, err := d.AppendToScratch(ctx, "upload-1", 0, Some(uint64(5)), bytes.NewReader(contents[0:5]))
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "size after first chunk", newSize, uint64(5))
	newSize, err = d.AppendToScratch(ctx, "upload-1", 5, None[uint64](), bytes.NewReader(contents[5:]))
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "size after second chunk", newSize, uint64(len(contents)))

	// appending at the wrong offset must be rejected
	_, err = d.AppendToScratch(ctx, "upload-1", 3, None[uint64](), strings.NewReader("xxx"))
	if err == nil {
		t.Error("expected error for append at wrong offset, but got none")
	}

	sizeBytes, err := d.PromoteScratch(ctx, "upload-1", contentsDigest)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "promoted blob size", sizeBytes, uint64(len(contents)))

	// the scratch area is gone after a successful promote
	_, err = d.AppendToScratch(ctx, "upload-1", newSize, None[uint64](), strings.NewReader("xxx"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, but got %v", err)
	}

	// the blob is readable under its digest
	exists, err := d.BlobExists(ctx, contentsDigest)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "blob exists", exists, true)
	reader, lengthBytes, err := d.ReadBlob(ctx, contentsDigest, None[stevedore.ByteRange]())
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "blob length", lengthBytes, uint64(len(contents)))
	readBytes, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	reader.Close()
	assert.DeepEqual(t, "blob contents", readBytes, contents)
}

func TestRangeRead(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	contents := []byte("hello\n")
	contentsDigest := digest.Canonical.FromBytes(contents)
	mustUploadBlob(t, d, "upload-1", contents, contentsDigest)

	reader, lengthBytes, err := d.ReadBlob(ctx, contentsDigest, Some(stevedore.ByteRange{Start: 1, End: 3}))
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	assert.DeepEqual(t, "range length", lengthBytes, uint64(3))
	readBytes, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "range contents", readBytes, []byte("ell"))
}

func TestPromoteDigestMismatchKeepsScratch(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	contents := []byte("hello\n")
	contentsDigest := digest.Canonical.FromBytes(contents)
	bogusDigest := digest.Canonical.FromString("not the same contents")

	err := d.CreateScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.AppendToScratch(ctx, "upload-1", 0, None[uint64](), bytes.NewReader(contents))
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.PromoteScratch(ctx, "upload-1", bogusDigest)
	var dmErr stevedore.DigestMismatchError
	if !errors.As(err, &dmErr) {
		t.Fatalf("expected DigestMismatchError, but got %v", err)
	}
	assert.DeepEqual(t, "actual digest in error", dmErr.Actual, contentsDigest)

	// the scratch area must survive the failed promote, so that the client can
	// retry with the right digest
	sizeBytes, err := d.PromoteScratch(ctx, "upload-1", contentsDigest)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "promoted blob size", sizeBytes, uint64(len(contents)))
}

func TestPromoteIntoExistingBlob(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	contents := []byte("same bytes twice")
	contentsDigest := digest.Canonical.FromBytes(contents)
	mustUploadBlob(t, d, "upload-1", contents, contentsDigest)
	// second upload of identical contents resolves as "already exists"
	mustUploadBlob(t, d, "upload-2", contents, contentsDigest)

	reader, lengthBytes, err := d.ReadBlob(ctx, contentsDigest, None[stevedore.ByteRange]())
	if err != nil {
		t.Fatal(err)
	}
	reader.Close()
	assert.DeepEqual(t, "blob length", lengthBytes, uint64(len(contents)))
}

func TestZeroByteBlob(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	emptyDigest := digest.Canonical.FromBytes(nil)
	err := d.CreateScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}
	sizeBytes, err := d.PromoteScratch(ctx, "upload-1", emptyDigest)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "promoted blob size", sizeBytes, uint64(0))

	exists, err := d.BlobExists(ctx, emptyDigest)
	if err != nil {
		t.Fatal(err)
	}
	assert.DeepEqual(t, "blob exists", exists, true)
}

func TestDeleteScratchIsIdempotent(t *testing.T) {
	d := setupDriver(t)
	ctx := t.Context()

	err := d.CreateScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}
	err = d.DeleteScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}
	// deleting again is not an error
	err = d.DeleteScratch(ctx, "upload-1")
	if err != nil {
		t.Fatal(err)
	}
}

func mustUploadBlob(t *testing.T, d *ContentStore, uploadID string, contents []byte, contentsDigest digest.Digest) {
	t.Helper()
	ctx := t.Context()
	err := d.CreateScratch(ctx, uploadID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.AppendToScratch(ctx, uploadID, 0, None[uint64](), bytes.NewReader(contents))
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.PromoteScratch(ctx, uploadID, contentsDigest)
	if err != nil {
		t.Fatal(err)
	}
}
