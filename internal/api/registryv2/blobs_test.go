// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2_test

import (
	"net/http"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
	"github.com/stevedore-registry/stevedore/internal/test"
)

func uploadHelloBlob(t *testing.T, s test.Setup, repoName string) {
	t.Helper()
	test.NewBytes([]byte("hello\n")).MustUpload(t, s.Handler, repoName)
}

func TestBlobRangeReads(t *testing.T) {
	s := test.NewSetup(t)
	uploadHelloBlob(t, s, "foo")

	// closed range
	assert.HTTPRequest{
		Method: "GET",
		Path:   "/v2/foo/blobs/" + helloDigest,
		Header: map[string]string{"Range": "bytes=1-3"},
		ExpectStatus: http.StatusPartialContent,
		ExpectHeader: map[string]string{
			"Content-Length": "3",
			"Content-Range":  "bytes 1-3/6",
		},
		ExpectBody: assert.StringData("ell"),
	}.Check(t, s.Handler)

	// open-ended range
	assert.HTTPRequest{
		Method: "GET",
		Path:   "/v2/foo/blobs/" + helloDigest,
		Header: map[string]string{"Range": "bytes=2-"},
		ExpectStatus: http.StatusPartialContent,
		ExpectHeader: map[string]string{
			"Content-Length": "4",
			"Content-Range":  "bytes 2-5/6",
		},
		ExpectBody: assert.StringData("llo\n"),
	}.Check(t, s.Handler)

	// an end beyond the blob size is clamped
	assert.HTTPRequest{
		Method: "GET",
		Path:   "/v2/foo/blobs/" + helloDigest,
		Header: map[string]string{"Range": "bytes=4-100"},
		ExpectStatus: http.StatusPartialContent,
		ExpectHeader: map[string]string{
			"Content-Range": "bytes 4-5/6",
		},
		ExpectBody: assert.StringData("o\n"),
	}.Check(t, s.Handler)

	// unsatisfiable and malformed ranges
	for _, rangeHeader := range []string{"bytes=10-12", "bytes=3-1", "bytes=6-", "bytes=x-y"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/v2/foo/blobs/" + helloDigest,
			Header:       map[string]string{"Range": rangeHeader},
			ExpectStatus: http.StatusRequestedRangeNotSatisfiable,
			ExpectBody:   test.ErrorCode(stevedore.ErrRangeInvalid),
		}.Check(t, s.Handler)
	}
}

func TestBlobNotFound(t *testing.T) {
	s := test.NewSetup(t)
	uploadHelloBlob(t, s, "foo")

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/blobs/" + emptyDigest,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrBlobUnknown),
	}.Check(t, s.Handler)

	// blobs are only visible in repositories they are mounted in
	uploadHelloBlob(t, s, "bar")
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/bar/blobs/" + helloDigest,
		ExpectStatus: http.StatusAccepted,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/bar/blobs/" + helloDigest,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrBlobUnknown),
	}.Check(t, s.Handler)

	// a malformed digest in the URL is not a lookup miss
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/blobs/sha256:wtf",
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrDigestInvalid),
	}.Check(t, s.Handler)
}

func TestBlobDeleteAndDedup(t *testing.T) {
	s := test.NewSetup(t)
	uploadHelloBlob(t, s, "foo")
	uploadHelloBlob(t, s, "bar")

	// the same contents were stored only once
	if count := s.ContentStore.BlobCount(); count != 1 {
		t.Errorf("expected 1 blob in content store, got %d", count)
	}

	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/foo/blobs/" + helloDigest,
		ExpectStatus: http.StatusAccepted,
	}.Check(t, s.Handler)

	// the blob is gone from repo "foo", but repo "bar" still has it
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/blobs/" + helloDigest,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrBlobUnknown),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/bar/blobs/" + helloDigest,
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.StringData("hello\n"),
	}.Check(t, s.Handler)

	// deleting a blob that is not in the repo is an error
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/foo/blobs/" + helloDigest,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrBlobUnknown),
	}.Check(t, s.Handler)
}
