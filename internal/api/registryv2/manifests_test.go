// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2_test

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/assert"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
	"github.com/stevedore-registry/stevedore/internal/test"
)

func TestManifestPushAndPull(t *testing.T) {
	s := test.NewSetup(t)
	image := test.GenerateImage(test.GenerateExampleLayer(1))
	image.MustUpload(t, s.Handler, "foo", "latest")

	// pull by tag
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/latest",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			test.VersionHeaderKey:   test.VersionHeaderValue,
			"Content-Type":          image.Manifest.MediaType,
			"Content-Length":        strconv.Itoa(len(image.Manifest.Contents)),
			"Docker-Content-Digest": image.Manifest.Digest.String(),
		},
		ExpectBody: assert.ByteData(image.Manifest.Contents),
	}.Check(t, s.Handler)

	// pull by digest
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/" + image.Manifest.Digest.String(),
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.ByteData(image.Manifest.Contents),
	}.Check(t, s.Handler)

	// HEAD returns the same headers without a body
	assert.HTTPRequest{
		Method:       "HEAD",
		Path:         "/v2/foo/manifests/latest",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Content-Length":        strconv.Itoa(len(image.Manifest.Contents)),
			"Docker-Content-Digest": image.Manifest.Digest.String(),
		},
		ExpectBody: assert.StringData(""),
	}.Check(t, s.Handler)

	// re-push of the same manifest is idempotent
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	// pulling an unknown tag or digest fails
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/other",
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestUnknown),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/" + emptyDigest,
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestUnknown),
	}.Check(t, s.Handler)
}

func TestManifestReferentialIntegrity(t *testing.T) {
	s := test.NewSetup(t)
	image := test.GenerateImage(test.GenerateExampleLayer(1))

	// pushing a manifest whose blobs were not uploaded is rejected
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestBlobUnknown),
	}.Check(t, s.Handler)

	// same for a manifest list whose submanifests are missing
	list := test.GenerateImageList(image)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Header:       map[string]string{"Content-Type": list.Manifest.MediaType},
		Body:         assert.ByteData(list.Manifest.Contents),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestBlobUnknown),
	}.Check(t, s.Handler)

	// once all references exist, both pushes go through
	image.MustUpload(t, s.Handler, "foo", "")
	list.MustUpload(t, s.Handler, "foo", "multiarch")
}

func TestManifestValidation(t *testing.T) {
	s := test.NewSetup(t)
	image := test.GenerateImage(test.GenerateExampleLayer(1))
	for _, blob := range append(image.Layers, image.Config) {
		blob.MustUpload(t, s.Handler, "foo")
	}

	// a missing Content-Type header is rejected
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestInvalid),
	}.Check(t, s.Handler)

	// garbage that does not parse as its declared media type is rejected
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData("{{{{"),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestInvalid),
	}.Check(t, s.Handler)

	// a push by digest must use the digest of the pushed contents
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/" + emptyDigest,
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrDigestInvalid),
	}.Check(t, s.Handler)

	// tags may start with a dot or a dash
	for _, tagName := range []string{".hidden", "-rc1"} {
		assert.HTTPRequest{
			Method:       "PUT",
			Path:         "/v2/foo/manifests/" + tagName,
			Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
			Body:         assert.ByteData(image.Manifest.Contents),
			ExpectStatus: http.StatusCreated,
		}.Check(t, s.Handler)
	}

	// overlong tags are rejected
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/" + strings.Repeat("x", 129),
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrTagInvalid),
	}.Check(t, s.Handler)
}

func TestRejectedManifestPushDoesNotCreateRepo(t *testing.T) {
	s := test.NewSetup(t)

	// a push that fails syntactic validation must not leave an empty
	// repository behind
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/newrepo/manifests/latest",
		Body:         assert.StringData(`{"hello":"world"}`),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestInvalid),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"repositories": []string{}},
	}.Check(t, s.Handler)
}

func TestManifestSizeLimit(t *testing.T) {
	s := test.NewSetup(t, test.WithConfig(stevedore.Configuration{
		MaxBlobSizeBytes:     10 << 20,
		MaxManifestSizeBytes: 10,
		UploadLifetime:       24 * time.Hour,
	}))

	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/latest",
		Header:       map[string]string{"Content-Type": "application/vnd.custom+json"},
		Body:         assert.ByteData(`{"hello": "this is longer than ten bytes"}`),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestInvalid),
	}.Check(t, s.Handler)
}

func TestManifestUnknownMediaType(t *testing.T) {
	s := test.NewSetup(t)

	// manifests with an unrecognized media type are stored and served verbatim
	contents := `{"hello":"world"}`
	contentsDigest := digest.Canonical.FromString(contents)
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/" + contentsDigest.String(),
		Header:       map[string]string{"Content-Type": "application/vnd.custom+json"},
		Body:         assert.StringData(contents),
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/" + contentsDigest.String(),
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Content-Type":          "application/vnd.custom+json",
			"Docker-Content-Digest": contentsDigest.String(),
		},
		ExpectBody: assert.StringData(contents),
	}.Check(t, s.Handler)
}

func TestManifestDelete(t *testing.T) {
	s := test.NewSetup(t)
	image := test.GenerateImage(test.GenerateExampleLayer(1))
	image.MustUpload(t, s.Handler, "foo", "latest")

	// deleting by tag only removes the tag pointer
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/foo/manifests/latest",
		ExpectStatus: http.StatusAccepted,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/latest",
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestUnknown),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/manifests/" + image.Manifest.Digest.String(),
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.ByteData(image.Manifest.Contents),
	}.Check(t, s.Handler)

	// deleting an already-deleted tag fails
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/foo/manifests/latest",
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrManifestUnknown),
	}.Check(t, s.Handler)

	// deleting by digest removes the manifest and all its tags
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/v2/foo/manifests/other",
		Header:       map[string]string{"Content-Type": image.Manifest.MediaType},
		Body:         assert.ByteData(image.Manifest.Contents),
		ExpectStatus: http.StatusCreated,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/v2/foo/manifests/" + image.Manifest.Digest.String(),
		ExpectStatus: http.StatusAccepted,
	}.Check(t, s.Handler)
	for _, reference := range []string{image.Manifest.Digest.String(), "other"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/v2/foo/manifests/" + reference,
			ExpectStatus: http.StatusNotFound,
			ExpectBody:   test.ErrorCode(stevedore.ErrManifestUnknown),
		}.Check(t, s.Handler)
	}

	// the blobs remain untouched by manifest deletion
	assert.HTTPRequest{
		Method:       "HEAD",
		Path:         "/v2/foo/blobs/" + image.Config.Digest.String(),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
}
