// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/sapcc/go-bits/assert"
)

const (
	// VersionHeaderKey is the standard version header name included in all
	// Registry v2 API responses.
	VersionHeaderKey = "Docker-Distribution-Api-Version"
	// VersionHeaderValue is the standard version header value included in all
	// Registry v2 API responses.
	VersionHeaderValue = "registry/2.0"
)

// VersionHeader is the standard version header included in all Registry v2
// API responses.
var VersionHeader = map[string]string{VersionHeaderKey: VersionHeaderValue}

// MustUpload uploads the blob into the given repository via a monolithic
// upload on the Registry v2 API served by `h`.
func (b Bytes) MustUpload(t *testing.T, h http.Handler, repoName string) {
	t.Helper()
	assert.HTTPRequest{
		Method: "POST",
		Path:   fmt.Sprintf("/v2/%s/blobs/uploads/?digest=%s", repoName, b.Digest),
		Header: map[string]string{
			"Content-Length": strconv.Itoa(len(b.Contents)),
			"Content-Type":   b.MediaType,
		},
		Body:         assert.ByteData(b.Contents),
		ExpectStatus: http.StatusCreated,
	}.Check(t, h)
	if t.Failed() {
		t.FailNow()
	}
}

// MustUpload uploads the image into the given repository, including all
// referenced blobs. `reference` may be a tag name, or empty to push by digest
// only.
func (i Image) MustUpload(t *testing.T, h http.Handler, repoName, reference string) {
	t.Helper()
	for _, blob := range append(i.Layers, i.Config) {
		blob.MustUpload(t, h, repoName)
	}

	if reference == "" {
		reference = i.Manifest.Digest.String()
	}
	assert.HTTPRequest{
		Method: "PUT",
		Path:   fmt.Sprintf("/v2/%s/manifests/%s", repoName, reference),
		Header: map[string]string{
			"Content-Type": i.Manifest.MediaType,
		},
		Body:         assert.ByteData(i.Manifest.Contents),
		ExpectStatus: http.StatusCreated,
		ExpectHeader: map[string]string{
			VersionHeaderKey:        VersionHeaderValue,
			"Docker-Content-Digest": i.Manifest.Digest.String(),
		},
	}.Check(t, h)
	if t.Failed() {
		t.FailNow()
	}
}

// MustUpload uploads the manifest list into the given repository, including
// all referenced images. `reference` may be a tag name, or empty to push by
// digest only.
func (l ImageList) MustUpload(t *testing.T, h http.Handler, repoName, reference string) {
	t.Helper()
	for _, img := range l.Images {
		img.MustUpload(t, h, repoName, "")
	}

	if reference == "" {
		reference = l.Manifest.Digest.String()
	}
	assert.HTTPRequest{
		Method: "PUT",
		Path:   fmt.Sprintf("/v2/%s/manifests/%s", repoName, reference),
		Header: map[string]string{
			"Content-Type": l.Manifest.MediaType,
		},
		Body:         assert.ByteData(l.Manifest.Contents),
		ExpectStatus: http.StatusCreated,
		ExpectHeader: map[string]string{
			VersionHeaderKey:        VersionHeaderValue,
			"Docker-Content-Digest": l.Manifest.Digest.String(),
		},
	}.Check(t, h)
	if t.Failed() {
		t.FailNow()
	}
}
