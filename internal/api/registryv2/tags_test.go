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

// Puts the same trivial manifest under each of the given tags.
func mustTagManifest(t *testing.T, s test.Setup, repoName string, tagNames ...string) {
	t.Helper()
	for _, tagName := range tagNames {
		assert.HTTPRequest{
			Method:       "PUT",
			Path:         "/v2/" + repoName + "/manifests/" + tagName,
			Header:       map[string]string{"Content-Type": "application/vnd.custom+json"},
			Body:         assert.StringData(`{"hello":"world"}`),
			ExpectStatus: http.StatusCreated,
		}.Check(t, s.Handler)
		if t.Failed() {
			t.FailNow()
		}
	}
}

func TestTagsList(t *testing.T) {
	s := test.NewSetup(t)

	// listing tags of a nonexistent repository fails
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list",
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorCode(stevedore.ErrNameUnknown),
	}.Check(t, s.Handler)

	// a repository without tags yields an empty list
	test.NewBytes([]byte("hello\n")).MustUpload(t, s.Handler, "foo")
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"name": "foo", "tags": []string{}},
	}.Check(t, s.Handler)

	// tags come back in lexical order regardless of push order
	mustTagManifest(t, s, "foo", "0003", "0001", "0005", "0002", "0004")
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Link": ""},
		ExpectBody: assert.JSONObject{
			"name": "foo",
			"tags": []string{"0001", "0002", "0003", "0004", "0005"},
		},
	}.Check(t, s.Handler)
}

func TestTagsListPagination(t *testing.T) {
	s := test.NewSetup(t)
	mustTagManifest(t, s, "foo", "0001", "0002", "0003", "0004", "0005")

	// first page
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list?n=2",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Link": `</v2/foo/tags/list?last=0002&n=2>; rel="next"`,
		},
		ExpectBody: assert.JSONObject{"name": "foo", "tags": []string{"0001", "0002"}},
	}.Check(t, s.Handler)

	// second page
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list?last=0002&n=2",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Link": `</v2/foo/tags/list?last=0004&n=2>; rel="next"`,
		},
		ExpectBody: assert.JSONObject{"name": "foo", "tags": []string{"0003", "0004"}},
	}.Check(t, s.Handler)

	// last page has no Link header
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/foo/tags/list?last=0004&n=2",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Link": ""},
		ExpectBody:   assert.JSONObject{"name": "foo", "tags": []string{"0005"}},
	}.Check(t, s.Handler)

	// n must be a positive integer; rejections use the v2 error envelope like
	// every other client error
	for _, query := range []string{"n=0", "n=-3", "n=wtf"} {
		assert.HTTPRequest{
			Method:       "GET",
			Path:         "/v2/foo/tags/list?" + query,
			ExpectStatus: http.StatusBadRequest,
			ExpectHeader: test.VersionHeader,
			ExpectBody:   test.ErrorCode(stevedore.ErrPaginationInvalid),
		}.Check(t, s.Handler)
	}
}
