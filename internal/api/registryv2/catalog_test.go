// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2_test

import (
	"net/http"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/stevedore-registry/stevedore/internal/test"
)

func TestCatalog(t *testing.T) {
	s := test.NewSetup(t)

	// an empty registry yields an empty catalog
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog",
		ExpectStatus: http.StatusOK,
		ExpectHeader: test.VersionHeader,
		ExpectBody:   assert.JSONObject{"repositories": []string{}},
	}.Check(t, s.Handler)

	// repositories come back in lexical order regardless of creation order
	for _, repoName := range []string{"qux", "bar/app", "foo"} {
		test.NewBytes([]byte("hello\n")).MustUpload(t, s.Handler, repoName)
	}
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Link": ""},
		ExpectBody:   assert.JSONObject{"repositories": []string{"bar/app", "foo", "qux"}},
	}.Check(t, s.Handler)
}

func TestCatalogPagination(t *testing.T) {
	s := test.NewSetup(t)
	for _, repoName := range []string{"alpha", "beta", "delta", "gamma"} {
		s.MustExec(t, `INSERT INTO repos (name) VALUES ($1)`, repoName)
	}

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog?n=3",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Link": `</v2/_catalog?last=delta&n=3>; rel="next"`,
		},
		ExpectBody: assert.JSONObject{"repositories": []string{"alpha", "beta", "delta"}},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog?last=delta&n=3",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Link": ""},
		ExpectBody:   assert.JSONObject{"repositories": []string{"gamma"}},
	}.Check(t, s.Handler)
}

func TestCatalogAccessFiltering(t *testing.T) {
	s := test.NewSetup(t, test.WithDeniedRepo("beta"))
	for _, repoName := range []string{"alpha", "beta", "delta", "gamma"} {
		s.MustExec(t, `INSERT INTO repos (name) VALUES ($1)`, repoName)
	}

	// repositories that the client may not read are omitted entirely
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog",
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.JSONObject{"repositories": []string{"alpha", "delta", "gamma"}},
	}.Check(t, s.Handler)

	// pages are filled up across filtered-out repositories
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog?n=2",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"Link": `</v2/_catalog?last=delta&n=2>; rel="next"`,
		},
		ExpectBody: assert.JSONObject{"repositories": []string{"alpha", "delta"}},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/v2/_catalog?last=delta&n=2",
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Link": ""},
		ExpectBody:   assert.JSONObject{"repositories": []string{"gamma"}},
	}.Check(t, s.Handler)
}
