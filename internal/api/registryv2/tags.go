// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	distspecv1 "github.com/opencontainers/distribution-spec/specs-go/v1"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Server-side cap on the page size of the tag list and catalog endpoints.
const maxLimit = 1000

// Parses the pagination query parameters ("n" and "last") shared by the tag
// list and catalog endpoints. Returns ok = false if the request has already
// been answered with an error response.
func parsePaginationQuery(w http.ResponseWriter, r *http.Request) (limit uint64, marker string, ok bool) {
	query := r.URL.Query()
	if limitStr := query.Get("n"); limitStr != "" {
		var err error
		limit, err = strconv.ParseUint(limitStr, 10, 64)
		if err != nil {
			stevedore.ErrPaginationInvalid.With(err.Error()).WithDetail(limitStr).WriteAsRegistryV2ResponseTo(w, r)
			return 0, "", false
		}
		if limit == 0 {
			stevedore.ErrPaginationInvalid.With("n must be positive").WithDetail(limitStr).WriteAsRegistryV2ResponseTo(w, r)
			return 0, "", false
		}
	} else {
		limit = maxLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, query.Get("last"), true
}

func paginationLinkHeader(w http.ResponseWriter, path string, limit uint64, last string) {
	linkQuery := url.Values{}
	linkQuery.Set("n", strconv.FormatUint(limit, 10))
	linkQuery.Set("last", last)
	linkURL := url.URL{Path: path, RawQuery: linkQuery.Encode()}
	w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="next"`, linkURL.String()))
}

var tagsListQuery = sqlext.SimplifyWhitespace(`
	SELECT name FROM tags
	 WHERE repo_id = $1 AND (name > $2 OR $2 = '')
	 ORDER BY name ASC LIMIT $3
`)

// This implements the GET /v2/<repository>/tags/list endpoint.
func (a *API) handleListTags(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/tags/list")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	limit, marker, ok := parsePaginationQuery(w, r)
	if !ok {
		return
	}

	// request one more than `limit` to see if we need to paginate
	tags := []string{}
	err := sqlext.ForeachRow(a.db, tagsListQuery, []any{repo.ID, marker, limit + 1}, func(rows *sql.Rows) error {
		var tagName string
		err := rows.Scan(&tagName)
		if err == nil {
			tags = append(tags, tagName)
		}
		return err
	})
	if respondWithError(w, r, err) {
		return
	}

	if uint64(len(tags)) > limit {
		tags = tags[0:limit]
		paginationLinkHeader(w, fmt.Sprintf("/v2/%s/tags/list", repo.Name), limit, tags[len(tags)-1])
	}

	respondwith.JSON(w, http.StatusOK, distspecv1.TagList{
		Name: repo.Name,
		Tags: tags,
	})
}
