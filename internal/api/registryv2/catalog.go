// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"database/sql"
	"net/http"

	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"
	"github.com/sapcc/go-bits/sqlext"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

var catalogListQuery = sqlext.SimplifyWhitespace(`
	SELECT name FROM repos
	 WHERE name > $1
	 ORDER BY name ASC LIMIT $2
`)

// This implements the GET /v2/_catalog endpoint.
func (a *API) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/_catalog")
	// must be set even for 401 responses!
	w.Header().Set("Docker-Distribution-Api-Version", "registry/2.0")

	subject, rerr := a.ac.AuthenticateRequest(r)
	if rerr != nil {
		rerr.WithHeader("Www-Authenticate", a.ac.Challenge(r)).WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	limit, marker, ok := parsePaginationQuery(w, r)
	if !ok {
		return
	}

	// repositories that the subject may not read are filtered out after the
	// query, so pages are filled by fetching DB batches until `limit` visible
	// names are collected (or the table is exhausted)
	repoNames := []string{}
	partialResult := false
	for {
		batch := []string{}
		err := sqlext.ForeachRow(a.db, catalogListQuery, []any{marker, limit + 1}, func(rows *sql.Rows) error {
			var name string
			err := rows.Scan(&name)
			if err == nil {
				batch = append(batch, name)
			}
			return err
		})
		if respondWithError(w, r, err) {
			return
		}
		if len(batch) == 0 {
			break
		}
		marker = batch[len(batch)-1]

		for _, name := range batch {
			if a.ac.Check(subject, name, stevedore.ReadAction) {
				repoNames = append(repoNames, name)
			}
		}
		if uint64(len(repoNames)) > limit {
			repoNames = repoNames[0:limit]
			partialResult = true
			break
		}
		if uint64(len(batch)) < limit+1 {
			break
		}
	}

	if partialResult {
		paginationLinkHeader(w, "/v2/_catalog", limit, repoNames[len(repoNames)-1])
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{
		"repositories": repoNames,
	})
}
