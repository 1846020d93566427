// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package registryv2 implements the HTTP surface of the Registry v2 protocol.
// All business logic lives in the processor package; this package only
// translates between HTTP and processor calls.
package registryv2

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/processor"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// API contains state variables used by the Registry v2 API implementation.
type API struct {
	cfg  stevedore.Configuration
	ac   stevedore.AccessChecker
	db   *stevedore.DB
	proc *processor.Processor
}

// NewAPI constructs a new API instance.
func NewAPI(cfg stevedore.Configuration, ac stevedore.AccessChecker, db *stevedore.DB, proc *processor.Processor) *API {
	return &API{cfg, ac, db, proc}
}

// AddTo implements the httpapi.API interface.
func (a *API) AddTo(r *mux.Router) {
	r.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	r.Methods("GET").Path("/v2/").HandlerFunc(a.handleToplevel)
	r.Methods("GET").Path("/v2/_catalog").HandlerFunc(a.handleGetCatalog)

	// upload routes come first because mux matches in registration order and
	// "uploads" could otherwise be parsed as a digest path component
	r.Methods("POST").Path("/v2/{repository:.+}/blobs/uploads/").HandlerFunc(a.handleStartUpload)
	r.Methods("GET").Path("/v2/{repository:.+}/blobs/uploads/{uuid}").HandlerFunc(a.handleGetUpload)
	r.Methods("PATCH").Path("/v2/{repository:.+}/blobs/uploads/{uuid}").HandlerFunc(a.handleAppendToUpload)
	r.Methods("PUT").Path("/v2/{repository:.+}/blobs/uploads/{uuid}").HandlerFunc(a.handleFinishUpload)
	r.Methods("DELETE").Path("/v2/{repository:.+}/blobs/uploads/{uuid}").HandlerFunc(a.handleCancelUpload)

	r.Methods("GET", "HEAD").Path("/v2/{repository:.+}/blobs/{digest}").HandlerFunc(a.handleGetOrHeadBlob)
	r.Methods("DELETE").Path("/v2/{repository:.+}/blobs/{digest}").HandlerFunc(a.handleDeleteBlob)

	r.Methods("GET", "HEAD").Path("/v2/{repository:.+}/manifests/{reference}").HandlerFunc(a.handleGetOrHeadManifest)
	r.Methods("PUT").Path("/v2/{repository:.+}/manifests/{reference}").HandlerFunc(a.handlePutManifest)
	r.Methods("DELETE").Path("/v2/{repository:.+}/manifests/{reference}").HandlerFunc(a.handleDeleteManifest)

	r.Methods("GET").Path("/v2/{repository:.+}/tags/list").HandlerFunc(a.handleListTags)
}

// Writes `err` into the response body (if non-nil) in the v2 error envelope
// format. Returns true iff `err` was non-nil.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	stevedore.AsRegistryV2Error(err).WriteAsRegistryV2ResponseTo(w, r)
	return true
}

// Answers requests that match a route path with an unregistered method, e.g.
// POST on a tag list. The v2 protocol wants the error envelope even here.
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Docker-Distribution-Api-Version", "registry/2.0")
	stevedore.ErrUnsupported.With("").WriteAsRegistryV2ResponseTo(w, r)
}

// This implements the GET /v2/ endpoint. Clients probe it to detect v2
// support and to check their credentials.
func (a *API) handleToplevel(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/")
	// must be set even for 401 responses!
	w.Header().Set("Docker-Distribution-Api-Version", "registry/2.0")

	_, rerr := a.ac.AuthenticateRequest(r)
	if rerr != nil {
		rerr.WithHeader("Www-Authenticate", a.ac.Challenge(r)).WriteAsRegistryV2ResponseTo(w, r)
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{})
}

// Whether checkRepoAccess may autovivify the repository. Pull and delete
// requests on a repository that was never pushed to must yield NAME_UNKNOWN
// instead of silently creating an empty repository.
type repoAccessStrategy int

const (
	failIfRepoMissing repoAccessStrategy = iota
	createRepoIfMissing
)

// Maps the request method to the permission that the AccessChecker must grant.
func actionForRequest(r *http.Request) stevedore.Action {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return stevedore.ReadAction
	case http.MethodDelete:
		return stevedore.DeleteAction
	default:
		return stevedore.WriteAction
	}
}

// The authentication and authorization half of checkRepoAccess. Split out for
// handlers that must delay the repository lookup, e.g. PUT manifest validates
// its payload before autovivifying the repository. Returns ok = false if the
// request has already been answered with an error response.
func (a *API) authorizeRepoAccess(w http.ResponseWriter, r *http.Request) (repoName string, ok bool) {
	// must be set even for 401 responses!
	w.Header().Set("Docker-Distribution-Api-Version", "registry/2.0")

	repoName = mux.Vars(r)["repository"]
	if !models.IsRepoPath(repoName) {
		stevedore.ErrNameInvalid.With("").WithDetail(repoName).WriteAsRegistryV2ResponseTo(w, r)
		return "", false
	}

	subject, rerr := a.ac.AuthenticateRequest(r)
	if rerr != nil {
		rerr.WithHeader("Www-Authenticate", a.ac.Challenge(r)).WriteAsRegistryV2ResponseTo(w, r)
		return "", false
	}
	if !a.ac.Check(subject, repoName, actionForRequest(r)) {
		if subject.IsAnonymous() {
			stevedore.ErrUnauthorized.With("").
				WithHeader("Www-Authenticate", a.ac.Challenge(r)).
				WriteAsRegistryV2ResponseTo(w, r)
		} else {
			stevedore.ErrDenied.With("").WriteAsRegistryV2ResponseTo(w, r)
		}
		return "", false
	}
	return repoName, true
}

// The one-stop-shop performing the checks that all repository-scoped endpoints
// share: repository name validation, authentication and authorization, and the
// repository lookup. Returns nil if the request has already been answered with
// an error response.
func (a *API) checkRepoAccess(w http.ResponseWriter, r *http.Request, strategy repoAccessStrategy) *models.Repository {
	repoName, ok := a.authorizeRepoAccess(w, r)
	if !ok {
		return nil
	}

	var (
		repo *models.Repository
		err  error
	)
	if strategy == createRepoIfMissing {
		repo, err = stevedore.FindOrCreateRepository(a.db, repoName)
	} else {
		repo, err = stevedore.FindRepository(a.db, repoName)
		if errors.Is(err, sql.ErrNoRows) {
			stevedore.ErrNameUnknown.With("").WithDetail(repoName).WriteAsRegistryV2ResponseTo(w, r)
			return nil
		}
	}
	if respondWithError(w, r, err) {
		return nil
	}
	return repo
}
