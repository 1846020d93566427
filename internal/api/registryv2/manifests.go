// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// This implements the GET/HEAD /v2/<repository>/manifests/<reference> endpoints.
//
// The Accept request header is advisory only: manifests are stored and served
// byte-for-byte with the media type they were pushed with, since the digest is
// computed over the raw representation.
func (a *API) handleGetOrHeadManifest(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/manifests/:reference")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}
	reference := models.ParseManifestReference(mux.Vars(r)["reference"])

	manifest, contents, err := a.proc.GetManifest(*repo, reference)
	if respondWithError(w, r, err) {
		return
	}
	manifestsPulledCounter.Inc()

	w.Header().Set("Content-Type", manifest.MediaType)
	w.Header().Set("Content-Length", strconv.FormatUint(manifest.SizeBytes, 10))
	w.Header().Set("Docker-Content-Digest", manifest.Digest.String())
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, err = w.Write(contents)
		if err != nil {
			logg.Error("while writing manifest %s: %s", manifest.Digest, err.Error())
		}
	}
}

// This implements the PUT /v2/<repository>/manifests/<reference> endpoint.
func (a *API) handlePutManifest(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/manifests/:reference")
	repoName, ok := a.authorizeRepoAccess(w, r)
	if !ok {
		return
	}
	reference := models.ParseManifestReference(mux.Vars(r)["reference"])

	// syntactic validation happens before the repository lookup; a push that is
	// rejected here must not leave an empty repository in the catalog
	if reference.IsTag() && !models.IsTagName(reference.Tag) {
		stevedore.ErrTagInvalid.With("").WithDetail(reference.Tag).WriteAsRegistryV2ResponseTo(w, r)
		return
	}
	mediaType := r.Header.Get("Content-Type")
	if mediaType == "" {
		stevedore.ErrManifestInvalid.With("manifest does not declare a media type").WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	// the size limit is enforced before parsing; an over-limit manifest never
	// reaches the unmarshaler
	contents, err := io.ReadAll(io.LimitReader(r.Body, int64(a.cfg.MaxManifestSizeBytes)+1)) //nolint:gosec // the limit is a small constant
	if respondWithError(w, r, err) {
		return
	}
	if stevedore.AtLeastZero(len(contents)) > a.cfg.MaxManifestSizeBytes {
		stevedore.ErrManifestInvalid.With("manifest exceeds size limit of %d bytes", a.cfg.MaxManifestSizeBytes).
			WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	repo, err := stevedore.FindOrCreateRepository(a.db, repoName)
	if respondWithError(w, r, err) {
		return
	}

	manifest, err := a.proc.PutManifest(r.Context(), *repo, reference, mediaType, contents)
	if respondWithError(w, r, err) {
		return
	}
	manifestsPushedCounter.Inc()

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Location", fmt.Sprintf("/v2/%s/manifests/%s", repo.Name, manifest.Digest))
	w.Header().Set("Docker-Content-Digest", manifest.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

// This implements the DELETE /v2/<repository>/manifests/<reference> endpoint.
// Deleting by digest removes the manifest and all tags pointing at it;
// deleting by tag only removes the tag pointer.
func (a *API) handleDeleteManifest(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/manifests/:reference")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}
	reference := models.ParseManifestReference(mux.Vars(r)["reference"])

	var err error
	if reference.IsTag() {
		err = a.proc.DeleteTag(r.Context(), *repo, reference.Tag)
	} else {
		err = a.proc.DeleteManifest(r.Context(), *repo, reference.Digest)
	}
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusAccepted)
}
