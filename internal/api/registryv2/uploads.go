// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/stevedore-registry/stevedore/internal/models"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Renders the inclusive high-water mark for the Range response header on
// upload endpoints. A session with 6 bytes reports "0-5"; an empty session
// reports "0-0".
func uploadRangeHeader(sizeBytes uint64) string {
	if sizeBytes == 0 {
		return "0-0"
	}
	return fmt.Sprintf("0-%d", sizeBytes-1)
}

func uploadLocationURL(repo models.Repository, uploadID string) string {
	return fmt.Sprintf("/v2/%s/blobs/uploads/%s", repo.Name, uploadID)
}

func blobLocationURL(repo models.Repository, blobDigest digest.Digest) string {
	return fmt.Sprintf("/v2/%s/blobs/%s", repo.Name, blobDigest)
}

// The declared request body length, if the client declared one.
func requestLengthBytes(r *http.Request) Option[uint64] {
	if r.ContentLength < 0 {
		return None[uint64]()
	}
	return Some(stevedore.AtLeastZero(r.ContentLength))
}

var contentRangeRx = regexp.MustCompile(`^([0-9]+)-([0-9]+)$`)

// Parses the Content-Range request header on PATCH requests. The protocol
// uses the plain "start-end" form, but a "bytes=" prefix is tolerated.
func parseContentRange(r *http.Request) (offset Option[uint64], rerr *stevedore.RegistryV2Error) {
	hdr := r.Header.Get("Content-Range")
	if hdr == "" {
		return None[uint64](), nil
	}
	match := contentRangeRx.FindStringSubmatch(strings.TrimPrefix(hdr, "bytes="))
	if match == nil {
		return None[uint64](), stevedore.ErrRangeInvalid.With("malformed Content-Range header").WithDetail(hdr)
	}
	start, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return None[uint64](), stevedore.ErrRangeInvalid.With("malformed Content-Range header").WithDetail(hdr)
	}
	end, err := strconv.ParseUint(match[2], 10, 64)
	if err != nil || end < start {
		return None[uint64](), stevedore.ErrRangeInvalid.With("malformed Content-Range header").WithDetail(hdr)
	}
	if declared, ok := requestLengthBytes(r).Unpack(); ok && end-start+1 != declared {
		return None[uint64](), stevedore.ErrSizeInvalid.With(
			"Content-Range header indicates %d bytes, but Content-Length header indicates %d bytes",
			end-start+1, declared)
	}
	return Some(start), nil
}

// This implements the POST /v2/<repository>/blobs/uploads/ endpoint. Without
// a digest query parameter, it opens a new upload session. With one, it
// performs a monolithic upload in a single request.
func (a *API) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/uploads/")
	repo := a.checkRepoAccess(w, r, createRepoIfMissing)
	if repo == nil {
		return
	}

	if digestStr := r.URL.Query().Get("digest"); digestStr != "" {
		a.performMonolithicUpload(w, r, *repo, digestStr)
		return
	}

	upload, err := a.proc.CreateUpload(r.Context(), *repo)
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Location", uploadLocationURL(*repo, upload.UUID))
	w.Header().Set("Range", "0-0")
	w.Header().Set("Docker-Upload-UUID", upload.UUID)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) performMonolithicUpload(w http.ResponseWriter, r *http.Request, repo models.Repository, digestStr string) {
	blobDigest, err := digest.Parse(digestStr)
	if err != nil {
		stevedore.ErrDigestInvalid.With(err.Error()).WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	upload, err := a.proc.CreateUpload(r.Context(), repo)
	if respondWithError(w, r, err) {
		return
	}
	blob, err := a.proc.FinalizeUpload(r.Context(), repo, upload.UUID, blobDigest, r.Body, requestLengthBytes(r))
	if respondWithError(w, r, err) {
		return
	}
	blobsPushedCounter.Inc()

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Location", blobLocationURL(repo, blob.Digest))
	w.Header().Set("Docker-Content-Digest", blob.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

// This implements the GET /v2/<repository>/blobs/uploads/<uuid> endpoint.
func (a *API) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/uploads/:uuid")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	upload, err := a.proc.FindOpenUpload(*repo, mux.Vars(r)["uuid"])
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Range", uploadRangeHeader(upload.SizeBytes))
	w.Header().Set("Docker-Upload-UUID", upload.UUID)
	w.WriteHeader(http.StatusNoContent)
}

// This implements the PATCH /v2/<repository>/blobs/uploads/<uuid> endpoint.
func (a *API) handleAppendToUpload(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/uploads/:uuid")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	offset, rerr := parseContentRange(r)
	if rerr != nil {
		rerr.WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	upload, err := a.proc.AppendToUpload(r.Context(), *repo, mux.Vars(r)["uuid"],
		offset, requestLengthBytes(r), r.Body)
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Location", uploadLocationURL(*repo, upload.UUID))
	w.Header().Set("Range", uploadRangeHeader(upload.SizeBytes))
	w.Header().Set("Docker-Upload-UUID", upload.UUID)
	w.WriteHeader(http.StatusAccepted)
}

// This implements the PUT /v2/<repository>/blobs/uploads/<uuid> endpoint.
func (a *API) handleFinishUpload(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/uploads/:uuid")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	digestStr := r.URL.Query().Get("digest")
	if digestStr == "" {
		stevedore.ErrDigestInvalid.With("missing digest query parameter").WriteAsRegistryV2ResponseTo(w, r)
		return
	}
	blobDigest, err := digest.Parse(digestStr)
	if err != nil {
		stevedore.ErrDigestInvalid.With(err.Error()).WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	// a request body is an optional final chunk
	var trailingChunk io.Reader
	if r.ContentLength != 0 {
		trailingChunk = r.Body
	}

	blob, err := a.proc.FinalizeUpload(r.Context(), *repo, mux.Vars(r)["uuid"],
		blobDigest, trailingChunk, requestLengthBytes(r))
	if respondWithError(w, r, err) {
		return
	}
	blobsPushedCounter.Inc()

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Location", blobLocationURL(*repo, blob.Digest))
	w.Header().Set("Docker-Content-Digest", blob.Digest.String())
	w.WriteHeader(http.StatusCreated)
}

// This implements the DELETE /v2/<repository>/blobs/uploads/<uuid> endpoint.
func (a *API) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/uploads/:uuid")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	err := a.proc.CancelUpload(r.Context(), *repo, mux.Vars(r)["uuid"])
	if respondWithError(w, r, err) {
		return
	}
	uploadsAbortedCounter.Inc()

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusNoContent)
}
