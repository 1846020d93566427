// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	. "github.com/majewsky/gg/option"
	"github.com/opencontainers/go-digest"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/logg"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

var blobRangeRx = regexp.MustCompile(`^bytes=([0-9]+)-([0-9]*)$`)

// Parses the Range request header on blob GET requests. Open-ended ranges
// ("bytes=5-") extend to the end of the blob. A range that cannot be
// satisfied (start beyond the last byte, or start after end) yields
// RANGE_INVALID per the protocol, not a silent full-body response.
func parseBlobRange(r *http.Request, totalSizeBytes uint64) (Option[stevedore.ByteRange], *stevedore.RegistryV2Error) {
	hdr := r.Header.Get("Range")
	if hdr == "" {
		return None[stevedore.ByteRange](), nil
	}

	match := blobRangeRx.FindStringSubmatch(hdr)
	if match == nil {
		return None[stevedore.ByteRange](), stevedore.ErrRangeInvalid.With("malformed Range header").WithDetail(hdr)
	}
	start, err := strconv.ParseUint(match[1], 10, 64)
	if err != nil {
		return None[stevedore.ByteRange](), stevedore.ErrRangeInvalid.With("malformed Range header").WithDetail(hdr)
	}
	end := totalSizeBytes - 1
	if match[2] != "" {
		end, err = strconv.ParseUint(match[2], 10, 64)
		if err != nil {
			return None[stevedore.ByteRange](), stevedore.ErrRangeInvalid.With("malformed Range header").WithDetail(hdr)
		}
	}

	if start > end || start >= totalSizeBytes {
		return None[stevedore.ByteRange](), stevedore.ErrRangeInvalid.With(
			"requested range %s is outside the blob size of %d bytes", hdr, totalSizeBytes)
	}
	if end >= totalSizeBytes {
		end = totalSizeBytes - 1
	}
	return Some(stevedore.ByteRange{Start: start, End: end}), nil
}

// This implements the GET/HEAD /v2/<repository>/blobs/<digest> endpoints.
func (a *API) handleGetOrHeadBlob(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/:digest")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	blobDigest, err := digest.Parse(mux.Vars(r)["digest"])
	if err != nil {
		stevedore.ErrDigestInvalid.With(err.Error()).WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	blob, err := stevedore.FindBlobByRepository(a.db, blobDigest, *repo)
	if errors.Is(err, sql.ErrNoRows) {
		stevedore.ErrBlobUnknown.With("").WithDetail(blobDigest.String()).WriteAsRegistryV2ResponseTo(w, r)
		return
	}
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Docker-Content-Digest", blob.Digest.String())
	w.Header().Set("Content-Type", blob.SafeMediaType())

	// HEAD only reports metadata; the Range header is ignored there
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatUint(blob.SizeBytes, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	byteRange, rerr := parseBlobRange(r, blob.SizeBytes)
	if rerr != nil {
		rerr.WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	reader, lengthBytes, err := a.proc.ContentStore().ReadBlob(r.Context(), blob.Digest, byteRange)
	if respondWithError(w, r, err) {
		return
	}
	defer reader.Close()
	blobsPulledCounter.Inc()

	w.Header().Set("Content-Length", strconv.FormatUint(lengthBytes, 10))
	if br, ok := byteRange.Unpack(); ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, blob.SizeBytes))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_, err = io.Copy(w, reader)
	if err != nil {
		// the response status is already on the wire, so only log
		logg.Error("while streaming blob %s: %s", blob.Digest, err.Error())
	}
}

// This implements the DELETE /v2/<repository>/blobs/<digest> endpoint.
func (a *API) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	httpapi.IdentifyEndpoint(r, "/v2/:repository/blobs/:digest")
	repo := a.checkRepoAccess(w, r, failIfRepoMissing)
	if repo == nil {
		return
	}

	blobDigest, err := digest.Parse(mux.Vars(r)["digest"])
	if err != nil {
		stevedore.ErrDigestInvalid.With(err.Error()).WriteAsRegistryV2ResponseTo(w, r)
		return
	}

	err = a.proc.DeleteBlobFromRepo(r.Context(), *repo, blobDigest)
	if respondWithError(w, r, err) {
		return
	}

	w.Header().Set("Content-Length", "0")
	w.Header().Set("Docker-Content-Digest", blobDigest.String())
	w.WriteHeader(http.StatusAccepted)
}
