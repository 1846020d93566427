// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"slices"

	"github.com/docker/distribution"
	"github.com/docker/distribution/manifest/manifestlist"
	"github.com/docker/distribution/manifest/schema1"
	"github.com/docker/distribution/manifest/schema2"
	imagespecs "github.com/opencontainers/image-spec/specs-go/v1"

	// register the OCI manifest unmarshaler with the distribution library
	// (schema1, schema2 and manifestlist are registered by the imports above)
	_ "github.com/docker/distribution/manifest/ocischema"
)

// ManifestMediaTypes is the set of manifest media types that the registry
// understands. Manifests with these media types are parsed and checked for
// referential integrity at push time. Manifests with other media types are
// stored verbatim without inspection.
var ManifestMediaTypes = []string{
	schema1.MediaTypeManifest,
	schema2.MediaTypeManifest,
	manifestlist.MediaTypeManifestList,
	imagespecs.MediaTypeImageManifest,
	imagespecs.MediaTypeImageIndex,
}

// IsManifestMediaType checks if the given media type identifies a manifest
// format known to the registry.
func IsManifestMediaType(mediaType string) bool {
	return slices.Contains(ManifestMediaTypes, mediaType)
}

// ParsedManifest contains the references found in a manifest, sorted by what
// they refer to. A plain image manifest only has blob references (config and
// layers); a manifest list or image index only has manifest references.
type ParsedManifest struct {
	BlobReferences     []distribution.Descriptor
	ManifestReferences []distribution.Descriptor
}

// ParseManifest parses a manifest with one of the media types in
// ManifestMediaTypes.
func ParseManifest(mediaType string, contents []byte) (ParsedManifest, error) {
	m, _, err := distribution.UnmarshalManifest(mediaType, contents)
	if err != nil {
		return ParsedManifest{}, err
	}

	var result ParsedManifest
	for _, desc := range m.References() {
		if IsManifestMediaType(desc.MediaType) {
			result.ManifestReferences = append(result.ManifestReferences, desc)
		} else {
			result.BlobReferences = append(result.BlobReferences, desc)
		}
	}
	return result, nil
}
