// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package test

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/docker/distribution"
	"github.com/docker/distribution/manifest/manifestlist"
	"github.com/docker/distribution/manifest/schema2"
	"github.com/opencontainers/go-digest"
)

// Bytes groups a bytestring with its digest.
type Bytes struct {
	Contents  []byte
	Digest    digest.Digest
	MediaType string
}

// NewBytes makes a new Bytes instance.
func NewBytes(contents []byte) Bytes {
	return newBytesWithMediaType(contents, "application/octet-stream")
}

func newBytesWithMediaType(contents []byte, mediaType string) Bytes {
	return Bytes{contents, digest.Canonical.FromBytes(contents), mediaType}
}

// GenerateExampleLayer generates a blob of 1 MiB that can be used like an
// image layer when constructing image manifests for unit tests. The contents
// are generated deterministically from the given seed.
func GenerateExampleLayer(seed int64) Bytes {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic contents are the point
	buf := make([]byte, 1<<20)
	r.Read(buf)
	return newBytesWithMediaType(buf, schema2.MediaTypeLayer)
}

// Image contains all the pieces of a container image. The Layers and Config
// must be uploaded to the registry as blobs before the Manifest can be pushed.
type Image struct {
	Layers   []Bytes
	Config   Bytes
	Manifest Bytes
}

// GenerateImage makes an Image from the given layers in a deterministic manner.
func GenerateImage(layers ...Bytes) Image {
	config := map[string]any{
		"architecture": "amd64",
		"os":           "linux",
		"rootfs": map[string]any{
			"type":     "layers",
			"diff_ids": []string{},
		},
	}
	configBytesUntyped, err := json.Marshal(config)
	if err != nil {
		panic(err.Error())
	}
	configBytes := newBytesWithMediaType(configBytesUntyped, schema2.MediaTypeImageConfig)

	manifest := schema2.Manifest{
		Versioned: schema2.SchemaVersion,
		Config: distribution.Descriptor{
			MediaType: schema2.MediaTypeImageConfig,
			Size:      int64(len(configBytes.Contents)),
			Digest:    configBytes.Digest,
		},
	}
	for _, layer := range layers {
		manifest.Layers = append(manifest.Layers, distribution.Descriptor{
			MediaType: layer.MediaType,
			Size:      int64(len(layer.Contents)),
			Digest:    layer.Digest,
		})
	}
	manifestBytesUntyped, err := json.Marshal(manifest)
	if err != nil {
		panic(err.Error())
	}

	return Image{
		Layers:   layers,
		Config:   configBytes,
		Manifest: newBytesWithMediaType(manifestBytesUntyped, schema2.MediaTypeManifest),
	}
}

// SizeBytes returns the value that the manifests.size_bytes column will have
// after this image's manifest was pushed.
func (i Image) SizeBytes() uint64 {
	return uint64(len(i.Manifest.Contents))
}

// ImageList contains a manifest list backed by the manifests of several
// images.
type ImageList struct {
	Images   []Image
	Manifest Bytes
}

// GenerateImageList makes an ImageList from the given images in a
// deterministic manner.
func GenerateImageList(images ...Image) ImageList {
	manifestDescs := []manifestlist.ManifestDescriptor{}
	for idx, img := range images {
		manifestDescs = append(manifestDescs, manifestlist.ManifestDescriptor{
			Descriptor: distribution.Descriptor{
				MediaType: img.Manifest.MediaType,
				Size:      int64(len(img.Manifest.Contents)),
				Digest:    img.Manifest.Digest,
			},
			Platform: manifestlist.PlatformSpec{
				OS:           "linux",
				Architecture: fmt.Sprintf("arch-%d", idx),
			},
		})
	}

	listManifest, err := manifestlist.FromDescriptors(manifestDescs)
	if err != nil {
		panic(err.Error())
	}
	_, listBytes, err := listManifest.Payload()
	if err != nil {
		panic(err.Error())
	}

	return ImageList{
		Images:   images,
		Manifest: Bytes{listBytes, digest.Canonical.FromBytes(listBytes), manifestlist.MediaTypeManifestList},
	}
}
