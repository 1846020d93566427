// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package registryv2

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blobsPushedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stevedore_pushed_blobs",
		Help: "Counts blobs that were pushed successfully.",
	})
	blobsPulledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stevedore_pulled_blobs",
		Help: "Counts blobs that were pulled successfully.",
	})
	manifestsPushedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stevedore_pushed_manifests",
		Help: "Counts manifests that were pushed successfully.",
	})
	manifestsPulledCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stevedore_pulled_manifests",
		Help: "Counts manifests that were pulled successfully.",
	})
	uploadsAbortedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stevedore_aborted_uploads",
		Help: "Counts upload sessions that were cancelled by the client.",
	})
)

func init() {
	prometheus.MustRegister(blobsPushedCounter)
	prometheus.MustRegister(blobsPulledCounter)
	prometheus.MustRegister(manifestsPushedCounter)
	prometheus.MustRegister(manifestsPulledCounter)
	prometheus.MustRegister(uploadsAbortedCounter)
}
