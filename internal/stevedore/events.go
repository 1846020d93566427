// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"time"

	"github.com/sapcc/go-bits/pluggable"
)

// EventType enumerates the state changes that the registry reports to the
// EventSink.
type EventType string

const (
	EventBlobPushed      EventType = "blob.pushed"
	EventBlobDeleted     EventType = "blob.deleted"
	EventManifestPushed  EventType = "manifest.pushed"
	EventManifestDeleted EventType = "manifest.deleted"
	EventTagSet          EventType = "tag.set"
	EventTagDeleted      EventType = "tag.deleted"
)

// Event describes one state change in the registry.
type Event struct {
	Type       EventType `json:"type"`
	Repository string    `json:"repository"`
	// Digest identifies the blob or manifest concerned, if any.
	Digest string `json:"digest,omitempty"`
	// Tag is only filled for tag events.
	Tag string `json:"tag,omitempty"`
	// SizeBytes is only filled for push events.
	SizeBytes uint64    `json:"size_bytes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink is the abstract interface for the telemetry backend. Events are
// emitted after the respective database transaction has committed.
type EventSink interface {
	pluggable.Plugin

	// Init is called before any other method to give the driver a chance to
	// validate its configuration.
	Init() error

	// Emit reports an event. Delivery is best-effort: implementations must
	// not block the calling request for any significant amount of time, and
	// delivery failures must not propagate back into the API handlers.
	Emit(event Event)
}

// EventSinkRegistry is a pluggable.Registry for EventSink implementations.
var EventSinkRegistry pluggable.Registry[EventSink]

// NewEventSink creates a new EventSink using one of the plugins registered
// with EventSinkRegistry.
func NewEventSink(configJSON string) (EventSink, error) {
	return newDriver("event sink", EventSinkRegistry, configJSON,
		func(es EventSink) error { return es.Init() })
}
