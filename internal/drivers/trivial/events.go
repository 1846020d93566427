// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package trivial

import (
	"github.com/sapcc/go-bits/logg"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

func init() {
	stevedore.EventSinkRegistry.Add(func() stevedore.EventSink { return &EventSink{} })
}

// EventSink (driver ID "trivial") is a stevedore.EventSink that only writes
// events into the debug log.
type EventSink struct{}

// PluginTypeID implements the stevedore.EventSink interface.
func (s *EventSink) PluginTypeID() string { return "trivial" }

// Init implements the stevedore.EventSink interface.
func (s *EventSink) Init() error { return nil }

// Emit implements the stevedore.EventSink interface.
func (s *EventSink) Emit(event stevedore.Event) {
	logg.Debug("event %s: repo=%s digest=%s tag=%s", event.Type, event.Repository, event.Digest, event.Tag)
}
