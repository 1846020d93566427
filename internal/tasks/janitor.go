// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package tasks contains the background jobs of the janitor process.
package tasks

import (
	"math/rand"
	"time"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Janitor contains the toolbox of the janitor process.
type Janitor struct {
	cfg stevedore.Configuration
	cs  stevedore.ContentStore
	db  *stevedore.DB

	// non-pure functions that can be replaced by deterministic doubles for unit tests
	timeNow   func() time.Time
	addJitter func(time.Duration) time.Duration
}

// NewJanitor creates a new Janitor.
func NewJanitor(cfg stevedore.Configuration, cs stevedore.ContentStore, db *stevedore.DB) *Janitor {
	return &Janitor{cfg, cs, db, time.Now, addJitter}
}

// OverrideTimeNow replaces time.Now with a test double.
func (j *Janitor) OverrideTimeNow(timeNow func() time.Time) *Janitor {
	j.timeNow = timeNow
	return j
}

// DisableJitter replaces addJitter with a no-op for this Janitor.
func (j *Janitor) DisableJitter() *Janitor {
	j.addJitter = func(d time.Duration) time.Duration { return d }
	return j
}

// addJitter returns a random duration within +/- 10% of the requested value.
// This spreads out jobs that would otherwise all fire at the same instant.
func addJitter(duration time.Duration) time.Duration {
	r := rand.Float64() //nolint:gosec // not crypto-relevant, so math/rand is okay
	return time.Duration(float64(duration) * (0.9 + 0.2*r))
}
