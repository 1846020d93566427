// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package tasks

import (
	"testing"

	"github.com/sapcc/go-bits/easypg"

	"github.com/stevedore-registry/stevedore/internal/test"
)

func TestMain(m *testing.M) {
	easypg.WithTestDB(m, func() int { return m.Run() })
}

func setup(t *testing.T, opts ...test.SetupOption) (*Janitor, test.Setup) {
	s := test.NewSetup(t, opts...)
	j := NewJanitor(s.Config, s.ContentStore, s.DB).
		OverrideTimeNow(s.Clock.Now).
		DisableJitter()
	return j, s
}

func expectSuccess(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Error("expected err = nil, but got: " + err.Error())
	}
}

func expectError(t *testing.T, expected string, actual error) {
	t.Helper()
	if actual == nil {
		t.Errorf("expected err = %q, but got <nil>", expected)
	} else if expected != actual.Error() {
		t.Errorf("expected err = %q, but got %q", expected, actual.Error())
	}
}

func expectRowCount(t *testing.T, s test.Setup, query string, expected int64) {
	t.Helper()
	actual, err := s.DB.SelectInt(query)
	if err != nil {
		t.Fatal(err.Error())
	}
	if actual != expected {
		t.Errorf("expected %d rows from %q, but got %d", expected, query, actual)
	}
}
