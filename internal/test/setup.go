// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package test contains the harness shared by all unit tests that exercise
// the API or the business layer.
package test

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/mock"

	"github.com/stevedore-registry/stevedore/internal/api/registryv2"
	"github.com/stevedore-registry/stevedore/internal/drivers/inmemory"
	"github.com/stevedore-registry/stevedore/internal/drivers/trivial"
	"github.com/stevedore-registry/stevedore/internal/processor"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// Setup contains all the pieces that are needed for most tests.
type Setup struct {
	Config       stevedore.Configuration
	DB           *stevedore.DB
	Clock        *mock.Clock
	ContentStore *inmemory.ContentStore
	AccessMatrix *trivial.AccessChecker
	Processor    *processor.Processor
	Handler      http.Handler
}

// SetupOption is an optional behavior that can be given to Setup().
type SetupOption func(*setupParams)

type setupParams struct {
	Config          stevedore.Configuration
	DeniedRepoNames []string
}

// WithConfig is a SetupOption that replaces the default Configuration.
func WithConfig(cfg stevedore.Configuration) SetupOption {
	return func(params *setupParams) {
		params.Config = cfg
	}
}

// WithDeniedRepo is a SetupOption that makes the access checker deny all
// access to the given repository.
func WithDeniedRepo(repoName string) SetupOption {
	return func(params *setupParams) {
		params.DeniedRepoNames = append(params.DeniedRepoNames, repoName)
	}
}

// NewSetup prepares most or all pieces of the application for a test.
func NewSetup(t *testing.T, opts ...SetupOption) Setup {
	t.Helper()
	logg.ShowDebug, _ = strconv.ParseBool(os.Getenv("STEVEDORE_DEBUG"))

	params := setupParams{
		Config: stevedore.Configuration{
			MaxBlobSizeBytes:     10 << 20, // 10 MiB (small to keep oversize tests fast)
			MaxManifestSizeBytes: 1 << 20,  // 1 MiB
			UploadLifetime:       24 * time.Hour,
		},
	}
	for _, option := range opts {
		option(&params)
	}

	dbConn := easypg.ConnectForTest(t, stevedore.DBConfiguration(),
		easypg.ClearTables("blobs", "repos", "uploads"),
		easypg.ResetPrimaryKeys("blobs", "repos"),
	)
	db := stevedore.InitORM(dbConn)

	s := Setup{
		Config:       params.Config,
		DB:           db,
		Clock:        mock.NewClock(),
		ContentStore: inmemory.NewContentStore(),
		AccessMatrix: &trivial.AccessChecker{DeniedRepoNames: params.DeniedRepoNames},
	}

	uploadIDCounter := 0
	s.Processor = processor.New(s.Config, s.DB, s.ContentStore, &trivial.EventSink{}).
		OverrideTimeNow(s.Clock.Now).
		OverrideGenerateUploadID(func() string {
			uploadIDCounter++
			return fmt.Sprintf("upload-%d", uploadIDCounter)
		})

	r := mux.NewRouter()
	registryv2.NewAPI(s.Config, s.AccessMatrix, s.DB, s.Processor).AddTo(r)
	s.Handler = r
	return s
}

// MustExec is a shorthand for DB.Exec() that fails the test on error.
func (s Setup) MustExec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := s.DB.Exec(query, args...)
	if err != nil {
		t.Fatal(err.Error())
	}
}
