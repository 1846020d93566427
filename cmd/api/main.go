// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package apicmd

import (
	"net/http"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	"github.com/stevedore-registry/stevedore/internal/api/registryv2"
	"github.com/stevedore-registry/stevedore/internal/processor"
	"github.com/stevedore-registry/stevedore/internal/stevedore"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the API server component.",
		Long:  "Run the API server component. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	stevedore.SetTaskName("api")

	cfg := stevedore.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)

	dbURL, dbName := stevedore.GetDatabaseURLFromEnvironment()
	dbConn := must.Return(easypg.Connect(dbURL, stevedore.DBConfiguration()))
	prometheus.MustRegister(sqlstats.NewStatsCollector(dbName, dbConn))
	db := stevedore.InitORM(dbConn)

	cs := must.Return(stevedore.NewContentStore(osext.MustGetenv("STEVEDORE_DRIVER_STORAGE")))
	ac := must.Return(stevedore.NewAccessChecker(osext.MustGetenv("STEVEDORE_DRIVER_ACCESS")))
	sink := must.Return(stevedore.NewEventSink(osext.GetenvOrDefault("STEVEDORE_DRIVER_EVENTS", `{"type":"trivial"}`)))
	proc := processor.New(cfg, db, cs, sink)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Content-Type", "Content-Range", "User-Agent", "Authorization"},
	})
	handler := httpapi.Compose(
		registryv2.NewAPI(cfg, ac, db, proc),
		httpapi.HealthCheckAPI{
			SkipRequestLog: true,
			Check: func() error {
				return db.Db.PingContext(ctx)
			},
		},
		httpapi.WithGlobalMiddleware(corsMiddleware.Handler),
	)
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	apiListenAddress := osext.GetenvOrDefault("STEVEDORE_API_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, apiListenAddress, mux))
}
