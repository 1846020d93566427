// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package janitorcmd

import (
	"net/http"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/httpapi"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	"github.com/stevedore-registry/stevedore/internal/stevedore"
	"github.com/stevedore-registry/stevedore/internal/tasks"
)

// AddCommandTo mounts this command into the command hierarchy.
func AddCommandTo(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Run the janitor server component.",
		Long:  "Run the janitor server component. Configuration is read from environment variables as described in README.md.",
		Args:  cobra.NoArgs,
		Run:   run,
	}
	parent.AddCommand(cmd)
}

func run(cmd *cobra.Command, args []string) {
	stevedore.SetTaskName("janitor")

	cfg := stevedore.ParseConfiguration()
	ctx := httpext.ContextWithSIGINT(cmd.Context(), 10*time.Second)

	dbURL, dbName := stevedore.GetDatabaseURLFromEnvironment()
	dbConn := must.Return(easypg.Connect(dbURL, stevedore.DBConfiguration()))
	prometheus.MustRegister(sqlstats.NewStatsCollector(dbName, dbConn))
	db := stevedore.InitORM(dbConn)

	cs := must.Return(stevedore.NewContentStore(osext.MustGetenv("STEVEDORE_DRIVER_STORAGE")))

	// start job loops
	janitor := tasks.NewJanitor(cfg, cs, db)
	go janitor.ExpiredUploadCleanupJob(nil).Run(ctx)
	go janitor.BlobSweepJob(nil).Run(ctx)

	// start HTTP server for Prometheus metrics and health check
	handler := httpapi.Compose(httpapi.HealthCheckAPI{
		SkipRequestLog: true,
		Check: func() error {
			return db.Db.PingContext(ctx)
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.Handle("/metrics", promhttp.Handler())

	listenAddress := osext.GetenvOrDefault("STEVEDORE_JANITOR_LISTEN_ADDRESS", ":8080")
	must.Succeed(httpext.ListenAndServeContext(ctx, listenAddress, mux))
}
