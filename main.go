// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"

	apicmd "github.com/stevedore-registry/stevedore/cmd/api"
	janitorcmd "github.com/stevedore-registry/stevedore/cmd/janitor"
	"github.com/stevedore-registry/stevedore/internal/stevedore"

	// include all driver implementations shipped with this binary
	_ "github.com/stevedore-registry/stevedore/internal/drivers/filesystem"
	_ "github.com/stevedore-registry/stevedore/internal/drivers/trivial"
)

func main() {
	logg.ShowDebug = osext.GetenvBool("STEVEDORE_DEBUG")
	stevedore.SetupHTTPClient()

	rootCmd := &cobra.Command{
		Use:     "stevedore",
		Short:   "Container image registry",
		Long:    "Stevedore is a Registry v2 API server with pluggable storage and access control.",
		Version: bininfo.VersionOr("rolling"),
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Server commands.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}
	apicmd.AddCommandTo(serverCmd)
	janitorcmd.AddCommandTo(serverCmd)
	rootCmd.AddCommand(serverCmd)

	if rootCmd.Execute() != nil {
		os.Exit(1)
	}
}
