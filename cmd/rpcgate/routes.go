package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/rpcgate/config"
	"github.com/artpar/rpcgate/core/telemetry"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the routing table, aliases, and middleware chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoutes()
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes() error {
	holder, err := config.NewHolder(cfgFile, zerolog.Nop())
	if err != nil {
		return err
	}
	defer holder.Stop()

	logger := zerolog.Nop()
	emitter := telemetry.NewEmitter(logger)

	table, err := buildDemoDeclaration(holder, logger, emitter).Build()
	if err != nil {
		return err
	}

	fmt.Printf("Router: %s\n\n", table.Name())
	fmt.Printf("%-28s %-13s %-10s %s\n", "PATH", "KIND", "UNIT", "MIDDLEWARE")
	for _, path := range table.Paths() {
		entry, _ := table.Entry(path)
		mw, _ := table.MiddlewareFor(path)
		chain := "-"
		if len(mw) > 0 {
			chain = strings.Join(mw, " -> ")
		}
		fmt.Printf("%-28s %-13s %-10s %s\n", entry.Path, entry.Kind, entry.Unit, chain)
	}

	aliases := table.Aliases()
	if len(aliases) > 0 {
		fmt.Printf("\n%-28s %-28s %s\n", "ALIAS", "TARGET", "DEPRECATED")
		for _, a := range aliases {
			fmt.Printf("%-28s %-28s %v\n", a.From, a.To, a.Deprecated)
		}
	}

	fmt.Fprintf(os.Stdout, "\n%d procedures, %d aliases, units: %s\n",
		len(table.Paths()), len(aliases), strings.Join(table.DeclaringUnits(), ", "))
	return nil
}
