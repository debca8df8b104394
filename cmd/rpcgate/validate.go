package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/rpcgate/config"
	"github.com/artpar/rpcgate/core/telemetry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and the procedure declarations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	fmt.Println("configuration: ok")

	holder := config.NewStaticHolder(cfg)
	defer holder.Stop()

	logger := zerolog.Nop()
	table, err := buildDemoDeclaration(holder, logger, telemetry.NewEmitter(logger)).Build()
	if err != nil {
		return fmt.Errorf("declarations: %w", err)
	}
	fmt.Printf("declarations: ok (%d procedures, %d aliases)\n",
		len(table.Paths()), len(table.Aliases()))
	return nil
}
