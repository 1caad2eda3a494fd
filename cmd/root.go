package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/carto-collectif/rostermap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "rostermap",
	Short: "Geocode activist rosters into uMap-ready GeoJSON",
	Long:  "Reads a CSV or XLSX roster, resolves each postal address via Nominatim and BAN, and writes per-bucket GeoJSON plus cache deltas and a quality report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
