package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/carto-collectif/rostermap/internal/geocache"
)

var cacheOutdir string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show cumulative geocoding cache statistics",
	RunE: func(_ *cobra.Command, _ []string) error {
		dir := cacheOutdir
		if dir == "" {
			dir = cfg.Output.Dir
		}

		store := geocache.Open(dir)
		store.Load()

		fmt.Printf("cache file: %s\n", store.Path())
		fmt.Printf("entries:    %d\n", store.Len())

		if info, err := os.Stat(store.Path()); err == nil {
			fmt.Printf("size:       %d bytes\n", info.Size())
		} else if !os.IsNotExist(err) {
			return eris.Wrap(err, "cache: stat cache file")
		}
		return nil
	},
}

func init() {
	cacheCmd.Flags().StringVar(&cacheOutdir, "outdir", "", "directory holding the cumulative caches (default from config)")
	rootCmd.AddCommand(cacheCmd)
}
