// Command rocky is the CLI for the terrain core: it exercises the tile-key,
// image-layer-read, selection-table, and COG-to-PMTiles bake subsystems
// directly from the command line, playing the role the teacher's single
// geotiff2pmtiles binary played for the COG-to-PMTiles pipeline but split
// into cobra subcommands since rocky's surface area spans several
// independent operations rather than one linear conversion.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Set via -ldflags at build time, matching the teacher's version vars.
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var log = logrus.New()

func main() {
	var verbose bool

	root := &cobra.Command{
		Use:           "rocky",
		Short:         "Diagnostics for the rocky terrain tile engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newVersionCmd(),
		newInspectKeyCmd(),
		newInspectPMTilesCmd(),
		newSelectionTableCmd(),
		newFetchCmd(),
		newBakeCmd(),
	)

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("rocky: command failed")
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("rocky %s (commit %s, built %s)\n", version, commit, buildDate)
			return nil
		},
	}
}
