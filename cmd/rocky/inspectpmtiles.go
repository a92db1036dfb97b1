package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockyterrain/rocky/internal/pmtiles"
)

func newInspectPMTilesCmd() *cobra.Command {
	var zoom int

	cmd := &cobra.Command{
		Use:   "inspect-pmtiles <archive.pmtiles>",
		Short: "Print a PMTiles v3 archive's header, metadata, and tile counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := pmtiles.OpenReader(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			h := r.Header()
			cmd.Printf("type:        %s\n", pmtiles.TileTypeString(h.TileType))
			cmd.Printf("zoom:        %d - %d\n", h.MinZoom, h.MaxZoom)
			cmd.Printf("bounds:      [%g, %g] x [%g, %g]\n", h.MinLon, h.MinLat, h.MaxLon, h.MaxLat)
			cmd.Printf("tiles:       %d\n", r.NumTiles())

			meta, err := r.ReadMetadata()
			if err != nil {
				return fmt.Errorf("reading metadata: %w", err)
			}
			for _, k := range []string{"name", "description", "attribution", "type"} {
				if v, ok := meta[k]; ok {
					cmd.Printf("%-12s %v\n", k+":", v)
				}
			}

			if zoom >= 0 {
				tiles := r.TilesAtZoom(zoom)
				cmd.Printf("zoom %d:     %d tile(s)\n", zoom, len(tiles))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&zoom, "zoom", -1, "Report the tile count at this zoom level")

	return cmd
}
