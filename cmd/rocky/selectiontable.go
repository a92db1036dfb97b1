package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rockyterrain/rocky/internal/ellipsoid"
	"github.com/rockyterrain/rocky/internal/profile"
	"github.com/rockyterrain/rocky/internal/selection"
)

func newSelectionTableCmd() *cobra.Command {
	var (
		profileName   string
		firstLOD      int
		maxLOD        int
		mtrf          float64
		restrictPolar bool
	)

	cmd := &cobra.Command{
		Use:   "selection-table",
		Short: "Print the per-LOD visibility/morph-band table built by SelectionInfo",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := profile.WellKnownProfile(profileName)
			if p == nil {
				return fmt.Errorf("unknown profile %q", profileName)
			}
			if maxLOD < firstLOD {
				return fmt.Errorf("max-lod (%d) must be >= first-lod (%d)", maxLOD, firstLOD)
			}

			e := ellipsoid.WGS84()
			info := selection.Build(firstLOD, maxLOD, p, e, mtrf, restrictPolar)

			cmd.Printf("%-4s %-16s %-16s %-16s\n", "lod", "visibility_range", "morph_start", "morph_end")
			for lod := firstLOD; lod <= maxLOD; lod++ {
				numWide, numHigh := p.GetNumTiles(lod)
				key := profile.New(lod, numWide/2, numHigh/2, p)
				visRange, morphStart, morphEnd := info.Get(key)
				cmd.Printf("%-4d %-16.1f %-16.1f %-16.1f\n", lod, visRange, morphStart, morphEnd)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "global-geodetic", "Profile: global-geodetic, spherical-mercator, plate-carree")
	cmd.Flags().IntVar(&firstLOD, "first-lod", 0, "First LOD in the table")
	cmd.Flags().IntVar(&maxLOD, "max-lod", 14, "Last LOD in the table")
	cmd.Flags().Float64Var(&mtrf, "mtrf", 7.0, "Meters-to-range factor (viewer pixel-error derived constant)")
	cmd.Flags().BoolVar(&restrictPolar, "restrict-polar", true, "Apply polar TY-band restriction for geographic profiles")

	return cmd
}
