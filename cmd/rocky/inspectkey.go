package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rockyterrain/rocky/internal/profile"
)

func newInspectKeyCmd() *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "inspect-key <lod>/<x>/<y>",
		Short: "Print a TileKey's extent, hash, quadrant, parent, and neighbors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := profile.WellKnownProfile(profileName)
			if p == nil {
				return fmt.Errorf("unknown profile %q", profileName)
			}

			lod, x, y, err := parseKeyArg(args[0])
			if err != nil {
				return err
			}

			key := profile.New(lod, x, y, p)
			if !key.Valid() {
				return fmt.Errorf("invalid key %s", key.Str())
			}

			ext := key.GetExtent()
			parent := key.CreateParentKey()

			cmd.Printf("key:        %s\n", key.Str())
			cmd.Printf("hash:       %d\n", key.Hash())
			cmd.Printf("quadrant:   %d\n", key.GetQuadrant())
			cmd.Printf("extent:     [%g, %g] x [%g, %g]\n", ext.XMin, ext.YMin, ext.XMax, ext.YMax)
			if parent.Valid() {
				cmd.Printf("parent:     %s\n", parent.Str())
			} else {
				cmd.Printf("parent:     (none, LOD 0)\n")
			}
			for _, child := range []int{0, 1, 2, 3} {
				cmd.Printf("child[%d]:   %s\n", child, key.CreateChildKey(child).Str())
			}
			for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				cmd.Printf("neighbor(%d,%d): %s\n", d[0], d[1], key.CreateNeighborKey(d[0], d[1]).Str())
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", "global-geodetic", "Profile: global-geodetic, spherical-mercator, plate-carree")
	return cmd
}

func parseKeyArg(arg string) (lod, x, y int, err error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected <lod>/<x>/<y>, got %q", arg)
	}
	lod, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid lod %q: %w", parts[0], err)
	}
	x, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid x %q: %w", parts[1], err)
	}
	y, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid y %q: %w", parts[2], err)
	}
	return lod, x, y, nil
}
