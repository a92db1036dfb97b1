package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/rockyterrain/rocky/internal/cog"
	"github.com/rockyterrain/rocky/internal/coord"
	"github.com/rockyterrain/rocky/internal/encode"
	"github.com/rockyterrain/rocky/internal/pmtiles"
	"github.com/rockyterrain/rocky/internal/tile"
)

func newBakeCmd() *cobra.Command {
	var (
		cogPath     string
		minLOD      int
		maxLOD      int
		tileSize    int
		format      string
		quality     int
		resampling  string
		concurrency int
		out         string
		attribution string
	)

	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Pre-render a GeoTIFF/COG into a PMTiles v3 archive",
		Long: "Builds a web-mercator tile pyramid from a COG — rendering max-lod directly\n" +
			"from source pixels via per-pixel reprojection, then deriving every lower\n" +
			"level by downsampling 2x2 child tiles — and writes the result to a PMTiles\n" +
			"v3 archive for offline serving, an offline counterpart to fetch's on-demand\n" +
			"COGImageSource reads.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxLOD >= 0 && minLOD >= 0 && maxLOD < minLOD {
				return fmt.Errorf("max-lod (%d) must be >= min-lod (%d)", maxLOD, minLOD)
			}

			enc, err := encode.NewEncoder(format, quality)
			if err != nil {
				return fmt.Errorf("encoder: %w", err)
			}

			resamplingMode, err := tile.ParseResampling(resampling)
			if err != nil {
				return fmt.Errorf("resampling: %w", err)
			}

			r, err := cog.Open(cogPath)
			if err != nil {
				return fmt.Errorf("opening %s: %w", cogPath, err)
			}
			defer r.Close()

			if format == "terrarium" && !r.IsFloat() {
				return fmt.Errorf("terrarium format requires float GeoTIFF input (elevation data)")
			}

			bounds := cog.MergedBoundsWGS84([]*cog.Reader{r})

			if maxLOD < 0 {
				pixelSizeMeters := coord.PixelSizeInGroundMeters(r.PixelSize(), r.EPSG(), bounds.CenterLat())
				maxLOD = coord.MaxZoomForResolution(pixelSizeMeters, bounds.CenterLat())
			}
			if minLOD < 0 {
				minLOD = maxLOD - 6
				if minLOD < 0 {
					minLOD = 0
				}
			}

			writer, err := pmtiles.NewWriter(out, pmtiles.WriterOptions{
				MinZoom:     minLOD,
				MaxZoom:     maxLOD,
				Bounds:      bounds,
				TileFormat:  enc.PMTileType(),
				TileSize:    tileSize,
				TempDir:     filepath.Dir(out),
				Name:        filepath.Base(cogPath),
				Description: fmt.Sprintf("Baked from %s, LOD %d-%d", cogPath, minLOD, maxLOD),
				Attribution: attribution,
			})
			if err != nil {
				return fmt.Errorf("creating pmtiles writer: %w", err)
			}

			cfg := tile.Config{
				MinZoom:     minLOD,
				MaxZoom:     maxLOD,
				TileSize:    tileSize,
				Concurrency: concurrency,
				Verbose:     false,
				Encoder:     enc,
				Bounds:      bounds,
				Resampling:  resamplingMode,
				IsTerrarium: format == "terrarium",
			}

			start := time.Now()
			stats, err := tile.Generate(cfg, []*cog.Reader{r}, writer)
			if err != nil {
				writer.Abort()
				return fmt.Errorf("baking tiles: %w", err)
			}
			if err := writer.Finalize(); err != nil {
				return fmt.Errorf("finalizing %s: %w", out, err)
			}

			cmd.Printf("baked %d tiles (%d empty, %d uniform) in %v -> %s\n",
				stats.TileCount, stats.EmptyTiles, stats.UniformTiles,
				time.Since(start).Round(time.Millisecond), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&cogPath, "cog", "", "Path to a local GeoTIFF/COG to bake from (required)")
	cmd.Flags().IntVar(&minLOD, "min-lod", -1, "First LOD to bake (default: max-lod - 6)")
	cmd.Flags().IntVar(&maxLOD, "max-lod", -1, "Last LOD to bake (default: auto from source resolution)")
	cmd.Flags().IntVar(&tileSize, "tile-size", 256, "Tile size in pixels")
	cmd.Flags().StringVar(&format, "format", "png", "Tile encoding: png, jpeg, webp, terrarium")
	cmd.Flags().IntVar(&quality, "quality", 85, "JPEG/WebP quality 1-100")
	cmd.Flags().StringVar(&resampling, "resampling", "bilinear", "Interpolation method: bilinear, nearest")
	cmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of parallel bake workers")
	cmd.Flags().StringVar(&out, "out", "baked.pmtiles", "Output PMTiles archive path")
	cmd.Flags().StringVar(&attribution, "attribution", "", "Attribution string stored in PMTiles metadata")
	cmd.MarkFlagRequired("cog")

	return cmd
}
