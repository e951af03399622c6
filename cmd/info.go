package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/panoview/internal/scene"
)

var infoPTO string

var infoCmd = &cobra.Command{
	Use:   "info <picture>",
	Short: "Print the derived scene geometry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&infoPTO, "pto", "", "Hugin project file (default: .pnv sidecar of the picture)")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	picture := args[0]

	var (
		meta scene.Metadata
		err  error
	)
	if strings.HasSuffix(picture, scene.SidecarExt) {
		meta, err = scene.LoadSidecar(picture)
	} else {
		meta, err = loadMetadata(picture, infoPTO)
	}
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	geom, err := scene.NewGeometry(meta)
	if err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}

	info := map[string]interface{}{
		"projection":             meta.Projection.String(),
		"uncroppedSize":          meta.UncroppedSize,
		"uncroppedFov":           meta.UncroppedFOV,
		"cropTopLeft":            meta.CropTL,
		"cropBottomRight":        meta.CropBR,
		"cropSize":               geom.CropSize,
		"fovTopLeft":             geom.FOVTopLeft,
		"fovBottomRight":         geom.FOVBottomRight,
		"fovCenteredHorizon":     geom.CenteredHorizonFOV,
		"fovNoMargin":            geom.CenteredHorizonNoMarginFOV,
		"fovNonCenteredNoMargin": geom.NonCenteredNoMarginFOV,
		"is360":                  geom.Is360,
		"minZoomCenteredHorizon": geom.MinZoomCenteredHorizon,
		"minZoomNoMargin":        geom.MinZoomNonCentered,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
