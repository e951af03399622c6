package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/panoview/internal/scene"
)

var convertOut string

var convertCmd = &cobra.Command{
	Use:   "convert <project.pto>",
	Short: "Extract panorama metadata from a Hugin project",
	Long: `Reads the panorama line of a Hugin .pto project and writes the
metadata as a .pnv sidecar, ready to be placed next to the stitched
picture.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVar(&convertOut, "out", "", "Output .pnv path (default: project path with .pnv extension)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ptoPath := args[0]

	meta, err := scene.LoadHuginProject(ptoPath)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	out := convertOut
	if out == "" {
		out = strings.TrimSuffix(ptoPath, ".pto") + scene.SidecarExt
	}

	if err := meta.SaveSidecar(out); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}

	fmt.Printf("Wrote %s (%s, %dx%d)\n", out, meta.Projection, meta.UncroppedSize.X, meta.UncroppedSize.Y)
	return nil
}
