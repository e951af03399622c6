package main

import (
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/panoview/internal/projector"
	"github.com/cwbudde/panoview/internal/scene"
)

var (
	viewPicture string
	viewPTO     string
	viewOut     string
	viewWidth   int
	viewHeight  int
	viewPhiDeg  float64
	viewThetaDg float64
	viewZoom    string
	viewQuality int
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Render a rectilinear snapshot of a panorama",
	Long: `Loads a panorama picture with its metadata (.pnv sidecar, or a Hugin
.pto project via --pto) and writes one rectilinear view of it to a PNG or
JPEG file.`,
	RunE: runView,
}

func init() {
	viewCmd.Flags().StringVar(&viewPicture, "picture", "", "Panorama picture path (required)")
	viewCmd.Flags().StringVar(&viewPTO, "pto", "", "Hugin project file (default: .pnv sidecar of the picture)")
	viewCmd.Flags().StringVar(&viewOut, "out", "view.png", "Output image path (.png, .jpg)")
	viewCmd.Flags().IntVar(&viewWidth, "width", 1920, "Output width in pixels")
	viewCmd.Flags().IntVar(&viewHeight, "height", 1080, "Output height in pixels")
	viewCmd.Flags().Float64Var(&viewPhiDeg, "pan", 0, "Horizontal view angle in degrees")
	viewCmd.Flags().Float64Var(&viewThetaDg, "tilt", 0, "Vertical view angle in degrees")
	viewCmd.Flags().StringVar(&viewZoom, "zoom", "fit", "Zoom level: number, 'fit' or 'horizon'")
	viewCmd.Flags().IntVar(&viewQuality, "quality", 90, "JPEG quality (1-100)")

	viewCmd.MarkFlagRequired("picture")
	rootCmd.AddCommand(viewCmd)
}

// loadMetadata resolves panorama metadata from an explicit Hugin project or
// from the picture's sidecar.
func loadMetadata(picture, pto string) (scene.Metadata, error) {
	if pto != "" {
		return scene.LoadHuginProject(pto)
	}
	return scene.LoadSidecar(scene.SidecarPath(picture))
}

// parseZoom maps the textual zoom flag onto a zoom request.
func parseZoom(raw string) (projector.Zoom, error) {
	switch raw {
	case "fit":
		return projector.MinNoMarginZoom(), nil
	case "horizon":
		return projector.MinCenteredHorizonZoom(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return projector.Zoom{}, fmt.Errorf("invalid zoom: %q", raw)
	}
	return projector.ExplicitZoom(v), nil
}

func runView(cmd *cobra.Command, args []string) error {
	meta, err := loadMetadata(viewPicture, viewPTO)
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}
	zoom, err := parseZoom(viewZoom)
	if err != nil {
		return err
	}

	slog.Info("Rendering snapshot", "picture", viewPicture,
		"width", viewWidth, "height", viewHeight, "pan", viewPhiDeg, "tilt", viewThetaDg)

	p, err := projector.Open(viewPicture, meta)
	if err != nil {
		return fmt.Errorf("failed to open panorama: %w", err)
	}
	defer p.Close()

	start := time.Now()
	if err := p.SetDisplaySize(viewWidth, viewHeight, false); err != nil {
		return fmt.Errorf("failed to set output size: %w", err)
	}
	phi := viewPhiDeg * math.Pi / 180
	theta := viewThetaDg * math.Pi / 180
	if err := p.SetView(zoom, phi, theta, false); err != nil {
		return fmt.Errorf("failed to set view: %w", err)
	}
	elapsed := time.Since(start)

	outFile, err := os.Create(viewOut)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer outFile.Close()

	switch strings.ToLower(filepath.Ext(viewOut)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(outFile, p.Display(), &jpeg.Options{Quality: viewQuality})
	default:
		err = png.Encode(outFile, p.Display())
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	slog.Info("Snapshot complete", "elapsed", elapsed,
		"zoom", p.CurrentZoom(), "normalized_zoom", p.NormalizedZoom(),
		"phi", p.OffsetPhi(), "theta", p.OffsetTheta())

	fmt.Printf("Wrote %s (%dx%d, zoom %.3f)\n", viewOut, viewWidth, viewHeight, p.CurrentZoom())
	return nil
}
