package scene

import (
	"image"
	"math"
	"testing"
)

const angleTol = 1e-9

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestGeometryEquirectangularFullSphere(t *testing.T) {
	m := Metadata{
		Projection:    Equirectangular,
		UncroppedSize: image.Pt(4000, 2000),
		UncroppedFOV:  FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(0, 0),
		CropBR:        image.Pt(4000, 2000),
	}

	g, err := NewGeometry(m)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}

	if !almostEqual(g.FOVTopLeft.Phi, 0, angleTol) || !almostEqual(g.FOVTopLeft.Theta, math.Pi/2, angleTol) {
		t.Errorf("top left FOV = %+v, want (0, pi/2)", g.FOVTopLeft)
	}
	if !almostEqual(g.FOVBottomRight.Phi, 2*math.Pi, angleTol) || !almostEqual(g.FOVBottomRight.Theta, -math.Pi/2, angleTol) {
		t.Errorf("bottom right FOV = %+v, want (2pi, -pi/2)", g.FOVBottomRight)
	}
	if !g.Is360 {
		t.Error("full sphere scene not detected as 360 degrees")
	}
	if g.MinZoomCenteredHorizon != 1 || g.MinZoomNonCentered != 1 {
		t.Errorf("symmetric full crop should have min zooms of 1, got %v / %v",
			g.MinZoomCenteredHorizon, g.MinZoomNonCentered)
	}
}

func TestGeometryEquirectangularAsymmetricCrop(t *testing.T) {
	m := Metadata{
		Projection:    Equirectangular,
		UncroppedSize: image.Pt(2000, 1000),
		UncroppedFOV:  FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(100, 200),
		CropBR:        image.Pt(1900, 900),
	}

	g, err := NewGeometry(m)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}

	// The crop keeps 300 of 500 pixels above and 400 of 500 below the
	// horizon, so the corner angles are 0.3*pi/2*2 and -0.4*pi respectively.
	if !almostEqual(g.FOVTopLeft.Theta, 0.3*math.Pi, angleTol) {
		t.Errorf("top left theta = %v, want %v", g.FOVTopLeft.Theta, 0.3*math.Pi)
	}
	if !almostEqual(g.FOVBottomRight.Theta, -0.4*math.Pi, angleTol) {
		t.Errorf("bottom right theta = %v, want %v", g.FOVBottomRight.Theta, -0.4*math.Pi)
	}

	if !almostEqual(g.CenteredHorizonFOV.V, 0.8*math.Pi, angleTol) {
		t.Errorf("centered horizon FOV = %v, want %v", g.CenteredHorizonFOV.V, 0.8*math.Pi)
	}
	if !almostEqual(g.CenteredHorizonNoMarginFOV.V, 0.6*math.Pi, angleTol) {
		t.Errorf("centered no-margin FOV = %v, want %v", g.CenteredHorizonNoMarginFOV.V, 0.6*math.Pi)
	}
	if !almostEqual(g.NonCenteredNoMarginFOV.V, 0.7*math.Pi, angleTol) {
		t.Errorf("asymmetric no-margin FOV = %v, want %v", g.NonCenteredNoMarginFOV.V, 0.7*math.Pi)
	}

	if !almostEqual(g.CenteredHorizonFOV.H, 1.8*math.Pi, angleTol) {
		t.Errorf("horizontal FOV = %v, want %v", g.CenteredHorizonFOV.H, 1.8*math.Pi)
	}
	if g.Is360 {
		t.Error("1.8*pi scene wrongly detected as 360 degrees")
	}

	wantMinCent := math.Tan(0.4*math.Pi) / math.Tan(0.3*math.Pi)
	if !almostEqual(g.MinZoomCenteredHorizon, wantMinCent, 1e-9) {
		t.Errorf("min centered zoom = %v, want %v", g.MinZoomCenteredHorizon, wantMinCent)
	}
	wantMinNonCent := math.Tan(0.4*math.Pi) / math.Tan(0.35*math.Pi)
	if !almostEqual(g.MinZoomNonCentered, wantMinNonCent, 1e-9) {
		t.Errorf("min non-centered zoom = %v, want %v", g.MinZoomNonCentered, wantMinNonCent)
	}

	if got := g.CropSize; got != image.Pt(1800, 700) {
		t.Errorf("crop size = %v, want (1800,700)", got)
	}
}

func TestGeometryCentralCylindricalTangentRelation(t *testing.T) {
	m := Metadata{
		Projection:    CentralCylindrical,
		UncroppedSize: image.Pt(1000, 500),
		UncroppedFOV:  FOV{H: 2 * math.Pi / 3, V: math.Pi / 2},
		CropTL:        image.Pt(0, 0),
		CropBR:        image.Pt(1000, 400),
	}

	g, err := NewGeometry(m)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}

	// Top edge at the uncropped boundary: theta = atan(tan(pi/4)) = pi/4.
	if !almostEqual(g.FOVTopLeft.Theta, math.Pi/4, angleTol) {
		t.Errorf("top left theta = %v, want %v", g.FOVTopLeft.Theta, math.Pi/4)
	}
	// Bottom edge 150 px below the horizon: theta = -atan(0.6).
	if !almostEqual(g.FOVBottomRight.Theta, -math.Atan(0.6), angleTol) {
		t.Errorf("bottom right theta = %v, want %v", g.FOVBottomRight.Theta, -math.Atan(0.6))
	}
	if g.Is360 {
		t.Error("120 degree scene wrongly detected as 360 degrees")
	}
}

func TestGeometryIs360Rounding(t *testing.T) {
	// A horizontal FOV a hair below 2*pi must still count as 360 degrees;
	// a clearly smaller one must not.
	cases := []struct {
		name string
		hfov float64
		want bool
	}{
		{"exact", 2 * math.Pi, true},
		{"noise_below", 2*math.Pi - 1e-7, true},
		{"clearly_below", 2*math.Pi - 0.01, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Metadata{
				Projection:    Equirectangular,
				UncroppedSize: image.Pt(1000, 500),
				UncroppedFOV:  FOV{H: tc.hfov, V: math.Pi},
				CropTL:        image.Pt(0, 0),
				CropBR:        image.Pt(1000, 500),
			}
			g, err := NewGeometry(m)
			if err != nil {
				t.Fatalf("NewGeometry failed: %v", err)
			}
			if g.Is360 != tc.want {
				t.Errorf("Is360 = %v, want %v", g.Is360, tc.want)
			}
		})
	}
}

func TestGeometryRejectsInvalidMetadata(t *testing.T) {
	valid := Metadata{
		Projection:    Equirectangular,
		UncroppedSize: image.Pt(1000, 500),
		UncroppedFOV:  FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(0, 0),
		CropBR:        image.Pt(1000, 500),
	}

	cases := []struct {
		name   string
		mutate func(*Metadata)
	}{
		{"zero_size", func(m *Metadata) { m.UncroppedSize = image.Pt(0, 0) }},
		{"empty_crop", func(m *Metadata) { m.CropBR = m.CropTL }},
		{"inverted_crop", func(m *Metadata) { m.CropTL, m.CropBR = m.CropBR, m.CropTL }},
		{"zero_fov", func(m *Metadata) { m.UncroppedFOV = FOV{} }},
		{"crop_misses_horizon", func(m *Metadata) { m.CropBR.Y = 200 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid
			tc.mutate(&m)
			if _, err := NewGeometry(m); err == nil {
				t.Error("NewGeometry accepted invalid metadata")
			}
		})
	}
}
