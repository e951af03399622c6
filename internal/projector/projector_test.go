package projector

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/cwbudde/panoview/internal/scene"
)

// flatPicture returns a solid-color picture of the given size.
func flatPicture(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// fullSphereGeometry describes an uncropped 360x180 degree equirectangular
// scene of the given pixel size.
func fullSphereGeometry(t *testing.T, w, h int) scene.Geometry {
	t.Helper()
	g, err := scene.NewGeometry(scene.Metadata{
		Projection:    scene.Equirectangular,
		UncroppedSize: image.Pt(w, h),
		UncroppedFOV:  scene.FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(0, 0),
		CropBR:        image.Pt(w, h),
	})
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}
	return g
}

// croppedGeometry describes a finite equirectangular scene with an
// asymmetric vertical crop (300 px above, 400 px below the horizon).
func croppedGeometry(t *testing.T) scene.Geometry {
	t.Helper()
	g, err := scene.NewGeometry(scene.Metadata{
		Projection:    scene.Equirectangular,
		UncroppedSize: image.Pt(2000, 1000),
		UncroppedFOV:  scene.FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(100, 200),
		CropBR:        image.Pt(1900, 900),
	})
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}
	return g
}

func newTestProjector(t *testing.T, geom scene.Geometry, c color.NRGBA) *Projector {
	t.Helper()
	p, err := New(flatPicture(geom.CropSize.X, geom.CropSize.Y, c), geom)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

var testGray = color.NRGBA{R: 100, G: 150, B: 200, A: 255}

func TestNewRejectsSizeMismatch(t *testing.T) {
	geom := fullSphereGeometry(t, 400, 200)
	if _, err := New(flatPicture(399, 200, testGray), geom); err != ErrSizeMismatch {
		t.Errorf("got error %v, want ErrSizeMismatch", err)
	}
}

func TestSetDisplaySizeRejectsNegative(t *testing.T) {
	p := newTestProjector(t, fullSphereGeometry(t, 400, 200), testGray)
	if err := p.SetDisplaySize(-1, 100, false); err != ErrInvalidDisplaySize {
		t.Errorf("got error %v, want ErrInvalidDisplaySize", err)
	}
}

func TestSetDisplaySizeZeroYieldsEmptyBuffer(t *testing.T) {
	p := newTestProjector(t, fullSphereGeometry(t, 400, 200), testGray)
	if err := p.SetDisplaySize(0, 0, false); err != nil {
		t.Fatalf("SetDisplaySize(0,0) failed: %v", err)
	}
	if len(p.Display().Pix) != 0 {
		t.Errorf("display buffer not empty: %d bytes", len(p.Display().Pix))
	}
}

func TestSetViewMinCenteredHorizon(t *testing.T) {
	geom := croppedGeometry(t)
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	// Arbitrary starting angles; the centered-horizon request must override
	// theta and pin the zoom.
	if err := p.SetView(MinCenteredHorizonZoom(), 1.0, 0.5, false); err != nil {
		t.Fatal(err)
	}

	if math.Abs(p.OffsetTheta()) > 1e-12 {
		t.Errorf("theta = %v, want 0", p.OffsetTheta())
	}
	if p.CurrentZoom() != geom.MinZoomCenteredHorizon {
		t.Errorf("zoom = %v, want %v", p.CurrentZoom(), geom.MinZoomCenteredHorizon)
	}
}

func TestSetViewMinNoMargin(t *testing.T) {
	geom := croppedGeometry(t)
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetView(MinNoMarginZoom(), 1.0, 0, false); err != nil {
		t.Fatal(err)
	}

	if p.CurrentZoom() != geom.MinZoomNonCentered {
		t.Errorf("zoom = %v, want %v", p.CurrentZoom(), geom.MinZoomNonCentered)
	}
	if p.NormalizedZoom() != 1 {
		t.Errorf("normalized zoom = %v, want 1", p.NormalizedZoom())
	}

	// The fitted vertical offset leans towards the larger bottom extent:
	// theta = asymmetricFOV/2 - topTheta.
	wantTheta := geom.NonCenteredNoMarginFOV.V/2 - geom.FOVTopLeft.Theta
	if math.Abs(p.OffsetTheta()-wantTheta) > 1e-9 {
		t.Errorf("theta = %v, want %v", p.OffsetTheta(), wantTheta)
	}
}

func TestExplicitZoomClampedToMinimum(t *testing.T) {
	geom := croppedGeometry(t)
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetView(ExplicitZoom(geom.MinZoomNonCentered/4), 0, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.CurrentZoom() != geom.MinZoomNonCentered {
		t.Errorf("zoom = %v, want clamp to %v", p.CurrentZoom(), geom.MinZoomNonCentered)
	}
}

func TestFitViewOffsetClampsPhiForFiniteScene(t *testing.T) {
	geom := croppedGeometry(t)
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	// Zoom in far enough that the display FOV is a small fraction of the
	// scene; then phi must stay inside [dfov/2, total-dfov/2].
	if err := p.SetView(ExplicitZoom(8), 0, 0, false); err != nil {
		t.Fatal(err)
	}
	lo := p.DisplayFOV().H / 2
	hi := geom.CenteredHorizonFOV.H - p.DisplayFOV().H/2

	if p.OffsetPhi() != lo {
		t.Errorf("phi = %v, want clamped to %v", p.OffsetPhi(), lo)
	}

	if err := p.SetView(ExplicitZoom(8), 100, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.OffsetPhi() != hi {
		t.Errorf("phi = %v, want clamped to %v", p.OffsetPhi(), hi)
	}

	if err := p.SetView(ExplicitZoom(8), (lo+hi)/2, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.OffsetPhi() != (lo+hi)/2 {
		t.Errorf("phi = %v, in-range value must not be touched", p.OffsetPhi())
	}
}

func TestFitViewOffsetCentersPhiForNarrowScene(t *testing.T) {
	// 36 degree wide scene: any reasonable display FOV exceeds it.
	geom, err := scene.NewGeometry(scene.Metadata{
		Projection:    scene.Equirectangular,
		UncroppedSize: image.Pt(2000, 1000),
		UncroppedFOV:  scene.FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(100, 200),
		CropBR:        image.Pt(300, 900),
	})
	if err != nil {
		t.Fatal(err)
	}
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetView(MinNoMarginZoom(), 3.0, 0, false); err != nil {
		t.Fatal(err)
	}

	if p.DisplayFOV().H <= geom.CenteredHorizonFOV.H {
		t.Fatalf("test premise broken: display FOV %v not wider than scene %v",
			p.DisplayFOV().H, geom.CenteredHorizonFOV.H)
	}
	if p.OffsetPhi() != geom.CenteredHorizonFOV.H/2 {
		t.Errorf("phi = %v, want centered at %v", p.OffsetPhi(), geom.CenteredHorizonFOV.H/2)
	}
}

func TestFitViewOffsetWrapsPhiFor360Scene(t *testing.T) {
	p := newTestProjector(t, fullSphereGeometry(t, 400, 200), testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		in   float64
		want float64
	}{
		{-0.5, 2*math.Pi - 0.5},
		{7.0, 7.0 - 2*math.Pi},
		{1.0, 1.0},
	}
	for _, tc := range cases {
		if err := p.SetView(ExplicitZoom(5), tc.in, 0, false); err != nil {
			t.Fatal(err)
		}
		if got := p.OffsetPhi(); math.Abs(got-tc.want) > 1e-12 || got < 0 || got >= 2*math.Pi {
			t.Errorf("phi after fitting %v = %v, want %v in [0,2pi)", tc.in, got, tc.want)
		}
	}
}

func TestCenterHorizonAfterPanning(t *testing.T) {
	geom := croppedGeometry(t)
	p := newTestProjector(t, geom, testGray)
	if err := p.SetDisplaySize(160, 120, false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetView(ExplicitZoom(3), 2.0, 0.3, false); err != nil {
		t.Fatal(err)
	}
	zoomBefore := p.CurrentZoom()

	if err := p.CenterHorizon(false); err != nil {
		t.Fatal(err)
	}
	if p.OffsetTheta() != 0 {
		t.Errorf("theta = %v, want exactly 0", p.OffsetTheta())
	}
	if p.CurrentZoom() < zoomBefore {
		t.Errorf("zoom decreased from %v to %v", zoomBefore, p.CurrentZoom())
	}
}

func TestNormalizedZoomFullSphereScenario(t *testing.T) {
	p := newTestProjector(t, fullSphereGeometry(t, 1000, 500), testGray)

	if err := p.SetDisplaySize(800, 600, false); err != nil {
		t.Fatal(err)
	}
	if err := p.SetView(MinNoMarginZoom(), 0, 0, false); err != nil {
		t.Fatal(err)
	}

	if p.NormalizedZoom() != 1 {
		t.Errorf("normalized zoom = %v, want 1", p.NormalizedZoom())
	}
	if math.Abs(p.OffsetTheta()) > 1e-12 {
		t.Errorf("theta = %v, want 0", p.OffsetTheta())
	}
}

func TestOversamplingDecreasesWithZoom(t *testing.T) {
	p := newTestProjector(t, croppedGeometry(t), testGray)
	if err := p.SetDisplaySize(320, 240, false); err != nil {
		t.Fatal(err)
	}

	// Evaluate the raw metric against a fixed sphere: recompute only the
	// projection parameters, skipping the resolution manager. The sweep stays
	// above the zoom where the display corner passes the focal distance; below
	// it the corner pixels are at grazing view angles and the corner metric is
	// not monotonic.
	prev := math.Inf(1)
	for zoom := 5.0; zoom < 40; zoom *= 1.5 {
		p.zoom = zoom
		p.updateProjectionParams()

		over := p.lowestOversampling()
		if over >= prev {
			t.Errorf("oversampling not decreasing: %v at zoom %v, was %v", over, zoom, prev)
		}
		prev = over
	}
}

func TestMaxUsableFocalLengthSkipsFutileRemaps(t *testing.T) {
	// A tiny source picture exhausts its resolution almost immediately.
	p := newTestProjector(t, fullSphereGeometry(t, 64, 32), testGray)
	if err := p.SetDisplaySize(320, 240, false); err != nil {
		t.Fatal(err)
	}

	if err := p.SetView(ExplicitZoom(8), 0, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.maxUsableF == 0 {
		t.Fatal("exhausted picture resolution not remembered")
	}
	limit := p.maxUsableF
	sphereBefore := p.sphereSize

	// Zooming in further must not re-resample the sphere again.
	if err := p.SetView(ExplicitZoom(16), 0, 0, false); err != nil {
		t.Fatal(err)
	}
	if p.sphereSize != sphereBefore {
		t.Errorf("sphere resized from %v to %v despite known dead end", sphereBefore, p.sphereSize)
	}
	if p.maxUsableF != limit {
		t.Errorf("dead-end focal length changed from %v to %v", limit, p.maxUsableF)
	}
}

func TestViewAngleIsOffsetIndependent(t *testing.T) {
	p := newTestProjector(t, croppedGeometry(t), testGray)
	if err := p.SetDisplaySize(200, 150, false); err != nil {
		t.Fatal(err)
	}

	center := p.ViewAngle(image.Pt(100, 75))
	if math.Abs(center.Phi) > 1e-9 || math.Abs(center.Theta) > 1e-9 {
		t.Errorf("center pixel angle = %+v, want (0,0)", center)
	}

	right := p.ViewAngle(image.Pt(150, 75))
	if right.Phi <= 0 {
		t.Errorf("pixel right of center has phi %v, want > 0", right.Phi)
	}

	// Panning must not change the reported angles.
	if err := p.SetView(ExplicitZoom(2), 1.5, 0.2, false); err != nil {
		t.Fatal(err)
	}
	zoomed := p.ViewAngle(image.Pt(150, 75))
	if zoomed.Phi >= right.Phi {
		t.Errorf("zooming in must narrow the per-pixel angle: %v vs %v", zoomed.Phi, right.Phi)
	}

	before := p.ViewAngle(image.Pt(42, 17))
	if err := p.SetView(ExplicitZoom(2), 3.0, -0.1, false); err != nil {
		t.Fatal(err)
	}
	after := p.ViewAngle(image.Pt(42, 17))
	if before != after {
		t.Errorf("view angle changed with pan offset: %+v vs %+v", before, after)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestProjector(t, fullSphereGeometry(t, 400, 200), testGray)
	if err := p.SetDisplaySize(100, 80, false); err != nil {
		t.Fatal(err)
	}
	p.Close()
	p.Close()
}
