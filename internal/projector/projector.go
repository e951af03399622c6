// Package projector maps a cropped panorama picture onto a panorama sphere
// and projects that sphere onto a rectilinear virtual camera for arbitrary
// pan/tilt/zoom perspectives.
//
// A Projector is built once per displayed picture. The caller declares the
// destination resolution with SetDisplaySize, changes perspective with
// SetView or CenterHorizon and reads the resulting frame from Display. All
// of these are synchronous: when they return, Display holds the frame for
// the new state. Internally the pixel work runs on a dedicated worker with a
// data-parallel row loop; Close stops the worker.
//
// A Projector must be used from a single goroutine.
package projector

import (
	"image"
	"math"

	"github.com/cwbudde/panoview/internal/scene"
)

// Oversampling thresholds of the resolution manager: the panorama sphere is
// re-resampled when the sphere-to-display pixel ratio leaves the
// [minOversampling, maxOversampling] band, aiming for targetOversampling.
const (
	minOversampling    = 1.0
	targetOversampling = 1.5
	maxOversampling    = 2.0
)

// ZoomMode selects how SetView determines the zoom level.
type ZoomMode uint8

const (
	// ZoomExplicit uses the given value, clamped to the no-margin minimum.
	ZoomExplicit ZoomMode = iota
	// ZoomMinCenteredHorizon forces the horizon to the display center and
	// uses the smallest zoom that shows no margins in that state.
	ZoomMinCenteredHorizon
	// ZoomMinNoMargin uses the smallest zoom that shows no margins for an
	// optimally fitted vertical view angle.
	ZoomMinNoMargin
)

// Zoom is a tagged zoom request for SetView.
type Zoom struct {
	Mode  ZoomMode
	Value float64
}

// ExplicitZoom requests the given zoom level.
func ExplicitZoom(v float64) Zoom { return Zoom{Mode: ZoomExplicit, Value: v} }

// MinCenteredHorizonZoom requests the minimum no-margin zoom with a centered
// horizon.
func MinCenteredHorizonZoom() Zoom { return Zoom{Mode: ZoomMinCenteredHorizon} }

// MinNoMarginZoom requests the minimum no-margin zoom for a fitted vertical
// view angle.
func MinNoMarginZoom() Zoom { return Zoom{Mode: ZoomMinNoMargin} }

// Projector owns the source picture, the derived scene geometry, the
// panorama sphere and the display buffer.
type Projector struct {
	geom scene.Geometry
	pic  *image.NRGBA

	zoom        float64
	f           float64 // virtual camera focal length in display pixels
	offsetPhi   float64
	offsetTheta float64

	displaySize image.Point
	displayFOV  scene.FOV
	display     *image.NRGBA

	// Offset-independent view angles per display position, rebuilt on zoom
	// or display size changes. staticPhi has displaySize.X+1 entries,
	// staticTheta (displaySize.X+1)*(displaySize.Y+1).
	staticPhi   []float64
	staticTheta []float64

	sphere     *image.NRGBA
	sphereSize image.Point

	// maxUsableF remembers the focal length beyond which re-resampling the
	// sphere could not restore the minimum oversampling (source resolution
	// exhausted); 0 means unset.
	maxUsableF float64

	worker *renderWorker
}

// New creates a Projector for an already decoded picture. The picture
// dimensions must match the crop size of the scene geometry.
func New(pic image.Image, geom scene.Geometry) (*Projector, error) {
	buf := toNRGBA(pic)
	if buf.Rect.Dx() != geom.CropSize.X || buf.Rect.Dy() != geom.CropSize.Y {
		return nil, ErrSizeMismatch
	}

	return &Projector{
		geom: geom,
		pic:  buf,
		zoom: 1,
	}, nil
}

// Open loads the picture file and creates a Projector for it.
func Open(path string, meta scene.Metadata) (*Projector, error) {
	geom, err := scene.NewGeometry(meta)
	if err != nil {
		return nil, err
	}
	pic, err := LoadPicture(path)
	if err != nil {
		return nil, err
	}
	return New(pic, geom)
}

// Close stops the render worker. The Projector must not be used afterwards.
func (p *Projector) Close() {
	if p.worker != nil {
		p.worker.stop()
		p.worker = nil
	}
}

// Geometry returns the derived scene geometry.
func (p *Projector) Geometry() scene.Geometry { return p.geom }

// OffsetPhi returns the current horizontal view angle offset.
func (p *Projector) OffsetPhi() float64 { return p.offsetPhi }

// OffsetTheta returns the current vertical view angle offset.
func (p *Projector) OffsetTheta() float64 { return p.offsetTheta }

// CurrentZoom returns the current zoom level.
func (p *Projector) CurrentZoom() float64 { return p.zoom }

// NormalizedZoom returns the zoom level relative to the smallest possible
// no-margin zoom, 1.0 being fully zoomed out.
func (p *Projector) NormalizedZoom() float64 {
	return p.zoom / p.geom.MinZoomNonCentered
}

// DisplaySize returns the current destination resolution.
func (p *Projector) DisplaySize() image.Point { return p.displaySize }

// DisplayFOV returns the field of view covered by the display projection.
func (p *Projector) DisplayFOV() scene.FOV { return p.displayFOV }

// Display returns the current rectilinear frame. The buffer is row-major
// RGBA with alpha fixed at 255 and is only valid until the next perspective
// or size change.
func (p *Projector) Display() *image.NRGBA { return p.display }

// RequiredZoomFromHFOV returns the zoom level that yields the given visible
// horizontal field of view. The result depends on the current display aspect
// ratio.
func (p *Projector) RequiredZoomFromHFOV(hfov float64) float64 {
	aspect := float64(p.displaySize.X) / float64(p.displaySize.Y)
	return math.Tan(p.geom.CenteredHorizonFOV.V/2) * aspect / math.Tan(hfov/2)
}

// RequiredZoomFromVFOV returns the zoom level that yields the given visible
// vertical field of view, independent of the display aspect ratio.
func (p *Projector) RequiredZoomFromVFOV(vfov float64) float64 {
	return math.Tan(p.geom.CenteredHorizonFOV.V/2) / math.Tan(vfov/2)
}

// ViewAngle returns the view angle a display pixel points at, excluding the
// current pan/tilt offsets. Useful for drag navigation: the angular delta
// between two display positions is offset-independent.
func (p *Projector) ViewAngle(pos image.Point) scene.ViewAngle {
	if len(p.staticPhi) == 0 {
		return scene.ViewAngle{}
	}
	x := clampInt(pos.X, 0, p.displaySize.X)
	y := clampInt(pos.Y, 0, p.displaySize.Y)
	return scene.ViewAngle{
		Phi:   p.staticPhi[x],
		Theta: p.staticTheta[(p.displaySize.X+1)*y+x],
	}
}

// SetDisplaySize declares or changes the destination resolution and renders
// the first frame at the new size. A 0x0 size yields an empty display buffer
// and no rendering; negative sizes are rejected.
func (p *Projector) SetDisplaySize(w, h int, forceResolutionRefresh bool) error {
	display, err := newWhiteBuffer(w, h)
	if err != nil {
		return err
	}

	p.displaySize = image.Pt(w, h)
	p.display = display

	if w == 0 || h == 0 {
		p.staticPhi = nil
		p.staticTheta = nil
		return nil
	}

	if err := p.updateDisplayFOV(forceResolutionRefresh); err != nil {
		return err
	}

	// Changed FOV might exceed available FOV, so fix perspective to avoid
	// margins.
	p.fitViewOffset()

	p.renderDisplay()
	return nil
}

// SetView changes the current perspective and renders the matching frame.
// The sphere is re-resampled if the zoom change moved the oversampling
// metric out of its target band, or unconditionally when
// forceResolutionRefresh is set.
func (p *Projector) SetView(zoom Zoom, offsetPhi, offsetTheta float64, forceResolutionRefresh bool) error {
	z := zoom.Value
	switch zoom.Mode {
	case ZoomMinCenteredHorizon:
		z = p.geom.MinZoomCenteredHorizon
		offsetTheta = 0
	case ZoomMinNoMargin:
		// Minimum possible zoom for the "perfect" vertical view angle that
		// just avoids both top and bottom margins; the angle itself is
		// produced by the offset fitting below.
		z = p.geom.MinZoomNonCentered
	default:
		if z < p.geom.MinZoomNonCentered {
			z = p.geom.MinZoomNonCentered
		}
	}

	// Perspective state can be set before a display size is declared; the
	// first SetDisplaySize call renders with it.
	if p.displaySize.X == 0 || p.displaySize.Y == 0 {
		p.zoom = z
		p.offsetPhi = offsetPhi
		p.offsetTheta = offsetTheta
		return nil
	}

	// Adjusting the display FOV is potentially expensive (may re-resample
	// the sphere), so only do it when the zoom actually changed.
	if z != p.zoom {
		p.zoom = z
		if err := p.updateDisplayFOV(forceResolutionRefresh); err != nil {
			return err
		}
	}

	p.offsetPhi = offsetPhi
	p.offsetTheta = offsetTheta

	p.fitViewOffset()

	p.renderDisplay()
	return nil
}

// CenterHorizon sets the vertical view angle offset to 0, raising the zoom
// if needed to avoid margins.
func (p *Projector) CenterHorizon(forceResolutionRefresh bool) error {
	return p.SetView(ExplicitZoom(math.Max(p.zoom, p.geom.MinZoomCenteredHorizon)), p.offsetPhi, 0, forceResolutionRefresh)
}

// fitViewOffset clips the view angle offsets so that no display pixel points
// beyond the available field of view. For non-360 scenes phi is clamped (or
// centered if the display FOV is wider than the scene); for 360 scenes phi
// is wrapped into [0, 2*pi) instead. Theta is always clamped against the
// asymmetric vertical extents.
func (p *Projector) fitViewOffset() {
	fov := p.geom.CenteredHorizonFOV

	if !p.geom.Is360 {
		if fov.H < p.displayFOV.H {
			p.offsetPhi = fov.H / 2
		} else if p.offsetPhi < p.displayFOV.H/2 {
			p.offsetPhi = p.displayFOV.H / 2
		} else if p.offsetPhi > fov.H-p.displayFOV.H/2 {
			p.offsetPhi = fov.H - p.displayFOV.H/2
		}
	} else {
		if p.offsetPhi < 0 {
			p.offsetPhi += 2 * math.Pi
		} else if p.offsetPhi >= 2*math.Pi {
			p.offsetPhi -= 2 * math.Pi
		}
	}

	if p.displayFOV.V/2-p.offsetTheta > p.geom.FOVTopLeft.Theta {
		p.offsetTheta = p.displayFOV.V/2 - p.geom.FOVTopLeft.Theta
	} else if p.displayFOV.V/2+p.offsetTheta > -p.geom.FOVBottomRight.Theta {
		p.offsetTheta = -(p.displayFOV.V/2 + p.geom.FOVBottomRight.Theta)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
