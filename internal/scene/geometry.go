// Package scene describes panorama scenes: the projection metadata shipped
// alongside a panorama picture and the field-of-view geometry derived from it.
package scene

import (
	"fmt"
	"image"
	"math"
)

// Projection identifies how the panorama sphere was mapped onto the picture.
type Projection uint8

const (
	// CentralCylindrical is Hugin's "central cylindrical" projection.
	CentralCylindrical Projection = iota
	// Equirectangular maps both angles linearly to pixel coordinates.
	Equirectangular
)

// String returns the short code used in sidecar files.
func (p Projection) String() string {
	switch p {
	case CentralCylindrical:
		return "CYL"
	case Equirectangular:
		return "EQR"
	default:
		return fmt.Sprintf("Projection(%d)", uint8(p))
	}
}

// FOV is a horizontal/vertical pair of angular extents in radians.
type FOV struct {
	H float64
	V float64
}

// ViewAngle is a point on the panorama sphere. Phi is the horizontal angle,
// Theta the vertical angle above the horizon; both in radians.
type ViewAngle struct {
	Phi   float64
	Theta float64
}

// Metadata holds the scene information needed to reconstruct perspective for
// a cropped panorama picture. The uncropped reconstruction is assumed to be
// vertically symmetric about the horizon line; the crop rectangle is given in
// the uncropped pixel coordinate system.
type Metadata struct {
	Projection    Projection
	UncroppedSize image.Point
	UncroppedFOV  FOV // radians
	CropTL        image.Point
	CropBR        image.Point
}

// CropSize returns the pixel size of the cropped picture described by the
// crop rectangle.
func (m Metadata) CropSize() image.Point {
	return m.CropBR.Sub(m.CropTL)
}

// Geometry is the angular description of a panorama scene, derived once from
// Metadata and immutable afterwards.
type Geometry struct {
	Metadata

	CropSize image.Point

	// FOVTopLeft and FOVBottomRight are the sphere angles of the crop
	// rectangle's corners.
	FOVTopLeft     ViewAngle
	FOVBottomRight ViewAngle

	// CenteredHorizonFOV is the maximum symmetric FOV covered by the cropped
	// picture; the vertically narrower side may show a margin.
	CenteredHorizonFOV FOV
	// CenteredHorizonNoMarginFOV is the maximum symmetric FOV covered without
	// any margin.
	CenteredHorizonNoMarginFOV FOV
	// NonCenteredNoMarginFOV is the maximum asymmetric FOV covered without
	// any margin.
	NonCenteredNoMarginFOV FOV

	// Is360 reports whether the scene wraps around horizontally.
	Is360 bool

	// MinZoomCenteredHorizon is the smallest zoom showing no margins while
	// the horizon stays centered; MinZoomNonCentered the smallest zoom
	// showing no margins for an optimally chosen vertical offset.
	MinZoomCenteredHorizon float64
	MinZoomNonCentered     float64
}

// roundedLess compares a < b within 4 decimal places, tolerating
// floating-point noise near the boundary.
func roundedLess(a, b float64) bool {
	return int(a*10000)+1 < int(b*10000)
}

// NewGeometry derives the angular scene geometry from metadata.
func NewGeometry(m Metadata) (Geometry, error) {
	if m.UncroppedSize.X <= 0 || m.UncroppedSize.Y <= 0 {
		return Geometry{}, fmt.Errorf("invalid uncropped size %dx%d", m.UncroppedSize.X, m.UncroppedSize.Y)
	}
	crop := m.CropSize()
	if crop.X <= 0 || crop.Y <= 0 {
		return Geometry{}, fmt.Errorf("invalid crop rectangle %v..%v", m.CropTL, m.CropBR)
	}
	if m.UncroppedFOV.H <= 0 || m.UncroppedFOV.V <= 0 {
		return Geometry{}, fmt.Errorf("invalid uncropped field of view %v", m.UncroppedFOV)
	}

	tl := cornerAngle(m, m.CropTL)
	br := cornerAngle(m, m.CropBR)

	centered := FOV{H: br.Phi - tl.Phi, V: 2 * math.Max(tl.Theta, -br.Theta)}
	noMargin := FOV{H: br.Phi - tl.Phi, V: 2 * math.Min(tl.Theta, -br.Theta)}
	asymmetric := FOV{H: br.Phi - tl.Phi, V: tl.Theta - br.Theta}

	if noMargin.V <= 0 || asymmetric.V <= 0 {
		return Geometry{}, fmt.Errorf("crop rectangle does not cover the horizon line")
	}

	g := Geometry{
		Metadata:                   m,
		CropSize:                   crop,
		FOVTopLeft:                 tl,
		FOVBottomRight:             br,
		CenteredHorizonFOV:         centered,
		CenteredHorizonNoMarginFOV: noMargin,
		NonCenteredNoMarginFOV:     asymmetric,
		Is360:                      !roundedLess(centered.H, 2*math.Pi),
		MinZoomCenteredHorizon:     math.Tan(centered.V/2) / math.Tan(noMargin.V/2),
		MinZoomNonCentered:         math.Tan(centered.V/2) / math.Tan(asymmetric.V/2),
	}
	return g, nil
}

// cornerAngle computes the sphere angle a crop corner points at. The
// horizontal angle scales linearly with the pixel offset for both projection
// types; the vertical angle uses the inverse cylindrical (tangent) relation
// for CentralCylindrical and a linear relation for Equirectangular.
func cornerAngle(m Metadata, corner image.Point) ViewAngle {
	phi := m.UncroppedFOV.H * float64(corner.X) / float64(m.UncroppedSize.X)

	halfH := float64(m.UncroppedSize.Y) / 2
	aboveHorizon := halfH - float64(corner.Y)

	var theta float64
	switch m.Projection {
	case CentralCylindrical:
		theta = math.Atan(math.Tan(m.UncroppedFOV.V/2) / halfH * aboveHorizon)
	case Equirectangular:
		theta = m.UncroppedFOV.V / 2 * aboveHorizon / halfH
	}

	return ViewAngle{Phi: phi, Theta: theta}
}
