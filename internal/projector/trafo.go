package projector

import "math"

// staticViewAngleX is the offset-independent horizontal view angle of a
// display column: the phi angle of the panorama sphere a centered virtual
// camera sees at horizontal display position x.
func (p *Projector) staticViewAngleX(x int) float64 {
	return math.Atan2(float64(x)-float64(p.displaySize.X)/2, p.f)
}

// staticViewAngleY is the offset-independent vertical view angle at display
// position (x, y). The sine factor turns the cylindrical vertical mapping
// into a true spherical one: columns away from the image center tilt less
// per pixel.
func (p *Projector) staticViewAngleY(y, x int) float64 {
	return math.Atan((float64(y) - float64(p.displaySize.Y)/2) / p.f *
		math.Sin(math.Atan2(p.f, float64(x)-float64(p.displaySize.X)/2)))
}

// rebuildStaticViewAngles refreshes the cached offset-independent view
// angles. They depend only on display size and focal length, not on the
// pan/tilt offsets, and are sampled at pixel corners (hence the +1 sizes).
func (p *Projector) rebuildStaticViewAngles() {
	w, h := p.displaySize.X, p.displaySize.Y

	p.staticPhi = resizeFloats(p.staticPhi, w+1)
	p.staticTheta = resizeFloats(p.staticTheta, (w+1)*(h+1))

	for x := 0; x <= w; x++ {
		p.staticPhi[x] = p.staticViewAngleX(x)
	}
	for y := 0; y <= h; y++ {
		for x := 0; x <= w; x++ {
			p.staticTheta[(w+1)*y+x] = p.staticViewAngleY(y, x)
		}
	}
}

// sphereX converts a display column to a horizontal panorama sphere buffer
// position for the current perspective. The result is not range checked.
func (p *Projector) sphereX(x int) float64 {
	return (p.staticPhi[x] + p.offsetPhi) * float64(p.sphereSize.X) / p.geom.CenteredHorizonFOV.H
}

// sphereY converts a display position to a vertical panorama sphere buffer
// position for the current perspective. The sphere's angular origin maps to
// the buffer's vertical midpoint. The result is not range checked.
func (p *Projector) sphereY(y, x int) float64 {
	return (p.staticTheta[(p.displaySize.X+1)*y+x]+p.offsetTheta)*
		float64(p.sphereSize.Y)/p.geom.CenteredHorizonFOV.V + float64(p.sphereSize.Y)/2
}

// lowestOversampling estimates how many panorama sphere pixels are projected
// onto a single display pixel, evaluated independently per axis at the
// display's top-left corner (the least-densely-sampled region) and taking
// the minimum. Values below 1 mean the sphere resolution limits display
// quality; large values mean wasted resampling work.
func (p *Projector) lowestOversampling() float64 {
	overX := p.sphereX(1) - p.sphereX(0)
	overY := p.sphereY(1, 0) - p.sphereY(0, 0)
	return math.Min(overX, overY)
}

// updateDisplayFOV adjusts the field of view parameters and cached
// transformations after a display size or zoom change, then lets the
// resolution manager decide whether the panorama sphere must be resized and
// re-resampled.
func (p *Projector) updateDisplayFOV(forceRemapSphere bool) error {
	p.updateProjectionParams()
	return p.manageSphereResolution(forceRemapSphere)
}

// updateProjectionParams recomputes the display FOV, the virtual focal
// length and the cached view angle tables for the current display size and
// zoom.
func (p *Projector) updateProjectionParams() {
	aspect := float64(p.displaySize.X) / float64(p.displaySize.Y)

	// The visible FOV is always normalized via the constant maximum
	// symmetric FOV; any other FOV is reached through the zoom parameter.
	tanFOV2 := math.Tan(p.geom.CenteredHorizonFOV.V / 2)

	p.displayFOV.H = 2 * math.Atan(tanFOV2*aspect/p.zoom)
	p.displayFOV.V = 2 * math.Atan(tanFOV2/p.zoom)

	// Virtual camera focal length for a fixed "sensor" the size of the
	// display; zooming scales the focal length.
	f0 := float64(p.displaySize.Y) / 2 / tanFOV2
	p.f = f0 * p.zoom

	p.rebuildStaticViewAngles()
}

// manageSphereResolution re-resamples the panorama sphere when the
// oversampling metric left its target band.
func (p *Projector) manageSphereResolution(forceRemapSphere bool) error {
	// Re-resample the sphere when the displayed resolution became too low
	// (unless a previous attempt showed the picture resolution is already
	// exhausted at this focal length) or unnecessarily high.
	remapSphere := (p.lowestOversampling() < minOversampling &&
		(p.maxUsableF == 0 || p.f < p.maxUsableF)) ||
		p.lowestOversampling() > maxOversampling

	if remapSphere || forceRemapSphere {
		if err := p.mapPictureToSphere(); err != nil {
			return err
		}

		// If the remap could not restore the minimum oversampling, remember
		// the focal length so further zooming in skips the futile remap.
		if remapSphere && p.lowestOversampling() < minOversampling {
			p.maxUsableF = p.f
		}
	}

	return nil
}

// resizeFloats returns a slice of length n, reusing the backing array when
// it is large enough.
func resizeFloats(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}
