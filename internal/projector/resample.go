package projector

import (
	"image"
	"math"

	"github.com/cwbudde/panoview/internal/scene"
)

// interpolatePixel computes the intersection-area-weighted mean color of all
// source pixels overlapping the rectangle (tlx,tly)-(brx,bry), given in
// source buffer coordinates. Horizontal out-of-range pixels wrap around the
// buffer width for 360 degree scenes; for finite scenes they contribute
// nothing (zero weight). Vertical out-of-range pixels are always skipped.
//
// Only RGB is produced; the alpha channel of the buffers stays untouched.
func interpolatePixel(src *image.NRGBA, srcSize image.Point, wrap360 bool, tlx, tly, brx, bry float64) (uint8, uint8, uint8) {
	// Outermost source pixels at least partially covered by the rectangle.
	tlxi := int(tlx)
	tlyi := int(tly)
	brxi := int(brx)
	bryi := int(bry)

	nx := brxi - tlxi + 1
	ny := bryi - tlyi + 1

	var r, g, b float64
	var totalWeight float64

	for iy := 0; iy < ny; iy++ {
		// Rounding effects can push rows out of bounds; skip them.
		sy := tlyi + iy
		if sy < 0 || sy >= srcSize.Y {
			continue
		}

		yWeight := 1.0
		if iy == 0 {
			yWeight = 1 + float64(tlyi) - tly
		} else if iy == ny-1 {
			yWeight = bry - float64(bryi)
		}

		rowBase := sy * src.Stride

		for ix := 0; ix < nx; ix++ {
			sx := tlxi + ix

			// Horizontal out-of-range pixels only occur legitimately for
			// 360 degree scenes, where they wrap around the seam. Finite
			// scenes must never wrap, so those pixels are dropped.
			wrap := 0
			if sx < 0 {
				wrap = srcSize.X
			} else if sx >= srcSize.X {
				wrap = -srcSize.X
			}
			if !wrap360 && wrap != 0 {
				continue
			}

			xWeight := 1.0
			if ix == 0 {
				xWeight = 1 + float64(tlxi) - tlx
			} else if ix == nx-1 {
				xWeight = brx - float64(brxi)
			}

			weight := xWeight * yWeight
			totalWeight += weight

			i := rowBase + (sx+wrap)*4
			r += weight * float64(src.Pix[i])
			g += weight * float64(src.Pix[i+1])
			b += weight * float64(src.Pix[i+2])
		}
	}

	if totalWeight <= 0 {
		return 0, 0, 0
	}
	return uint8(r / totalWeight), uint8(g / totalWeight), uint8(b / totalWeight)
}

// sphereRemap carries the picture-to-sphere coordinate transforms. The
// horizontal transform is a plain scale division for both projection types;
// the vertical transform inverts the projection's FOV-to-pixel mapping
// around the picture's horizon row.
type sphereRemap struct {
	scaleFactor float64
	picHorizonY float64 // horizon row in the cropped picture
	tanFOV2     float64 // tan of half the uncropped vertical FOV
	cylindrical bool

	sphereSize   image.Point
	uncroppedH   float64
	centeredFOVV float64
}

func (t sphereRemap) toPictureX(x float64) float64 {
	return x / t.scaleFactor
}

func (t sphereRemap) toPictureY(y float64) float64 {
	if t.cylindrical {
		return math.Tan((y-float64(t.sphereSize.Y)/2)*t.centeredFOVV/float64(t.sphereSize.Y))/
			t.tanFOV2*t.uncroppedH/2 + t.picHorizonY
	}
	return (y-float64(t.sphereSize.Y)/2)/t.scaleFactor + t.picHorizonY
}

// mapPictureToSphere fills the panorama sphere buffer with a resampled,
// angle-indexed reconstruction of the scene. The sphere starts at full
// picture width (its maximum useful resolution) and is shrunk towards the
// target oversampling when the current perspective does not need that much.
func (p *Projector) mapPictureToSphere() error {
	picW := p.geom.CropSize.X

	// Width from the picture, height from the scene's angular aspect ratio:
	// sphere coordinates are plain angles.
	fov := p.geom.CenteredHorizonFOV
	p.sphereSize = image.Pt(picW, int(float64(picW)*fov.V/fov.H+1))

	remap := sphereRemap{
		scaleFactor:  1,
		picHorizonY:  float64(p.geom.UncroppedSize.Y)/2 - float64(p.geom.CropTL.Y),
		tanFOV2:      math.Tan(p.geom.UncroppedFOV.V / 2),
		cylindrical:  p.geom.Projection == scene.CentralCylindrical,
		uncroppedH:   float64(p.geom.UncroppedSize.Y),
		centeredFOVV: fov.V,
	}

	// If display pixels would transform to unnecessarily many sphere pixels,
	// reduce the sphere resolution to the target oversampling.
	if over := p.lowestOversampling(); over > targetOversampling {
		remap.scaleFactor = targetOversampling / over
		p.sphereSize = image.Pt(
			int(remap.scaleFactor*float64(picW)+1),
			int(remap.scaleFactor*float64(picW)*fov.V/fov.H+1))
	}
	remap.sphereSize = p.sphereSize

	sphere, err := newWhiteBuffer(p.sphereSize.X, p.sphereSize.Y)
	if err != nil {
		return err
	}
	p.sphere = sphere

	// The transform values are reused for every sphere pixel; sample them at
	// pixel corners once.
	trafosX := make([]float64, p.sphereSize.X+1)
	trafosY := make([]float64, p.sphereSize.Y+1)
	for x := 0; x <= p.sphereSize.X; x++ {
		trafosX[x] = remap.toPictureX(float64(x))
	}
	for y := 0; y <= p.sphereSize.Y; y++ {
		trafosY[y] = remap.toPictureY(float64(y))
	}

	picSize := p.geom.CropSize
	wrap360 := p.geom.Is360

	parallelRows(p.sphereSize.Y, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			tly := trafosY[y]
			bry := trafosY[y+1]

			// The sphere is vertically symmetric about the horizon but the
			// picture usually is not; rows outside the picture stay white.
			if bry <= 0 || tly >= float64(picSize.Y) {
				continue
			}

			rowBase := y * p.sphere.Stride
			for x := 0; x < p.sphereSize.X; x++ {
				r, g, b := interpolatePixel(p.pic, picSize, wrap360,
					trafosX[x], tly, trafosX[x+1], bry)

				i := rowBase + x*4
				p.sphere.Pix[i] = r
				p.sphere.Pix[i+1] = g
				p.sphere.Pix[i+2] = b
			}
		}
	})

	return nil
}
