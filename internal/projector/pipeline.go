package projector

import (
	"math"
	"runtime"
	"sync"
)

// renderWorker runs whole-frame display recomputation on a dedicated
// goroutine. The handoff is a one-shot task channel: the caller sends a
// request and blocks until the worker signals completion, so redraws are
// synchronous from the caller's point of view and never overlap.
type renderWorker struct {
	req  chan struct{}
	done chan struct{}
	exit chan struct{}
}

func newRenderWorker(render func()) *renderWorker {
	w := &renderWorker{
		req:  make(chan struct{}),
		done: make(chan struct{}),
		exit: make(chan struct{}),
	}
	go func() {
		defer close(w.exit)
		for range w.req {
			render()
			w.done <- struct{}{}
		}
	}()
	return w
}

// redraw triggers one recomputation and waits for it to finish.
func (w *renderWorker) redraw() {
	w.req <- struct{}{}
	<-w.done
}

// stop shuts the worker down and waits for it to exit. No redraw is in
// flight at this point: every request is acknowledged before redraw
// returns.
func (w *renderWorker) stop() {
	close(w.req)
	<-w.exit
}

// renderDisplay projects the panorama sphere at the current perspective into
// the display buffer. The worker is started lazily on the first redraw.
func (p *Projector) renderDisplay() {
	if p.worker == nil {
		p.worker = newRenderWorker(p.projectSphereToDisplay)
	}
	p.worker.redraw()
}

// projectSphereToDisplay recomputes the full display buffer: for every
// destination pixel the pre-image rectangle on the panorama sphere is
// derived from the cached view angles plus the current pan/tilt offsets and
// resolved to a color by area-weighted resampling. The pixel loop is
// decomposed across rows; each destination pixel writes a disjoint output
// location and only reads buffers that do not change during the pass.
func (p *Projector) projectSphereToDisplay() {
	w, h := p.displaySize.X, p.displaySize.Y

	// Final per-corner sphere positions for the current perspective; reused
	// for every destination pixel.
	trafosX := make([]float64, w+1)
	trafosY := make([]float64, (w+1)*(h+1))
	for x := 0; x <= w; x++ {
		trafosX[x] = p.sphereX(x)
	}
	for y := 0; y <= h; y++ {
		for x := 0; x <= w; x++ {
			trafosY[(w+1)*y+x] = p.sphereY(y, x)
		}
	}

	sphereW := p.sphereSize.X
	wrap360 := p.geom.Is360

	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			rowBase := y * p.display.Stride
			for x := 0; x < w; x++ {
				tlx := trafosX[x]
				brx := trafosX[x+1]
				tly := trafosY[(w+1)*y+x]
				bry := trafosY[(w+1)*(y+1)+x+1]

				outOfRange := false

				if wrap360 {
					// The transforms may leave the sphere's phi range; keep
					// individual values non-negative and the width positive,
					// the wraparound inside the resampler does the rest.
					if tlx < 0 {
						tlx += float64(sphereW)
					}
					if brx-tlx < 0 {
						brx += float64(sphereW)
					}
				} else {
					// Finite scenes cannot wrap: clamp the rectangle and
					// detect pixels that fall fully outside the sphere.
					if tlx < 0 {
						tlx = 0
						if brx < 0 {
							brx = 0
							outOfRange = true
						}
					} else if int(brx) >= sphereW {
						brx = math.Nextafter(float64(sphereW), 0)
						if tlx > brx {
							tlx = brx
							outOfRange = true
						}
					}
				}

				i := rowBase + x*4
				if outOfRange {
					// Nothing of the scene is visible here; paint black.
					p.display.Pix[i] = 0
					p.display.Pix[i+1] = 0
					p.display.Pix[i+2] = 0
					continue
				}

				r, g, b := interpolatePixel(p.sphere, p.sphereSize, wrap360, tlx, tly, brx, bry)
				p.display.Pix[i] = r
				p.display.Pix[i+1] = g
				p.display.Pix[i+2] = b
			}
		}
	})
}

// parallelRows splits [0, rows) into contiguous chunks and runs fn on each
// from its own goroutine, returning when all chunks are done.
func parallelRows(rows int, fn func(y0, y1 int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		fn(0, rows)
		return
	}

	chunk := (rows + workers - 1) / workers

	var wg sync.WaitGroup
	for y0 := 0; y0 < rows; y0 += chunk {
		y1 := y0 + chunk
		if y1 > rows {
			y1 = rows
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}
