package projector

import (
	"image"
	"math"
	"sync/atomic"
	"testing"

	"github.com/cwbudde/panoview/internal/scene"
)

func TestRenderWorkerSynchronousRedraw(t *testing.T) {
	var count atomic.Int32
	w := newRenderWorker(func() { count.Add(1) })
	defer w.stop()

	for i := 1; i <= 5; i++ {
		w.redraw()
		if got := count.Load(); got != int32(i) {
			t.Fatalf("after redraw %d the render ran %d times", i, got)
		}
	}
}

func TestRenderWorkerStopWaitsForExit(t *testing.T) {
	w := newRenderWorker(func() {})
	w.redraw()
	w.stop()

	select {
	case <-w.exit:
	default:
		t.Error("worker goroutine still running after stop")
	}
}

func TestParallelRowsCoversEveryRowOnce(t *testing.T) {
	for _, rows := range []int{0, 1, 7, 64, 1000} {
		seen := make([]atomic.Int32, rows)
		parallelRows(rows, func(y0, y1 int) {
			for y := y0; y < y1; y++ {
				seen[y].Add(1)
			}
		})
		for y := range seen {
			if got := seen[y].Load(); got != 1 {
				t.Errorf("rows=%d: row %d processed %d times", rows, y, got)
			}
		}
	}
}

func benchProjector(b *testing.B) *Projector {
	b.Helper()
	geom, err := scene.NewGeometry(scene.Metadata{
		Projection:    scene.Equirectangular,
		UncroppedSize: image.Pt(4000, 2000),
		UncroppedFOV:  scene.FOV{H: 2 * math.Pi, V: math.Pi},
		CropTL:        image.Pt(0, 0),
		CropBR:        image.Pt(4000, 2000),
	})
	if err != nil {
		b.Fatal(err)
	}
	p, err := New(flatPicture(geom.CropSize.X, geom.CropSize.Y, testGray), geom)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(p.Close)
	if err := p.SetDisplaySize(1280, 720, false); err != nil {
		b.Fatal(err)
	}
	if err := p.SetView(ExplicitZoom(2), 1.0, 0.1, false); err != nil {
		b.Fatal(err)
	}
	return p
}

func BenchmarkProjectSphereToDisplay(b *testing.B) {
	p := benchProjector(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.projectSphereToDisplay()
	}
}

func BenchmarkMapPictureToSphere(b *testing.B) {
	p := benchProjector(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.mapPictureToSphere(); err != nil {
			b.Fatal(err)
		}
	}
}
