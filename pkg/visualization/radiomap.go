// Package visualization renders kriged radio maps: the estimated received
// power and its kriging standard deviation over a rectangular grid.
package visualization

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"krigingpower/internal/models"
)

// Estimator is anything that can be queried for a kriging result at a point,
// typically an *interpolation.OrdinaryKriging
type Estimator interface {
	Estimate(q orb.Point) (models.KrigingResult, error)
}

// Layer selects which grid of a RadioMap is rendered
type Layer string

const (
	LayerEstimate Layer = "estimate"
	LayerStdDev   Layer = "stddev"
)

// RadioMap holds kriging results on a regular grid covering a bound.
// Row 0 is the top (largest y) so the grid maps directly onto an image.
type RadioMap struct {
	bound  orb.Bound
	width  int
	height int

	estimate []float64
	stddev   []float64
}

// BuildRadioMap queries est at the center of every cell of a resolution x
// resolution grid over bound. Rows are split over the available cores.
func BuildRadioMap(ctx context.Context, est Estimator, bound orb.Bound, resolution int) (*RadioMap, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("resolution must be at least 2, got %d", resolution)
	}
	if bound.Max[0] <= bound.Min[0] || bound.Max[1] <= bound.Min[1] {
		return nil, fmt.Errorf("empty map bound %v", bound)
	}

	m := &RadioMap{
		bound:    bound,
		width:    resolution,
		height:   resolution,
		estimate: make([]float64, resolution*resolution),
		stddev:   make([]float64, resolution*resolution),
	}

	numCores := runtime.NumCPU()
	rowsPerCore := (m.height + numCores - 1) / numCores

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for c := 0; c < numCores; c++ {
		startRow := c * rowsPerCore
		endRow := min((c+1)*rowsPerCore, m.height)
		if startRow >= endRow {
			break
		}

		wg.Add(1)
		go func(startRow, endRow int) {
			defer wg.Done()
			for y := startRow; y < endRow; y++ {
				if ctx.Err() != nil {
					errOnce.Do(func() { firstErr = ctx.Err() })
					return
				}
				for x := 0; x < m.width; x++ {
					res, err := est.Estimate(m.CellCenter(x, y))
					if err != nil {
						errOnce.Do(func() { firstErr = errors.Wrapf(err, "radio map cell (%d, %d)", x, y) })
						return
					}
					idx := y*m.width + x
					m.estimate[idx] = res.Estimate
					m.stddev[idx] = math.Sqrt(math.Max(res.Variance, 0))
				}
			}
		}(startRow, endRow)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

// Bound returns the area covered by the map
func (m *RadioMap) Bound() orb.Bound {
	return m.bound
}

// Size returns the grid dimensions
func (m *RadioMap) Size() (width, height int) {
	return m.width, m.height
}

// CellCenter returns the location of grid cell (x, y)
func (m *RadioMap) CellCenter(x, y int) orb.Point {
	dx := (m.bound.Max[0] - m.bound.Min[0]) / float64(m.width)
	dy := (m.bound.Max[1] - m.bound.Min[1]) / float64(m.height)
	return orb.Point{
		m.bound.Min[0] + (float64(x)+0.5)*dx,
		m.bound.Max[1] - (float64(y)+0.5)*dy,
	}
}

// Cell maps a location to its grid cell; ok is false outside the bound
func (m *RadioMap) Cell(p orb.Point) (x, y int, ok bool) {
	if !m.bound.Contains(p) {
		return 0, 0, false
	}
	fx := (p[0] - m.bound.Min[0]) / (m.bound.Max[0] - m.bound.Min[0])
	fy := (m.bound.Max[1] - p[1]) / (m.bound.Max[1] - m.bound.Min[1])
	x = min(int(fx*float64(m.width)), m.width-1)
	y = min(int(fy*float64(m.height)), m.height-1)
	return x, y, true
}

// At returns the estimate and standard deviation of a cell
func (m *RadioMap) At(x, y int) (estimate, stddev float64) {
	idx := y*m.width + x
	return m.estimate[idx], m.stddev[idx]
}

// Values returns a copy of one layer in row-major order
func (m *RadioMap) Values(layer Layer) ([]float64, error) {
	data, err := m.layer(layer)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(data))
	copy(out, data)
	return out, nil
}

func (m *RadioMap) layer(layer Layer) ([]float64, error) {
	switch layer {
	case LayerEstimate:
		return m.estimate, nil
	case LayerStdDev:
		return m.stddev, nil
	}
	return nil, fmt.Errorf("invalid layer: %s (must be %s or %s)", layer, LayerEstimate, LayerStdDev)
}

// Image renders a layer as a grayscale image scaled from its minimum (black)
// to its maximum (white). A layer that is constant up to roundoff renders black.
func (m *RadioMap) Image(layer Layer) (*image.Gray16, error) {
	data, err := m.layer(layer)
	if err != nil {
		return nil, err
	}

	lo, hi := floats.Min(data), floats.Max(data)
	span := hi - lo
	if span <= 1e-9*math.Max(1, math.Max(math.Abs(lo), math.Abs(hi))) {
		span = 0
	}

	img := image.NewGray16(image.Rect(0, 0, m.width, m.height))
	for y := 0; y < m.height; y++ {
		for x := 0; x < m.width; x++ {
			var v float64
			if span > 0 {
				v = (data[y*m.width+x] - lo) / span
			}
			value := uint16(math.Max(0, math.Min(65535, v*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// MarkPoints draws the given locations as white pixels, e.g. the measurement
// sites on top of the estimate
func (m *RadioMap) MarkPoints(img *image.Gray16, pts []orb.Point) {
	for _, p := range pts {
		if x, y, ok := m.Cell(p); ok {
			img.SetGray16(x, y, color.White)
		}
	}
}

// SaveImage saves an image as PNG
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Save writes estimate.png (with the given sample locations marked) and
// stddev.png into outputDir
func (m *RadioMap) Save(outputDir string, samples []orb.Point) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrap(err, "error creating map directory")
	}

	for _, layer := range []Layer{LayerEstimate, LayerStdDev} {
		img, err := m.Image(layer)
		if err != nil {
			return err
		}
		if layer == LayerEstimate {
			m.MarkPoints(img, samples)
		}
		filename := filepath.Join(outputDir, string(layer)+".png")
		if err := SaveImage(img, filename); err != nil {
			return errors.Wrapf(err, "error saving %s", filename)
		}
	}
	return nil
}
