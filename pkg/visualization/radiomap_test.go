package visualization

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krigingpower/internal/models"
	"krigingpower/pkg/interpolation"
)

// planeEstimator returns x+y as the estimate and the distance to the origin
// squared as the variance
type planeEstimator struct{}

func (planeEstimator) Estimate(q orb.Point) (models.KrigingResult, error) {
	return models.KrigingResult{Estimate: q[0] + q[1], Variance: q[0]*q[0] + q[1]*q[1]}, nil
}

type failingEstimator struct{}

func (failingEstimator) Estimate(orb.Point) (models.KrigingResult, error) {
	return models.KrigingResult{}, errors.New("no model")
}

var testBound = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 100}}

// TestBuildRadioMap verifies cell geometry and the stored layers
func TestBuildRadioMap(t *testing.T) {
	m, err := BuildRadioMap(context.Background(), planeEstimator{}, testBound, 10)
	require.NoError(t, err)

	w, h := m.Size()
	assert.Equal(t, 10, w)
	assert.Equal(t, 10, h)
	assert.Equal(t, testBound, m.Bound())

	// row 0 is the top of the map
	assert.Equal(t, orb.Point{5, 95}, m.CellCenter(0, 0))
	assert.Equal(t, orb.Point{95, 5}, m.CellCenter(9, 9))

	est, sd := m.At(0, 0)
	assert.InDelta(t, 100.0, est, 1e-12)
	assert.InDelta(t, 95.1315, sd, 1e-3)

	x, y, ok := m.Cell(orb.Point{12, 88})
	require.True(t, ok)
	assert.Equal(t, 1, x)
	assert.Equal(t, 1, y)
	x, y, ok = m.Cell(orb.Point{100, 0})
	require.True(t, ok)
	assert.Equal(t, 9, x)
	assert.Equal(t, 9, y)
	_, _, ok = m.Cell(orb.Point{-1, 50})
	assert.False(t, ok)
}

func TestBuildRadioMapErrors(t *testing.T) {
	_, err := BuildRadioMap(context.Background(), planeEstimator{}, testBound, 1)
	assert.Error(t, err)

	_, err = BuildRadioMap(context.Background(), planeEstimator{}, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0, 10}}, 4)
	assert.Error(t, err)

	_, err = BuildRadioMap(context.Background(), failingEstimator{}, testBound, 4)
	assert.ErrorContains(t, err, "no model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BuildRadioMap(ctx, planeEstimator{}, testBound, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRadioMapImage checks the min-max grayscale scaling
func TestRadioMapImage(t *testing.T) {
	m, err := BuildRadioMap(context.Background(), planeEstimator{}, testBound, 8)
	require.NoError(t, err)

	img, err := m.Image(LayerEstimate)
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), img.Gray16At(7, 0).Y, "top right is the maximum")
	assert.Equal(t, uint16(0), img.Gray16At(0, 7).Y, "bottom left is the minimum")

	_, err = m.Image(Layer("variance"))
	assert.Error(t, err)

	vals, err := m.Values(LayerStdDev)
	require.NoError(t, err)
	assert.Len(t, vals, 64)
	vals[0] = -1
	_, sd := m.At(0, 0)
	assert.Positive(t, sd, "Values returns a copy")
}

func TestRadioMapConstantLayer(t *testing.T) {
	s := models.Samples{{Location: orb.Point{50, 50}, Value: -70}}
	ok, err := interpolation.NewOrdinaryKriging(s, interpolation.Model{Family: interpolation.ExponentialFamily{}, Nugget: 1, Sill: 10, Range: 30})
	require.NoError(t, err)

	m, err := BuildRadioMap(context.Background(), ok, testBound, 4)
	require.NoError(t, err)

	img, err := m.Image(LayerEstimate)
	require.NoError(t, err)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, uint16(0), img.Gray16At(x, y).Y)
		}
	}
}

// TestRadioMapSave writes both layers and marks the samples
func TestRadioMapSave(t *testing.T) {
	m, err := BuildRadioMap(context.Background(), planeEstimator{}, testBound, 16)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "maps")
	require.NoError(t, m.Save(dir, []orb.Point{{1, 1}, {500, 500}}))

	for _, name := range []string{"estimate.png", "stddev.png"} {
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err, name)
		assert.Equal(t, 16, img.Bounds().Dx())
		assert.Equal(t, 16, img.Bounds().Dy())
	}

	f, err := os.Open(filepath.Join(dir, "estimate.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 15).RGBA()
	assert.Equal(t, uint32(0xffff), r, "sample at (1, 1) is marked white")
}
