package interpolation

import (
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// samplePoint is a sample location that remembers its index in the training
// set. It implements kdtree.Comparable.
type samplePoint struct {
	X, Y  float64
	index int
}

// Compare implements the kdtree.Comparable interface
func (p samplePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(samplePoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p samplePoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p samplePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(samplePoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// samplePoints satisfies kdtree.Interface
type samplePoints []samplePoint

func (p samplePoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p samplePoints) Len() int                              { return len(p) }
func (p samplePoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p samplePoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{samplePoints: p, Dim: d}, kdtree.MedianOfMedians(pointPlane{samplePoints: p, Dim: d}))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for samplePoints
type pointPlane struct {
	samplePoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.samplePoints[i].X < p.samplePoints[j].X
	case 1:
		return p.samplePoints[i].Y < p.samplePoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{samplePoints: p.samplePoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.samplePoints[i], p.samplePoints[j] = p.samplePoints[j], p.samplePoints[i]
}

// neighborIndex answers k-nearest-sample queries
type neighborIndex struct {
	tree *kdtree.Tree
}

func newNeighborIndex(locations []orb.Point) *neighborIndex {
	pts := make(samplePoints, len(locations))
	for i, loc := range locations {
		pts[i] = samplePoint{X: loc[0], Y: loc[1], index: i}
	}
	return &neighborIndex{tree: kdtree.New(pts, false)}
}

// nearest returns the indices of the k samples closest to q, in ascending
// index order so that systems built from them are deterministic
func (ni *neighborIndex) nearest(q orb.Point, k int) []int {
	keeper := kdtree.NewNKeeper(k)
	ni.tree.NearestSet(keeper, samplePoint{X: q[0], Y: q[1], index: -1})

	idx := make([]int, 0, k)
	for _, c := range keeper.Heap {
		if c.Comparable == nil {
			continue
		}
		idx = append(idx, c.Comparable.(samplePoint).index)
	}
	sort.Ints(idx)
	return idx
}
