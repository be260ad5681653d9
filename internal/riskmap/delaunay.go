package riskmap

import (
	"math"
	"sort"

	"github.com/fogleman/delaunay"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/banshee-data/rockfall.report/internal/monitoring"
)

// Tolerances in normalized (unit-box) coordinates.
const (
	geomEps     = 1e-9
	minTriArea2 = 1e-14
)

type triangle struct {
	v [3]int
}

// interpolateLinear evaluates the piecewise-linear interpolant of the
// scattered samples (xs[k], ys[k]) -> vs[k] on the grid xi × yi. Cells
// outside the convex hull of the samples are 0, matching a dense render
// rather than extrapolating.
func interpolateLinear(xs, ys, vs, xi, yi []float64) *mat.Dense {
	Z := mat.NewDense(len(yi), len(xi), nil)

	pts, vals := dedupe(xs, ys, vs)
	norm := newNormalizer(pts)
	if norm.scale == 0 {
		// Every sample shares one coordinate, and so does every grid cell.
		for i := range yi {
			for j := range xi {
				Z.Set(i, j, vals[0])
			}
		}
		return Z
	}

	unit := make([]r2.Vec, len(pts))
	for k, p := range pts {
		unit[k] = norm.apply(p)
	}

	tris := triangulate(unit)
	if len(tris) == 0 {
		interpolateSegment(Z, unit, vals, norm, xi, yi)
		return Z
	}

	rasterize(Z, tris, unit, vals, norm, xi, yi)
	return Z
}

// dedupe keeps the first sample at each exact coordinate.
func dedupe(xs, ys, vs []float64) ([]r2.Vec, []float64) {
	seen := make(map[r2.Vec]struct{}, len(xs))
	pts := make([]r2.Vec, 0, len(xs))
	vals := make([]float64, 0, len(xs))
	for k := range xs {
		p := r2.Vec{X: xs[k], Y: ys[k]}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pts = append(pts, p)
		vals = append(vals, vs[k])
	}
	return pts, vals
}

// normalizer maps sample space onto the unit box so tolerances are scale free.
type normalizer struct {
	min   r2.Vec
	scale float64
}

func newNormalizer(pts []r2.Vec) normalizer {
	lo, hi := pts[0], pts[0]
	for _, p := range pts[1:] {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	return normalizer{min: lo, scale: math.Max(hi.X-lo.X, hi.Y-lo.Y)}
}

func (n normalizer) apply(p r2.Vec) r2.Vec {
	return r2.Scale(1/n.scale, r2.Sub(p, n.min))
}

// triangulate returns the Delaunay triangles of pts as vertex index
// triples. Points must be distinct and lie in the unit box. Collinear input
// yields no triangles.
func triangulate(pts []r2.Vec) []triangle {
	if len(pts) < 3 {
		return nil
	}
	in := make([]delaunay.Point, len(pts))
	for k, p := range pts {
		in[k] = delaunay.Point{X: p.X, Y: p.Y}
	}
	tri, err := delaunay.Triangulate(in)
	if err != nil {
		monitoring.Debugf("triangulation of %d points failed: %v", len(pts), err)
		return nil
	}

	out := make([]triangle, 0, len(tri.Triangles)/3)
	for k := 0; k+2 < len(tri.Triangles); k += 3 {
		t := triangle{v: [3]int{tri.Triangles[k], tri.Triangles[k+1], tri.Triangles[k+2]}}
		a, b, c := pts[t.v[0]], pts[t.v[1]], pts[t.v[2]]
		if math.Abs(r2.Cross(r2.Sub(b, a), r2.Sub(c, a))) < minTriArea2 {
			continue
		}
		out = append(out, t)
	}
	return out
}

// rasterize writes the barycentric interpolant of each triangle into the
// grid cells it covers.
func rasterize(Z *mat.Dense, tris []triangle, unit []r2.Vec, vals []float64, norm normalizer, xi, yi []float64) {
	gx := make([]float64, len(xi))
	for j, x := range xi {
		gx[j] = (x - norm.min.X) / norm.scale
	}
	gy := make([]float64, len(yi))
	for i, y := range yi {
		gy[i] = (y - norm.min.Y) / norm.scale
	}

	for _, t := range tris {
		a, b, c := unit[t.v[0]], unit[t.v[1]], unit[t.v[2]]
		loX, hiX := math.Min(a.X, math.Min(b.X, c.X)), math.Max(a.X, math.Max(b.X, c.X))
		loY, hiY := math.Min(a.Y, math.Min(b.Y, c.Y)), math.Max(a.Y, math.Max(b.Y, c.Y))

		j0, j1 := axisRange(gx, loX-geomEps, hiX+geomEps)
		i0, i1 := axisRange(gy, loY-geomEps, hiY+geomEps)
		area := r2.Cross(r2.Sub(b, a), r2.Sub(c, a))

		for i := i0; i < i1; i++ {
			for j := j0; j < j1; j++ {
				q := r2.Vec{X: gx[j], Y: gy[i]}
				la := r2.Cross(r2.Sub(b, q), r2.Sub(c, q)) / area
				lb := r2.Cross(r2.Sub(c, q), r2.Sub(a, q)) / area
				lc := 1 - la - lb
				if la < -geomEps || lb < -geomEps || lc < -geomEps {
					continue
				}
				Z.Set(i, j, la*vals[t.v[0]]+lb*vals[t.v[1]]+lc*vals[t.v[2]])
			}
		}
	}
}

// axisRange returns the half-open index range of the sorted axis within [lo, hi].
func axisRange(axis []float64, lo, hi float64) (int, int) {
	start := sort.SearchFloat64s(axis, lo)
	end := sort.Search(len(axis), func(k int) bool { return axis[k] > hi })
	return start, end
}

// interpolateSegment handles collinear samples, whose hull is a segment:
// only grid cells on that segment receive a value.
func interpolateSegment(Z *mat.Dense, unit []r2.Vec, vals []float64, norm normalizer, xi, yi []float64) {
	origin := unit[0]
	var far r2.Vec
	best := -1.0
	for _, p := range unit[1:] {
		if d := r2.Norm2(r2.Sub(p, origin)); d > best {
			best, far = d, p
		}
	}
	dir := r2.Unit(r2.Sub(far, origin))

	type sample struct{ t, v float64 }
	line := make([]sample, len(unit))
	for k, p := range unit {
		line[k] = sample{t: r2.Dot(r2.Sub(p, origin), dir), v: vals[k]}
	}
	sort.Slice(line, func(a, b int) bool { return line[a].t < line[b].t })
	ts := make([]float64, len(line))
	for k, s := range line {
		ts[k] = s.t
	}

	for i, y := range yi {
		for j, x := range xi {
			q := r2.Sub(norm.apply(r2.Vec{X: x, Y: y}), origin)
			if math.Abs(r2.Cross(dir, q)) > geomEps {
				continue
			}
			t := r2.Dot(q, dir)
			if t < ts[0]-geomEps || t > ts[len(ts)-1]+geomEps {
				continue
			}
			k := sort.SearchFloat64s(ts, t)
			switch {
			case k == 0:
				Z.Set(i, j, line[0].v)
			case k >= len(line):
				Z.Set(i, j, line[len(line)-1].v)
			default:
				lo, hi := line[k-1], line[k]
				f := (t - lo.t) / (hi.t - lo.t)
				Z.Set(i, j, lo.v+f*(hi.v-lo.v))
			}
		}
	}
}
