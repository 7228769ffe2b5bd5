package contour

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Polyline is an ordered chain of connected contour points.
type Polyline struct {
	// Points are the chain vertices in drawing order. A closed polyline does
	// not repeat its first point at the end.
	Points []r2.Vec

	// Indices maps every point back to the interpolated point it came from
	Indices []int

	// Closed is true when the last point connects back to the first
	Closed bool
}

// Path returns the points to hand to a line-drawing primitive, repeating the
// first point at the end of a closed polyline.
func (p Polyline) Path() []r2.Vec {
	if !p.Closed || len(p.Points) == 0 {
		return p.Points
	}
	path := make([]r2.Vec, 0, len(p.Points)+1)
	path = append(path, p.Points...)
	return append(path, p.Points[0])
}

// Length returns the drawn length of the polyline.
func (p Polyline) Length() float64 {
	path := p.Path()
	var total float64
	for i := 1; i < len(path); i++ {
		total += r2.Norm(r2.Sub(path[i], path[i-1]))
	}
	return total
}

// Polylines projects the level's points with project and assembles its
// segments. Warnings carry the level value.
func (l *Level) Polylines(project func(r3.Vec) r2.Vec, tol float64) ([]Polyline, []Warning) {
	points := make([]r2.Vec, len(l.Points))
	for i, p := range l.Points {
		points[i] = project(p)
	}
	lines, warnings := AssemblePolylines(points, l.Segments, tol)
	for i := range warnings {
		warnings[i].Level = l.Value
	}
	return lines, warnings
}

// AssemblePolylines stitches unordered segments over points into maximal
// chains. Segments whose endpoints coincide within tol are dropped, as are
// duplicates. When a chain end can continue along more than one segment, a
// BranchPoint warning is returned and the segment listed first is taken.
func AssemblePolylines(points []r2.Vec, segments []Segment, tol float64) ([]Polyline, []Warning) {
	a := &assembler{points: points, tol: tol}
	a.filter(segments)
	a.used = make([]bool, len(a.segs))

	var lines []Polyline
	for start := range a.segs {
		if a.used[start] {
			continue
		}
		a.used[start] = true
		chain := []int{a.segs[start][0], a.segs[start][1]}

		chain, closed := a.grow(chain)
		if !closed {
			reverse(chain)
			chain, closed = a.grow(chain)
			reverse(chain)
		}
		if closed {
			chain = chain[:len(chain)-1]
		}

		line := Polyline{
			Points:  make([]r2.Vec, len(chain)),
			Indices: chain,
			Closed:  closed,
		}
		for i, idx := range chain {
			line.Points[i] = points[idx]
		}
		lines = append(lines, line)
	}
	return lines, a.warnings
}

type assembler struct {
	points   []r2.Vec
	tol      float64
	segs     []Segment
	used     []bool
	warnings []Warning
}

// filter drops zero-length and repeated segments. A segment repeats another
// when both endpoints coincide within tol, in either direction.
func (a *assembler) filter(segments []Segment) {
	seen := make(map[Segment]bool, len(segments))
	for _, s := range segments {
		if s[0] < 0 || s[1] < 0 || s[0] >= len(a.points) || s[1] >= len(a.points) {
			continue
		}
		if a.same(s[0], s[1]) {
			continue
		}

		key := s
		if key[0] > key[1] {
			key = Segment{key[1], key[0]}
		}
		if seen[key] || a.repeats(s) {
			continue
		}
		seen[key] = true
		a.segs = append(a.segs, s)
	}
}

func (a *assembler) repeats(s Segment) bool {
	for _, k := range a.segs {
		if (a.same(s[0], k[0]) && a.same(s[1], k[1])) || (a.same(s[0], k[1]) && a.same(s[1], k[0])) {
			return true
		}
	}
	return false
}

func (a *assembler) same(i, j int) bool {
	if i == j {
		return true
	}
	return r2.Norm(r2.Sub(a.points[i], a.points[j])) <= a.tol
}

// grow extends the tail of chain until no unused segment continues it or the
// tail meets the head.
func (a *assembler) grow(chain []int) ([]int, bool) {
	for {
		tail := chain[len(chain)-1]
		if len(chain) > 3 && a.same(tail, chain[0]) {
			return chain, true
		}

		next, other, matches := -1, -1, 0
		for i, s := range a.segs {
			if a.used[i] {
				continue
			}
			var far int
			switch {
			case a.same(s[0], tail):
				far = s[1]
			case a.same(s[1], tail):
				far = s[0]
			default:
				continue
			}
			matches++
			if next < 0 {
				next, other = i, far
			}
		}
		if matches == 0 {
			return chain, false
		}
		if matches > 1 {
			p := a.points[tail]
			a.warnings = append(a.warnings, Warning{
				Kind:     BranchPoint,
				Triangle: -1,
				Point:    tail,
				Message:  fmt.Sprintf("%d continuations at (%g, %g)", matches, p.X, p.Y),
			})
		}
		a.used[next] = true
		chain = append(chain, other)
	}
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
