package hands

// point is a pixel position on a blob boundary.
type point struct {
	x, y int
}

// moore enumerates the 8-neighborhood in counter-clockwise order starting
// east (image coordinates, y down).
var moore = [8]point{
	{1, 0}, {1, -1}, {0, -1}, {-1, -1}, {-1, 0}, {-1, 1}, {0, 1}, {1, 1},
}

// traceBoundary walks the 8-connected outer boundary of a blob exactly once,
// starting at (sx, sy), whose west neighbor must be outside the blob. The
// walk uses Moore-neighbor tracing with Jacob's stopping criterion: it ends
// when it re-enters the start pixel and is about to repeat the first move it
// made out of it. Points are appended to buf and returned.
func traceBoundary(blobImage []int32, w, h int, sx, sy int, id int32, buf []point) []point {
	inBlob := func(p point) bool {
		if p.x < 0 || p.x >= w || p.y < 0 || p.y >= h {
			return false
		}
		return blobImage[p.y*w+p.x] == id
	}

	// dirOf maps a unit neighbor offset to its Moore ring index.
	dirOf := func(from, to point) int {
		dx, dy := to.x-from.x, to.y-from.y
		for i, d := range moore {
			if d.x == dx && d.y == dy {
				return i
			}
		}
		return 0
	}

	// The start's west neighbor is background by construction of the
	// span scan; it is the initial backtrack point.
	start := point{sx, sy}
	cur := start
	back := point{sx - 1, sy}

	var firstMove point
	haveFirst := false

	// A closed boundary visits each blob pixel at most four times.
	maxSteps := 4 * (w*h + 4)

	for step := 0; step < maxSteps; step++ {
		// Scan counter-clockwise from just past the backtrack for the
		// next boundary pixel; the backtrack becomes the background
		// neighbor checked immediately before it.
		dStart := dirOf(cur, back)
		var next, nextBack point
		found := false
		for i := 1; i <= 8; i++ {
			d := (dStart + i) % 8
			n := point{cur.x + moore[d].x, cur.y + moore[d].y}
			if inBlob(n) {
				prev := (dStart + i - 1) % 8
				nextBack = point{cur.x + moore[prev].x, cur.y + moore[prev].y}
				next = n
				found = true
				break
			}
		}
		if !found {
			// Isolated pixel: degenerate single-point boundary.
			return append(buf, cur)
		}
		if cur == start {
			if !haveFirst {
				firstMove = next
				haveFirst = true
			} else if next == firstMove {
				// Back at the start about to retrace the first move:
				// one full lap.
				return buf
			}
		}
		buf = append(buf, cur)
		back = nextBack
		cur = next
	}
	return buf
}

// cornerKind distinguishes convex (tip) from concave (nook) boundary corners.
type cornerKind int8

const (
	tip cornerKind = iota
	nook
)

// corner is one detected boundary corner: its kind and the boundary point of
// maximal offset from the snake chord while the snake was inside the corner.
type corner struct {
	kind cornerKind
	pos  point
}

// findCorners slides a fixed-length snake of boundary points along the
// closed boundary and records corner entries. The snake is "in a corner"
// when its endpoints are close (the boundary turned back on itself) and its
// midpoint is far from the endpoint chord; the side of the chord the
// midpoint falls on separates tips from nooks. A corner spanning the
// wrap-around is merged when first and last share a kind.
func findCorners(boundary []point, snakeLen int, maxEnterDist, minCenterDist float64, buf []corner) []corner {
	n := len(boundary)
	if n < snakeLen {
		return buf
	}

	// The cross-product sign that marks convex corners depends on the
	// walk orientation; derive it from the boundary's signed area.
	orient := signedArea2(boundary)
	if orient == 0 {
		return buf
	}
	orientSign := 1.0
	if orient < 0 {
		orientSign = -1
	}

	maxEnter2 := maxEnterDist * maxEnterDist
	minCenter2 := minCenterDist * minCenterDist

	inCorner := false
	var curKind cornerKind
	var best float64
	var bestPos point
	firstIdx := -1 // index where the first corner run started

	flush := func() {
		buf = append(buf, corner{kind: curKind, pos: bestPos})
	}

	for i := 0; i < n; i++ {
		t := boundary[i]
		hIdx := (i + snakeLen - 1) % n
		mIdx := (i + (snakeLen-1)/2) % n
		hd := boundary[hIdx]
		m := boundary[mIdx]

		thx := float64(hd.x - t.x)
		thy := float64(hd.y - t.y)
		dTH2 := thx*thx + thy*thy

		// cross = (H-T) x (M-T); the midpoint-to-chord distance d
		// satisfies d^2 * dTH2 = cross^2.
		cross := thx*float64(m.y-t.y) - thy*float64(m.x-t.x)

		// A zero-length chord carries no orientation; skip it.
		atCorner := dTH2 > 0 && dTH2 <= maxEnter2 && cross*cross >= minCenter2*dTH2*dTH2
		var kind cornerKind
		if atCorner {
			if cross*orientSign > 0 {
				kind = tip
			} else {
				kind = nook
			}
		}

		switch {
		case atCorner && !inCorner:
			inCorner = true
			curKind = kind
			best = cross * cross / dTH2
			bestPos = m
			if firstIdx < 0 {
				firstIdx = i
			}
		case atCorner && inCorner && kind == curKind:
			if off := cross * cross / dTH2; off > best {
				best = off
				bestPos = m
			}
		case atCorner && inCorner && kind != curKind:
			flush()
			curKind = kind
			best = cross * cross / dTH2
			bestPos = m
		case !atCorner && inCorner:
			flush()
			inCorner = false
		}
	}
	if inCorner {
		flush()
	}

	// Merge a corner split across the wrap-around: the run still open at
	// the end continues into the run that started at index 0.
	if len(buf) >= 2 && inCorner && firstIdx == 0 && buf[0].kind == buf[len(buf)-1].kind {
		buf = buf[:len(buf)-1]
	}

	return buf
}

// signedArea2 returns twice the signed area of the closed boundary polygon.
func signedArea2(pts []point) float64 {
	var area float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += float64(pts[i].x)*float64(pts[j].y) - float64(pts[j].x)*float64(pts[i].y)
	}
	return area
}
