package hands

import (
	"math"

	"github.com/grainlab/sandtable/depth"
)

// handPattern is the corner sequence of four extended fingers seen along the
// blob boundary: tips interleaved with the nooks between them.
var handPattern = [7]cornerKind{tip, nook, tip, nook, tip, nook, tip}

// matchHand scans the cyclic corner list for the four-finger pattern and, if
// its geometry is plausible enough, builds a camera-space hand descriptor.
func matchHand(corners []corner, minProbability, meanDepth float64, proj *depth.Projection) (Hand, bool) {
	n := len(corners)
	if n < len(handPattern) {
		return Hand{}, false
	}

	bestProb := 0.0
	var bestHand Hand

	for s := 0; s < n; s++ {
		match := true
		for k := 0; k < len(handPattern); k++ {
			if corners[(s+k)%n].kind != handPattern[k] {
				match = false
				break
			}
		}
		if !match {
			continue
		}

		var tips [4][2]float64
		var nooks [3][2]float64
		for k := 0; k < len(handPattern); k++ {
			c := corners[(s+k)%n]
			p := [2]float64{float64(c.pos.x), float64(c.pos.y)}
			if k%2 == 0 {
				tips[k/2] = p
			} else {
				nooks[k/2] = p
			}
		}

		prob, hand := scoreHand(tips, nooks, meanDepth, proj)
		if prob > bestProb {
			bestProb = prob
			bestHand = hand
		}
	}

	if bestProb > minProbability {
		return bestHand, true
	}
	return Hand{}, false
}

// scoreHand turns a tip/nook constellation into a probability and a hand
// descriptor. The probability is the product of three uniformity ratios:
// squared tip spacing, nook spacing, and finger length.
func scoreHand(tips [4][2]float64, nooks [3][2]float64, meanDepth float64, proj *depth.Projection) (float64, Hand) {
	// Tip-to-tip spacing.
	minTT, maxTT := math.Inf(1), 0.0
	for i := 0; i < 3; i++ {
		d := dist2(tips[i], tips[i+1])
		minTT = math.Min(minTT, d)
		maxTT = math.Max(maxTT, d)
	}

	// Nook-to-nook spacing.
	minNN, maxNN := math.Inf(1), 0.0
	for i := 0; i < 2; i++ {
		d := dist2(nooks[i], nooks[i+1])
		minNN = math.Min(minNN, d)
		maxNN = math.Max(maxNN, d)
	}

	// Finger roots: interior fingers take the midpoint of their adjacent
	// nooks; the outer fingers extrapolate past their single nook.
	var roots [4][2]float64
	roots[1] = mid(nooks[0], nooks[1])
	roots[2] = mid(nooks[1], nooks[2])
	roots[0] = [2]float64{2*nooks[0][0] - roots[1][0], 2*nooks[0][1] - roots[1][1]}
	roots[3] = [2]float64{2*nooks[2][0] - roots[2][0], 2*nooks[2][1] - roots[2][1]}

	minFL, maxFL := math.Inf(1), 0.0
	for i := 0; i < 4; i++ {
		d := dist2(tips[i], roots[i])
		minFL = math.Min(minFL, d)
		maxFL = math.Max(maxFL, d)
	}

	if maxTT == 0 || maxNN == 0 || maxFL == 0 {
		return 0, Hand{}
	}

	// dist2 values are squared, so the tip-spacing term is already the
	// squared distance ratio; the other two need a square root.
	prob := (minTT / maxTT) * math.Sqrt(minNN/maxNN) * math.Sqrt(minFL/maxFL)

	// Palm center: each finger extrapolated past its root by half its
	// length; the center is the mean of those palm points.
	var cx, cy float64
	for i := 0; i < 4; i++ {
		px := roots[i][0] + (roots[i][0]-tips[i][0])*0.5
		py := roots[i][1] + (roots[i][1]-tips[i][1])*0.5
		cx += px
		cy += py
	}
	cx /= 4
	cy /= 4

	// Pixel-space radius: mean tip distance from the palm center.
	var radiusPx float64
	for i := 0; i < 4; i++ {
		radiusPx += math.Sqrt(dist2(tips[i], [2]float64{cx, cy}))
	}
	radiusPx /= 4

	// Unproject the palm center and a point one radius away at the same
	// depth; their camera-space distance is the hand radius.
	center := proj.Unproject(cx, cy, meanDepth)
	edge := proj.Unproject(cx+radiusPx, cy, meanDepth)
	dx := edge[0] - center[0]
	dy := edge[1] - center[1]
	dz := edge[2] - center[2]
	radius := math.Sqrt(dx*dx + dy*dy + dz*dz)

	return prob, Hand{Center: center, Radius: radius}
}

func dist2(a, b [2]float64) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	return dx*dx + dy*dy
}

func mid(a, b [2]float64) [2]float64 {
	return [2]float64{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}
