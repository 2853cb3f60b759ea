package geometry

import "math"

// PolygonArea returns the signed area of a simple polygon (shoelace formula).
// Positive for clockwise vertex order in image coordinates (y down).
func PolygonArea(polygon []Point2D) float64 {
	n := len(polygon)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return sum / 2
}

// IsConvex returns true if the polygon vertices form a convex polygon.
// Collinear consecutive vertices make the polygon degenerate and return false.
func IsConvex(polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	n := len(polygon)
	var sign int

	for i := 0; i < n; i++ {
		cross := crossProduct(
			polygon[i],
			polygon[(i+1)%n],
			polygon[(i+2)%n],
		)

		if math.Abs(cross) < 1e-9 {
			return false
		}

		currentSign := 1
		if cross < 0 {
			currentSign = -1
		}

		if sign == 0 {
			sign = currentSign
		} else if currentSign != sign {
			return false
		}
	}

	return true
}

// crossProduct computes the cross product of vectors OA and OB.
func crossProduct(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
